package entities

// Message is an inbound text received by one of the channel adapters.
type Message struct {
	ID       string
	From     string
	Content  string
	Platform string // "web", "whatsapp" or "telegram"
}

const (
	PlatformWeb      = "web"
	PlatformWhatsApp = "whatsapp"
	PlatformTelegram = "telegram"
)

// Turn is one prior exchange supplied by a channel adapter.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Query is the per-request input to the orchestrator.
type Query struct {
	Raw        string
	Normalized string
	Channel    string
	Sender     string
	History    []Turn
}
