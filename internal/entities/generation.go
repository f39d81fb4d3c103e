package entities

// RetrievalResult is what the retriever returned: either a direct answer,
// context snippets, or both.
type RetrievalResult struct {
	Answer  string
	Context []string
}

// HasAnswer reports whether the retriever produced a usable direct answer.
func (r RetrievalResult) HasAnswer() bool {
	return r.Answer != ""
}

// HasContext reports whether any snippet came back. Empty snippets are
// dropped by the retriever client before this is consulted.
func (r RetrievalResult) HasContext() bool {
	return len(r.Context) > 0
}

type PromptVariant string

const (
	PromptGrounded   PromptVariant = "grounded"
	PromptUngrounded PromptVariant = "ungrounded"
)

// GenerationRequest is sent to the language-model completion service.
// Turns are placed between the system prompt and the question.
type GenerationRequest struct {
	Variant      PromptVariant
	SystemPrompt string
	Turns        []Turn
	Question     string
}

type GenerationResult struct {
	Text string
}
