package entities

// Source tags which stage of the cascade produced a reply.
type Source string

const (
	SourceRuleBased      Source = "rule-based"
	SourceCached         Source = "cached"
	SourceRAG            Source = "rag"
	SourceRAGLLM         Source = "rag+llm"
	SourceRAGLLMFallback Source = "rag+llm-fallback"
	SourceLLMFallback    Source = "llm-fallback"
	SourceRuleFallback   Source = "rule-fallback"
)

// AnswerEnvelope is the uniform result returned to every channel.
type AnswerEnvelope struct {
	Reply   string   `json:"reply"`
	Context []string `json:"context"`
	Source  Source   `json:"source"`
}

// NewAnswer builds an envelope whose Context is never nil so it always
// serializes as a list.
func NewAnswer(reply string, source Source, context []string) AnswerEnvelope {
	if context == nil {
		context = []string{}
	}
	return AnswerEnvelope{Reply: reply, Context: context, Source: source}
}

// Rule is one entry of the greeting or facts dictionary.
type Rule struct {
	Key   string `yaml:"key" json:"key"`
	Reply string `yaml:"reply" json:"reply"`
}

// RuleMatch is a reply found without calling any external service.
type RuleMatch struct {
	Reply  string
	Source Source
}
