package usecases

import (
	"strings"

	"github.com/huduma/answer-service/internal/entities"
)

const (
	contextPrefix     = "Retrieved context: "
	weakContextPrefix = "Official information: "
)

// Prompts are the fixed texts the cascade speaks with.
type Prompts struct {
	Grounded      string
	Ungrounded    string
	NoInformation string
	HighTraffic   string
	// Facts, when set, is offered to the ungrounded prompt as weak context.
	Facts string
}

// recentTurns keeps the last max well-formed turns. "bot" is accepted as
// an alias for "assistant"; other roles are dropped.
func recentTurns(history []entities.Turn, max int) []entities.Turn {
	if max <= 0 || len(history) == 0 {
		return nil
	}
	turns := make([]entities.Turn, 0, len(history))
	for _, t := range history {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(t.Role))
		switch role {
		case "user", "assistant":
		case "bot":
			role = "assistant"
		default:
			continue
		}
		turns = append(turns, entities.Turn{Role: role, Content: content})
	}
	if len(turns) > max {
		turns = turns[len(turns)-max:]
	}
	return turns
}

func groundedRequest(p Prompts, q entities.Query, snippets []string, maxTurns int) entities.GenerationRequest {
	turns := recentTurns(q.History, maxTurns)
	turns = append(turns, entities.Turn{Role: "user", Content: contextPrefix + strings.Join(snippets, " ")})
	return entities.GenerationRequest{
		Variant:      entities.PromptGrounded,
		SystemPrompt: p.Grounded,
		Turns:        turns,
		Question:     q.Raw,
	}
}

func ungroundedRequest(p Prompts, q entities.Query, maxTurns int) entities.GenerationRequest {
	turns := recentTurns(q.History, maxTurns)
	if p.Facts != "" {
		turns = append(turns, entities.Turn{Role: "user", Content: weakContextPrefix + p.Facts})
	}
	return entities.GenerationRequest{
		Variant:      entities.PromptUngrounded,
		SystemPrompt: p.Ungrounded,
		Turns:        turns,
		Question:     q.Raw,
	}
}
