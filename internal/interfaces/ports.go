package interfaces

import (
	"context"

	"github.com/huduma/answer-service/internal/entities"
)

// Retriever looks a question up in the document store.
type Retriever interface {
	Retrieve(ctx context.Context, question string) (entities.RetrievalResult, error)
	Health(ctx context.Context) error
}

// Generator produces a completion. A rate-limited response must be
// reported with an error for which errors.IsRateLimited is true.
type Generator interface {
	Generate(ctx context.Context, req entities.GenerationRequest) (entities.GenerationResult, error)
}

// Messenger delivers a reply on an outbound channel.
type Messenger interface {
	SendMessage(ctx context.Context, to, content string) error
}

// ChatHandler resolves one inbound message into an answer. Channel
// adapters depend on this instead of the use case package.
type ChatHandler interface {
	Handle(ctx context.Context, msg entities.Message, history []entities.Turn) entities.AnswerEnvelope
}

type UsageRecorder interface {
	Record(ctx context.Context, event entities.UsageEvent) error
}

type UsageReader interface {
	DailyUsage(ctx context.Context, days int) ([]entities.DailyUsage, error)
	SourceTotals(ctx context.Context, days int) (map[entities.Source]int64, error)
}
