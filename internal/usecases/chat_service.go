package usecases

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/huduma/answer-service/internal/entities"
	"github.com/huduma/answer-service/internal/interfaces"
	"github.com/huduma/answer-service/internal/logger"
	"github.com/huduma/answer-service/internal/metrics"
)

// Resolver turns a query into an answer envelope.
type Resolver interface {
	Resolve(ctx context.Context, q entities.Query) entities.AnswerEnvelope
}

// ChatService is the entry point shared by every channel adapter. It
// resolves the message, counts the outcome and records usage in the
// background.
type ChatService struct {
	resolver      Resolver
	usage         interfaces.UsageRecorder
	recordTimeout time.Duration
	logger        logger.Logger
	pending       sync.WaitGroup
}

// NewChatService accepts a nil usage recorder when usage tracking is off.
func NewChatService(resolver Resolver, usage interfaces.UsageRecorder, recordTimeout time.Duration, log logger.Logger) *ChatService {
	if recordTimeout <= 0 {
		recordTimeout = 2 * time.Second
	}
	return &ChatService{
		resolver:      resolver,
		usage:         usage,
		recordTimeout: recordTimeout,
		logger:        log,
	}
}

// Handle implements interfaces.ChatHandler.
func (s *ChatService) Handle(ctx context.Context, msg entities.Message, history []entities.Turn) entities.AnswerEnvelope {
	start := time.Now()
	channel := msg.Platform
	if channel == "" {
		channel = entities.PlatformWeb
	}

	raw := strings.TrimSpace(msg.Content)
	env := s.resolver.Resolve(ctx, entities.Query{
		Raw:        raw,
		Normalized: Normalize(raw),
		Channel:    channel,
		Sender:     msg.From,
		History:    history,
	})
	latency := time.Since(start)

	metrics.AnswerResolutions.WithLabelValues(channel, string(env.Source)).Inc()
	metrics.AnswerDuration.WithLabelValues(channel).Observe(latency.Seconds())

	if s.usage != nil {
		s.record(entities.UsageEvent{At: start, Channel: channel, Source: env.Source, Latency: latency})
	}
	return env
}

// record writes usage without holding up the reply. Failures are logged
// and otherwise ignored.
func (s *ChatService) record(event entities.UsageEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.recordTimeout)
		defer cancel()
		if err := s.usage.Record(ctx, event); err != nil {
			s.logger.WithError(err).Warn("failed to record usage", map[string]interface{}{
				"channel": event.Channel,
				"source":  string(event.Source),
			})
		}
	}()
}

// Wait blocks until background usage writes have finished.
func (s *ChatService) Wait() {
	s.pending.Wait()
}
