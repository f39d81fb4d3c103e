package usecases

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/huduma/answer-service/internal/entities"
	apperrors "github.com/huduma/answer-service/internal/errors"
	"github.com/huduma/answer-service/internal/interfaces"
	"github.com/huduma/answer-service/internal/logger"
	"github.com/huduma/answer-service/internal/metrics"
)

// State is a step of the answer cascade.
type State string

const (
	StateStart              State = "START"
	StateRuleCheck          State = "RULE_CHECK"
	StateRetrieve           State = "RETRIEVE"
	StateGroundedGenerate   State = "GROUNDED_GENERATE"
	StateUngroundedGenerate State = "UNGROUNDED_GENERATE"
	StateDone               State = "DONE"
)

type outcomeKind string

const (
	outcomeAnswer  outcomeKind = "answer"
	outcomeContext outcomeKind = "context"
	outcomeFailure outcomeKind = "failure"
)

// stageOutcome is what a stage hands to the transition function.
type stageOutcome struct {
	kind    outcomeKind
	text    string
	context []string
	err     error
}

type OrchestratorConfig struct {
	RequestDeadline   time.Duration
	SafetyMargin      time.Duration
	MinCall           time.Duration
	RetrieveTimeout   time.Duration
	RetrieveFraction  float64
	HealthCheck       bool
	HealthTimeout     time.Duration
	GroundedTimeout   time.Duration
	UngroundedTimeout time.Duration
	MaxHistoryTurns   int
	Retry             RetryPolicy
}

type Orchestrator struct {
	cfg       OrchestratorConfig
	rules     *RuleMatcher
	retriever interfaces.Retriever
	generator interfaces.Generator
	prompts   Prompts
	clock     Clock
	logger    logger.Logger
	tracer    trace.Tracer
}

type OrchestratorOption func(*Orchestrator)

func WithClock(c Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

func NewOrchestrator(cfg OrchestratorConfig, rules *RuleMatcher, retriever interfaces.Retriever, generator interfaces.Generator, prompts Prompts, log logger.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		rules:     rules,
		retriever: retriever,
		generator: generator,
		prompts:   prompts,
		clock:     SystemClock(),
		logger:    log,
		tracer:    otel.Tracer("github.com/huduma/answer-service/usecases"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// resolution is the per-request state. It is never shared between
// requests.
type resolution struct {
	query    entities.Query
	budget   *Budget
	state    State
	context  []string
	envelope entities.AnswerEnvelope
	log      logger.Logger
}

// Resolve runs the cascade for one query and always returns an envelope
// with a non-empty reply before the request deadline.
func (o *Orchestrator) Resolve(ctx context.Context, q entities.Query) entities.AnswerEnvelope {
	total := o.cfg.RequestDeadline
	if dl, ok := ctx.Deadline(); ok {
		if left := dl.Sub(o.clock.Now()); left < total {
			total = left
		}
	}
	budget := NewBudget(o.clock, total, BudgetLimits{SafetyMargin: o.cfg.SafetyMargin, MinCall: o.cfg.MinCall})

	ctx, cancel := context.WithDeadline(ctx, budget.Deadline())
	defer cancel()

	run := &resolution{
		query:  q,
		budget: budget,
		state:  StateStart,
		log:    o.logger.WithFields(map[string]interface{}{"channel": q.Channel}),
	}
	for run.state != StateDone {
		run.state = o.step(ctx, run)
	}

	run.log.Info("answer resolved", map[string]interface{}{
		"source":     string(run.envelope.Source),
		"elapsed_ms": budget.Elapsed().Milliseconds(),
	})
	return run.envelope
}

func (o *Orchestrator) step(ctx context.Context, run *resolution) State {
	switch run.state {
	case StateStart:
		if run.query.Normalized == "" {
			run.query.Normalized = Normalize(run.query.Raw)
		}
		return StateRuleCheck

	case StateRuleCheck:
		match, ok := o.rules.Match(run.query.Normalized)
		if !ok {
			return StateRetrieve
		}
		run.envelope = entities.NewAnswer(match.Reply, match.Source, nil)
		return StateDone

	case StateRetrieve:
		out := o.observe(ctx, StateRetrieve, run, o.retrieve)
		switch out.kind {
		case outcomeAnswer:
			run.envelope = entities.NewAnswer(out.text, entities.SourceRAG, nil)
			return StateDone
		case outcomeContext:
			run.context = out.context
			return StateGroundedGenerate
		default:
			return StateUngroundedGenerate
		}

	case StateGroundedGenerate:
		out := o.observe(ctx, StateGroundedGenerate, run, o.generateGrounded)
		if out.kind == outcomeAnswer {
			run.envelope = entities.NewAnswer(out.text, entities.SourceRAGLLM, run.context)
		} else {
			run.envelope = entities.NewAnswer(o.prompts.NoInformation, entities.SourceRAGLLMFallback, run.context)
		}
		return StateDone

	case StateUngroundedGenerate:
		out := o.observe(ctx, StateUngroundedGenerate, run, o.generateUngrounded)
		if out.kind == outcomeAnswer {
			run.envelope = entities.NewAnswer(out.text, entities.SourceLLMFallback, nil)
		} else {
			run.envelope = entities.NewAnswer(o.prompts.HighTraffic, entities.SourceRuleFallback, nil)
		}
		return StateDone
	}

	run.envelope = entities.NewAnswer(o.prompts.HighTraffic, entities.SourceRuleFallback, nil)
	return StateDone
}

// observe wraps a stage with a span, a duration metric and a log line.
func (o *Orchestrator) observe(ctx context.Context, state State, run *resolution, stage func(context.Context, *resolution) stageOutcome) stageOutcome {
	ctx, span := o.tracer.Start(ctx, "answer."+strings.ToLower(string(state)))
	defer span.End()

	start := time.Now()
	out := stage(ctx, run)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.String("outcome", string(out.kind)))
	metrics.StageDuration.WithLabelValues(string(state), string(out.kind)).Observe(elapsed.Seconds())

	fields := map[string]interface{}{
		"stage":        string(state),
		"outcome":      string(out.kind),
		"duration_ms":  elapsed.Milliseconds(),
		"remaining_ms": run.budget.Remaining().Milliseconds(),
	}
	if out.err != nil {
		span.RecordError(out.err)
		fields["reason"] = string(apperrors.CodeOf(out.err))
		run.log.WithError(out.err).Warn("stage failed", fields)
	} else {
		run.log.Debug("stage completed", fields)
	}
	return out
}

func (o *Orchestrator) retrieve(ctx context.Context, run *resolution) stageOutcome {
	if o.cfg.HealthCheck {
		if err := o.probeRetriever(ctx, run); err != nil {
			return stageOutcome{kind: outcomeFailure, err: err}
		}
	}

	limit := o.cfg.RetrieveTimeout
	if capped := time.Duration(float64(run.budget.Total()) * o.cfg.RetrieveFraction); capped < limit {
		limit = capped
	}
	timeout, ok := run.budget.StageTimeout(limit)
	if !ok {
		return stageOutcome{kind: outcomeFailure, err: apperrors.NewBudgetExhaustedError("retrieve")}
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := o.retriever.Retrieve(rctx, run.query.Raw)
	if err != nil {
		return stageOutcome{kind: outcomeFailure, err: err}
	}
	if result.HasAnswer() {
		return stageOutcome{kind: outcomeAnswer, text: result.Answer}
	}
	if result.HasContext() {
		return stageOutcome{kind: outcomeContext, context: result.Context}
	}
	return stageOutcome{kind: outcomeFailure, err: apperrors.NewEmptyResultError("retrieve")}
}

func (o *Orchestrator) probeRetriever(ctx context.Context, run *resolution) error {
	timeout, ok := run.budget.StageTimeout(o.cfg.HealthTimeout)
	if !ok {
		return apperrors.NewBudgetExhaustedError("retriever health check")
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return o.retriever.Health(hctx)
}

func (o *Orchestrator) generateGrounded(ctx context.Context, run *resolution) stageOutcome {
	req := groundedRequest(o.prompts, run.query, run.context, o.cfg.MaxHistoryTurns)
	return o.generate(ctx, run, req, o.cfg.GroundedTimeout)
}

func (o *Orchestrator) generateUngrounded(ctx context.Context, run *resolution) stageOutcome {
	req := ungroundedRequest(o.prompts, run.query, o.cfg.MaxHistoryTurns)
	return o.generate(ctx, run, req, o.cfg.UngroundedTimeout)
}

// generate makes the completion call under the rate-limit retry policy.
// Every attempt gets a fresh stage timeout from the remaining budget.
func (o *Orchestrator) generate(ctx context.Context, run *resolution, req entities.GenerationRequest, limit time.Duration) stageOutcome {
	variant := string(req.Variant)
	attempt := func(ctx context.Context) (entities.GenerationResult, error) {
		timeout, ok := run.budget.StageTimeout(limit)
		if !ok {
			return entities.GenerationResult{}, apperrors.NewBudgetExhaustedError(variant + " generation")
		}
		gctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res, err := o.generator.Generate(gctx, req)
		if err == nil && strings.TrimSpace(res.Text) == "" {
			err = apperrors.NewEmptyResultError(variant + " generation")
		}
		metrics.GeneratorAttempts.WithLabelValues(variant, attemptOutcome(err)).Inc()
		return res, err
	}

	out := RetryRateLimited(ctx, o.cfg.Retry, run.budget, attempt)
	if out.BudgetAborted {
		metrics.RetryAborts.Inc()
		run.log.Warn("rate-limit retry abandoned, budget too small", map[string]interface{}{
			"variant":      variant,
			"attempts":     out.Attempts,
			"remaining_ms": run.budget.Remaining().Milliseconds(),
		})
	}
	if !out.OK() {
		return stageOutcome{kind: outcomeFailure, err: out.Err}
	}
	return stageOutcome{kind: outcomeAnswer, text: strings.TrimSpace(out.Value.Text)}
}

func attemptOutcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(apperrors.CodeOf(err)))
}
