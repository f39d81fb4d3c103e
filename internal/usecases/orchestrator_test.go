package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huduma/answer-service/internal/entities"
	apperrors "github.com/huduma/answer-service/internal/errors"
	"github.com/huduma/answer-service/internal/logger"
)

type fakeRetriever struct {
	mu        sync.Mutex
	calls     int
	health    int
	result    entities.RetrievalResult
	err       error
	healthErr error
	hang      bool
}

func (f *fakeRetriever) Retrieve(ctx context.Context, question string) (entities.RetrievalResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.hang {
		<-ctx.Done()
		return entities.RetrievalResult{}, apperrors.NewTransportError("retrieve", ctx.Err())
	}
	return f.result, f.err
}

func (f *fakeRetriever) Health(ctx context.Context) error {
	f.mu.Lock()
	f.health++
	f.mu.Unlock()
	return f.healthErr
}

func (f *fakeRetriever) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type generatorReply struct {
	text string
	err  error
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []entities.GenerationRequest
	replies  map[entities.PromptVariant][]generatorReply
	hang     bool
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{replies: map[entities.PromptVariant][]generatorReply{}}
}

func (f *fakeGenerator) on(variant entities.PromptVariant, replies ...generatorReply) *fakeGenerator {
	f.replies[variant] = append(f.replies[variant], replies...)
	return f
}

func (f *fakeGenerator) Generate(ctx context.Context, req entities.GenerationRequest) (entities.GenerationResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	queue := f.replies[req.Variant]
	var reply generatorReply
	switch {
	case len(queue) > 1:
		reply = queue[0]
		f.replies[req.Variant] = queue[1:]
	case len(queue) == 1:
		reply = queue[0]
	default:
		reply = generatorReply{err: apperrors.NewStatusError("generate", 500)}
	}
	f.mu.Unlock()

	if f.hang {
		<-ctx.Done()
		return entities.GenerationResult{}, apperrors.NewTransportError("generate", ctx.Err())
	}
	return entities.GenerationResult{Text: reply.text}, reply.err
}

func (f *fakeGenerator) Requests() []entities.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.GenerationRequest(nil), f.requests...)
}

func (f *fakeGenerator) Variants() []entities.PromptVariant {
	var out []entities.PromptVariant
	for _, r := range f.Requests() {
		out = append(out, r.Variant)
	}
	return out
}

var testPrompts = Prompts{
	Grounded:      "grounded system prompt",
	Ungrounded:    "ungrounded system prompt",
	NoInformation: "Sorry, I do not have official information on that topic.",
	HighTraffic:   "I'm experiencing high traffic right now and can't answer this question at the moment. Please try again in a few minutes!",
}

func testOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		RequestDeadline:   9 * time.Second,
		SafetyMargin:      300 * time.Millisecond,
		MinCall:           250 * time.Millisecond,
		RetrieveTimeout:   4 * time.Second,
		RetrieveFraction:  0.6,
		HealthTimeout:     time.Second,
		GroundedTimeout:   6 * time.Second,
		UngroundedTimeout: 3 * time.Second,
		MaxHistoryTurns:   10,
		Retry:             RetryPolicy{MaxAttempts: 3, BackoffBase: 2 * time.Second, EstimatedCall: 4 * time.Second},
	}
}

func newTestOrchestrator(t *testing.T, cfg OrchestratorConfig, r *fakeRetriever, g *fakeGenerator, clock Clock) *Orchestrator {
	t.Helper()
	rules := NewRuleMatcher(
		[]entities.Rule{{Key: "hello", Reply: "Hello! I am Huduma, your legislative information assistant. How can I help you?"}},
		[]entities.Rule{{Key: "what do you do", Reply: "I assist with questions about Kenyan legislation and policy."}},
	)
	return NewOrchestrator(cfg, rules, r, g, testPrompts, logger.NewTestLogger(t), WithClock(clock))
}

func query(text string) entities.Query {
	return entities.Query{Raw: text, Channel: entities.PlatformWeb}
}

func TestResolve_GreetingMakesNoCalls(t *testing.T) {
	r, g := &fakeRetriever{}, newFakeGenerator()
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, newFakeClock())

	env := o.Resolve(context.Background(), query("  Hello!!  "))

	assert.Equal(t, "Hello! I am Huduma, your legislative information assistant. How can I help you?", env.Reply)
	assert.Equal(t, entities.SourceRuleBased, env.Source)
	assert.NotNil(t, env.Context)
	assert.Empty(t, env.Context)
	assert.Zero(t, r.Calls())
	assert.Empty(t, g.Requests())
}

func TestResolve_FactIsCached(t *testing.T) {
	r, g := &fakeRetriever{}, newFakeGenerator()
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, newFakeClock())

	env := o.Resolve(context.Background(), query("So... what do you do exactly?"))

	assert.Equal(t, entities.SourceCached, env.Source)
	assert.Zero(t, r.Calls())
	assert.Empty(t, g.Requests())
}

func TestResolve_DirectRetrieverAnswer(t *testing.T) {
	r := &fakeRetriever{result: entities.RetrievalResult{Answer: "The Act was passed in 2019.", Context: []string{"ignored"}}}
	g := newFakeGenerator()
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, newFakeClock())

	env := o.Resolve(context.Background(), query("When was the Data Protection Act passed?"))

	assert.Equal(t, "The Act was passed in 2019.", env.Reply)
	assert.Equal(t, entities.SourceRAG, env.Source)
	assert.Empty(t, env.Context)
	assert.Equal(t, 1, r.Calls())
	assert.Empty(t, g.Requests())
}

func TestResolve_GroundedSuccess(t *testing.T) {
	r := &fakeRetriever{result: entities.RetrievalResult{Context: []string{"Section 2 defines data.", "Section 3 covers consent."}}}
	g := newFakeGenerator().on(entities.PromptGrounded, generatorReply{text: "  Consent is covered by Section 3.  "})
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, newFakeClock())

	env := o.Resolve(context.Background(), query("What does the Act say about consent?"))

	assert.Equal(t, "Consent is covered by Section 3.", env.Reply)
	assert.Equal(t, entities.SourceRAGLLM, env.Source)
	assert.Equal(t, []string{"Section 2 defines data.", "Section 3 covers consent."}, env.Context)

	reqs := g.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "grounded system prompt", reqs[0].SystemPrompt)
	assert.Equal(t, "Retrieved context: Section 2 defines data. Section 3 covers consent.", reqs[0].Turns[len(reqs[0].Turns)-1].Content)
	assert.Equal(t, "What does the Act say about consent?", reqs[0].Question)
}

func TestResolve_GroundedFailureKeepsContextAndMakesNoFurtherCall(t *testing.T) {
	r := &fakeRetriever{result: entities.RetrievalResult{Context: []string{"A", "B"}}}
	g := newFakeGenerator().on(entities.PromptGrounded, generatorReply{err: apperrors.NewStatusError("generate", 502)})
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, newFakeClock())

	env := o.Resolve(context.Background(), query("Explain the Finance Bill"))

	assert.Equal(t, "Sorry, I do not have official information on that topic.", env.Reply)
	assert.Equal(t, entities.SourceRAGLLMFallback, env.Source)
	assert.Equal(t, []string{"A", "B"}, env.Context)
	assert.Equal(t, []entities.PromptVariant{entities.PromptGrounded}, g.Variants())
}

func TestResolve_EmptyGroundedCompletionIsFailure(t *testing.T) {
	r := &fakeRetriever{result: entities.RetrievalResult{Context: []string{"A"}}}
	g := newFakeGenerator().on(entities.PromptGrounded, generatorReply{text: "   "})
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, newFakeClock())

	env := o.Resolve(context.Background(), query("Explain the Finance Bill"))

	assert.Equal(t, entities.SourceRAGLLMFallback, env.Source)
	assert.Len(t, g.Requests(), 1)
}

func TestResolve_RetrieverFailureFallsBackToUngrounded(t *testing.T) {
	r := &fakeRetriever{err: apperrors.NewTimeoutError("retrieve", context.DeadlineExceeded)}
	g := newFakeGenerator().on(entities.PromptUngrounded, generatorReply{text: "T"})
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, newFakeClock())

	env := o.Resolve(context.Background(), query("What is the Huduma Bill?"))

	assert.Equal(t, "T", env.Reply)
	assert.Equal(t, entities.SourceLLMFallback, env.Source)
	assert.NotNil(t, env.Context)
	assert.Empty(t, env.Context)
	assert.Equal(t, []entities.PromptVariant{entities.PromptUngrounded}, g.Variants())
}

func TestResolve_EmptyRetrievalFallsBackToUngrounded(t *testing.T) {
	r := &fakeRetriever{result: entities.RetrievalResult{}}
	g := newFakeGenerator().on(entities.PromptUngrounded, generatorReply{text: "Please rephrase."})
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, newFakeClock())

	env := o.Resolve(context.Background(), query("Tell me something"))

	assert.Equal(t, entities.SourceLLMFallback, env.Source)
}

func TestResolve_UngroundedFailureUsesHighTrafficReply(t *testing.T) {
	r := &fakeRetriever{err: apperrors.NewConfigurationError("retriever url not configured")}
	g := newFakeGenerator().on(entities.PromptUngrounded, generatorReply{err: apperrors.NewStatusError("generate", 503)})
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, newFakeClock())

	env := o.Resolve(context.Background(), query("Anything new in parliament?"))

	assert.Equal(t, testPrompts.HighTraffic, env.Reply)
	assert.Equal(t, entities.SourceRuleFallback, env.Source)
	assert.Empty(t, env.Context)
}

func TestResolve_HealthProbeFailureSkipsRetrieval(t *testing.T) {
	cfg := testOrchestratorConfig()
	cfg.HealthCheck = true
	r := &fakeRetriever{healthErr: apperrors.NewStatusError("retriever health", 503)}
	g := newFakeGenerator().on(entities.PromptUngrounded, generatorReply{text: "fallback"})
	o := newTestOrchestrator(t, cfg, r, g, newFakeClock())

	env := o.Resolve(context.Background(), query("What is the Privatization Act?"))

	assert.Equal(t, entities.SourceLLMFallback, env.Source)
	assert.Zero(t, r.Calls())
	assert.Equal(t, 1, r.health)
}

func TestResolve_RateLimitedGroundedRetriesWithinBudget(t *testing.T) {
	clock := newFakeClock()
	r := &fakeRetriever{result: entities.RetrievalResult{Context: []string{"A"}}}
	g := newFakeGenerator().on(entities.PromptGrounded,
		generatorReply{err: apperrors.NewRateLimitedError("generate")},
		generatorReply{text: "Grounded answer."},
	)
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, clock)

	env := o.Resolve(context.Background(), query("Explain the Finance Bill"))

	assert.Equal(t, entities.SourceRAGLLM, env.Source)
	assert.Equal(t, "Grounded answer.", env.Reply)
	assert.Len(t, g.Requests(), 2)
	assert.Equal(t, []time.Duration{2 * time.Second}, clock.Sleeps())
}

func TestResolve_RateLimitedWithSmallBudgetMakesOneAttempt(t *testing.T) {
	clock := newFakeClock()
	cfg := testOrchestratorConfig()
	cfg.RequestDeadline = 5 * time.Second
	r := &fakeRetriever{err: apperrors.NewTimeoutError("retrieve", context.DeadlineExceeded)}
	g := newFakeGenerator().on(entities.PromptUngrounded, generatorReply{err: apperrors.NewRateLimitedError("generate")})
	o := newTestOrchestrator(t, cfg, r, g, clock)

	env := o.Resolve(context.Background(), query("Is the Finance Act in force?"))

	assert.Equal(t, entities.SourceRuleFallback, env.Source)
	assert.Len(t, g.Requests(), 1)
	assert.Empty(t, clock.Sleeps())
}

func TestResolve_ExhaustedBudgetSkipsCalls(t *testing.T) {
	r, g := &fakeRetriever{}, newFakeGenerator()
	cfg := testOrchestratorConfig()
	cfg.RequestDeadline = 200 * time.Millisecond
	o := newTestOrchestrator(t, cfg, r, g, newFakeClock())

	env := o.Resolve(context.Background(), query("What is the Finance Act?"))

	assert.Equal(t, entities.SourceRuleFallback, env.Source)
	assert.NotEmpty(t, env.Reply)
	assert.Zero(t, r.Calls())
	assert.Empty(t, g.Requests())
}

func TestResolve_CallerDeadlineShrinksBudget(t *testing.T) {
	r, g := &fakeRetriever{}, newFakeGenerator()
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, SystemClock())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	env := o.Resolve(ctx, query("What is the Finance Act?"))

	assert.Equal(t, entities.SourceRuleFallback, env.Source)
	assert.Zero(t, r.Calls(), "100ms minus the safety margin leaves nothing to call with")
}

func TestResolve_HangingCollaboratorsStillFinishByDeadline(t *testing.T) {
	cfg := OrchestratorConfig{
		RequestDeadline:   400 * time.Millisecond,
		SafetyMargin:      20 * time.Millisecond,
		MinCall:           10 * time.Millisecond,
		RetrieveTimeout:   300 * time.Millisecond,
		RetrieveFraction:  0.6,
		GroundedTimeout:   300 * time.Millisecond,
		UngroundedTimeout: 300 * time.Millisecond,
		Retry:             RetryPolicy{MaxAttempts: 3, BackoffBase: 2 * time.Second, EstimatedCall: 4 * time.Second},
	}
	r := &fakeRetriever{hang: true}
	g := newFakeGenerator()
	g.hang = true
	o := newTestOrchestrator(t, cfg, r, g, SystemClock())

	start := time.Now()
	env := o.Resolve(context.Background(), query("Summarize every act passed this year"))
	elapsed := time.Since(start)

	assert.Equal(t, entities.SourceRuleFallback, env.Source)
	assert.Equal(t, testPrompts.HighTraffic, env.Reply)
	assert.Less(t, elapsed, 400*time.Millisecond+100*time.Millisecond)
	assert.Equal(t, 1, r.Calls())
	assert.Len(t, g.Requests(), 1)
}

func TestResolve_HistoryIsForwarded(t *testing.T) {
	r := &fakeRetriever{err: apperrors.NewTimeoutError("retrieve", context.DeadlineExceeded)}
	g := newFakeGenerator().on(entities.PromptUngrounded, generatorReply{text: "ok"})
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, newFakeClock())

	q := query("And the penalties?")
	q.History = []entities.Turn{{Role: "user", Content: "Tell me about the Cybercrimes Act"}, {Role: "bot", Content: "It was passed in 2018."}}
	o.Resolve(context.Background(), q)

	reqs := g.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []entities.Turn{
		{Role: "user", Content: "Tell me about the Cybercrimes Act"},
		{Role: "assistant", Content: "It was passed in 2018."},
	}, reqs[0].Turns)
}

func TestResolve_ConcurrentRequestsAreIndependent(t *testing.T) {
	r := &fakeRetriever{result: entities.RetrievalResult{Context: []string{"A"}}}
	g := newFakeGenerator().on(entities.PromptGrounded, generatorReply{text: "answer"})
	o := newTestOrchestrator(t, testOrchestratorConfig(), r, g, SystemClock())

	var wg sync.WaitGroup
	results := make([]entities.AnswerEnvelope, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Resolve(context.Background(), query("What is the Finance Act?"))
		}(i)
	}
	wg.Wait()

	for _, env := range results {
		assert.Equal(t, entities.SourceRAGLLM, env.Source)
		assert.Equal(t, []string{"A"}, env.Context)
	}
}
