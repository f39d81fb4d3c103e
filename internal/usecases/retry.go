package usecases

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	apperrors "github.com/huduma/answer-service/internal/errors"
)

// RetryPolicy controls how rate-limited generator calls are repeated.
type RetryPolicy struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	EstimatedCall time.Duration
}

func (p RetryPolicy) newBackoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(p.BackoffBase))
}

// RetryOutcome describes how a retried operation ended.
type RetryOutcome[T any] struct {
	Value    T
	Err      error
	Attempts int
	// Delays holds every backoff actually slept, in order.
	Delays []time.Duration
	// BudgetAborted is set when a retry was abandoned because the next
	// delay plus an estimated call would overrun the deadline.
	BudgetAborted bool
}

func (o RetryOutcome[T]) OK() bool {
	return o.Err == nil
}

// RetryRateLimited runs op until it succeeds, fails with anything other
// than a rate limit, or runs out of attempts. Each planned sleep is checked
// against the budget first; nothing is slept after the last attempt.
func RetryRateLimited[T any](ctx context.Context, policy RetryPolicy, budget *Budget, op func(ctx context.Context) (T, error)) RetryOutcome[T] {
	var out RetryOutcome[T]
	backoff := policy.newBackoff()

	for {
		out.Attempts++
		value, err := op(ctx)
		if err == nil {
			out.Value = value
			out.Err = nil
			return out
		}
		out.Err = err

		if !apperrors.IsRateLimited(err) {
			return out
		}
		delay, stop := backoff.Next()
		if stop {
			return out
		}
		if !budget.AllowsRetry(delay, policy.EstimatedCall) {
			out.BudgetAborted = true
			return out
		}
		if err := budget.Sleep(ctx, delay); err != nil {
			out.Err = apperrors.NewTimeoutError("retry backoff", err)
			return out
		}
		out.Delays = append(out.Delays, delay)
	}
}
