package usecases

import (
	"context"
	"time"
)

// Clock is the time source used for deadlines and backoff sleeps.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type BudgetLimits struct {
	SafetyMargin time.Duration
	MinCall      time.Duration
}

// Budget tracks one request's absolute deadline. The deadline is fixed
// at creation; every later question is answered against it.
type Budget struct {
	clock    Clock
	start    time.Time
	deadline time.Time
	limits   BudgetLimits
}

func NewBudget(clock Clock, total time.Duration, limits BudgetLimits) *Budget {
	now := clock.Now()
	return &Budget{
		clock:    clock,
		start:    now,
		deadline: now.Add(total),
		limits:   limits,
	}
}

func (b *Budget) Deadline() time.Time {
	return b.deadline
}

// Total is the full budget granted at creation.
func (b *Budget) Total() time.Duration {
	return b.deadline.Sub(b.start)
}

func (b *Budget) Elapsed() time.Duration {
	return b.clock.Now().Sub(b.start)
}

// Remaining never goes negative.
func (b *Budget) Remaining() time.Duration {
	r := b.deadline.Sub(b.clock.Now())
	if r < 0 {
		return 0
	}
	return r
}

// StageTimeout returns min(limit, remaining - safety margin). The second
// result is false when that is below the minimum call budget, meaning the
// stage must not start a call at all.
func (b *Budget) StageTimeout(limit time.Duration) (time.Duration, bool) {
	avail := b.Remaining() - b.limits.SafetyMargin
	if limit < avail {
		avail = limit
	}
	if avail <= 0 || avail < b.limits.MinCall {
		return 0, false
	}
	return avail, true
}

// AllowsRetry reports whether sleeping for delay and then making a call
// of the estimated duration still finishes by the deadline.
func (b *Budget) AllowsRetry(delay, estimatedCall time.Duration) bool {
	return !b.clock.Now().Add(delay).Add(estimatedCall).After(b.deadline)
}

func (b *Budget) Sleep(ctx context.Context, d time.Duration) error {
	return b.clock.Sleep(ctx, d)
}
