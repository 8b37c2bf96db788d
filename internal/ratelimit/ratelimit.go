// Package ratelimit enforces per-source call budgets so enrichment respects
// external API quotas. Each source gets a token bucket sized from its
// configured per-minute budget; acquisition waits a bounded interval and then
// fails fast rather than queueing indefinitely.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a source's budget is exhausted and the
// bounded wait elapsed. Callers skip the source for the current call.
var ErrRateLimited = eris.New("ratelimit: budget exhausted, try later")

// Budget declares a source's call allowance.
type Budget struct {
	PerMinute int
	Burst     int
}

// Limiter holds one token bucket per source.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	budgets map[string]Budget
	maxWait time.Duration
}

// New creates a limiter from per-source budgets. Sources without a budget are
// unlimited. maxWait bounds how long Acquire blocks before failing fast.
func New(budgets map[string]Budget, maxWait time.Duration) *Limiter {
	if maxWait <= 0 {
		maxWait = 2 * time.Second
	}
	l := &Limiter{
		buckets: make(map[string]*rate.Limiter, len(budgets)),
		budgets: budgets,
		maxWait: maxWait,
	}
	for name, b := range budgets {
		l.buckets[name] = newBucket(b)
	}
	return l
}

func newBucket(b Budget) *rate.Limiter {
	if b.PerMinute <= 0 {
		return nil // unlimited
	}
	burst := b.Burst
	if burst <= 0 {
		burst = b.PerMinute
	}
	return rate.NewLimiter(rate.Limit(float64(b.PerMinute)/60.0), burst)
}

// Acquire takes one slot for the named source, waiting at most the configured
// bound. Returns ErrRateLimited when the budget cannot admit the call in time.
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	l.mu.Lock()
	bucket, ok := l.buckets[source]
	l.mu.Unlock()
	if !ok || bucket == nil {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := bucket.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRateLimited
	}
	return nil
}

// SetBudget replaces a source's budget at runtime.
func (l *Limiter) SetBudget(source string, b Budget) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.budgets[source] = b
	l.buckets[source] = newBucket(b)
}
