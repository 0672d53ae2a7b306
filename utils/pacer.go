package utils

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out outgoing requests: a minimum interval enforced by a token
// bucket, then a random courtesy delay on top. A nil Pacer never waits.
type Pacer struct {
	limiter *rate.Limiter
	jitter  time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a Pacer allowing one request per interval plus up to
// jitter of extra random delay.
func NewPacer(interval, jitter time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		jitter:  jitter,
		sleep:   SleepContext,
	}
}

// Wait blocks until the next request may go out.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	if p.jitter <= 0 {
		return nil
	}
	return p.sleep(ctx, time.Duration(rand.Int64N(int64(p.jitter))))
}
