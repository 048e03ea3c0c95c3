package scraper

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces outbound requests by at least the configured delay. One
// Throttle is shared by every worker of a run.
type Throttle struct {
	limiter *rate.Limiter
	metrics *Metrics
}

// NewThrottle returns a throttle admitting one request per delay. A zero
// delay disables throttling.
func NewThrottle(delay time.Duration, metrics *Metrics) *Throttle {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Throttle{
		limiter: rate.NewLimiter(limit, 1),
		metrics: metrics,
	}
}

// Wait blocks until the next request may be issued or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return ctx.Err()
	}
	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		t.metrics.ObserveThrottle(waited)
	}
	return nil
}
