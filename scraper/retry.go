package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/aluiziolira/bookshelf-crawler/config"
)

// retryPolicy decides whether a failed fetch is attempted again and how
// long to wait first. MaxRetries of zero keeps the fetcher single-shot.
type retryPolicy struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
}

func newRetryPolicy(cfg *config.Config) *retryPolicy {
	return &retryPolicy{
		maxRetries: cfg.MaxRetries,
		base:       cfg.RetryBackoff,
		max:        cfg.RetryBackoffMax,
	}
}

// ShouldRetry reports whether err after the given number of completed
// retries warrants another attempt.
func (p *retryPolicy) ShouldRetry(err error, retries int) bool {
	if err == nil || retries >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var (
		timeout     ErrTimeout
		conn        ErrConnection
		rateLimited ErrRateLimited
		status      ErrStatus
	)
	switch {
	case errors.As(err, &timeout), errors.As(err, &conn), errors.As(err, &rateLimited):
		return true
	case errors.As(err, &status):
		return status.Code >= 500
	}
	return false
}

// Backoff returns the delay before retry number attempt (1-based).
func (p *retryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}

	base := p.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if p.max > 0 && delay > p.max {
		delay = p.max
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
