package explorer

import (
	"context"
	"time"
)

// RateLimiter spaces out explorer requests.
type RateLimiter struct {
	ticker *time.Ticker
}

func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	interval := time.Second / time.Duration(requestsPerSecond)
	return &RateLimiter{ticker: time.NewTicker(interval)}
}

// Wait blocks until the next slot; a nil limiter never blocks.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ticker.C:
		return nil
	}
}

func (r *RateLimiter) Stop() {
	if r != nil {
		r.ticker.Stop()
	}
}
