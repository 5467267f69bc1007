package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// newLimiter returns a token bucket for rpm requests per minute.
// rpm <= 0 disables limiting.
func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
