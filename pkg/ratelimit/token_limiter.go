package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// TokenLimiter enforces a tokens-per-minute budget for API calls that are
// priced in tokens rather than requests.
type TokenLimiter struct {
	limiter *rate.Limiter
	max     int
}

// NewTokenLimiter creates a limiter that refills maxPerMinute tokens per minute.
func NewTokenLimiter(maxPerMinute int) *TokenLimiter {
	return &TokenLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(maxPerMinute)/60.0), maxPerMinute),
		max:     maxPerMinute,
	}
}

// Wait blocks until n tokens are available or the context is canceled.
func (t *TokenLimiter) Wait(ctx context.Context, n int) error {
	if n > t.max {
		n = t.max
	}
	return t.limiter.WaitN(ctx, n)
}

// GetRemaining reports the currently available token budget.
func (t *TokenLimiter) GetRemaining() int {
	return int(t.limiter.Tokens())
}
