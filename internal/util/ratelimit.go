package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a weighted token bucket. Each call spends a cost in tokens,
// so a workflow dispatch can weigh more than a file write against the same
// per-minute budget. Tokens refill continuously up to the burst size.
type RateLimiter struct {
	mu     sync.Mutex
	rate   float64 // tokens per second
	burst  float64
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter that refills perMinute tokens per
// minute and holds at most burst tokens. The bucket starts full. A
// non-positive perMinute disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		rate:   float64(perMinute) / 60.0,
		burst:  float64(burst),
		tokens: float64(burst),
		now:    time.Now,
	}
	rl.last = rl.now()
	return rl
}

// Wait spends one token. See WaitN.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN blocks until cost tokens are available and spends them, or returns
// the context's error. Costs above the burst size are charged as the burst.
func (rl *RateLimiter) WaitN(ctx context.Context, cost int) error {
	if rl == nil || rl.rate <= 0 || cost <= 0 {
		return ctx.Err()
	}
	need := min(float64(cost), rl.burst)
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens >= need {
			rl.tokens -= need
			rl.mu.Unlock()
			return nil
		}
		wait := time.Duration((need - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available reports the tokens currently in the bucket.
func (rl *RateLimiter) Available() float64 {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// refill must be called with mu held.
func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens = min(rl.burst, rl.tokens+now.Sub(rl.last).Seconds()*rl.rate)
	rl.last = now
}
