// Package ratelimit spaces outbound provider calls. One Limiter is shared by
// every provider client in a process; the Redis variant extends that to all
// processes pointing at the same key.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"gamecatalog/internal/metrics"
)

var ErrRateLimitTimeout = errors.New("rate limit wait timeout")

type Limiter interface {
	// Wait blocks until the caller may issue one request.
	Wait(ctx context.Context) error
}

// LocalLimiter is an in-process token bucket.
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter allows one call per minInterval with the given burst.
// A non-positive interval disables limiting.
func NewLocalLimiter(minInterval time.Duration, burst int) *LocalLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &LocalLimiter{limiter: rate.NewLimiter(limit, burst)}
}

func (l *LocalLimiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	start := time.Now()
	err := l.limiter.Wait(ctx)
	metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// rate.Limiter also fails early when the deadline cannot be met
		return fmt.Errorf("%w: %w", ErrRateLimitTimeout, err)
	}
	return nil
}

// Backoff computes retry delays: exponential from Base, capped at Max, each
// delay jittered into [d/2, d].
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	maxDelay := b.Max
	if maxDelay < base {
		maxDelay = base
	}
	d := base
	for i := 0; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d-half)+1))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
