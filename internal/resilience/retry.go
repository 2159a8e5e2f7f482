// Package resilience retries transient failures against the remote
// archives that serve the raw publications. Bulk historical loads run
// for hours against mirrors that flap; a retry with backoff is the
// difference between a recorded gap and a 2am rerun. Permanent
// answers, a 404 included, are never retried.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy controls retry behavior with exponential backoff and jitter.
// The zero value gets defaults applied: 3 attempts, 500ms initial
// backoff doubling to a 30s cap, 25% jitter.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
}

// DefaultPolicy returns the retry policy the fetchers use.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.25,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Do runs fn until it succeeds, fails permanently, or exhausts the
// policy. Only errors IsTransient recognizes are retried; context
// cancellation stops immediately. op names the operation in retry logs.
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) {
			return zero, lastErr
		}
		if attempt >= p.MaxAttempts-1 {
			break
		}

		delay := p.backoff(attempt)
		zap.L().Warn("retrying after transient failure",
			zap.String("component", "resilience"),
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.Jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
