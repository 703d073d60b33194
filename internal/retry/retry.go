package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 10 * time.Second
)

// Policy configures one retry loop. NewBackOff is called once per loop so
// concurrent loops never share backoff state.
type Policy struct {
	MaxAttempts int
	NewBackOff  func() backoff.BackOff
	// MaxDelay caps any delay, including server-suggested ones.
	MaxDelay time.Duration
}

// ExponentialPolicy waits initial·2^(n-1) before retry n, capped at max.
// jitter is the randomization factor in [0,1); zero keeps delays exact.
func ExponentialPolicy(maxAttempts int, initial, max time.Duration, jitter float64) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		MaxDelay:    max,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = max
			b.Multiplier = 2
			b.RandomizationFactor = jitter
			b.Reset()
			return b
		},
	}
}

// DefaultPolicy is three attempts, 1s doubling, capped at 10s, no jitter.
func DefaultPolicy() Policy {
	return ExponentialPolicy(DefaultMaxAttempts, DefaultInitialDelay, DefaultMaxDelay, 0)
}

// ImmediatePolicy retries without waiting; useful for tests and batch tools.
func ImmediatePolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		NewBackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

// State is the per-invocation retry bookkeeping.
type State struct {
	Attempt int
	LastErr error
}

// Hooks customize a loop. All fields are optional.
type Hooks struct {
	// Retryable decides whether err may be retried. Nil retries everything.
	Retryable func(error) bool
	// MinDelay returns a lower bound for the wait after err, e.g. Retry-After.
	MinDelay func(error) time.Duration
	// OnRetry runs before sleeping ahead of the next attempt.
	OnRetry func(st State, delay time.Duration)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempts
// are exhausted; the last error is returned unchanged. When ctx is done
// between attempts the context error is returned instead.
func Do[T any](ctx context.Context, p Policy, h Hooks, fn func(ctx context.Context, attempt int) (T, error)) (T, State, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.NewBackOff != nil {
		b = p.NewBackOff()
	}

	var (
		zero T
		st   State
	)
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, st, err
		}

		st.Attempt = i
		out, err := fn(ctx, i)
		if err == nil {
			st.LastErr = nil
			return out, st, nil
		}
		st.LastErr = err

		if i == attempts || ctx.Err() != nil {
			break
		}
		if h.Retryable != nil && !h.Retryable(err) {
			break
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		if h.MinDelay != nil {
			if min := h.MinDelay(err); min > delay {
				delay = min
			}
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		if h.OnRetry != nil {
			h.OnRetry(st, delay)
		}
		if !sleep(ctx, delay) {
			return zero, st, ctx.Err()
		}
	}
	return zero, st, st.LastErr
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
