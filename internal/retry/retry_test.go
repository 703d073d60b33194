package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestDefaultPolicyDelays(t *testing.T) {
	b := DefaultPolicy().NewBackOff()
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, b.NextBackOff(), "delay %d", i+1)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	var retried []int
	out, st, err := Do(context.Background(), ImmediatePolicy(3), Hooks{
		OnRetry: func(s State, _ time.Duration) { retried = append(retried, s.Attempt) },
	}, func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, st.Attempt)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	_, st, err := Do(context.Background(), ImmediatePolicy(3), Hooks{}, func(context.Context, int) (int, error) {
		calls++
		return 0, errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
	assert.Equal(t, errFlaky, st.LastErr)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	_, _, err := Do(context.Background(), ImmediatePolicy(3), Hooks{
		Retryable: func(err error) bool { return !errors.Is(err, fatal) },
	}, func(context.Context, int) (int, error) {
		calls++
		return 0, fatal
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsMinDelayCappedByMax(t *testing.T) {
	p := ExponentialPolicy(2, time.Millisecond, 5*time.Millisecond, 0)
	var delays []time.Duration
	_, _, _ = Do(context.Background(), p, Hooks{
		MinDelay: func(error) time.Duration { return time.Hour },
		OnRetry:  func(_ State, d time.Duration) { delays = append(delays, d) },
	}, func(context.Context, int) (int, error) { return 0, errFlaky })

	assert.Equal(t, []time.Duration{5 * time.Millisecond}, delays)
}

func TestDoStopsWhenContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := ExponentialPolicy(3, time.Hour, time.Hour, 0)
	calls := 0
	_, _, err := Do(ctx, p, Hooks{
		OnRetry: func(State, time.Duration) { cancel() },
	}, func(context.Context, int) (int, error) {
		calls++
		return 0, errFlaky
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoSkipsWorkOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Do(ctx, ImmediatePolicy(3), Hooks{}, func(context.Context, int) (int, error) {
		t.Fatal("fn must not run")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerOpensThenAllowsTrial(t *testing.T) {
	cb := NewCircuitBreaker(CircuitPolicy{FailureThreshold: 2, ResetTimeout: 50 * time.Millisecond})
	now := time.Now()

	allowed, _ := cb.Allow("openai", now)
	require.True(t, allowed)

	cb.RecordFailure("openai", now)
	allowed, _ = cb.Allow("openai", now)
	require.True(t, allowed, "one failure is below threshold")

	cb.RecordFailure("openai", now)
	allowed, _ = cb.Allow("openai", now.Add(10*time.Millisecond))
	assert.False(t, allowed, "breaker should be open")

	other, _ := cb.Allow("gemini", now)
	assert.True(t, other, "state is per provider")

	allowed, trial := cb.Allow("openai", now.Add(60*time.Millisecond))
	assert.True(t, allowed)
	assert.True(t, trial)

	allowed, _ = cb.Allow("openai", now.Add(61*time.Millisecond))
	assert.False(t, allowed, "only one half-open trial at a time")

	cb.RecordSuccess("openai")
	allowed, trial = cb.Allow("openai", now.Add(62*time.Millisecond))
	assert.True(t, allowed)
	assert.False(t, trial)
}

func TestCircuitBreakerFailedTrialReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitPolicy{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	now := time.Now()

	cb.RecordFailure("anthropic", now)
	_, trial := cb.Allow("anthropic", now.Add(15*time.Millisecond))
	require.True(t, trial)

	cb.RecordFailure("anthropic", now.Add(15*time.Millisecond))
	allowed, _ := cb.Allow("anthropic", now.Add(20*time.Millisecond))
	assert.False(t, allowed)
}

func TestCircuitBreakerDisabledByDefault(t *testing.T) {
	cb := NewCircuitBreaker(CircuitPolicy{})
	for i := 0; i < 10; i++ {
		cb.RecordFailure("openai", time.Now())
	}
	allowed, _ := cb.Allow("openai", time.Now())
	assert.True(t, allowed)
	assert.False(t, cb.Enabled())
}

func TestCircuitBreakerReleaseAllowsNewTrial(t *testing.T) {
	cb := NewCircuitBreaker(CircuitPolicy{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	now := time.Now()

	cb.RecordFailure("gemini", now)
	_, trial := cb.Allow("gemini", now.Add(20*time.Millisecond))
	require.True(t, trial)

	cb.Release("gemini")
	allowed, trial := cb.Allow("gemini", now.Add(21*time.Millisecond))
	assert.True(t, allowed)
	assert.True(t, trial)
}
