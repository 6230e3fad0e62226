package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(_ context.Context) (string, error) { return "", errors.New("backend down") }
func passing(_ context.Context) (string, error) { return "ok", nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	var transitions []CircuitState
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange:    func(_, to CircuitState) { transitions = append(transitions, to) },
	})

	for i := 0; i < 2; i++ {
		_, err := Call(context.Background(), b, failing)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, b.State())

	called := false
	_, err := Call(context.Background(), b, func(_ context.Context) (string, error) {
		called = true
		return "", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []CircuitState{CircuitOpen}, transitions)
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	b.nowFunc = func() time.Time { return now }

	_, _ = Call(context.Background(), b, failing)
	assert.Equal(t, CircuitOpen, b.State())

	now = now.Add(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, b.State())

	// A failed probe reopens.
	_, err := Call(context.Background(), b, failing)
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, b.State())

	now = now.Add(11 * time.Second)
	val, err := Call(context.Background(), b, passing)
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 2})
	_, _ = Call(context.Background(), b, failing)
	_, _ = Call(context.Background(), b, passing)
	_, _ = Call(context.Background(), b, failing)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_CancellationNotCounted(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = Call(ctx, b, func(ctx context.Context) (string, error) { return "", ctx.Err() })
	assert.Equal(t, CircuitClosed, b.State())
}

func TestCircuitStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
