package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker allowing two failures
	cb := NewCircuitBreaker("reranker", WithMaxFailures(2), WithResetTimeout(time.Minute))

	// When: two calls fail
	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errors.New("down") })
	}

	// Then: further calls are rejected without running
	require.Equal(t, StateOpen, cb.State())
	ran := false
	err := cb.Execute(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	// Given: an open breaker whose clock has moved past the reset window
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("generator", WithMaxFailures(1), WithResetTimeout(time.Second))
	cb.now = func() time.Time { return now }
	_ = cb.Execute(func() error { return errors.New("down") })
	require.Equal(t, StateOpen, cb.State())
	now = now.Add(2 * time.Second)
	require.Equal(t, StateHalfOpen, cb.State())

	// When: the probe succeeds
	v, err := CircuitExecute(cb, func() (int, error) { return 7, nil })

	// Then: the breaker closes
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("generator", WithMaxFailures(3), WithResetTimeout(time.Second))
	cb.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("down") })
	}
	now = now.Add(2 * time.Second)

	err := cb.Execute(func() error { return errors.New("still down") })

	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
