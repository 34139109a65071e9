package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail() (string, error) { return "", errBoom }

func ok() (string, error) { return "ok", nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New[string](Settings{Name: "test", Threshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(fail)
		assert.ErrorIs(t, err, errBoom)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())
	_, err := cb.Execute(ok)
	assert.True(t, IsRejection(err))
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	cb := New[string](Settings{Name: "test", Threshold: 2, Cooldown: time.Minute})

	_, _ = cb.Execute(fail)
	_, err := cb.Execute(ok)
	require.NoError(t, err)
	_, _ = cb.Execute(fail)

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestBreaker_IsSuccessfulErrorsDoNotTrip(t *testing.T) {
	errMissing := errors.New("missing")
	cb := New[string](Settings{
		Name:         "test",
		Threshold:    1,
		Cooldown:     time.Minute,
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errMissing) },
	})

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(func() (string, error) { return "", errMissing })
		assert.ErrorIs(t, err, errMissing)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	var changes []gobreaker.State
	cb := New[string](Settings{
		Name:      "test",
		Threshold: 1,
		Cooldown:  20 * time.Millisecond,
		OnStateChange: func(_ string, _, to gobreaker.State) {
			changes = append(changes, to)
		},
	})

	_, _ = cb.Execute(fail)
	require.Equal(t, gobreaker.StateOpen, cb.State())

	require.Eventually(t, func() bool {
		return cb.State() == gobreaker.StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	got, err := cb.Execute(ok)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen, gobreaker.StateHalfOpen, gobreaker.StateClosed}, changes)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New[string](Settings{Name: "test", Threshold: 1, Cooldown: 20 * time.Millisecond})

	_, _ = cb.Execute(fail)
	require.Eventually(t, func() bool {
		return cb.State() == gobreaker.StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	_, _ = cb.Execute(fail)
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(gobreaker.ErrOpenState))
	assert.True(t, IsRejection(gobreaker.ErrTooManyRequests))
	assert.False(t, IsRejection(errBoom))
}
