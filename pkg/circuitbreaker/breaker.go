// Package circuitbreaker builds gobreaker breakers that trip on consecutive
// failures.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

type Settings struct {
	Name string
	// Threshold consecutive failures open the breaker.
	Threshold int
	// Cooldown is how long the breaker stays open before a trial call.
	Cooldown time.Duration
	// IsSuccessful reports which errors do not count as failures. nil counts
	// every non-nil error.
	IsSuccessful  func(err error) bool
	OnStateChange func(name string, from, to gobreaker.State)
}

func New[T any](s Settings) *gobreaker.CircuitBreaker[T] {
	threshold := uint32(1)
	if s.Threshold > 1 {
		threshold = uint32(s.Threshold)
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful:  s.IsSuccessful,
		OnStateChange: s.OnStateChange,
	})
}

// IsRejection reports whether err came from the breaker refusing a call.
func IsRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
