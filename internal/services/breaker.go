package services

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker/v2"

	"github.com/desertthunder/scrobblex/internal/metrics"
)

// BreakerTracker wraps a [Tracker] with a circuit breaker.
//
// Only transport failures ([ErrUnreachable]) count as failures. Any HTTP answer, a 5xx included, comes from a
// service that is up; the sync pipeline quarantines the series concerned and carries on. While the breaker is
// open calls fail fast with [ErrUnreachable].
type BreakerTracker struct {
	next Tracker
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

var _ Tracker = (*BreakerTracker)(nil)

// NewBreakerTracker wraps next. The breaker opens after threshold consecutive failures and half-opens after openFor.
func NewBreakerTracker(next Tracker, threshold uint32, openFor time.Duration, logger *log.Logger) *BreakerTracker {
	name := "tracker"
	if threshold == 0 {
		threshold = 3
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ErrUnreachable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerTracker{next: next, cb: cb, name: name}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State returns the current breaker state.
func (b *BreakerTracker) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerTracker) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, &APIError{Message: err.Error(), Err: ErrUnreachable}
	case err != nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	}
	return result, err
}

// CheckCredentialValid implements [Tracker].
func (b *BreakerTracker) CheckCredentialValid(ctx context.Context, credential string, provider Provider) (bool, error) {
	result, err := b.execute(func() (any, error) {
		return b.next.CheckCredentialValid(ctx, credential, provider)
	})
	valid, _ := result.(bool)
	return valid, err
}

// RemainingQuota implements [Tracker].
func (b *BreakerTracker) RemainingQuota(ctx context.Context, credential string) (int, error) {
	result, err := b.execute(func() (any, error) {
		return b.next.RemainingQuota(ctx, credential)
	})
	remaining, _ := result.(int)
	return remaining, err
}

// PostEvent implements [Tracker].
func (b *BreakerTracker) PostEvent(ctx context.Context, payload *ScrobblePayload) (*ScrobbleResponse, error) {
	result, err := b.execute(func() (any, error) {
		return b.next.PostEvent(ctx, payload)
	})
	resp, _ := result.(*ScrobbleResponse)
	return resp, err
}
