// Package breaker provides per-dependency circuit breakers: CLOSED ->
// OPEN on threshold breach, OPEN rejects until openTimeout elapses, then
// HALF_OPEN probes before closing again. Built on sony/gobreaker; state
// transitions are published synchronously to Observers for telemetry, the
// same wrap-call/classify/react idiom aws-vault's SSO retry helper uses,
// generalized from a single retry to a full breaker state machine.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// State mirrors gobreaker's three states under Sentinel's own names so
// callers never import gobreaker directly.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Observer is notified synchronously on every state transition, in the
// order transitions occur, so tests can assert on ordering.
type Observer interface {
	StateChange(name string, from, to State, reason string)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(name string, from, to State, reason string)

// StateChange implements Observer.
func (f ObserverFunc) StateChange(name string, from, to State, reason string) { f(name, from, to, reason) }

// Settings configures one Breaker instance.
type Settings struct {
	Name                     string
	FailureThreshold         uint32        // consecutive failures that trip the breaker
	VolumeThreshold          uint32        // minimum requests in the rolling window before rate-based tripping applies
	ErrorThresholdPercentage float64       // 0-100; rate-based trip criterion
	OpenTimeout              time.Duration // time OPEN before probing HALF_OPEN
	SuccessThreshold         uint32        // consecutive HALF_OPEN successes required to close
	RequestTimeout           time.Duration // per-call deadline; timeouts count as failures
	Observers                []Observer
}

// ErrOpen is returned when a call is rejected because the breaker is
// open, letting callers produce a DependencyUnavailable error with a
// Retry-After hint.
var ErrOpen = gobreaker.ErrOpenState

// Breaker wraps one gobreaker.CircuitBreaker for one dependency.
type Breaker struct {
	cb             *gobreaker.CircuitBreaker
	requestTimeout time.Duration
}

// New constructs a Breaker from Settings, publishing every transition to
// the configured Observers synchronously and in order.
func New(s Settings) *Breaker {
	gbSettings := gobreaker.Settings{
		Name:        s.Name,
		Timeout:     s.OpenTimeout,
		MaxRequests: s.SuccessThreshold,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if s.FailureThreshold > 0 && counts.ConsecutiveFailures >= s.FailureThreshold {
				return true
			}
			total := counts.Requests
			if s.VolumeThreshold > 0 && total >= s.VolumeThreshold {
				failureRate := float64(counts.TotalFailures) / float64(total) * 100
				if failureRate >= s.ErrorThresholdPercentage {
					return true
				}
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			reason := "threshold breach"
			if to == gobreaker.StateHalfOpen {
				reason = "open timeout elapsed"
			} else if to == gobreaker.StateClosed {
				reason = "success threshold met"
			}
			for _, o := range s.Observers {
				o.StateChange(name, fromGobreakerState(from), fromGobreakerState(to), reason)
			}
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gbSettings), requestTimeout: s.RequestTimeout}
}

// State returns the breaker's current state.
func (b *Breaker) State() State { return fromGobreakerState(b.cb.State()) }

// Execute runs fn under breaker b with the configured request timeout.
// Timeouts count as failures against the breaker. If the breaker is open
// the dependency is never invoked and Execute returns ErrOpen immediately.
func Execute[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if b.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.requestTimeout)
		defer cancel()
	}

	result, err := b.cb.Execute(func() (any, error) {
		v, err := fn(ctx)
		if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
		return v, err
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

// Profile returns predefined Settings for a named dependency class, per
// the KMS / database / external-API / critical presets.
func Profile(kind string, observers ...Observer) Settings {
	base := Settings{Observers: observers}
	switch kind {
	case "kms":
		base.Name = "kms"
		base.FailureThreshold = 3
		base.VolumeThreshold = 10
		base.ErrorThresholdPercentage = 50
		base.OpenTimeout = 15 * time.Second
		base.SuccessThreshold = 2
		base.RequestTimeout = 2 * time.Second
	case "database":
		base.Name = "database"
		base.FailureThreshold = 5
		base.VolumeThreshold = 20
		base.ErrorThresholdPercentage = 50
		base.OpenTimeout = 10 * time.Second
		base.SuccessThreshold = 3
		base.RequestTimeout = 3 * time.Second
	case "external-api":
		base.Name = "external-api"
		base.FailureThreshold = 5
		base.VolumeThreshold = 20
		base.ErrorThresholdPercentage = 60
		base.OpenTimeout = 30 * time.Second
		base.SuccessThreshold = 2
		base.RequestTimeout = 5 * time.Second
	case "critical":
		base.Name = "critical"
		base.FailureThreshold = 2
		base.VolumeThreshold = 5
		base.ErrorThresholdPercentage = 30
		base.OpenTimeout = 60 * time.Second
		base.SuccessThreshold = 5
		base.RequestTimeout = 1 * time.Second
	default:
		base.Name = kind
		base.FailureThreshold = 5
		base.OpenTimeout = 10 * time.Second
		base.SuccessThreshold = 1
		base.RequestTimeout = 5 * time.Second
	}
	return base
}
