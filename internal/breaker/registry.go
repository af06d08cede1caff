// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voltmesh/chargeguard/internal/config"
	"github.com/voltmesh/chargeguard/internal/logging"
	"github.com/voltmesh/chargeguard/internal/metastore"
	"github.com/voltmesh/chargeguard/internal/metrics"
	"github.com/voltmesh/chargeguard/internal/models"
)

// dashboardWindow is the trailing window for the List failure/success
// rates.
const dashboardWindow = time.Hour

// StateStore is the persisted breaker state port. *metastore.DB
// implements it; tests substitute fakes.
type StateStore interface {
	EnsureBreaker(ctx context.Context, service string, defaults metastore.BreakerDefaults) error
	GetBreaker(ctx context.Context, service string) (*models.CircuitBreakerState, error)
	UpdateBreaker(ctx context.Context, s *models.CircuitBreakerState, lastError string, dRequests, dSuccesses, dFailures int64) error
	ResetBreaker(ctx context.Context, service string) error
	ListBreakers(ctx context.Context, window time.Duration) ([]models.BreakerDashboardRow, error)
	InsertBreakerEvent(ctx context.Context, e *metastore.BreakerEvent) error
}

// Registry evaluates and persists the breaker state machine. It holds no
// in-memory breaker state: every decision reads the store, every outcome
// writes it, so concurrent instances over the same store converge
// (last-write-wins on the state fields, per-statement increments on the
// lifetime counters).
type Registry struct {
	store    StateStore
	defaults metastore.BreakerDefaults
	now      func() time.Time
}

// NewRegistry builds a registry with the configured per-service defaults.
func NewRegistry(store StateStore, cfg config.BreakerConfig) *Registry {
	return &Registry{
		store: store,
		defaults: metastore.BreakerDefaults{
			FailureThreshold: int64(cfg.FailureThreshold),
			SuccessThreshold: int64(cfg.SuccessThreshold),
			TimeoutSeconds:   int64(cfg.Timeout.Seconds()),
		},
		now: time.Now,
	}
}

// SetClock replaces the registry clock. Test use only.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// State returns the breaker row for a service, creating a closed row with
// the registry defaults if the service has never been seen.
func (r *Registry) State(ctx context.Context, service string) (*models.CircuitBreakerState, error) {
	if err := r.store.EnsureBreaker(ctx, service, r.defaults); err != nil {
		metrics.RecordStoreError("metadata", "ensure_breaker")
		return nil, fmt.Errorf("breaker state %q: %w", service, err)
	}
	s, err := r.store.GetBreaker(ctx, service)
	if err != nil {
		metrics.RecordStoreError("metadata", "get_breaker")
		return nil, fmt.Errorf("breaker state %q: %w", service, err)
	}
	return s, nil
}

// Allow reports whether a request to the service may proceed. This is
// the passive recovery check: an open breaker whose cooldown has elapsed
// transitions to half_open here and the request is allowed as a trial.
// No other code path leaves the open state except Reset.
func (r *Registry) Allow(ctx context.Context, service string) (bool, error) {
	s, err := r.State(ctx, service)
	if err != nil {
		return false, err
	}

	switch s.State {
	case models.BreakerClosed, models.BreakerHalfOpen:
		return true, nil

	case models.BreakerOpen:
		now := r.now()
		if s.OpenedAt != nil && now.Sub(*s.OpenedAt) >= time.Duration(s.TimeoutSeconds)*time.Second {
			prior := s.State
			s.State = models.BreakerHalfOpen
			s.SuccessCount = 0
			s.FailureCount = 0
			s.HalfOpenedAt = &now
			if err := r.store.UpdateBreaker(ctx, s, "", 0, 0, 0); err != nil {
				metrics.RecordStoreError("metadata", "update_breaker")
				return false, fmt.Errorf("breaker allow %q: %w", service, err)
			}
			r.logTransition(ctx, service, prior, s.State, "")
			return true, nil
		}

		metrics.BreakerRejections.WithLabelValues(service).Inc()
		return false, nil

	default:
		return false, fmt.Errorf("breaker allow %q: invalid state %q", service, s.State)
	}
}

// RecordSuccess records a successful call to the service. In half_open,
// reaching the success threshold closes the circuit; in closed, a success
// clears the consecutive-failure count.
func (r *Registry) RecordSuccess(ctx context.Context, service string) error {
	s, err := r.State(ctx, service)
	if err != nil {
		return err
	}

	now := r.now()
	s.LastSuccessAt = &now
	prior := s.State

	switch s.State {
	case models.BreakerHalfOpen:
		s.SuccessCount++
		if s.SuccessCount >= s.SuccessThreshold {
			s.State = models.BreakerClosed
			s.SuccessCount = 0
			s.FailureCount = 0
			s.ClosedAt = &now
		}
	case models.BreakerClosed:
		s.SuccessCount++
		s.FailureCount = 0
	case models.BreakerOpen:
		// A success can land after the circuit opened (in-flight call
		// finishing late). Count it, leave the state alone.
		s.SuccessCount++
	}

	if err := r.store.UpdateBreaker(ctx, s, "", 1, 1, 0); err != nil {
		metrics.RecordStoreError("metadata", "update_breaker")
		return fmt.Errorf("breaker record success %q: %w", service, err)
	}

	r.appendEvent(ctx, service, "success", "", "", "")
	if s.State != prior {
		r.logTransition(ctx, service, prior, s.State, "")
	}
	metrics.SetBreakerState(service, string(s.State))
	return nil
}

// RecordFailure records a failed call to the service. In closed, reaching
// the failure threshold opens the circuit; in half_open, a single failure
// reopens it immediately regardless of counters, since one failed trial
// after the cooldown is strong evidence the dependency has not recovered.
func (r *Registry) RecordFailure(ctx context.Context, service, errMsg string) error {
	s, err := r.State(ctx, service)
	if err != nil {
		return err
	}

	now := r.now()
	s.LastFailureAt = &now
	prior := s.State

	switch s.State {
	case models.BreakerClosed:
		s.FailureCount++
		s.SuccessCount = 0
		if s.FailureCount >= s.FailureThreshold {
			s.State = models.BreakerOpen
			s.OpenedAt = &now
		}
	case models.BreakerHalfOpen:
		s.State = models.BreakerOpen
		s.FailureCount++
		s.SuccessCount = 0
		s.OpenedAt = &now
	case models.BreakerOpen:
		s.FailureCount++
	}

	if err := r.store.UpdateBreaker(ctx, s, errMsg, 1, 0, 1); err != nil {
		metrics.RecordStoreError("metadata", "update_breaker")
		return fmt.Errorf("breaker record failure %q: %w", service, err)
	}

	r.appendEvent(ctx, service, "failure", "", "", errMsg)
	if s.State != prior {
		r.logTransition(ctx, service, prior, s.State, errMsg)
	}
	metrics.SetBreakerState(service, string(s.State))
	return nil
}

// List returns dashboard rows for every known service: lifetime counters
// plus trailing-1h failure and success rates.
func (r *Registry) List(ctx context.Context) ([]models.BreakerDashboardRow, error) {
	rows, err := r.store.ListBreakers(ctx, dashboardWindow)
	if err != nil {
		metrics.RecordStoreError("metadata", "list_breakers")
		return nil, fmt.Errorf("breaker list: %w", err)
	}
	return rows, nil
}

// Reset forces a breaker back to closed with zeroed state counters.
// Operator action via the management API; lifetime counters survive.
func (r *Registry) Reset(ctx context.Context, service string) error {
	prior, err := r.State(ctx, service)
	if err != nil {
		return err
	}
	if err := r.store.ResetBreaker(ctx, service); err != nil {
		metrics.RecordStoreError("metadata", "reset_breaker")
		return fmt.Errorf("breaker reset %q: %w", service, err)
	}
	r.logTransition(ctx, service, prior.State, models.BreakerClosed, "")
	metrics.SetBreakerState(service, string(models.BreakerClosed))
	logging.Info().Str("service", service).Str("prior_state", string(prior.State)).
		Msg("Circuit breaker manually reset")
	return nil
}

// logTransition emits the breaker-event log line and observability
// records for a state change.
func (r *Registry) logTransition(ctx context.Context, service string, from, to models.BreakerState, errMsg string) {
	evt := logging.Info()
	if to == models.BreakerOpen {
		evt = logging.Warn()
	}
	evt.Str("service", service).
		Str("prior_state", string(from)).
		Str("new_state", string(to)).
		Str("error", errMsg).
		Msg("Circuit breaker state transition")

	metrics.BreakerTransitions.WithLabelValues(service, string(from), string(to)).Inc()
	metrics.SetBreakerState(service, string(to))
	r.appendEvent(ctx, service, "transition", string(from), string(to), errMsg)
}

// appendEvent writes one breaker event row. Best-effort: the event table
// feeds the dashboard only, so failures are logged and swallowed.
func (r *Registry) appendEvent(ctx context.Context, service, eventType, priorState, newState, errMsg string) {
	err := r.store.InsertBreakerEvent(ctx, &metastore.BreakerEvent{
		ID:          uuid.New().String(),
		ServiceName: service,
		EventType:   eventType,
		PriorState:  priorState,
		NewState:    newState,
		Error:       errMsg,
		Timestamp:   r.now(),
	})
	if err != nil {
		metrics.RecordStoreError("metadata", "breaker_event")
		logging.Warn().Err(err).Str("service", service).Msg("Failed to append breaker event")
	}
}
