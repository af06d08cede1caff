// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package models

import "time"

// BreakerState is the circuit breaker state machine position.
type BreakerState string

// Circuit breaker states. A breaker starts closed, opens after
// failure_threshold consecutive failures, transitions to half-open once
// timeout_seconds have elapsed since opening, and closes again after
// success_threshold consecutive trial successes.
const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Valid reports whether s is one of the three known states.
func (s BreakerState) Valid() bool {
	switch s {
	case BreakerClosed, BreakerOpen, BreakerHalfOpen:
		return true
	}
	return false
}

// CircuitBreakerState is the persisted per-dependency breaker row.
// One row exists per distinct service name, created lazily on first use
// and never deleted.
type CircuitBreakerState struct {
	ServiceName string       `json:"service_name"`
	State       BreakerState `json:"state"`

	// State counters, reset on transitions.
	FailureCount int64 `json:"failure_count"`
	SuccessCount int64 `json:"success_count"`

	// Tunable configuration, fixed to defaults at row creation.
	FailureThreshold int64 `json:"failure_threshold"`
	SuccessThreshold int64 `json:"success_threshold"`
	TimeoutSeconds   int64 `json:"timeout_seconds"`

	// Transition timestamps used for elapsed-time gating.
	OpenedAt      *time.Time `json:"opened_at,omitempty"`
	HalfOpenedAt  *time.Time `json:"half_opened_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`

	// Lifetime counters, never reset. Dashboards only.
	TotalRequests  int64 `json:"total_requests"`
	TotalSuccesses int64 `json:"total_successes"`
	TotalFailures  int64 `json:"total_failures"`
}

// BreakerDashboardRow joins a breaker's lifetime counters with its
// recent-window failure/success rates for operational visibility.
type BreakerDashboardRow struct {
	ServiceName    string       `json:"service_name"`
	State          BreakerState `json:"state"`
	FailureCount   int64        `json:"failure_count"`
	SuccessCount   int64        `json:"success_count"`
	TotalRequests  int64        `json:"total_requests"`
	TotalSuccesses int64        `json:"total_successes"`
	TotalFailures  int64        `json:"total_failures"`
	FailureRate    float64      `json:"failure_rate"`
	SuccessRate    float64      `json:"success_rate"`
	OpenedAt       *time.Time   `json:"opened_at,omitempty"`
	LastFailureAt  *time.Time   `json:"last_failure_at,omitempty"`
	LastSuccessAt  *time.Time   `json:"last_success_at,omitempty"`
}
