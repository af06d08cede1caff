// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package breaker

import "fmt"

// OpenError reports that the circuit for a service denied a request.
// Callers distinguish it from fetch failures to decide on fallbacks.
type OpenError struct {
	Service string

	// RetrySeconds is how long until the cooldown elapses and a trial
	// request would be allowed. Zero when unknown.
	RetrySeconds int64
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for service %q", e.Service)
}
