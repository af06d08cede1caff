// ChargeGuard - Resilient Cache and Circuit Breaker Layer for EV Charging Support
// Copyright 2026 VoltMesh
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/voltmesh/chargeguard

package models

import "time"

// APIResponse is the standardized envelope for every management API
// endpoint, successful or not.
//
// Status is "success" or "error". Data carries the payload on success;
// Error is populated only on failure.
//
// Example:
//
//	{
//	  "status": "success",
//	  "data": {"total_entries": 412, "hit_rate_24h": 0.87},
//	  "metadata": {"timestamp": "2026-08-30T12:00:00Z", "query_time_ms": 3}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response observability fields.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError describes a failed request. Code is a stable machine-readable
// identifier (e.g. VALIDATION_FAILED, SERVICE_UNAVAILABLE, NOT_FOUND);
// Message is human-readable.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// HealthStatus is the payload of the /health endpoint.
type HealthStatus struct {
	Status             string  `json:"status"`
	Version            string  `json:"version"`
	MetastoreConnected bool    `json:"metastore_connected"`
	KVStoreConnected   bool    `json:"kvstore_connected"`
	Uptime             float64 `json:"uptime_seconds"`
}
