// Package provider implements the ledger RPC endpoint abstraction.
//
// This package contains:
//   - Provider interface: core abstraction for a JSON-RPC endpoint
//   - HTTPProvider: JSON-RPC over HTTP implementation
//   - ProviderMonitor: latency and throttle tracking
//   - typed errors (RPCError, HTTPError, ErrThrottled) that callers classify
package provider

import (
	"context"
	"time"
)

// Provider defines a ledger JSON-RPC endpoint.
type Provider interface {
	// GetName returns provider identifier (e.g., "mainnet-primary")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Call makes a single JSON-RPC request and decodes the result into out.
	// out may be nil when the result is not needed.
	Call(ctx context.Context, method string, params []any, out any) error

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}
