// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ProviderHealth contains health metrics for one ledger RPC endpoint.
type ProviderHealth struct {
	Name        string        `json:"name"`
	Status      SystemStatus  `json:"status"`
	CircuitOpen bool          `json:"circuit_open"`
	ErrorRate   float64       `json:"error_rate"`
	Latency     time.Duration `json:"latency"`
	Throttle    string        `json:"throttle,omitempty"`
}

// ComponentHealth is the state of a supporting dependency (push transport, cache, journal).
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus        SystemStatus      `json:"system_status"`
	Providers           []ProviderHealth  `json:"providers"`
	Components          []ComponentHealth `json:"components,omitempty"`
	ActiveSubscriptions int               `json:"active_subscriptions"`
	CheckedAt           time.Time         `json:"checked_at"`
}
