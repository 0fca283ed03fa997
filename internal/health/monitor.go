package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/txgate/internal/infra/rpc/provider"
)

// checkInterval bounds how often dependencies are probed.
const checkInterval = 5 * time.Second

// ProviderSource exposes the ledger endpoints and their circuit state.
type ProviderSource interface {
	All() []provider.Provider
	CircuitOpen(name string) bool
}

// PushStatus reports whether the push transport is connected.
type PushStatus interface {
	Connected() bool
}

// Pinger is an optional dependency that can be probed.
type Pinger interface {
	Health(ctx context.Context) error
}

// SubscriptionCounter counts live monitor subscriptions.
type SubscriptionCounter interface {
	Len() int
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	providers ProviderSource
	push      PushStatus
	pingers   map[string]Pinger
	subs      SubscriptionCounter

	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPush reports the push transport.
func WithPush(p PushStatus) Option {
	return func(m *Monitor) { m.push = p }
}

// WithDependency probes an optional dependency under name.
func WithDependency(name string, p Pinger) Option {
	return func(m *Monitor) { m.pingers[name] = p }
}

// WithSubscriptions reports the live subscription count.
func WithSubscriptions(c SubscriptionCounter) Option {
	return func(m *Monitor) { m.subs = c }
}

// NewMonitor creates a new health monitor.
func NewMonitor(providers ProviderSource, opts ...Option) *Monitor {
	m := &Monitor{
		providers: providers,
		pingers:   make(map[string]Pinger),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckHealth probes every component. Results are reused for a few seconds.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < checkInterval {
		return *m.lastReport
	}

	report := HealthReport{SystemStatus: StatusHealthy, CheckedAt: time.Now().UTC()}

	usable := 0
	for _, p := range m.providers.All() {
		ph := m.checkProvider(p)
		if ph.Status != StatusCritical {
			usable++
		}
		report.Providers = append(report.Providers, ph)
	}
	switch {
	case usable == 0:
		// Nothing can reach the ledger.
		report.SystemStatus = StatusCritical
	case usable < len(report.Providers):
		report.SystemStatus = StatusDegraded
	}

	if m.push != nil {
		ch := ComponentHealth{Name: "push", Status: StatusHealthy}
		if !m.push.Connected() {
			// Monitoring falls back to polling.
			ch.Status = StatusDegraded
			ch.Error = "websocket disconnected"
		}
		report.Components = append(report.Components, ch)
	}

	names := make([]string, 0, len(m.pingers))
	for name := range m.pingers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := m.pingers[name].Health(pctx)
		cancel()

		ch := ComponentHealth{Name: name, Status: StatusHealthy}
		if err != nil {
			ch.Status = StatusDegraded
			ch.Error = err.Error()
		}
		report.Components = append(report.Components, ch)
	}

	for _, ch := range report.Components {
		if ch.Status != StatusHealthy && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}

	if m.subs != nil {
		report.ActiveSubscriptions = m.subs.Len()
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}

func (m *Monitor) checkProvider(p provider.Provider) ProviderHealth {
	h := p.GetHealth()
	ph := ProviderHealth{
		Name:        p.GetName(),
		Status:      StatusHealthy,
		CircuitOpen: m.providers.CircuitOpen(p.GetName()),
		ErrorRate:   h.ErrorRate,
		Latency:     h.Latency,
	}
	if h.MonitorStats != nil {
		ph.Throttle = h.MonitorStats.Status
	}

	switch {
	case ph.CircuitOpen || !p.IsAvailable():
		ph.Status = StatusCritical
	case h.ErrorRate > 0.2 || ph.Throttle == provider.StatusDegraded.String():
		ph.Status = StatusDegraded
	}
	return ph
}
