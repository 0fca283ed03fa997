package monitor

import (
	"context"
	"time"

	"github.com/vietddude/txgate/internal/metrics"
)

// Run sweeps abandoned subscriptions until ctx ends. A subscription is abandoned
// when its consumer is gone or its deadline passed by more than the grace period
// and its goroutine has still not released it.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := m.sweep(now); n > 0 {
				m.log.Info("Swept abandoned subscriptions", "count", n, "active", m.registry.Len())
			}
		}
	}
}

func (m *Monitor) sweep(now time.Time) int {
	swept := 0
	for _, sub := range m.registry.Snapshot() {
		if !sub.expired(now, m.cfg.SweepGrace) {
			continue
		}
		sub.sweep()
		if m.registry.Remove(sub) {
			metrics.MonitorActiveSubscriptions.Dec()
			metrics.MonitorSwept.Inc()
			swept++
		}
	}
	return swept
}
