// Package routing handles endpoint selection, rotation, retry, and failover.
//
// This package contains:
//   - Router: endpoint selection with a consecutive-failure circuit breaker
//   - ProviderRotator: rotation strategies (round-robin, adaptive)
//   - Retry: exponential backoff for idempotent reads, failover across endpoints
//
// Transaction submission never goes through the retry helpers; a send is a single
// call on the endpoint returned by Pick.
package routing

import (
	"errors"
	"sync"
	"time"

	"github.com/vietddude/txgate/internal/infra/rpc/provider"
)

// ErrNoProviders is returned when every endpoint is blocked or has an open circuit.
var ErrNoProviders = errors.New("no available ledger endpoints")

const (
	circuitThreshold = 5
	circuitCooldown  = 30 * time.Second
)

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	consecutiveFails int
	circuitOpen      bool
}

// Router picks ledger endpoints and tracks their health.
type Router struct {
	mu        sync.RWMutex
	providers []provider.Provider
	health    map[string]*providerMetrics
	rotator   *ProviderRotator
}

// NewRouter creates a router with the given rotation strategy.
func NewRouter(strategy RotationStrategy, providers ...provider.Provider) *Router {
	r := &Router{
		health:  make(map[string]*providerMetrics),
		rotator: NewProviderRotator(strategy),
	}
	for _, p := range providers {
		r.AddProvider(p)
	}
	return r
}

// AddProvider registers an endpoint.
func (r *Router) AddProvider(p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)
	r.health[p.GetName()] = &providerMetrics{
		lastSuccessAt: time.Now(),
	}
}

// Pick returns the next endpoint to use. Blocked endpoints and endpoints with an
// open circuit are skipped; an open circuit half-opens after a cooldown.
func (r *Router) Pick() (provider.Provider, error) {
	return r.pick("")
}

// PickExcept behaves like Pick but avoids the named endpoint when another is usable.
func (r *Router) PickExcept(name string) (provider.Provider, error) {
	return r.pick(name)
}

func (r *Router) pick(exclude string) (provider.Provider, error) {
	r.mu.RLock()
	var available []provider.Provider
	for _, p := range r.providers {
		if p.GetName() == exclude {
			continue
		}
		if m := r.health[p.GetName()]; m != nil && m.circuitOpen && time.Since(m.lastFailureAt) < circuitCooldown {
			continue
		}
		if hp, ok := p.(*provider.HTTPProvider); ok {
			if hp.Monitor.CheckProviderStatus() == provider.StatusBlocked {
				continue
			}
		}
		available = append(available, p)
	}
	r.mu.RUnlock()

	if len(available) == 0 {
		if exclude != "" {
			return r.pick("")
		}
		return nil, ErrNoProviders
	}
	return r.rotator.SelectProvider(available)
}

// All returns every registered endpoint.
func (r *Router) All() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]provider.Provider, len(r.providers))
	copy(result, r.providers)
	return result
}

// RecordSuccess records a successful call.
func (r *Router) RecordSuccess(name string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.health[name]
	if !ok {
		return
	}
	m.successCount++
	m.totalLatency += latency
	m.lastSuccessAt = time.Now()
	m.consecutiveFails = 0
	m.circuitOpen = false
}

// RecordFailure records a failed call.
func (r *Router) RecordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.health[name]
	if !ok {
		return
	}
	m.failureCount++
	m.lastFailureAt = time.Now()
	m.consecutiveFails++
	if m.consecutiveFails >= circuitThreshold {
		m.circuitOpen = true
	}
}

// CircuitOpen reports whether the named endpoint is currently cut off.
func (r *Router) CircuitOpen(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.health[name]
	return ok && m.circuitOpen
}

// Close closes every endpoint.
func (r *Router) Close() error {
	var errs []error
	for _, p := range r.All() {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
