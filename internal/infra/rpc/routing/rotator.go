package routing

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/vietddude/txgate/internal/infra/rpc/provider"
)

// RotationStrategy defines how endpoints are rotated.
type RotationStrategy int

const (
	RotationRoundRobin RotationStrategy = iota // Simple sequential rotation
	RotationAdaptive                           // Based on latency, throttling and error rate
)

// ParseRotationStrategy maps a config value to a strategy; unknown values fall back to round-robin.
func ParseRotationStrategy(s string) RotationStrategy {
	if s == "adaptive" {
		return RotationAdaptive
	}
	return RotationRoundRobin
}

// ProviderRotator handles endpoint rotation.
type ProviderRotator struct {
	mu       sync.Mutex
	strategy RotationStrategy
	next     int
}

// NewProviderRotator creates a new rotator with the given strategy.
func NewProviderRotator(strategy RotationStrategy) *ProviderRotator {
	return &ProviderRotator{strategy: strategy}
}

// SelectProvider chooses the next endpoint among the available ones.
func (pr *ProviderRotator) SelectProvider(providers []provider.Provider) (provider.Provider, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers available")
	}
	if pr.strategy == RotationAdaptive {
		return pr.adaptive(providers), nil
	}
	return pr.roundRobin(providers), nil
}

func (pr *ProviderRotator) roundRobin(providers []provider.Provider) provider.Provider {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	p := providers[pr.next%len(providers)]
	pr.next = (pr.next + 1) % len(providers)
	return p
}

func (pr *ProviderRotator) adaptive(providers []provider.Provider) provider.Provider {
	type scored struct {
		provider provider.Provider
		score    float64
	}

	candidates := make([]scored, 0, len(providers))
	for _, p := range providers {
		candidates = append(candidates, scored{provider: p, score: calculateScore(p.GetHealth())})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	// Spread load over the top fifth so one endpoint does not absorb everything.
	topN := max(1, len(candidates)/5)
	return candidates[rand.IntN(topN)].provider
}

func calculateScore(health provider.HealthStatus) float64 {
	score := 100.0
	if health.MonitorStats != nil {
		stats := health.MonitorStats

		latencyMs := stats.AverageLatency.Milliseconds()
		if latencyMs > 3000 {
			score -= 40
		} else if latencyMs > 1000 {
			score -= 20
		} else if latencyMs > 500 {
			score -= 10
		}

		score -= float64(stats.ThrottleCount429) * 5
		score -= float64(stats.ThrottleCount403) * 10

		switch stats.Status {
		case provider.StatusDegraded.String():
			score -= 20
		case provider.StatusThrottled.String():
			score -= 60
		}
	}
	score -= health.ErrorRate * 50
	return score
}
