package monitor

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/vietddude/txgate/internal/core/domain"
)

const defaultShards = 32

// Registry holds live subscriptions, sharded by signature hash so unrelated
// signatures never contend on one lock.
type Registry struct {
	shards []*shard
}

type shard struct {
	mu   sync.RWMutex
	subs map[domain.Signature]map[string]*Subscription
}

// NewRegistry creates a registry with n shards; n <= 0 selects the default.
func NewRegistry(n int) *Registry {
	if n <= 0 {
		n = defaultShards
	}
	r := &Registry{shards: make([]*shard, n)}
	for i := range r.shards {
		r.shards[i] = &shard{subs: make(map[domain.Signature]map[string]*Subscription)}
	}
	return r
}

func (r *Registry) shardFor(sig domain.Signature) *shard {
	return r.shards[xxhash.Sum64(sig[:])%uint64(len(r.shards))]
}

// Add registers a subscription.
func (r *Registry) Add(sub *Subscription) {
	s := r.shardFor(sub.Signature)
	s.mu.Lock()
	defer s.mu.Unlock()

	bySig, ok := s.subs[sub.Signature]
	if !ok {
		bySig = make(map[string]*Subscription)
		s.subs[sub.Signature] = bySig
	}
	bySig[sub.ID] = sub
}

// Remove deregisters a subscription and reports whether it was present.
func (r *Registry) Remove(sub *Subscription) bool {
	s := r.shardFor(sub.Signature)
	s.mu.Lock()
	defer s.mu.Unlock()

	bySig, ok := s.subs[sub.Signature]
	if !ok {
		return false
	}
	if _, ok := bySig[sub.ID]; !ok {
		return false
	}
	delete(bySig, sub.ID)
	if len(bySig) == 0 {
		delete(s.subs, sub.Signature)
	}
	return true
}

// Watching returns the live subscriptions for a signature.
func (r *Registry) Watching(sig domain.Signature) []*Subscription {
	s := r.shardFor(sig)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Subscription, 0, len(s.subs[sig]))
	for _, sub := range s.subs[sig] {
		out = append(out, sub)
	}
	return out
}

// Len counts live subscriptions.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, bySig := range s.subs {
			n += len(bySig)
		}
		s.mu.RUnlock()
	}
	return n
}

// Snapshot copies every live subscription. Shards are locked one at a time.
func (r *Registry) Snapshot() []*Subscription {
	var out []*Subscription
	for _, s := range r.shards {
		s.mu.RLock()
		for _, bySig := range s.subs {
			for _, sub := range bySig {
				out = append(out, sub)
			}
		}
		s.mu.RUnlock()
	}
	return out
}
