// Package monitor streams status updates for submitted transactions.
//
// Each subscription runs one merge goroutine that owns the last emitted status.
// Two sources feed it through a single event channel: push notifications from the
// ledger's pubsub transport and periodic getSignatureStatuses polls. The merge loop
// drops duplicates and regressions, and emits exactly one terminal update.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/txgate/internal/core/classify"
	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/infra/chain"
	"github.com/vietddude/txgate/internal/metrics"
)

// StatusSource is the polling side of the ledger.
type StatusSource interface {
	SignatureStatuses(ctx context.Context, sigs []domain.Signature) ([]*chain.SignatureStatus, error)
	BlockHeight(ctx context.Context, commitment domain.Commitment) (uint64, error)
	GetTransaction(ctx context.Context, sig domain.Signature, commitment domain.Commitment) (*chain.TransactionRecord, error)
}

// StatusCache remembers terminal statuses across subscriptions.
type StatusCache interface {
	Get(ctx context.Context, sig domain.Signature) (*domain.MonitorUpdate, bool, error)
	Put(ctx context.Context, update domain.MonitorUpdate) error
}

// ReadyGate selects what Subscribe waits for before returning.
type ReadyGate string

const (
	// GatePush waits for the push subscription acknowledgement (or its failure).
	GatePush ReadyGate = "push"
	// GatePoll waits for the first poll result.
	GatePoll ReadyGate = "poll"
)

// Config tunes the monitor.
type Config struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
	ReadyGate      ReadyGate     `yaml:"ready_gate"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepGrace     time.Duration `yaml:"sweep_grace"`
	Shards         int           `yaml:"registry_shards"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:   500 * time.Millisecond,
		DefaultTimeout: 60 * time.Second,
		MaxTimeout:     300 * time.Second,
		BufferSize:     16,
		ReadyGate:      GatePoll,
		SweepInterval:  30 * time.Second,
		SweepGrace:     10 * time.Second,
		Shards:         defaultShards,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = d.MaxTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.ReadyGate != GatePush {
		c.ReadyGate = GatePoll
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.SweepGrace <= 0 {
		c.SweepGrace = d.SweepGrace
	}
	return c
}

// Monitor creates and tracks subscriptions.
type Monitor struct {
	ledger   StatusSource
	notifier chain.Notifier
	cache    StatusCache
	registry *Registry
	cfg      Config
	log      *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithNotifier enables the push source.
func WithNotifier(n chain.Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithCache enables the terminal status cache.
func WithCache(c StatusCache) Option {
	return func(m *Monitor) { m.cache = c }
}

// WithRegistry injects the subscription registry.
func WithRegistry(r *Registry) Option {
	return func(m *Monitor) { m.registry = r }
}

// New creates a monitor polling ledger.
func New(ledger StatusSource, cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		ledger: ledger,
		cfg:    cfg.withDefaults(),
		log:    slog.Default().With("component", "monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = NewRegistry(m.cfg.Shards)
	}
	return m
}

// Registry exposes the live subscriptions.
func (m *Monitor) Registry() *Registry {
	return m.registry
}

// Subscribe starts watching a signature. It returns once the configured ready
// gate has opened, the first update is known, or ctx ends.
func (m *Monitor) Subscribe(ctx context.Context, req Request) (*Subscription, error) {
	const op = "monitor"
	if req.Signature.IsZero() {
		return nil, domain.InvalidArgument(op, "signature", "is required")
	}
	if req.Timeout < 0 {
		return nil, domain.InvalidArgument(op, "timeout_seconds", "must not be negative")
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = m.cfg.DefaultTimeout
	}
	timeout = min(timeout, m.cfg.MaxTimeout)
	if req.Commitment == "" {
		req.Commitment = domain.DefaultCommitment
	}

	sub := newSubscription(ctx, uuid.NewString(), req, time.Now().Add(timeout), m.cfg.BufferSize)
	m.registry.Add(sub)
	metrics.MonitorActiveSubscriptions.Inc()

	go m.run(sub)

	select {
	case <-sub.ready:
	case <-ctx.Done():
	}
	return sub, nil
}

type source string

const (
	sourcePush  source = "push"
	sourcePoll  source = "poll"
	sourceCache source = "cache"
)

// event is what a source observed. found reports a landed signature; otherwise
// height is the block height checked for expiry, or err is the poll failure.
type event struct {
	source     source
	found      bool
	slot       uint64
	commitment domain.Commitment
	txErr      json.RawMessage
	height     uint64
	err        error
}

// ackEvent reports that the push subscription attempt finished, successfully or not.
type ackEvent struct{}

// mergeState is owned by the merge goroutine.
type mergeState struct {
	last       domain.TxStatus
	commitment domain.Commitment
}

func (m *Monitor) run(sub *Subscription) {
	log := m.log.With("signature", sub.Signature.String(), "subscription", sub.ID)
	defer m.teardown(sub)

	if m.fromCache(sub, log) {
		return
	}

	events := make(chan any, 8)
	go m.push(sub, events, log)
	go m.poll(sub, events, log)

	var state mergeState
	for {
		select {
		case <-sub.ctx.Done():
			if sub.timedOut() {
				m.emit(sub, domain.MonitorUpdate{
					Signature:         sub.Signature,
					Status:            domain.StatusTimedOut,
					ErrorCode:         domain.CodeTimeout,
					ErrorMessage:      errDeadline.Error(),
					CurrentCommitment: state.commitment,
				}, "deadline", true)
			}
			return

		case raw := <-events:
			switch ev := raw.(type) {
			case ackEvent:
				if m.cfg.ReadyGate == GatePush {
					sub.markReady()
				}
			case event:
				finished := m.merge(sub, ev, &state, log)
				if ev.source == sourcePoll && m.cfg.ReadyGate == GatePoll {
					sub.markReady()
				}
				if finished {
					return
				}
			}
		}
	}
}

// merge applies one event and reports whether the terminal update was delivered.
func (m *Monitor) merge(sub *Subscription, ev event, state *mergeState, log *slog.Logger) bool {
	update, ok := m.statusOf(sub, ev)
	if !ok || update.Status.Rank() <= state.last.Rank() {
		return false
	}

	terminal := update.Status.TerminalFor(sub.Commitment)
	if terminal && sub.IncludeLogs {
		update.Logs = m.logs(sub, update.Status, log)
	}
	if !m.emit(sub, update, string(ev.source), false) {
		// Cancelled or timed out while the consumer was not reading; the run loop decides.
		return false
	}
	state.last = update.Status
	state.commitment = update.CurrentCommitment

	if terminal {
		m.remember(update, log)
		log.Debug("Monitor finished", "status", update.Status, "source", ev.source)
	}
	return terminal
}

func (m *Monitor) statusOf(sub *Subscription, ev event) (domain.MonitorUpdate, bool) {
	update := domain.MonitorUpdate{Signature: sub.Signature}

	switch {
	case ev.err != nil:
		return update, false

	case !ev.found:
		if sub.ExpirySlot == 0 || ev.height <= sub.ExpirySlot {
			return update, false
		}
		update.Status = domain.StatusDropped
		update.ErrorCode = domain.CodeExpiredReference
		update.ErrorMessage = "block height exceeded before the transaction landed"
		return update, true

	case len(ev.txErr) > 0:
		code, msg := classify.ExecutionFailure(ev.txErr)
		if code == "" {
			code, msg = domain.CodeMalformedInstruction, string(ev.txErr)
		}
		update.Status = domain.StatusFailed
		update.ErrorCode = code
		update.ErrorMessage = msg
	default:
		update.Status = ev.commitment.Status()
	}

	update.Slot = ev.slot
	update.CurrentCommitment = ev.commitment
	return update, true
}

// emit delivers an update, blocking while the consumer is slow. Ordinary updates give
// up when the subscription ends; the final timeout update only gives up when the consumer
// leaves or the sweeper reclaims the subscription.
func (m *Monitor) emit(sub *Subscription, update domain.MonitorUpdate, src string, final bool) bool {
	stop := sub.ctx.Done()
	if final {
		stop = sub.consumer.Done()
	}
	select {
	case sub.updates <- update:
		metrics.MonitorUpdatesTotal.WithLabelValues(string(update.Status), src).Inc()
		return true
	case <-stop:
		return false
	case <-sub.abandon:
		return false
	}
}

func (m *Monitor) fromCache(sub *Subscription, log *slog.Logger) bool {
	if m.cache == nil {
		return false
	}
	cached, found, err := m.cache.Get(sub.ctx, sub.Signature)
	if err != nil {
		log.Debug("Status cache lookup failed", "error", err)
		return false
	}
	if !found || !cached.Status.TerminalFor(sub.Commitment) {
		return false
	}

	update := *cached
	update.Signature = sub.Signature
	if sub.IncludeLogs {
		update.Logs = m.logs(sub, update.Status, log)
	}
	m.emit(sub, update, string(sourceCache), false)
	return true
}

func (m *Monitor) push(sub *Subscription, events chan<- any, log *slog.Logger) {
	send := func(v any) bool {
		select {
		case events <- v:
			return true
		case <-sub.ctx.Done():
			return false
		}
	}

	if m.notifier == nil {
		send(ackEvent{})
		return
	}

	ps, err := m.notifier.SubscribeSignature(sub.ctx, sub.Signature, sub.Commitment)
	if !send(ackEvent{}) {
		if err == nil {
			ps.Close()
		}
		return
	}
	if err != nil {
		log.Debug("Push unavailable, polling only", "error", err)
		return
	}
	defer ps.Close()

	for {
		select {
		case <-sub.ctx.Done():
			return
		case n, ok := <-ps.Events():
			if !ok {
				return
			}
			ev := event{source: sourcePush, found: true, slot: n.Slot, commitment: n.Commitment}
			if len(n.Err) > 0 && string(n.Err) != "null" {
				ev.txErr = n.Err
			}
			if !send(ev) {
				return
			}
		}
	}
}

// poll queries the signature status every interval. A slow round simply skips the ticks it missed.
func (m *Monitor) poll(sub *Subscription, events chan<- any, log *slog.Logger) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ev := m.pollOnce(sub)
		if ev.err != nil && sub.ctx.Err() == nil {
			log.Debug("Status poll failed", "error", ev.err)
		}
		select {
		case events <- ev:
		case <-sub.ctx.Done():
			return
		}

		select {
		case <-ticker.C:
		case <-sub.ctx.Done():
			return
		}
	}
}

func (m *Monitor) pollOnce(sub *Subscription) event {
	ev := event{source: sourcePoll}

	statuses, err := m.ledger.SignatureStatuses(sub.ctx, []domain.Signature{sub.Signature})
	if err != nil {
		ev.err = err
		return ev
	}
	if len(statuses) > 0 && statuses[0] != nil {
		st := statuses[0]
		ev.found = true
		ev.slot = st.Slot
		ev.commitment = st.Commitment()
		if st.Failed() {
			ev.txErr = st.Err
		}
		return ev
	}

	if sub.ExpirySlot > 0 {
		height, err := m.ledger.BlockHeight(sub.ctx, domain.CommitmentConfirmed)
		if err != nil {
			ev.err = err
			return ev
		}
		ev.height = height
	}
	return ev
}

// logs fetches the program logs of a landed transaction. Failure is not surfaced.
func (m *Monitor) logs(sub *Subscription, status domain.TxStatus, log *slog.Logger) []string {
	switch status {
	case domain.StatusConfirmed, domain.StatusFinalized, domain.StatusFailed:
	default:
		return nil
	}

	rec, err := m.ledger.GetTransaction(sub.ctx, sub.Signature, sub.Commitment)
	if err != nil {
		log.Warn("Failed to fetch transaction logs", "error", err)
		return nil
	}
	return rec.Logs
}

func (m *Monitor) remember(update domain.MonitorUpdate, log *slog.Logger) {
	if m.cache == nil {
		return
	}
	switch update.Status {
	case domain.StatusFinalized:
	case domain.StatusFailed:
		// A failure seen only at processed can still be rolled back.
		if update.CurrentCommitment != domain.CommitmentConfirmed && update.CurrentCommitment != domain.CommitmentFinalized {
			return
		}
	default:
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.cache.Put(ctx, update); err != nil {
			log.Warn("Failed to cache terminal status", "error", err)
		}
	}()
}

// teardown releases the subscription. Push deregistration happens in the
// background and is never awaited.
func (m *Monitor) teardown(sub *Subscription) {
	sub.cancel(nil)
	close(sub.updates)
	sub.markReady()
	close(sub.done)
	if m.registry.Remove(sub) {
		metrics.MonitorActiveSubscriptions.Dec()
	}
}
