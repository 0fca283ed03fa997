package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vietddude/txgate/internal/core/domain"
)

// errDeadline is the cancellation cause of a subscription whose timeout elapsed.
var errDeadline = errors.New("monitoring timeout reached")

// errSwept is the cancellation cause of a subscription reclaimed by the sweeper.
var errSwept = errors.New("subscription reclaimed")

// Request describes what to watch.
type Request struct {
	Signature   domain.Signature
	Commitment  domain.Commitment
	IncludeLogs bool
	// Timeout of zero selects the configured default; larger than the maximum is clamped.
	Timeout time.Duration
	// ExpirySlot, when set, lets the monitor report Dropped once the ledger passes it.
	ExpirySlot uint64
}

// Subscription is one live monitor stream.
type Subscription struct {
	ID          string
	Signature   domain.Signature
	Commitment  domain.Commitment
	IncludeLogs bool
	ExpirySlot  uint64
	Deadline    time.Time

	// consumer is the caller's context; cancelling it ends the stream silently.
	consumer context.Context
	// ctx ends on consumer cancel, deadline or sweep.
	ctx    context.Context
	cancel context.CancelCauseFunc
	// abandon cuts a blocked terminal send; it is only fired by the sweeper.
	abandon     chan struct{}
	abandonOnce sync.Once

	updates chan domain.MonitorUpdate
	done    chan struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

func newSubscription(consumer context.Context, id string, req Request, deadline time.Time, buffer int) *Subscription {
	withCause, cancel := context.WithCancelCause(consumer)
	ctx, cancelDeadline := context.WithDeadlineCause(withCause, deadline, errDeadline)
	return &Subscription{
		ID:          id,
		Signature:   req.Signature,
		Commitment:  req.Commitment,
		IncludeLogs: req.IncludeLogs,
		ExpirySlot:  req.ExpirySlot,
		Deadline:    deadline,
		consumer:    consumer,
		ctx:         ctx,
		cancel: func(cause error) {
			cancel(cause)
			cancelDeadline()
		},
		abandon: make(chan struct{}),
		updates: make(chan domain.MonitorUpdate, buffer),
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
}

// Updates delivers the stream. It is closed after the terminal update, or
// without one when the consumer cancels.
func (s *Subscription) Updates() <-chan domain.MonitorUpdate {
	return s.updates
}

// Done is closed once the subscription has been torn down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Subscription) sweep() {
	s.abandonOnce.Do(func() { close(s.abandon) })
	s.cancel(errSwept)
}

// timedOut reports whether the stream ended because its deadline passed.
func (s *Subscription) timedOut() bool {
	return errors.Is(context.Cause(s.ctx), errDeadline)
}

// expired reports whether the sweeper may reclaim the subscription at now.
func (s *Subscription) expired(now time.Time, grace time.Duration) bool {
	return s.consumer.Err() != nil || now.After(s.Deadline.Add(grace))
}
