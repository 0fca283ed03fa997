package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/infra/chain"
	"github.com/vietddude/txgate/internal/infra/rpc/provider"
	"github.com/vietddude/txgate/internal/metrics"
)

// PushBufferSize bounds each subscription's pending notifications. A full buffer drops
// the newest event; the poll backstop recovers it.
const PushBufferSize = 4

var (
	// ErrNotConnected is returned by SubscribeSignature while the connection is down.
	ErrNotConnected = errors.New("pubsub not connected")
	// ErrDisconnected fails pending subscribes when the connection drops.
	ErrDisconnected = errors.New("pubsub connection lost")
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// PubSub multiplexes signature subscriptions over one websocket connection.
type PubSub struct {
	url    string
	dialer *websocket.Dialer
	log    *slog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[uint64]*pushSubscription
	subs    map[uint64]*pushSubscription

	nextID    atomic.Uint64
	connected atomic.Bool
}

var _ chain.Notifier = (*PubSub)(nil)

// NewPubSub creates a pubsub client. Run must be started for subscriptions to succeed.
func NewPubSub(url string) *PubSub {
	return &PubSub{
		url:     url,
		dialer:  websocket.DefaultDialer,
		log:     slog.Default().With("component", "pubsub"),
		pending: make(map[uint64]*pushSubscription),
		subs:    make(map[uint64]*pushSubscription),
	}
}

// Connected reports whether the websocket is established.
func (ps *PubSub) Connected() bool {
	return ps.connected.Load()
}

// Run keeps the connection up until ctx is done, reconnecting with exponential backoff.
// Subscriptions do not survive a reconnect; their event channels are closed instead.
func (ps *PubSub) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	for {
		conn, _, err := ps.dialer.DialContext(ctx, ps.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := b.NextBackOff()
			ps.log.Warn("Pubsub dial failed", "url", ps.url, "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		b.Reset()
		ps.attach(conn)
		ps.log.Info("Pubsub connected", "url", ps.url)

		err = ps.serve(ctx, conn)
		ps.detach()
		if ctx.Err() != nil {
			return nil
		}
		ps.log.Warn("Pubsub connection lost", "error", err)
	}
}

func (ps *PubSub) attach(conn *websocket.Conn) {
	ps.mu.Lock()
	ps.conn = conn
	ps.mu.Unlock()
	ps.connected.Store(true)
	metrics.PushConnected.Set(1)
}

func (ps *PubSub) detach() {
	ps.connected.Store(false)
	metrics.PushConnected.Set(0)

	ps.mu.Lock()
	pending, subs := ps.pending, ps.subs
	ps.pending = make(map[uint64]*pushSubscription)
	ps.subs = make(map[uint64]*pushSubscription)
	if ps.conn != nil {
		ps.conn.Close()
		ps.conn = nil
	}
	ps.mu.Unlock()

	for _, s := range pending {
		s.ack <- ErrDisconnected
	}
	for _, s := range subs {
		s.finish()
	}
}

func (ps *PubSub) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ps.log.Debug("Pubsub message not understood", "error", err)
			continue
		}
		ps.dispatch(&msg)
	}
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wsMessage struct {
	ID     *uint64             `json:"id"`
	Result json.RawMessage     `json:"result"`
	Error  *provider.RPCError  `json:"error"`
	Method string              `json:"method"`
	Params *notificationParams `json:"params"`
}

type notificationParams struct {
	Subscription uint64 `json:"subscription"`
	Result       struct {
		Context contextSlot     `json:"context"`
		Value   json.RawMessage `json:"value"`
	} `json:"result"`
}

type signatureValue struct {
	Err json.RawMessage `json:"err"`
}

func (ps *PubSub) dispatch(msg *wsMessage) {
	if msg.ID != nil {
		ps.acknowledge(*msg.ID, msg)
		return
	}
	if msg.Method != "signatureNotification" || msg.Params == nil {
		return
	}

	ps.mu.Lock()
	s, ok := ps.subs[msg.Params.Subscription]
	if ok {
		// The ledger ends a signature subscription after its single notification.
		delete(ps.subs, msg.Params.Subscription)
	}
	ps.mu.Unlock()
	if !ok {
		return
	}

	var value signatureValue
	if err := json.Unmarshal(msg.Params.Result.Value, &value); err != nil {
		// receivedSignature notifications carry a bare string
		ps.mu.Lock()
		ps.subs[msg.Params.Subscription] = s
		ps.mu.Unlock()
		return
	}

	s.deliver(chain.Notification{
		Slot:       msg.Params.Result.Context.Slot,
		Commitment: s.commitment,
		Err:        nullToNil(value.Err),
	})
	s.finish()
}

func (ps *PubSub) acknowledge(id uint64, msg *wsMessage) {
	ps.mu.Lock()
	s, ok := ps.pending[id]
	delete(ps.pending, id)
	ps.mu.Unlock()
	if !ok {
		return
	}

	if msg.Error != nil {
		s.ack <- msg.Error
		return
	}
	var subID uint64
	if err := json.Unmarshal(msg.Result, &subID); err != nil {
		s.ack <- fmt.Errorf("decode subscription id: %w", err)
		return
	}

	ps.mu.Lock()
	s.id = subID
	ps.subs[subID] = s
	ps.mu.Unlock()
	s.ack <- nil
}

func (ps *PubSub) write(req wsRequest) error {
	ps.mu.Lock()
	conn := ps.conn
	ps.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(req)
}

// SubscribeSignature registers for the signature's result at commitment and waits for the acknowledgement.
func (ps *PubSub) SubscribeSignature(ctx context.Context, sig domain.Signature, commitment domain.Commitment) (chain.PushSubscription, error) {
	if !ps.Connected() {
		return nil, ErrNotConnected
	}

	id := ps.nextID.Add(1)
	s := &pushSubscription{
		ps:         ps,
		commitment: commitment,
		events:     make(chan chain.Notification, PushBufferSize),
		ack:        make(chan error, 1),
	}

	ps.mu.Lock()
	ps.pending[id] = s
	ps.mu.Unlock()

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "signatureSubscribe",
		Params:  []any{sig.String(), map[string]any{"commitment": commitment}},
	}
	if err := ps.write(req); err != nil {
		ps.dropPending(id)
		return nil, fmt.Errorf("signatureSubscribe: %w", err)
	}

	select {
	case err := <-s.ack:
		if err != nil {
			return nil, fmt.Errorf("signatureSubscribe: %w", err)
		}
		return s, nil
	case <-ctx.Done():
		ps.dropPending(id)
		// The ack may have raced the cancellation.
		select {
		case err := <-s.ack:
			if err == nil {
				s.Close()
			}
		default:
		}
		return nil, ctx.Err()
	}
}

func (ps *PubSub) dropPending(id uint64) {
	ps.mu.Lock()
	delete(ps.pending, id)
	ps.mu.Unlock()
}

func (ps *PubSub) unsubscribe(subID uint64) {
	ps.mu.Lock()
	_, active := ps.subs[subID]
	delete(ps.subs, subID)
	ps.mu.Unlock()
	if !active {
		return
	}

	go func() {
		req := wsRequest{
			JSONRPC: "2.0",
			ID:      ps.nextID.Add(1),
			Method:  "signatureUnsubscribe",
			Params:  []any{subID},
		}
		if err := ps.write(req); err != nil {
			ps.log.Debug("Pubsub unsubscribe failed", "subscription", subID, "error", err)
		}
	}()
}

// pushSubscription is one acknowledged signatureSubscribe.
type pushSubscription struct {
	ps         *PubSub
	id         uint64
	commitment domain.Commitment
	ack        chan error

	mu     sync.Mutex
	closed bool
	events chan chain.Notification
}

func (s *pushSubscription) Events() <-chan chain.Notification {
	return s.events
}

func (s *pushSubscription) deliver(n chain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- n:
	default:
		metrics.MonitorPushDropped.Inc()
		s.ps.log.Debug("Push buffer full, dropping notification", "subscription", s.id)
	}
}

func (s *pushSubscription) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// Close deregisters the subscription and closes its channel.
func (s *pushSubscription) Close() {
	s.ps.unsubscribe(s.id)
	s.finish()
}
