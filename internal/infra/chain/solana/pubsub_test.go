package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/infra/chain"
)

// wsNode answers signatureSubscribe and hands each acknowledged subscription to onSubscribe.
func wsNode(t *testing.T, onSubscribe func(conn *websocket.Conn, subID uint64, sig string)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var next uint64 = 100
		for {
			var req struct {
				ID     uint64            `json:"id"`
				Method string            `json:"method"`
				Params []json.RawMessage `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			switch req.Method {
			case "signatureSubscribe":
				var sig string
				json.Unmarshal(req.Params[0], &sig)
				if sig == "" {
					conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID,
						"error": map[string]any{"code": -32602, "message": "Invalid Request"}})
					continue
				}
				next++
				conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": next})
				if onSubscribe != nil {
					onSubscribe(conn, next, sig)
				}
			case "signatureUnsubscribe":
				conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": true})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func notify(conn *websocket.Conn, subID, slot uint64, errValue any) {
	conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "signatureNotification",
		"params": map[string]any{
			"subscription": subID,
			"result": map[string]any{
				"context": map[string]any{"slot": slot},
				"value":   map[string]any{"err": errValue},
			},
		},
	})
}

func startPubSub(t *testing.T, srv *httptest.Server) *PubSub {
	t.Helper()
	ps := NewPubSub("ws" + strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ps.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, ps.Connected, 2*time.Second, 5*time.Millisecond)
	return ps
}

func testSignature(b byte) domain.Signature {
	var s domain.Signature
	s[0] = b
	return s
}

func TestPubSub_Notification(t *testing.T) {
	srv := wsNode(t, func(conn *websocket.Conn, subID uint64, _ string) {
		notify(conn, subID, 55, nil)
	})
	ps := startPubSub(t, srv)

	sub, err := ps.SubscribeSignature(context.Background(), testSignature(1), domain.CommitmentConfirmed)
	require.NoError(t, err)
	defer sub.Close()

	select {
	case n, ok := <-sub.Events():
		require.True(t, ok)
		assert.Equal(t, uint64(55), n.Slot)
		assert.Equal(t, domain.CommitmentConfirmed, n.Commitment)
		assert.Nil(t, n.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
	}

	// A signature subscription delivers once and then ends.
	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after notification")
	}
}

func TestPubSub_FailedNotification(t *testing.T) {
	srv := wsNode(t, func(conn *websocket.Conn, subID uint64, _ string) {
		notify(conn, subID, 60, map[string]any{"InstructionError": []any{0, "InvalidAccountData"}})
	})
	ps := startPubSub(t, srv)

	sub, err := ps.SubscribeSignature(context.Background(), testSignature(2), domain.CommitmentFinalized)
	require.NoError(t, err)
	defer sub.Close()

	n := <-sub.Events()
	assert.JSONEq(t, `{"InstructionError":[0,"InvalidAccountData"]}`, string(n.Err))
}

func TestPubSub_NotConnected(t *testing.T) {
	ps := NewPubSub("ws://127.0.0.1:1")
	_, err := ps.SubscribeSignature(context.Background(), testSignature(3), domain.CommitmentConfirmed)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPubSub_ContextCancelledBeforeAck(t *testing.T) {
	// This node reads requests and never answers them.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	ps := startPubSub(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := ps.SubscribeSignature(ctx, testSignature(4), domain.CommitmentConfirmed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ps.mu.Lock()
	assert.Empty(t, ps.pending)
	ps.mu.Unlock()
}

func TestPubSub_ConnectionLossClosesSubscriptions(t *testing.T) {
	var server *websocket.Conn
	ready := make(chan struct{})
	srv := wsNode(t, func(conn *websocket.Conn, _ uint64, _ string) {
		server = conn
		close(ready)
	})
	ps := startPubSub(t, srv)

	sub, err := ps.SubscribeSignature(context.Background(), testSignature(5), domain.CommitmentConfirmed)
	require.NoError(t, err)
	<-ready
	server.Close()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok, "events channel should close on disconnect")
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after connection loss")
	}
}

func TestPushSubscription_DropsWhenFull(t *testing.T) {
	s := &pushSubscription{
		ps:     NewPubSub("ws://unused"),
		events: make(chan chain.Notification, PushBufferSize),
	}
	for i := range PushBufferSize + 3 {
		s.deliver(chain.Notification{Slot: uint64(i)})
	}
	assert.Len(t, s.events, PushBufferSize)

	s.finish()
	s.finish()
	s.deliver(chain.Notification{Slot: 99})

	var slots []uint64
	for n := range s.events {
		slots = append(slots, n.Slot)
	}
	assert.Equal(t, []uint64{0, 1, 2, 3}, slots)
}
