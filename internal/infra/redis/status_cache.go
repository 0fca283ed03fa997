package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/txgate/internal/core/domain"
)

const defaultStatusTTL = 24 * time.Hour

// StatusCache remembers terminal monitor statuses so late subscribers get them without a ledger round trip.
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatusCache creates a cache over client. A zero ttl selects 24h.
func NewStatusCache(client *Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusCache{rdb: client.rdb, ttl: ttl}
}

func statusKey(sig domain.Signature) string {
	return fmt.Sprintf("txgate:status:%s", sig)
}

// Get returns the cached terminal update for sig.
func (c *StatusCache) Get(ctx context.Context, sig domain.Signature) (*domain.MonitorUpdate, bool, error) {
	val, err := c.rdb.Get(ctx, statusKey(sig)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get failed: %w", err)
	}

	update, err := decodeStatus(val)
	if err != nil {
		return nil, false, err
	}
	return update, true, nil
}

// Put stores a terminal update. A terminal status never changes, so the first write wins.
func (c *StatusCache) Put(ctx context.Context, update domain.MonitorUpdate) error {
	data, err := encodeStatus(update)
	if err != nil {
		return err
	}
	if err := c.rdb.SetNX(ctx, statusKey(update.Signature), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("setnx failed: %w", err)
	}
	return nil
}

// Logs are fetched per subscriber and never cached.
func encodeStatus(update domain.MonitorUpdate) ([]byte, error) {
	update.Logs = nil
	data, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}
	return data, nil
}

func decodeStatus(data []byte) (*domain.MonitorUpdate, error) {
	var update domain.MonitorUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &update, nil
}
