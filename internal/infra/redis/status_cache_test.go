package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/txgate/internal/core/domain"
)

func TestStatusEncoding(t *testing.T) {
	var sig domain.Signature
	sig[0] = 7
	in := domain.MonitorUpdate{
		Signature:         sig,
		Status:            domain.StatusFailed,
		Slot:              42,
		ErrorCode:         domain.CodeInsufficientFunds,
		ErrorMessage:      "insufficient funds for fee",
		Logs:              []string{"Program log: dropped from cache"},
		CurrentCommitment: domain.CommitmentConfirmed,
	}

	data, err := encodeStatus(in)
	require.NoError(t, err)
	out, err := decodeStatus(data)
	require.NoError(t, err)

	assert.Nil(t, out.Logs, "logs are not cached")
	out.Logs = in.Logs
	assert.Equal(t, in, *out)
	assert.Equal(t, "txgate:status:"+sig.String(), statusKey(sig))
}

// Runs against a live server when TXGATE_TEST_REDIS_URL is set.
func TestStatusCache_Live(t *testing.T) {
	url := os.Getenv("TXGATE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TXGATE_TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	client, err := NewClient(ctx, Config{URL: url})
	require.NoError(t, err)
	defer client.Close()

	cache := NewStatusCache(client, time.Minute)
	var sig domain.Signature
	sig[0], sig[1] = byte(time.Now().UnixNano()), 0xEE

	_, found, err := cache.Get(ctx, sig)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Put(ctx, domain.MonitorUpdate{Signature: sig, Status: domain.StatusFinalized, Slot: 9}))
	require.NoError(t, cache.Put(ctx, domain.MonitorUpdate{Signature: sig, Status: domain.StatusFailed, Slot: 10}))

	got, found, err := cache.Get(ctx, sig)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.StatusFinalized, got.Status, "first terminal write wins")
	assert.Equal(t, uint64(9), got.Slot)
}
