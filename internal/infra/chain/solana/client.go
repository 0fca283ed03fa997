// Package solana implements the ledger adapter for the Solana JSON-RPC and pubsub APIs.
package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/infra/chain"
	"github.com/vietddude/txgate/internal/infra/rpc/routing"
)

// Client implements chain.Ledger. Reads retry and fail over across endpoints;
// sendTransaction is a single call on one endpoint.
type Client struct {
	router *routing.Router
	retry  routing.RetryConfig
	log    *slog.Logger
}

var _ chain.Ledger = (*Client)(nil)

// NewClient creates a ledger client over the router's endpoints.
func NewClient(router *routing.Router, retry routing.RetryConfig) *Client {
	return &Client{
		router: router,
		retry:  retry,
		log:    slog.Default().With("component", "ledger"),
	}
}

type commitmentConfig struct {
	Commitment domain.Commitment `json:"commitment,omitempty"`
}

type contextSlot struct {
	Slot uint64 `json:"slot"`
}

func (c *Client) read(ctx context.Context, method string, params []any, out any) error {
	return routing.CallWithFailover(ctx, c.router, method, params, out, c.retry)
}

// LatestReference returns the latest blockhash and the last height it is valid for.
func (c *Client) LatestReference(ctx context.Context, commitment domain.Commitment) (domain.Reference, error) {
	var res struct {
		Context contextSlot `json:"context"`
		Value   struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.read(ctx, "getLatestBlockhash", []any{commitmentConfig{commitment}}, &res); err != nil {
		return domain.Reference{}, err
	}
	return domain.Reference{
		Blockhash:            res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
	}, nil
}

// BlockHeight returns the current block height.
func (c *Client) BlockHeight(ctx context.Context, commitment domain.Commitment) (uint64, error) {
	var height uint64
	if err := c.read(ctx, "getBlockHeight", []any{commitmentConfig{commitment}}, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// SendTransaction submits wire bytes exactly once. Errors are returned untouched
// so the caller can classify them.
func (c *Client) SendTransaction(ctx context.Context, wire []byte, commitment domain.Commitment) (domain.Signature, error) {
	p, err := c.router.Pick()
	if err != nil {
		return domain.Signature{}, fmt.Errorf("%w: %w", chain.ErrNotSent, err)
	}

	cfg := map[string]any{
		"encoding":            "base64",
		"preflightCommitment": commitment,
	}
	var sig string
	start := time.Now()
	if err := p.Call(ctx, "sendTransaction", []any{base64.StdEncoding.EncodeToString(wire), cfg}, &sig); err != nil {
		c.router.RecordFailure(p.GetName())
		return domain.Signature{}, err
	}
	c.router.RecordSuccess(p.GetName(), time.Since(start))

	parsed, err := domain.ParseSignature(sig)
	if err != nil {
		return domain.Signature{}, fmt.Errorf("decode sendTransaction result: %w", err)
	}
	return parsed, nil
}

// SignatureStatuses returns the ledger's status for each signature, nil when unknown.
func (c *Client) SignatureStatuses(ctx context.Context, sigs []domain.Signature) ([]*chain.SignatureStatus, error) {
	var res struct {
		Context contextSlot              `json:"context"`
		Value   []*chain.SignatureStatus `json:"value"`
	}
	encoded := lo.Map(sigs, func(s domain.Signature, _ int) string { return s.String() })
	params := []any{encoded, map[string]any{"searchTransactionHistory": true}}
	if err := c.read(ctx, "getSignatureStatuses", params, &res); err != nil {
		return nil, err
	}
	if len(res.Value) != len(sigs) {
		return nil, fmt.Errorf("getSignatureStatuses returned %d entries for %d signatures", len(res.Value), len(sigs))
	}
	return res.Value, nil
}

// GetTransaction fetches a landed transaction with its logs.
func (c *Client) GetTransaction(ctx context.Context, sig domain.Signature, commitment domain.Commitment) (*chain.TransactionRecord, error) {
	// getTransaction does not serve processed data.
	if commitment == domain.CommitmentProcessed {
		commitment = domain.CommitmentConfirmed
	}

	var res *struct {
		Slot        uint64   `json:"slot"`
		BlockTime   *int64   `json:"blockTime"`
		Transaction []string `json:"transaction"`
		Meta        *struct {
			Err         json.RawMessage `json:"err"`
			Fee         uint64          `json:"fee"`
			LogMessages []string        `json:"logMessages"`
		} `json:"meta"`
	}
	params := []any{sig.String(), map[string]any{
		"encoding":                       "base64",
		"commitment":                     commitment,
		"maxSupportedTransactionVersion": 0,
	}}
	if err := c.read(ctx, "getTransaction", params, &res); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("transaction %s: %w", sig, domain.ErrNotFound)
	}

	rec := &chain.TransactionRecord{Slot: res.Slot, BlockTime: res.BlockTime}
	if len(res.Transaction) > 0 {
		wire, err := base64.StdEncoding.DecodeString(res.Transaction[0])
		if err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
		}
		rec.Wire = wire
	}
	if res.Meta != nil {
		rec.Err = nullToNil(res.Meta.Err)
		rec.Fee = res.Meta.Fee
		rec.Logs = res.Meta.LogMessages
	}
	return rec, nil
}

// SimulateTransaction runs the transaction without committing it. Signatures are not
// verified so partially signed transactions can be simulated.
func (c *Client) SimulateTransaction(ctx context.Context, wire []byte, commitment domain.Commitment) (*chain.SimulationResult, error) {
	var res struct {
		Context contextSlot `json:"context"`
		Value   struct {
			Err           json.RawMessage `json:"err"`
			Logs          []string        `json:"logs"`
			UnitsConsumed uint64          `json:"unitsConsumed"`
		} `json:"value"`
	}
	params := []any{base64.StdEncoding.EncodeToString(wire), map[string]any{
		"encoding":   "base64",
		"commitment": commitment,
		"sigVerify":  false,
	}}
	if err := c.read(ctx, "simulateTransaction", params, &res); err != nil {
		return nil, err
	}
	return &chain.SimulationResult{
		Err:           nullToNil(res.Value.Err),
		Logs:          res.Value.Logs,
		UnitsConsumed: res.Value.UnitsConsumed,
	}, nil
}

// FeeForMessage returns the fee for a compiled message.
func (c *Client) FeeForMessage(ctx context.Context, message []byte, commitment domain.Commitment) (uint64, error) {
	var res struct {
		Context contextSlot `json:"context"`
		Value   *uint64     `json:"value"`
	}
	params := []any{base64.StdEncoding.EncodeToString(message), commitmentConfig{commitment}}
	if err := c.read(ctx, "getFeeForMessage", params, &res); err != nil {
		return 0, err
	}
	if res.Value == nil {
		return 0, chain.ErrReferenceExpired
	}
	return *res.Value, nil
}

func nullToNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
