package chain

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vietddude/txgate/internal/core/domain"
)

// ErrReferenceExpired is returned when the ledger no longer recognises a message's expiry reference.
var ErrReferenceExpired = errors.New("expiry reference no longer valid")

// ErrNotSent marks a send that failed before any bytes reached a ledger endpoint.
var ErrNotSent = errors.New("transaction not sent")

// Ledger defines the ledger-level request/response interface.
// This is the boundary between the transaction core and ledger-specific RPC details.
type Ledger interface {
	// LatestReference returns a fresh expiry reference and its validity bound
	LatestReference(ctx context.Context, commitment domain.Commitment) (domain.Reference, error)

	// BlockHeight returns the current block height
	BlockHeight(ctx context.Context, commitment domain.Commitment) (uint64, error)

	// SendTransaction submits signed wire bytes once and returns the ledger signature
	SendTransaction(ctx context.Context, wire []byte, commitment domain.Commitment) (domain.Signature, error)

	// SignatureStatuses returns one entry per signature, nil when the ledger has no record
	SignatureStatuses(ctx context.Context, sigs []domain.Signature) ([]*SignatureStatus, error)

	// GetTransaction fetches a landed transaction, returning domain.ErrNotFound when absent
	GetTransaction(ctx context.Context, sig domain.Signature, commitment domain.Commitment) (*TransactionRecord, error)

	// SimulateTransaction executes wire bytes without committing them
	SimulateTransaction(ctx context.Context, wire []byte, commitment domain.Commitment) (*SimulationResult, error)

	// FeeForMessage returns the fee the ledger would charge for a compiled message
	FeeForMessage(ctx context.Context, message []byte, commitment domain.Commitment) (uint64, error)
}

// Notifier is the push side of the ledger: signature notifications over a shared connection.
type Notifier interface {
	// SubscribeSignature registers interest in sig and returns once the ledger acknowledged it
	SubscribeSignature(ctx context.Context, sig domain.Signature, commitment domain.Commitment) (PushSubscription, error)
}

// PushSubscription delivers notifications for one signature registration.
type PushSubscription interface {
	// Events is closed when the registration ends, including on connection loss
	Events() <-chan Notification

	// Close deregisters; safe to call more than once
	Close()
}

// Notification is a pushed signature result.
type Notification struct {
	Slot       uint64
	Commitment domain.Commitment
	Err        json.RawMessage
}

// SignatureStatus is the ledger's view of one signature.
type SignatureStatus struct {
	Slot               uint64            `json:"slot"`
	Confirmations      *uint64           `json:"confirmations"`
	ConfirmationStatus domain.Commitment `json:"confirmationStatus"`
	Err                json.RawMessage   `json:"err"`
}

// Commitment returns the commitment the status has reached.
// Older nodes omit confirmationStatus; a nil confirmation count then means rooted.
func (s *SignatureStatus) Commitment() domain.Commitment {
	if s.ConfirmationStatus != "" {
		return s.ConfirmationStatus
	}
	if s.Confirmations == nil {
		return domain.CommitmentFinalized
	}
	if *s.Confirmations == 0 {
		return domain.CommitmentProcessed
	}
	return domain.CommitmentConfirmed
}

// Failed reports whether the transaction landed with an execution error.
func (s *SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// TransactionRecord is a landed transaction.
type TransactionRecord struct {
	Slot      uint64
	BlockTime *int64
	Wire      []byte
	Err       json.RawMessage
	Logs      []string
	Fee       uint64
}

// SimulationResult is the outcome of a dry run.
type SimulationResult struct {
	Err           json.RawMessage
	Logs          []string
	UnitsConsumed uint64
}
