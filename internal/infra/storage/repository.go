package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vietddude/txgate/internal/core/domain"
)

// ErrRecordNotFound is returned when no journal entry matches.
var ErrRecordNotFound = errors.New("submission record not found")

// SubmissionRecord is one journal row: a single submission attempt and its outcome.
type SubmissionRecord struct {
	AttemptID       string    `db:"attempt_id" json:"attempt_id"`
	Result          string    `db:"result" json:"result"`
	Signature       string    `db:"signature" json:"signature"`
	FeePayer        string    `db:"fee_payer" json:"fee_payer"`
	Commitment      string    `db:"commitment" json:"commitment"`
	ErrorCode       string    `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage    string    `db:"error_message" json:"error_message,omitempty"`
	Certainty       string    `db:"certainty" json:"certainty,omitempty"`
	Retryable       bool      `db:"retryable" json:"retryable"`
	ExpiryReference string    `db:"expiry_reference" json:"expiry_reference"`
	ExpirySlot      int64     `db:"expiry_slot" json:"expiry_slot"`
	Details         string    `db:"details" json:"details,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// NewSubmissionRecord flattens a transaction and its outcome into a journal row.
// Signature is the ledger signature when submitted, else the fee payer slot if filled.
func NewSubmissionRecord(tx *domain.Transaction, outcome domain.SubmissionOutcome, commitment domain.Commitment) *SubmissionRecord {
	rec := &SubmissionRecord{
		AttemptID:       outcome.AttemptID,
		Result:          string(outcome.Result),
		Commitment:      string(commitment),
		ExpiryReference: tx.ExpiryReference,
		ExpirySlot:      int64(tx.ExpirySlot),
		CreatedAt:       outcome.At,
	}
	if tx.FeePayer != nil {
		rec.FeePayer = tx.FeePayer.String()
	}
	if outcome.LedgerSignature != nil {
		rec.Signature = outcome.LedgerSignature.String()
	} else if sig, ok := tx.LedgerSignature(); ok {
		rec.Signature = sig.String()
	}
	if ce := outcome.Error; ce != nil {
		rec.ErrorCode = string(ce.Code)
		rec.ErrorMessage = ce.Message
		rec.Certainty = string(ce.Certainty)
		rec.Retryable = ce.Retryable
		if len(ce.Details) > 0 {
			if raw, err := json.Marshal(ce.Details); err == nil {
				rec.Details = string(raw)
			}
		}
	}
	return rec
}

// SubmissionJournal is the append-only audit of submission attempts.
type SubmissionJournal interface {
	// Append stores one record; attempt ids are unique
	Append(ctx context.Context, rec *SubmissionRecord) error

	// Get returns the record for an attempt id
	Get(ctx context.Context, attemptID string) (*SubmissionRecord, error)

	// BySignature returns every attempt that carried the signature, oldest first
	BySignature(ctx context.Context, signature string) ([]*SubmissionRecord, error)

	// Recent returns the newest records, newest first
	Recent(ctx context.Context, limit int) ([]*SubmissionRecord, error)
}

// Recorder feeds submission outcomes into a journal.
type Recorder struct {
	Journal SubmissionJournal
}

// RecordSubmission appends one outcome.
func (r Recorder) RecordSubmission(ctx context.Context, tx *domain.Transaction, outcome domain.SubmissionOutcome, commitment domain.Commitment) error {
	return r.Journal.Append(ctx, NewSubmissionRecord(tx, outcome, commitment))
}
