// Package submit sends fully signed transactions to the ledger exactly once and
// reports every attempt as a SubmissionOutcome.
package submit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/txgate/internal/core/classify"
	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/core/keys"
	"github.com/vietddude/txgate/internal/core/txn"
	"github.com/vietddude/txgate/internal/metrics"
)

// Sender performs the single network submission.
type Sender interface {
	SendTransaction(ctx context.Context, wire []byte, commitment domain.Commitment) (domain.Signature, error)
}

// WireEncoder serialises messages and signed transactions.
type WireEncoder interface {
	txn.Encoder
	EncodeTransaction(tx *domain.Transaction) ([]byte, error)
}

// Journal receives every outcome. Failures to record are logged and never change the outcome.
type Journal interface {
	RecordSubmission(ctx context.Context, tx *domain.Transaction, outcome domain.SubmissionOutcome, commitment domain.Commitment) error
}

// Result is the submitted (or rejected) transaction with the outcome of the attempt.
type Result struct {
	Transaction *domain.Transaction
	Outcome     domain.SubmissionOutcome
}

// Submitter submits transactions. It never retries.
type Submitter struct {
	sender  Sender
	enc     WireEncoder
	journal Journal
	now     func() time.Time
	newID   func() string
	log     *slog.Logger
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithJournal records every outcome in j.
func WithJournal(j Journal) Option {
	return func(s *Submitter) { s.journal = j }
}

// NewSubmitter creates a submitter.
func NewSubmitter(sender Sender, enc WireEncoder, opts ...Option) *Submitter {
	s := &Submitter{
		sender: sender,
		enc:    enc,
		now:    time.Now,
		newID:  uuid.NewString,
		log:    slog.Default().With("component", "submitter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit verifies the signatures locally, then sends the transaction once.
//
// Errors are returned only for requests that cannot be attempted (wrong state,
// inconsistent transaction). Every attempted submission returns a Result whose
// Outcome is Submitted or Rejected; a Rejected outcome leaves the transaction FullySigned.
func (s *Submitter) Submit(ctx context.Context, tx *domain.Transaction, commitment domain.Commitment) (*Result, error) {
	const op = "submit"
	if err := txn.CheckCompiled(tx, txn.OpSubmit, s.enc); err != nil {
		return nil, err
	}
	if commitment == "" {
		commitment = domain.DefaultCommitment
	}

	out := tx.Clone()
	attemptID := s.newID()
	log := s.log.With("attempt_id", attemptID)

	if err := verifySignatures(out); err != nil {
		ce := classify.Classify(err, classify.ExpiryOf(out))
		return s.finish(ctx, log, out, domain.Rejected(attemptID, ce), commitment), nil
	}

	wire, err := s.enc.EncodeTransaction(out)
	if err != nil {
		return nil, domain.InvalidArgument(op, "transaction", "encode transaction: %v", err)
	}

	sig, err := s.sender.SendTransaction(ctx, wire, commitment)
	if err != nil {
		ce := classify.Classify(err, classify.ExpiryOf(out))
		return s.finish(ctx, log, out, domain.Rejected(attemptID, ce), commitment), nil
	}

	if expected, ok := out.LedgerSignature(); ok && expected != sig {
		log.Warn("Ledger returned unexpected signature", "expected", expected.String(), "got", sig.String())
	}
	out.SubmissionSignature = &sig
	if err := txn.Transition(out, domain.StateSubmitted); err != nil {
		return nil, err
	}
	return s.finish(ctx, log, out, domain.Submitted(attemptID, sig), commitment), nil
}

func (s *Submitter) finish(
	ctx context.Context,
	log *slog.Logger,
	tx *domain.Transaction,
	outcome domain.SubmissionOutcome,
	commitment domain.Commitment,
) *Result {
	outcome.At = s.now()
	o := outcome
	tx.Outcome = &o

	code, certainty := "", ""
	if ce := outcome.Error; ce != nil {
		code, certainty = string(ce.Code), string(ce.Certainty)
		log.Warn("Submission rejected",
			"code", ce.Code,
			"certainty", ce.Certainty,
			"retryable", ce.Retryable,
			"expiry_slot", ce.ExpirySlot,
			"error", ce.Message,
		)
	} else {
		log.Info("Transaction submitted", "signature", outcome.LedgerSignature.String(), "commitment", commitment)
	}
	metrics.SubmissionsTotal.WithLabelValues(string(outcome.Result), code, certainty).Inc()

	if s.journal != nil {
		if err := s.journal.RecordSubmission(ctx, tx, outcome, commitment); err != nil {
			log.Error("Failed to journal submission", "error", err)
		}
	}
	return &Result{Transaction: tx, Outcome: outcome}
}

// verifySignatures checks every slot against its signer before anything leaves the process.
func verifySignatures(tx *domain.Transaction) error {
	for i, signer := range tx.RequiredSigners() {
		if !keys.Verify(signer, tx.Message, tx.Signatures[i]) {
			return fmt.Errorf("%w: slot %d (%s)", classify.ErrSignatureVerification, i, signer)
		}
	}
	return nil
}
