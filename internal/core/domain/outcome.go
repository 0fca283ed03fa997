package domain

import (
	"fmt"
	"time"
)

// ErrorCode is the closed taxonomy of submission failures.
type ErrorCode string

const (
	CodeInsufficientFunds    ErrorCode = "insufficient_funds"
	CodeInvalidSignature     ErrorCode = "invalid_signature"
	CodeExpiredReference     ErrorCode = "expired_reference"
	CodeMalformedInstruction ErrorCode = "malformed_instruction"
	CodeDuplicateSubmission  ErrorCode = "duplicate_submission"
	CodeNetworkError         ErrorCode = "network_error"
	CodeTimeout              ErrorCode = "timeout"
	CodeConnectionFailed     ErrorCode = "connection_failed"
	CodeRPCError             ErrorCode = "rpc_error"
)

// Certainty is what is known about whether an attempt reached the ledger.
type Certainty string

const (
	CertaintyNotSubmitted      Certainty = "not_submitted"
	CertaintySubmitted         Certainty = "submitted"
	CertaintyUnknownResolvable Certainty = "unknown_resolvable"
)

// ClassifiedError is the structured form of a failed submission attempt.
// It is built once and never modified.
type ClassifiedError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable"`
	Certainty Certainty      `json:"certainty"`

	// Set whenever Certainty is not NotSubmitted.
	ExpiryReference string `json:"expiry_reference,omitempty"`
	ExpirySlot      uint64 `json:"expiry_slot,omitempty"`
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Certainty, e.Message)
}

// SubmissionResult tags a SubmissionOutcome.
type SubmissionResult string

const (
	ResultSubmitted SubmissionResult = "submitted"
	ResultRejected  SubmissionResult = "rejected"
)

// SubmissionOutcome records one submission attempt. A retry produces a new outcome.
type SubmissionOutcome struct {
	AttemptID       string           `json:"attempt_id"`
	Result          SubmissionResult `json:"result"`
	LedgerSignature *Signature       `json:"ledger_signature,omitempty"`
	Error           *ClassifiedError `json:"error,omitempty"`
	At              time.Time        `json:"at"`
}

// Submitted builds the outcome for an attempt the ledger accepted.
func Submitted(attemptID string, sig Signature) SubmissionOutcome {
	return SubmissionOutcome{
		AttemptID:       attemptID,
		Result:          ResultSubmitted,
		LedgerSignature: &sig,
		At:              time.Now().UTC(),
	}
}

// Rejected builds the outcome for an attempt that failed with err.
func Rejected(attemptID string, err *ClassifiedError) SubmissionOutcome {
	return SubmissionOutcome{
		AttemptID: attemptID,
		Result:    ResultRejected,
		Error:     err,
		At:        time.Now().UTC(),
	}
}
