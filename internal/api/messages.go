package api

import (
	"github.com/vietddude/txgate/internal/core/domain"
)

type CompileRequest struct {
	Transaction     *domain.Transaction `json:"transaction"`
	FeePayer        string              `json:"fee_payer"`
	ExpiryReference string              `json:"expiry_reference,omitempty"`
	ExpirySlot      uint64              `json:"expiry_slot,omitempty"`
}

type CompileResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
}

type SignRequest struct {
	Transaction *domain.Transaction `json:"transaction"`
	// Credentials are base58 ed25519 secrets, either 32 byte seeds or 64 byte keypairs.
	Credentials []string `json:"credentials"`
}

type SignResponse struct {
	Transaction       *domain.Transaction `json:"transaction"`
	SignaturesApplied int                 `json:"signatures_applied"`
	SignaturesIgnored int                 `json:"signatures_ignored"`
	SignaturesTotal   int                 `json:"signatures_total"`
}

type SubmitRequest struct {
	Transaction     *domain.Transaction `json:"transaction"`
	CommitmentLevel string              `json:"commitment_level,omitempty"`
}

type SubmitResponse struct {
	SubmissionResult domain.SubmissionResult `json:"submission_result"`
	LedgerSignature  string                  `json:"ledger_signature,omitempty"`
	ClassifiedError  *domain.ClassifiedError `json:"classified_error,omitempty"`
	Transaction      *domain.Transaction     `json:"transaction"`
	AttemptID        string                  `json:"attempt_id"`
}

type MonitorRequest struct {
	Signature       string `json:"signature"`
	CommitmentLevel string `json:"commitment_level,omitempty"`
	IncludeLogs     bool   `json:"include_logs,omitempty"`
	// TimeoutSeconds of zero selects the server default.
	TimeoutSeconds int64  `json:"timeout_seconds,omitempty"`
	ExpirySlot     uint64 `json:"expiry_slot,omitempty"`
}

// MonitorResponse is one streamed status update.
type MonitorResponse = domain.MonitorUpdate

type GetTransactionRequest struct {
	Signature       string `json:"signature"`
	CommitmentLevel string `json:"commitment_level,omitempty"`
}

type GetTransactionResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
	Slot        uint64              `json:"slot"`
	Status      domain.TxStatus     `json:"status"`
	BlockTime   *int64              `json:"block_time,omitempty"`
	FeeLamports uint64              `json:"fee_lamports"`
	Logs        []string            `json:"logs,omitempty"`
	ErrorCode   domain.ErrorCode    `json:"error_code,omitempty"`
	ErrorMsg    string              `json:"error_message,omitempty"`
}

type SimulateRequest struct {
	Transaction     *domain.Transaction `json:"transaction"`
	CommitmentLevel string              `json:"commitment_level,omitempty"`
}

type SimulateResponse struct {
	Success         bool                    `json:"success"`
	ClassifiedError *domain.ClassifiedError `json:"classified_error,omitempty"`
	Logs            []string                `json:"logs,omitempty"`
	UnitsConsumed   uint64                  `json:"units_consumed"`
}

type EstimateRequest struct {
	Transaction     *domain.Transaction `json:"transaction"`
	CommitmentLevel string              `json:"commitment_level,omitempty"`
}

type EstimateResponse struct {
	ComputeUnits    uint64                  `json:"compute_units"`
	FeeLamports     uint64                  `json:"fee_lamports"`
	ClassifiedError *domain.ClassifiedError `json:"classified_error,omitempty"`
}
