package domain

import (
	"fmt"
	"strings"
)

// Commitment is the durability threshold a status is reported at.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// DefaultCommitment balances latency against rollback risk.
const DefaultCommitment = CommitmentConfirmed

// ParseCommitment accepts the commitment names case-insensitively; empty selects the default.
func ParseCommitment(s string) (Commitment, error) {
	switch Commitment(strings.ToLower(strings.TrimSpace(s))) {
	case "", "unspecified":
		return DefaultCommitment, nil
	case CommitmentProcessed:
		return CommitmentProcessed, nil
	case CommitmentConfirmed:
		return CommitmentConfirmed, nil
	case CommitmentFinalized:
		return CommitmentFinalized, nil
	}
	return "", fmt.Errorf("unknown commitment level %q", s)
}

// Status returns the monitor status that corresponds to reaching c.
func (c Commitment) Status() TxStatus {
	switch c {
	case CommitmentProcessed:
		return StatusProcessed
	case CommitmentFinalized:
		return StatusFinalized
	default:
		return StatusConfirmed
	}
}

// TxStatus is a monitor stream status.
type TxStatus string

const (
	StatusOpen      TxStatus = "open"
	StatusProcessed TxStatus = "processed"
	StatusConfirmed TxStatus = "confirmed"
	StatusFinalized TxStatus = "finalized"
	StatusFailed    TxStatus = "failed"
	StatusDropped   TxStatus = "dropped"
	StatusTimedOut  TxStatus = "timed_out"
)

// Rank orders statuses for the no-regression rule. Outcome statuses outrank progress.
func (s TxStatus) Rank() int {
	switch s {
	case StatusProcessed:
		return 1
	case StatusConfirmed:
		return 2
	case StatusFinalized:
		return 3
	case StatusFailed, StatusDropped, StatusTimedOut:
		return 4
	default:
		return 0
	}
}

// Commitment reports the commitment a progress status represents.
func (s TxStatus) Commitment() (Commitment, bool) {
	switch s {
	case StatusProcessed:
		return CommitmentProcessed, true
	case StatusConfirmed:
		return CommitmentConfirmed, true
	case StatusFinalized:
		return CommitmentFinalized, true
	}
	return "", false
}

// TerminalFor reports whether s ends a stream that waits for commitment c.
func (s TxStatus) TerminalFor(c Commitment) bool {
	switch s {
	case StatusFailed, StatusDropped, StatusTimedOut, StatusFinalized:
		return true
	case StatusOpen:
		return false
	}
	return s.Rank() >= c.Status().Rank()
}

// MonitorUpdate is one message of a monitor stream.
type MonitorUpdate struct {
	Signature         Signature  `json:"signature"`
	Status            TxStatus   `json:"status"`
	Slot              uint64     `json:"slot,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	ErrorCode         ErrorCode  `json:"error_code,omitempty"`
	Logs              []string   `json:"logs,omitempty"`
	CurrentCommitment Commitment `json:"current_commitment,omitempty"`
}
