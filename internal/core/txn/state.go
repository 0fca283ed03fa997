// Package txn implements the transaction lifecycle: state transitions, compilation and signing.
package txn

import (
	"bytes"
	"slices"

	"github.com/vietddude/txgate/internal/core/domain"
)

// Operation is a lifecycle operation gated by transaction state.
type Operation string

const (
	OpCompile  Operation = "compile"
	OpSign     Operation = "sign"
	OpSimulate Operation = "simulate"
	OpEstimate Operation = "estimate"
	OpSubmit   Operation = "submit"
)

var allowedOps = map[domain.State][]Operation{
	domain.StateDraft:           {OpCompile},
	domain.StateCompiled:        {OpSign, OpSimulate, OpEstimate},
	domain.StatePartiallySigned: {OpSign, OpSimulate, OpEstimate},
	domain.StateFullySigned:     {OpSimulate, OpEstimate, OpSubmit},
	domain.StateSubmitted:       {},
}

var transitions = map[domain.State][]domain.State{
	domain.StateDraft:           {domain.StateCompiled},
	domain.StateCompiled:        {domain.StatePartiallySigned, domain.StateFullySigned},
	domain.StatePartiallySigned: {domain.StatePartiallySigned, domain.StateFullySigned},
	domain.StateFullySigned:     {domain.StateSubmitted},
}

// OperationAllowed returns an ErrInvalidState failure when op may not run in state.
func OperationAllowed(state domain.State, op Operation) error {
	if !slices.Contains(allowedOps[state], op) {
		return domain.InvalidState(string(op), "operation not allowed for transaction in state %q", state)
	}
	return nil
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to domain.State) bool {
	return slices.Contains(transitions[from], to)
}

// Transition moves tx to the given state or fails without touching it.
func Transition(tx *domain.Transaction, to domain.State) error {
	if !CanTransition(tx.State, to) {
		return domain.InvalidState("transition", "cannot move from %q to %q", tx.State, to)
	}
	tx.State = to
	return nil
}

// ValidateConsistency checks that a transaction received from a caller matches its claimed state.
func ValidateConsistency(tx *domain.Transaction) error {
	const op = "validate"
	if tx == nil {
		return domain.InvalidArgument(op, "transaction", "is required")
	}
	if !tx.State.Valid() {
		return domain.InvalidArgument(op, "state", "unknown state %q", tx.State)
	}
	if len(tx.Instructions) == 0 {
		return domain.InvalidArgument(op, "instructions", "at least one instruction is required")
	}

	if tx.State == domain.StateDraft {
		if len(tx.Message) > 0 || len(tx.Signatures) > 0 || len(tx.AccountKeys) > 0 {
			return domain.InvalidArgument(op, "state", "draft transaction carries compiled data")
		}
		return nil
	}

	switch {
	case len(tx.Message) == 0:
		return domain.InvalidArgument(op, "message", "compiled transaction has no message bytes")
	case tx.FeePayer == nil:
		return domain.InvalidArgument(op, "fee_payer", "compiled transaction has no fee payer")
	case tx.ExpiryReference == "":
		return domain.InvalidArgument(op, "expiry_reference", "compiled transaction has no expiry reference")
	case tx.ExpirySlot == 0 && tx.State != domain.StateSubmitted:
		return domain.InvalidArgument(op, "expiry_slot", "compiled transaction has no expiry slot")
	case tx.Header.RequiredSignatures == 0:
		return domain.InvalidArgument(op, "header", "compiled transaction requires no signers")
	case len(tx.Signatures) != int(tx.Header.RequiredSignatures):
		return domain.InvalidArgument(op, "signatures",
			"have %d signature slots, want %d", len(tx.Signatures), tx.Header.RequiredSignatures)
	case len(tx.AccountKeys) < int(tx.Header.RequiredSignatures):
		return domain.InvalidArgument(op, "account_keys", "fewer accounts than required signers")
	case tx.AccountKeys[0] != *tx.FeePayer:
		return domain.InvalidArgument(op, "fee_payer", "fee payer is not the first account")
	}

	present := tx.SignaturesPresent()
	switch tx.State {
	case domain.StateCompiled:
		if present != 0 {
			return domain.InvalidArgument(op, "signatures", "compiled transaction already carries signatures")
		}
	case domain.StatePartiallySigned:
		if present == 0 || present == len(tx.Signatures) {
			return domain.InvalidArgument(op, "signatures",
				"partially signed transaction has %d of %d signatures", present, len(tx.Signatures))
		}
	case domain.StateFullySigned, domain.StateSubmitted:
		if present != len(tx.Signatures) {
			return domain.InvalidArgument(op, "signatures",
				"%s transaction has %d of %d signatures", tx.State, present, len(tx.Signatures))
		}
	}
	return nil
}

// VerifyMessage re-encodes tx and rejects it when the carried message bytes differ.
// Instructions, accounts and the expiry reference are fixed once compiled; the message is what gets signed and sent.
func VerifyMessage(tx *domain.Transaction, enc Encoder) error {
	const op = "validate"
	msg, err := enc.EncodeMessage(tx)
	if err != nil {
		return domain.InvalidArgument(op, "transaction", "encode message: %v", err)
	}
	if !bytes.Equal(msg, tx.Message) {
		return domain.InvalidArgument(op, "message", "message bytes do not match the compiled instructions")
	}
	return nil
}

// CheckCompiled runs the state gate, the consistency checks and the message check for op.
func CheckCompiled(tx *domain.Transaction, op Operation, enc Encoder) error {
	if tx == nil {
		return domain.InvalidArgument(string(op), "transaction", "is required")
	}
	if err := OperationAllowed(tx.State, op); err != nil {
		return err
	}
	if err := ValidateConsistency(tx); err != nil {
		return err
	}
	return VerifyMessage(tx, enc)
}
