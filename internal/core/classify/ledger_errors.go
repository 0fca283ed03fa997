package classify

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vietddude/txgate/internal/core/domain"
)

// TransactionError is a decoded ledger transaction error such as
// "BlockhashNotFound" or {"InstructionError":[0,{"Custom":1}]}.
type TransactionError struct {
	Name string
	// InstructionIndex is -1 unless Name is InstructionError.
	InstructionIndex int
	Instruction      string
	Custom           *uint32
	AccountIndex     *int
	Raw              json.RawMessage
}

// ParseTransactionError decodes the ledger's JSON form. It reports false for null or empty input.
func ParseTransactionError(raw json.RawMessage) (TransactionError, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return TransactionError{}, false
	}
	te := TransactionError{InstructionIndex: -1, Raw: raw}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		te.Name = name
		return te, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) != 1 {
		te.Name = string(raw)
		return te, true
	}
	for key, value := range obj {
		te.Name = key
		switch key {
		case "InstructionError":
			var pair []json.RawMessage
			if err := json.Unmarshal(value, &pair); err == nil && len(pair) == 2 {
				_ = json.Unmarshal(pair[0], &te.InstructionIndex)
				te.Instruction, te.Custom = parseInstructionError(pair[1])
			}
		case "InsufficientFundsForRent":
			var body struct {
				AccountIndex int `json:"account_index"`
			}
			if err := json.Unmarshal(value, &body); err == nil {
				te.AccountIndex = &body.AccountIndex
			}
		}
	}
	return te, true
}

func parseInstructionError(raw json.RawMessage) (string, *uint32) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return string(raw), nil
	}
	for key, value := range obj {
		if key == "Custom" {
			var code uint32
			if err := json.Unmarshal(value, &code); err == nil {
				return key, &code
			}
		}
		return key, nil
	}
	return "", nil
}

// Code maps the error onto the submission taxonomy.
func (e TransactionError) Code() domain.ErrorCode {
	switch e.Name {
	case "InsufficientFundsForFee", "InsufficientFundsForRent":
		return domain.CodeInsufficientFunds
	case "AccountNotFound":
		// The fee payer has never been funded.
		return domain.CodeInsufficientFunds
	case "SignatureFailure", "MissingSignatureForFee":
		return domain.CodeInvalidSignature
	case "BlockhashNotFound":
		return domain.CodeExpiredReference
	case "AlreadyProcessed":
		return domain.CodeDuplicateSubmission
	case "InstructionError":
		switch e.Instruction {
		case "InsufficientFunds":
			return domain.CodeInsufficientFunds
		case "MissingRequiredSignature":
			return domain.CodeInvalidSignature
		}
	}
	return domain.CodeMalformedInstruction
}

func (e TransactionError) String() string {
	if e.Name != "InstructionError" {
		return e.Name
	}
	if e.Custom != nil {
		return fmt.Sprintf("InstructionError(%d, Custom(%d))", e.InstructionIndex, *e.Custom)
	}
	return fmt.Sprintf("InstructionError(%d, %s)", e.InstructionIndex, e.Instruction)
}

// Message is a human readable description for the error.
func (e TransactionError) Message() string {
	switch e.Code() {
	case domain.CodeInsufficientFunds:
		return "insufficient funds to pay for the transaction: " + e.String()
	case domain.CodeInvalidSignature:
		return "transaction signature verification failed: " + e.String()
	case domain.CodeExpiredReference:
		return "expiry reference not found or expired, rebuild and re-sign the transaction"
	case domain.CodeDuplicateSubmission:
		return "transaction has already been processed"
	}
	return "transaction rejected by the ledger: " + e.String()
}

func (e TransactionError) details() map[string]any {
	d := map[string]any{"transaction_error": e.String()}
	if e.InstructionIndex >= 0 {
		d["instruction_index"] = e.InstructionIndex
		d["instruction_error"] = e.Instruction
	}
	if e.Custom != nil {
		d["custom_code"] = *e.Custom
	}
	if e.AccountIndex != nil {
		d["account_index"] = *e.AccountIndex
	}
	return d
}

// ExecutionFailure classifies the error of a transaction that landed on the ledger and failed.
func ExecutionFailure(raw json.RawMessage) (domain.ErrorCode, string) {
	te, ok := ParseTransactionError(raw)
	if !ok {
		return "", ""
	}
	return te.Code(), te.Message()
}

// ClassifySimulation maps the error of a dry run. Nothing is ever submitted by a simulation.
func ClassifySimulation(raw json.RawMessage, logs []string, unitsConsumed uint64) *domain.ClassifiedError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	details := map[string]any{"stage": "simulation", "units_consumed": unitsConsumed}
	if logs != nil {
		details["logs"] = logs
	}

	te, ok := ParseTransactionError(raw)
	if !ok {
		return build(domain.CodeMalformedInstruction, domain.CertaintyNotSubmitted, string(raw), details, Expiry{})
	}
	for k, v := range te.details() {
		details[k] = v
	}
	return build(te.Code(), domain.CertaintyNotSubmitted, te.Message(), details, Expiry{})
}
