package domain

import "slices"

// State is the lifecycle position of a transaction.
type State string

const (
	StateDraft           State = "draft"
	StateCompiled        State = "compiled"
	StatePartiallySigned State = "partially_signed"
	StateFullySigned     State = "fully_signed"
	StateSubmitted       State = "submitted"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateDraft, StateCompiled, StatePartiallySigned, StateFullySigned, StateSubmitted:
		return true
	}
	return false
}

// AccountRef is an account referenced by an instruction.
type AccountRef struct {
	Account  Account `json:"account"`
	Signer   bool    `json:"signer"`
	Writable bool    `json:"writable"`
}

// Instruction is a single program invocation. Data is opaque to this service.
type Instruction struct {
	ProgramID Account      `json:"program_id"`
	Accounts  []AccountRef `json:"accounts"`
	Data      []byte       `json:"data"`
}

// MessageHeader describes how the compiled account list splits into categories.
type MessageHeader struct {
	RequiredSignatures       uint8 `json:"required_signatures"`
	ReadonlySignedAccounts   uint8 `json:"readonly_signed_accounts"`
	ReadonlyUnsignedAccounts uint8 `json:"readonly_unsigned_accounts"`
}

// Transaction is the unit moved through compile, sign, and submit.
type Transaction struct {
	Instructions []Instruction `json:"instructions"`
	State        State         `json:"state"`
	FeePayer     *Account      `json:"fee_payer,omitempty"`

	// ExpiryReference is the recent block reference the message commits to.
	ExpiryReference string `json:"expiry_reference,omitempty"`
	// ExpirySlot is the last block height at which the reference is accepted.
	ExpirySlot uint64 `json:"expiry_slot,omitempty"`

	AccountKeys []Account     `json:"account_keys,omitempty"`
	Header      MessageHeader `json:"header"`
	Signatures  []Signature   `json:"signatures,omitempty"`
	Message     []byte        `json:"message,omitempty"`

	SubmissionSignature *Signature         `json:"submission_signature,omitempty"`
	Outcome             *SubmissionOutcome `json:"outcome,omitempty"`
}

// NewDraft returns a draft transaction holding the given instructions.
func NewDraft(instructions ...Instruction) *Transaction {
	return &Transaction{
		Instructions: instructions,
		State:        StateDraft,
	}
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.Instructions = make([]Instruction, len(t.Instructions))
	for i, ix := range t.Instructions {
		c.Instructions[i] = Instruction{
			ProgramID: ix.ProgramID,
			Accounts:  slices.Clone(ix.Accounts),
			Data:      slices.Clone(ix.Data),
		}
	}
	if t.FeePayer != nil {
		fp := *t.FeePayer
		c.FeePayer = &fp
	}
	c.AccountKeys = slices.Clone(t.AccountKeys)
	c.Signatures = slices.Clone(t.Signatures)
	c.Message = slices.Clone(t.Message)
	if t.SubmissionSignature != nil {
		sig := *t.SubmissionSignature
		c.SubmissionSignature = &sig
	}
	if t.Outcome != nil {
		o := *t.Outcome
		c.Outcome = &o
	}
	return &c
}

// RequiredSigners returns the signer accounts in slot order.
func (t *Transaction) RequiredSigners() []Account {
	n := int(t.Header.RequiredSignatures)
	if n > len(t.AccountKeys) {
		n = len(t.AccountKeys)
	}
	return t.AccountKeys[:n]
}

// SlotOf returns the signature slot index assigned to account.
func (t *Transaction) SlotOf(account Account) (int, bool) {
	for i, signer := range t.RequiredSigners() {
		if signer == account {
			return i, true
		}
	}
	return -1, false
}

// SignaturesPresent counts the filled signature slots.
func (t *Transaction) SignaturesPresent() int {
	n := 0
	for _, sig := range t.Signatures {
		if !sig.IsZero() {
			n++
		}
	}
	return n
}

// IsFullySigned reports whether every required slot holds a signature.
func (t *Transaction) IsFullySigned() bool {
	return len(t.Signatures) > 0 &&
		len(t.Signatures) == int(t.Header.RequiredSignatures) &&
		t.SignaturesPresent() == len(t.Signatures)
}

// LedgerSignature is the identifier the ledger assigns: the fee payer's signature.
func (t *Transaction) LedgerSignature() (Signature, bool) {
	if len(t.Signatures) == 0 || t.Signatures[0].IsZero() {
		return Signature{}, false
	}
	return t.Signatures[0], true
}

// MaxProcessingAge is how many blocks past its reference a transaction stays valid.
const MaxProcessingAge = 150

// Reference is a fresh expiry reference with the last block height it is valid for.
type Reference struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"last_valid_block_height"`
}
