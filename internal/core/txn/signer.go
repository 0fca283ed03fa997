package txn

import (
	"github.com/vietddude/txgate/internal/core/domain"
)

// Credential signs message bytes on behalf of one account.
type Credential interface {
	PublicKey() domain.Account
	Sign(message []byte) (domain.Signature, error)
}

// SignResult reports what a signing call did.
type SignResult struct {
	Transaction *domain.Transaction
	// Applied counts credentials that matched a required signer slot.
	Applied int
	// Ignored counts credentials that matched no slot.
	Ignored int
	// Total is the number of required signer slots.
	Total int
	// Present is the number of filled slots after signing.
	Present int
}

// Signer applies credentials to compiled transactions.
type Signer struct {
	enc Encoder
}

// NewSigner creates a signer that checks message bytes with enc before signing them.
func NewSigner(enc Encoder) *Signer {
	return &Signer{enc: enc}
}

// Sign applies every matching credential to its fixed slot. Signing the same slot again overwrites it.
// Credentials that match no slot are counted, not rejected.
func (s *Signer) Sign(tx *domain.Transaction, creds []Credential) (SignResult, error) {
	const op = "sign"
	if tx == nil {
		return SignResult{}, domain.InvalidArgument(op, "transaction", "is required")
	}
	if err := OperationAllowed(tx.State, OpSign); err != nil {
		return SignResult{}, err
	}
	if len(creds) == 0 {
		return SignResult{}, domain.InvalidArgument(op, "credentials", "at least one credential is required")
	}
	if err := CheckCompiled(tx, OpSign, s.enc); err != nil {
		return SignResult{}, err
	}

	out := tx.Clone()
	res := SignResult{Transaction: out, Total: len(out.Signatures)}
	for i, cred := range creds {
		slot, ok := out.SlotOf(cred.PublicKey())
		if !ok {
			res.Ignored++
			continue
		}
		sig, err := cred.Sign(out.Message)
		if err != nil {
			return SignResult{}, domain.InvalidArgument(op, "credentials", "credential %d: %v", i, err)
		}
		out.Signatures[slot] = sig
		res.Applied++
	}

	res.Present = out.SignaturesPresent()
	switch {
	case out.IsFullySigned():
		if err := Transition(out, domain.StateFullySigned); err != nil {
			return SignResult{}, err
		}
	case res.Present > 0:
		if err := Transition(out, domain.StatePartiallySigned); err != nil {
			return SignResult{}, err
		}
	}
	return res, nil
}
