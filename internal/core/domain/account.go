package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	// PublicKeySize is the byte length of an account identifier.
	PublicKeySize = 32
	// SignatureSize is the byte length of an ed25519 signature.
	SignatureSize = 64
)

// Account identifies a ledger account or program (an ed25519 public key).
type Account [PublicKeySize]byte

// ParseAccount decodes a base58 account identifier.
func ParseAccount(s string) (Account, error) {
	var a Account
	raw, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("decode account %q: %w", s, err)
	}
	if len(raw) != PublicKeySize {
		return a, fmt.Errorf("account %q has %d bytes, want %d", s, len(raw), PublicKeySize)
	}
	copy(a[:], raw)
	return a, nil
}

// MustAccount is ParseAccount for constants; it panics on malformed input.
func MustAccount(s string) Account {
	a, err := ParseAccount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Account) String() string {
	return base58.Encode(a[:])
}

func (a Account) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Account) UnmarshalText(text []byte) error {
	parsed, err := ParseAccount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Signature is a transaction signature. The zero value is an empty signer slot.
type Signature [SignatureSize]byte

// ParseSignature decodes a base58 signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	raw, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != SignatureSize {
		return sig, fmt.Errorf("signature has %d bytes, want %d", len(raw), SignatureSize)
	}
	copy(sig[:], raw)
	return sig, nil
}

// IsZero reports whether the slot is still unsigned.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

func (s Signature) String() string {
	if s.IsZero() {
		return ""
	}
	return base58.Encode(s[:])
}

func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Signature) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = Signature{}
		return nil
	}
	parsed, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
