// Package keys provides ed25519 signing credentials.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/vietddude/txgate/internal/core/domain"
)

// Credential signs with an ed25519 private key.
type Credential struct {
	priv ed25519.PrivateKey
	pub  domain.Account
}

// NewCredential wraps an ed25519 private key.
func NewCredential(priv ed25519.PrivateKey) (*Credential, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key has %d bytes, want %d", len(priv), ed25519.PrivateKeySize)
	}
	c := &Credential{priv: priv}
	copy(c.pub[:], priv.Public().(ed25519.PublicKey))
	return c, nil
}

// Parse decodes a base58 secret: either a 64 byte keypair or a 32 byte seed.
func Parse(secret string) (*Credential, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return NewCredential(ed25519.NewKeyFromSeed(raw))
	case ed25519.PrivateKeySize:
		c, err := NewCredential(ed25519.PrivateKey(raw))
		if err != nil {
			return nil, err
		}
		// Reject keypairs whose public half does not belong to the seed.
		if expected := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]); !expected.Equal(c.priv) {
			return nil, fmt.Errorf("keypair public key does not match its seed")
		}
		return c, nil
	}
	return nil, fmt.Errorf("secret has %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
}

// Generate creates a random credential.
func Generate() (*Credential, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewCredential(priv)
}

// PublicKey returns the account the credential signs for.
func (c *Credential) PublicKey() domain.Account {
	return c.pub
}

// Sign signs message.
func (c *Credential) Sign(message []byte) (domain.Signature, error) {
	var sig domain.Signature
	copy(sig[:], ed25519.Sign(c.priv, message))
	return sig, nil
}

// Secret returns the base58 keypair encoding accepted by Parse.
func (c *Credential) Secret() string {
	return base58.Encode(c.priv)
}

// Verify reports whether sig is account's signature over message.
func Verify(account domain.Account, message []byte, sig domain.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(account[:]), message, sig[:])
}
