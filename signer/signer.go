// Package signer signs and verifies Approvals. The functional core is
// stateless: sign(bytes, key) -> sig. Two backends implement Signer: Local
// holds an ed25519 private key in memory; KMS never holds it at all and
// delegates to a remote key-management service wrapped by a circuit
// breaker. Private key material never leaves this package.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/aureus-sentinel/bridge/canon"
	"github.com/aureus-sentinel/bridge/types"
)

// Signer is implemented by both backends. verify is constant-time on the
// signature comparison and fails closed on any error: missing key,
// malformed signature, or canonicalization failure all return false.
type Signer interface {
	Sign(ctx context.Context, approval types.Approval) (signature []byte, err error)
	Verify(ctx context.Context, approval types.Approval, signature []byte) (bool, error)
	PublicKey() []byte
	KeyID() string
}

// ErrNoTrustedKey is returned by a Verifier when the approval's keyId is
// not present in the trusted-key set.
var ErrNoTrustedKey = errors.New("signer: no trusted key for keyId")

// CanonicalMessage returns the exact bytes signed and verified for an
// approval: the canonical serialization of the approval with its
// Signature field cleared.
func CanonicalMessage(approval types.Approval) ([]byte, error) {
	return canon.Marshal(approval.WithoutSignature())
}

// Verifier holds the trusted public keys used to verify approvals signed
// by any backend, keyed by keyId. Key rotation is supported by adding a
// new keyId without removing old ones until every outstanding approval
// signed under them has expired.
type Verifier struct {
	trustedKeys map[string]ed25519.PublicKey
}

// NewVerifier builds a Verifier from a keyId -> raw ed25519 public key
// map, matching the TRUSTED_PUBLIC_KEYS configuration format.
func NewVerifier(trustedKeys map[string]ed25519.PublicKey) *Verifier {
	cp := make(map[string]ed25519.PublicKey, len(trustedKeys))
	for k, v := range trustedKeys {
		cp[k] = v
	}
	return &Verifier{trustedKeys: cp}
}

// Verify checks signature against approval's canonical bytes using the
// public key registered for approval.KeyID. Fails closed: any error
// (unknown key, bad canonicalization, short/invalid signature) is (false,
// error-or-nil) but never panics and never treats an error as success.
func (v *Verifier) Verify(approval types.Approval, signature []byte) (bool, error) {
	pub, ok := v.trustedKeys[approval.KeyID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoTrustedKey, approval.KeyID)
	}
	msg, err := CanonicalMessage(approval)
	if err != nil {
		return false, fmt.Errorf("signer: canonicalize approval: %w", err)
	}
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	ok = ed25519.Verify(pub, msg, signature)
	return ok, nil
}

// ConstantTimeEqual compares two byte strings without leaking their
// contents through comparison timing. bridge.lookupIdempotent uses it to
// compare a stored request-body hash against a freshly submitted one
// when an intentId is replayed: an ordinary == would let a caller probe
// the stored hash one byte at a time via response timing.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
