package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/aureus-sentinel/bridge/types"
)

// Local is the in-process ed25519 backend. The private key is loaded once
// at startup from an environment-provided secret (SIGNER_PRIVATE_KEY,
// base64) and held only in memory for the lifetime of the process.
type Local struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewLocal constructs a Local signer from a base64-encoded ed25519
// private key and its keyId. devMode permits an ephemeral key to be
// generated instead when privateKeyB64 is empty; outside devMode an
// empty key is a config error.
func NewLocal(privateKeyB64, keyID string, devMode bool) (*Local, error) {
	if privateKeyB64 == "" {
		if !devMode {
			return nil, fmt.Errorf("signer: SIGNER_PRIVATE_KEY is required outside development mode")
		}
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, fmt.Errorf("signer: generate ephemeral key: %w", err)
		}
		return &Local{priv: priv, pub: pub, keyID: keyID}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(privateKeyB64)
	if err != nil {
		return nil, fmt.Errorf("signer: decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signer: private key has wrong size %d, want %d", len(raw), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(raw)
	return &Local{priv: priv, pub: priv.Public().(ed25519.PublicKey), keyID: keyID}, nil
}

// NewLocalFromEnv reads SIGNER_PRIVATE_KEY from the environment and
// passes it to NewLocal with the given keyID and devMode.
func NewLocalFromEnv(keyID string, devMode bool) (*Local, error) {
	return NewLocal(os.Getenv("SIGNER_PRIVATE_KEY"), keyID, devMode)
}

// Sign signs the canonical bytes of approval (with Signature cleared).
func (l *Local) Sign(ctx context.Context, approval types.Approval) ([]byte, error) {
	msg, err := CanonicalMessage(approval)
	if err != nil {
		return nil, fmt.Errorf("signer: canonicalize approval: %w", err)
	}
	return ed25519.Sign(l.priv, msg), nil
}

// Verify checks signature against approval using this backend's own
// public key. Fails closed on canonicalization or size errors.
func (l *Local) Verify(ctx context.Context, approval types.Approval, signature []byte) (bool, error) {
	msg, err := CanonicalMessage(approval)
	if err != nil {
		return false, fmt.Errorf("signer: canonicalize approval: %w", err)
	}
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(l.pub, msg, signature), nil
}

// PublicKey returns the raw ed25519 public key bytes.
func (l *Local) PublicKey() []byte { return []byte(l.pub) }

// KeyID returns the configured key identifier embedded in approvals
// signed by this backend.
func (l *Local) KeyID() string { return l.keyID }
