package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/aureus-sentinel/bridge/breaker"
	"github.com/aureus-sentinel/bridge/fault"
	sentinelTypes "github.com/aureus-sentinel/bridge/types"
)

// FaultSeamSign is the fault-injector seam name for KMS signing calls.
const FaultSeamSign = "kms.sign"

// KMSAPI is the subset of the AWS KMS client used by KMS. Interface seam
// for testing with a mock implementation.
type KMSAPI interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// SigningAlgorithm is the KMS asymmetric signing algorithm used for
// ed25519 approval signatures.
const SigningAlgorithm = types.SigningAlgorithmSpecEddsaEd25519

// KMS signs approvals via a remote key-management service: the local
// process only ever holds the public key. Calls are wrapped by a circuit
// breaker so a struggling KMS endpoint fails fast instead of stalling
// every request that needs an approval signed.
type KMS struct {
	client  KMSAPI
	keyID   string
	breaker *breaker.Breaker
	pub     []byte
	faults  *fault.Injector
}

// NewKMS constructs a KMS signer bound to keyID (a KMS key ID, ARN, or
// alias), fetching and caching the public key up front so verification
// never needs a network round trip.
func NewKMS(ctx context.Context, client KMSAPI, keyID string, cb *breaker.Breaker) (*KMS, error) {
	k := &KMS{client: client, keyID: keyID, breaker: cb}
	pub, err := k.fetchPublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("signer: kms fetch public key: %w", err)
	}
	k.pub = pub
	return k, nil
}

// WithFaults wires a fault.Injector into the KMS Sign seam for chaos
// testing. A nil Injector (the default) makes this a no-op.
func (k *KMS) WithFaults(inj *fault.Injector) *KMS {
	k.faults = inj
	return k
}

func (k *KMS) fetchPublicKey(ctx context.Context) ([]byte, error) {
	out, err := k.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(k.keyID)})
	if err != nil {
		return nil, err
	}
	return extractRawEd25519PublicKey(out.PublicKey)
}

// Sign delegates to KMS, which returns a detached signature over the raw
// message bytes; the circuit breaker isolates callers from a failing KMS.
func (k *KMS) Sign(ctx context.Context, approval sentinelTypes.Approval) ([]byte, error) {
	msg, err := CanonicalMessage(approval)
	if err != nil {
		return nil, fmt.Errorf("signer: canonicalize approval: %w", err)
	}

	result, err := breaker.Execute(ctx, k.breaker, func(ctx context.Context) (*kms.SignOutput, error) {
		return fault.Execute(ctx, k.faults, FaultSeamSign, func(ctx context.Context) (*kms.SignOutput, error) {
			return k.client.Sign(ctx, &kms.SignInput{
				KeyId:            aws.String(k.keyID),
				Message:          msg,
				MessageType:      types.MessageTypeRaw,
				SigningAlgorithm: SigningAlgorithm,
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("signer: kms sign: %w", err)
	}
	return result.Signature, nil
}

// Verify is implemented locally against the cached public key: KMS
// verification round trips are unnecessary for ed25519 once the public
// key is known, and keeping verify local avoids a breaker-gated network
// call on the hot read path.
func (k *KMS) Verify(ctx context.Context, approval sentinelTypes.Approval, signature []byte) (bool, error) {
	msg, err := CanonicalMessage(approval)
	if err != nil {
		return false, fmt.Errorf("signer: canonicalize approval: %w", err)
	}
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(ed25519.PublicKey(k.pub), msg, signature), nil
}

// PublicKey returns the raw ed25519 public key bytes cached at
// construction time.
func (k *KMS) PublicKey() []byte { return k.pub }

// KeyID returns the configured KMS key identifier.
func (k *KMS) KeyID() string { return k.keyID }

// extractRawEd25519PublicKey unwraps the DER-encoded SubjectPublicKeyInfo
// that KMS's GetPublicKey returns into the 32 raw bytes ed25519 expects.
func extractRawEd25519PublicKey(derSPKI []byte) ([]byte, error) {
	pub, err := x509.ParsePKIXPublicKey(derSPKI)
	if err != nil {
		return nil, fmt.Errorf("parse SubjectPublicKeyInfo: %w", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("kms key is not an ed25519 public key")
	}
	return []byte(edPub), nil
}
