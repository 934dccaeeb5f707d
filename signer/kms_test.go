package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aureus-sentinel/bridge/breaker"
	"github.com/aureus-sentinel/bridge/fault"
	"github.com/aureus-sentinel/bridge/types"
)

type fakeKMSClient struct {
	pub        ed25519.PublicKey
	signFunc   func(ctx context.Context, params *kms.SignInput) (*kms.SignOutput, error)
	signCalls  int
}

func (f *fakeKMSClient) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	der, err := x509.MarshalPKIXPublicKey(f.pub)
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{PublicKey: der}, nil
}

func (f *fakeKMSClient) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	f.signCalls++
	if f.signFunc != nil {
		return f.signFunc(ctx, params)
	}
	return nil, errors.New("sign not configured")
}

func newTestBreaker() *breaker.Breaker {
	return breaker.New(breaker.Settings{
		Name:                     "test",
		FailureThreshold:         100,
		VolumeThreshold:          100,
		ErrorThresholdPercentage: 100,
	})
}

func TestKMS_SignDelegatesToClient(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	client := &fakeKMSClient{
		pub: pub,
		signFunc: func(ctx context.Context, params *kms.SignInput) (*kms.SignOutput, error) {
			return &kms.SignOutput{Signature: ed25519.Sign(priv, params.Message)}, nil
		},
	}

	k, err := NewKMS(context.Background(), client, "test-key", newTestBreaker())
	require.NoError(t, err)
	assert.Equal(t, []byte(pub), k.PublicKey())
	assert.Equal(t, "test-key", k.KeyID())

	approval := types.Approval{Version: "1.0", Type: "approval", ApprovalID: "a1", PlanID: "p1"}
	sig, err := k.Sign(context.Background(), approval)
	require.NoError(t, err)

	ok, err := k.Verify(context.Background(), approval, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKMS_SignPropagatesClientError(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	client := &fakeKMSClient{pub: pub, signFunc: func(ctx context.Context, params *kms.SignInput) (*kms.SignOutput, error) {
		return nil, errors.New("kms unavailable")
	}}

	k, err := NewKMS(context.Background(), client, "test-key", newTestBreaker())
	require.NoError(t, err)

	_, err = k.Sign(context.Background(), types.Approval{ApprovalID: "a1"})
	assert.Error(t, err)
}

func TestKMS_SignHonorsFaultInjection(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	client := &fakeKMSClient{pub: pub, signFunc: func(ctx context.Context, params *kms.SignInput) (*kms.SignOutput, error) {
		return &kms.SignOutput{Signature: ed25519.Sign(priv, params.Message)}, nil
	}}

	k, err := NewKMS(context.Background(), client, "test-key", newTestBreaker())
	require.NoError(t, err)

	inj := fault.New()
	inj.Enable(true)
	inj.SetRules(FaultSeamSign, []fault.Rule{{Seam: FaultSeamSign, Type: fault.ToolFailure, Probability: 1}})
	k.WithFaults(inj)

	_, err = k.Sign(context.Background(), types.Approval{ApprovalID: "a1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrInjected)
	assert.Equal(t, 0, client.signCalls, "the underlying KMS call must never run when the fault short-circuits it")
}

func TestKMS_VerifyRejectsWrongSizeSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	client := &fakeKMSClient{pub: pub}

	k, err := NewKMS(context.Background(), client, "test-key", newTestBreaker())
	require.NoError(t, err)

	ok, err := k.Verify(context.Background(), types.Approval{ApprovalID: "a1"}, []byte("short"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewKMS_FetchPublicKeyErrorFailsConstruction(t *testing.T) {
	_, err := NewKMS(context.Background(), &erroringKMSClient{}, "test-key", newTestBreaker())
	assert.Error(t, err)
}

type erroringKMSClient struct{}

func (e *erroringKMSClient) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	return nil, errors.New("access denied")
}

func (e *erroringKMSClient) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	return nil, errors.New("not reached")
}
