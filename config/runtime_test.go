package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearSignerEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"USE_KMS", "KMS_KEY_ID", "KMS_REGION", "SIGNER_PRIVATE_KEY", "SIGNER_PUBLIC_KEY", "SIGNER_DEV_MODE", "PORT", "ALLOW_CLOCK_SKEW_SEC", "TRUSTED_PUBLIC_KEYS"} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsAndDevMode(t *testing.T) {
	clearSignerEnv(t)
	t.Setenv("SIGNER_DEV_MODE", "true")

	r, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SignerBackendLocal, r.SignerBackend)
	assert.Equal(t, 30*time.Second, r.AllowClockSkew)
	assert.Equal(t, 8080, r.Port)
}

func TestLoad_LocalBackendRequiresPrivateKeyOutsideDevMode(t *testing.T) {
	clearSignerEnv(t)
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_KMSBackendRequiresKeyID(t *testing.T) {
	clearSignerEnv(t)
	t.Setenv("USE_KMS", "true")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_KMSBackendOK(t *testing.T) {
	clearSignerEnv(t)
	t.Setenv("USE_KMS", "true")
	t.Setenv("KMS_KEY_ID", "arn:aws:kms:us-east-1:111122223333:key/abc")
	r, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SignerBackendKMS, r.SignerBackend)
}

func TestLoad_TrustedPublicKeysParsing(t *testing.T) {
	clearSignerEnv(t)
	t.Setenv("SIGNER_DEV_MODE", "true")
	t.Setenv("TRUSTED_PUBLIC_KEYS", "key-a=AAAA,key-b=BBBB")

	r, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "AAAA", r.TrustedPublicKeys["key-a"])
	assert.Equal(t, "BBBB", r.TrustedPublicKeys["key-b"])
}

func TestLoad_MalformedTrustedPublicKeys(t *testing.T) {
	clearSignerEnv(t)
	t.Setenv("SIGNER_DEV_MODE", "true")
	t.Setenv("TRUSTED_PUBLIC_KEYS", "not-a-pair")

	_, err := Load()
	assert.Error(t, err)
}
