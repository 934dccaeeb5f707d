package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SignerBackend selects which Signer implementation the bridge
// constructs at startup.
type SignerBackend string

const (
	SignerBackendLocal SignerBackend = "local"
	SignerBackendKMS   SignerBackend = "kms"
)

// Runtime is the bridge's process configuration, populated entirely from
// environment variables. No field has a hidden default that silently
// changes trust boundaries; ambiguous or missing required values are
// reported by Load, never guessed.
type Runtime struct {
	Port int

	SignerBackend    SignerBackend
	SignerPrivateKey string // base64, local backend only
	SignerPublicKey  string // base64, local backend only
	SignerDevMode    bool

	KMSKeyID string
	KMSRegion string

	AllowClockSkew time.Duration

	PlanTTLLow    time.Duration
	PlanTTLMedium time.Duration
	PlanTTLHigh   time.Duration

	AuditDir      string // JSON-lines audit log; used unless AuditDynamoTable is set
	AuditDynamoTable string
	EventStoreDSN string // postgres DSN; empty falls back to an in-memory event store

	PolicySource string // SSM parameter name, or a file path under PolicyFromFile
	PolicyFromFile bool
	PolicyReloadInterval time.Duration

	AuthToken string
	// ApproverToken authenticates the human-approval-grant channel
	// (POST /approvals/grant). It is deliberately a separate credential
	// from AuthToken: the ingress channel that submits Intents must never
	// be able to also grant human approval for them.
	ApproverToken string

	FaultInjectionEnabled bool

	TrustedPublicKeys map[string]string // keyId -> base64 public key
}

// Load reads the bridge's runtime configuration from the environment.
// Values absent from the environment fall back to the literal defaults
// named in the external interface spec (ALLOW_CLOCK_SKEW_SEC=30 and so
// on); anything that fails to parse, or a required combination that is
// missing (USE_KMS=true without KMS_KEY_ID), is an error.
func Load() (Runtime, error) {
	r := Runtime{
		Port:                  envInt("PORT", 8080),
		AllowClockSkew:        envSeconds("ALLOW_CLOCK_SKEW_SEC", 30),
		PlanTTLLow:            envSeconds("PLAN_TTL_LOW", 3600),
		PlanTTLMedium:         envSeconds("PLAN_TTL_MEDIUM", 900),
		PlanTTLHigh:           envSeconds("PLAN_TTL_HIGH", 300),
		AuditDir:              envString("AUDIT_DIR", "./data/audit/log.jsonl"),
		AuditDynamoTable:      os.Getenv("AUDIT_DYNAMODB_TABLE"),
		EventStoreDSN:         os.Getenv("EVENT_STORE_DSN"),
		PolicySource:          envString("POLICY_SOURCE", "./data/policy/registry.yaml"),
		PolicyFromFile:        envBool("POLICY_FROM_FILE", true),
		PolicyReloadInterval:  envSeconds("POLICY_RELOAD_INTERVAL_SEC", 60),
		AuthToken:             os.Getenv("AUTH_TOKEN"),
		ApproverToken:         os.Getenv("APPROVER_TOKEN"),
		FaultInjectionEnabled: envBool("FAULT_INJECTION_ENABLED", false),
		SignerDevMode:         envBool("SIGNER_DEV_MODE", false),
	}

	for _, name := range []string{"PORT", "ALLOW_CLOCK_SKEW_SEC", "PLAN_TTL_LOW", "PLAN_TTL_MEDIUM", "PLAN_TTL_HIGH", "POLICY_RELOAD_INTERVAL_SEC"} {
		if v := os.Getenv(name); v != "" {
			if _, err := strconv.Atoi(v); err != nil {
				return Runtime{}, fmt.Errorf("config: %s=%q is not an integer", name, v)
			}
		}
	}
	for _, name := range []string{"POLICY_FROM_FILE", "FAULT_INJECTION_ENABLED", "SIGNER_DEV_MODE", "USE_KMS"} {
		if v := os.Getenv(name); v != "" {
			if _, err := strconv.ParseBool(v); err != nil {
				return Runtime{}, fmt.Errorf("config: %s=%q is not a boolean", name, v)
			}
		}
	}

	if envBool("USE_KMS", false) {
		r.SignerBackend = SignerBackendKMS
		r.KMSKeyID = os.Getenv("KMS_KEY_ID")
		r.KMSRegion = os.Getenv("KMS_REGION")
		if r.KMSKeyID == "" {
			return Runtime{}, fmt.Errorf("config: USE_KMS=true requires KMS_KEY_ID")
		}
	} else {
		r.SignerBackend = SignerBackendLocal
		r.SignerPrivateKey = os.Getenv("SIGNER_PRIVATE_KEY")
		r.SignerPublicKey = os.Getenv("SIGNER_PUBLIC_KEY")
		if r.SignerPrivateKey == "" && !r.SignerDevMode {
			return Runtime{}, fmt.Errorf("config: SIGNER_PRIVATE_KEY is required unless SIGNER_DEV_MODE=true")
		}
	}

	keys, err := parseTrustedKeys(os.Getenv("TRUSTED_PUBLIC_KEYS"))
	if err != nil {
		return Runtime{}, err
	}
	r.TrustedPublicKeys = keys

	return r, nil
}

func parseTrustedKeys(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return keys, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("config: malformed TRUSTED_PUBLIC_KEYS entry %q, want keyId=base64", entry)
		}
		keys[parts[0]] = parts[1]
	}
	return keys, nil
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envSeconds(name string, defSeconds int) time.Duration {
	return time.Duration(envInt(name, defSeconds)) * time.Second
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
