// Command sentinel-bridge runs the policy-gated execution bridge as a
// long-lived HTTP server: validate Intent -> enrich -> decide -> sign ->
// persist -> respond, with a fail-closed verifier and replay harness
// exposed alongside it.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/redis/go-redis/v9"

	"github.com/aureus-sentinel/bridge/audit"
	"github.com/aureus-sentinel/bridge/breaker"
	"github.com/aureus-sentinel/bridge/bridge"
	"github.com/aureus-sentinel/bridge/config"
	"github.com/aureus-sentinel/bridge/decision"
	"github.com/aureus-sentinel/bridge/eventstore"
	"github.com/aureus-sentinel/bridge/fault"
	"github.com/aureus-sentinel/bridge/internal/clock"
	"github.com/aureus-sentinel/bridge/internal/obslog"
	"github.com/aureus-sentinel/bridge/memory"
	"github.com/aureus-sentinel/bridge/policy"
	"github.com/aureus-sentinel/bridge/replay"
	"github.com/aureus-sentinel/bridge/schema"
	"github.com/aureus-sentinel/bridge/signer"
)

// Version is provided at compile time via -ldflags.
var Version = "dev"

// Exit codes per the external interface contract: 0 ok; 2 config error;
// 3 signer init failed; 4 audit chain broken at startup.
const (
	exitOK               = 0
	exitConfigError      = 2
	exitSignerInitFailed = 3
	exitAuditChainBroken = 4
)

func main() {
	app := kingpin.New("sentinel-bridge", "Policy-gated execution bridge for autonomous tool use")
	app.Version(Version)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentinel-bridge: config error: %v\n", err)
		return exitConfigError
	}

	ctx := context.Background()
	c := clock.Real{}
	log := obslog.New(os.Stdout, c, nil)

	faults := fault.New()
	faults.Enable(cfg.FaultInjectionEnabled)

	signerBackend, err := buildSigner(ctx, cfg, faults)
	if err != nil {
		log.Error("signer init failed", obslog.Fields{"error": err.Error()})
		return exitSignerInitFailed
	}

	trustedKeys, err := decodeTrustedKeys(cfg.TrustedPublicKeys)
	if err != nil {
		log.Error("config error", obslog.Fields{"error": err.Error()})
		return exitConfigError
	}
	trustedKeys[signerBackend.KeyID()] = ed25519.PublicKey(signerBackend.PublicKey())
	sigVerifier := signer.NewVerifier(trustedKeys)

	auditStore, err := buildAuditStore(ctx, cfg)
	if err != nil {
		log.Error("config error", obslog.Fields{"error": err.Error()})
		return exitConfigError
	}
	auditChain := audit.New(auditStore, c)
	faults.WithAudit(auditChain)
	if result, err := auditChain.Verify(ctx); err != nil || !result.OK {
		log.Error("audit chain broken at startup", obslog.Fields{"error": errString(err), "ok": result.OK})
		return exitAuditChainBroken
	}

	events, err := buildEventStore(cfg, c)
	if err != nil {
		log.Error("config error", obslog.Fields{"error": err.Error()})
		return exitConfigError
	}

	polLoader, policySource, err := buildPolicyLoader(ctx, cfg)
	if err != nil {
		log.Error("config error", obslog.Fields{"error": err.Error()})
		return exitConfigError
	}
	pol := policy.NewCachedLoader(polLoader, policySource, cfg.PolicyReloadInterval)
	pol.OnGeneration(replay.RecordGeneration(events))
	if _, _, _, err := pol.Current(ctx); err != nil {
		log.Error("config error", obslog.Fields{"error": err.Error()})
		return exitConfigError
	}

	store := memory.NewInMemoryStore()
	var cache memory.Cache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cache = memory.NewRedisCache(newRedisClient(addr), "sentinel-bridge:profile:")
	}
	profiler := memory.NewProfiler(store, cache)

	engine := decision.NewEngine(c, decision.TTL{
		Low:    cfg.PlanTTLLow,
		Medium: cfg.PlanTTLMedium,
		High:   cfg.PlanTTLHigh,
	})

	schemas := schema.NewRegistry()
	if err := schema.LoadBuiltins(schemas); err != nil {
		log.Error("config error", obslog.Fields{"error": err.Error()})
		return exitConfigError
	}

	srv := bridge.New(schemas, pol, profiler, engine, signerBackend, sigVerifier, auditChain, auditStore, events, c, log, cfg.AuthToken, cfg.ApproverToken)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		log.Error("config error", obslog.Fields{"error": err.Error()})
		return exitConfigError
	}
	httpServer := &http.Server{Handler: srv.Router()}
	log.Info("sentinel-bridge listening", obslog.Fields{"addr": listener.Addr().String()})
	if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		log.Error("server exited", obslog.Fields{"error": err.Error()})
	}
	return exitOK
}

func newRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// buildSigner selects the local or KMS signer backend per
// config.Runtime.SignerBackend, wiring the fault injector into the KMS
// seam when fault injection is enabled.
func buildSigner(ctx context.Context, cfg config.Runtime, faults *fault.Injector) (signer.Signer, error) {
	switch cfg.SignerBackend {
	case config.SignerBackendKMS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KMSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		cb := breaker.New(breaker.Settings{
			Name:                     "kms-sign",
			FailureThreshold:         5,
			VolumeThreshold:          10,
			ErrorThresholdPercentage: 50,
			OpenTimeout:              30 * time.Second,
			SuccessThreshold:         2,
			RequestTimeout:           5 * time.Second,
		})
		k, err := signer.NewKMS(ctx, kms.NewFromConfig(awsCfg), cfg.KMSKeyID, cb)
		if err != nil {
			return nil, err
		}
		return k.WithFaults(faults), nil
	default:
		l, err := signer.NewLocal(cfg.SignerPrivateKey, "local-1", cfg.SignerDevMode)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

func decodeTrustedKeys(raw map[string]string) (map[string]ed25519.PublicKey, error) {
	keys := make(map[string]ed25519.PublicKey, len(raw))
	for keyID, b64 := range raw {
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("trusted key %q: %w", keyID, err)
		}
		if len(decoded) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("trusted key %q: wrong size %d, want %d", keyID, len(decoded), ed25519.PublicKeySize)
		}
		keys[keyID] = ed25519.PublicKey(decoded)
	}
	return keys, nil
}

// buildAuditStore selects the file-backed or DynamoDB-backed audit Store
// per whether AuditDynamoTable is configured.
func buildAuditStore(ctx context.Context, cfg config.Runtime) (audit.Store, error) {
	if cfg.AuditDynamoTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return audit.NewDynamoDBStore(awsCfg, cfg.AuditDynamoTable, "sentinel-bridge"), nil
	}
	return audit.OpenFileStore(cfg.AuditDir)
}

// buildEventStore selects the Postgres-backed or in-memory event Store
// per whether EventStoreDSN is configured.
func buildEventStore(cfg config.Runtime, c clock.Clock) (eventstore.Store, error) {
	if cfg.EventStoreDSN != "" {
		return eventstore.OpenPostgresStore(cfg.EventStoreDSN)
	}
	return eventstore.NewMemoryStore(c), nil
}

// buildPolicyLoader selects the file-backed or SSM-backed policy.Loader
// per PolicyFromFile, returning the loader paired with the source string
// CachedLoader.Current will pass to it.
func buildPolicyLoader(ctx context.Context, cfg config.Runtime) (policy.Loader, string, error) {
	if cfg.PolicyFromFile {
		return policy.NewFileLoader(os.ReadFile), cfg.PolicySource, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("load aws config: %w", err)
	}
	return policy.NewSSMLoader(awsCfg), cfg.PolicySource, nil
}
