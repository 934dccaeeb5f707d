// Package bridge implements the HTTP core: the edge that authenticates
// callers, validates submitted Intents, runs the Decision Engine, signs
// and persists Approvals, and exposes read-only audit export. It owns no
// domain logic of its own beyond request orchestration and the
// durability-before-response boundary described in the Concurrency &
// Resource Model.
package bridge

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aureus-sentinel/bridge/audit"
	"github.com/aureus-sentinel/bridge/decision"
	"github.com/aureus-sentinel/bridge/eventstore"
	"github.com/aureus-sentinel/bridge/internal/clock"
	"github.com/aureus-sentinel/bridge/internal/obslog"
	"github.com/aureus-sentinel/bridge/memory"
	"github.com/aureus-sentinel/bridge/policy"
	"github.com/aureus-sentinel/bridge/replay"
	"github.com/aureus-sentinel/bridge/schema"
	"github.com/aureus-sentinel/bridge/signer"
	"github.com/aureus-sentinel/bridge/verifier"
)

// historyWindow bounds how far back the risk profiler looks when
// enriching an Intent's ContextSnapshot.
const historyWindow = 24 * time.Hour

// Server wires every Sentinel component behind the HTTP surface. All
// fields are set once at construction and treated as read-only
// thereafter; concurrency safety for request handling is delegated to
// the fields themselves (Engine is stateless, Chain is single-writer,
// Store implementations are safe for concurrent use).
type Server struct {
	Schemas     *schema.Registry
	Policy      *policy.CachedLoader
	Profiler    *memory.Profiler
	Engine      *decision.Engine
	Signer      signer.Signer
	SigVerifier *signer.Verifier
	AuditChain  *audit.Chain
	AuditStore  audit.Store
	Events      eventstore.Store
	Clock       clock.Clock
	Log         *obslog.Logger
	AuthToken   string
	// ApproverToken gates POST /approvals/grant, the only path that can
	// set HumanApproved=true on an Approval. It is intentionally distinct
	// from AuthToken so the same credential that submits Intents can
	// never also self-attest human approval for them.
	ApproverToken string

	idempotency *keyedMutex
}

// New constructs a Server. AuthToken, if non-empty, is required as a
// bearer token on every route except GET /health (unauthenticated) and
// POST /approvals/grant (ApproverToken); an empty AuthToken disables the check,
// which is only appropriate behind a trusted network boundary.
// ApproverToken, if non-empty, is required as a bearer token on the
// human-approval-grant endpoint; an empty ApproverToken disables that
// route's auth check under the same trusted-network-boundary caveat.
func New(
	schemas *schema.Registry,
	pol *policy.CachedLoader,
	profiler *memory.Profiler,
	engine *decision.Engine,
	sign signer.Signer,
	sigVerifier *signer.Verifier,
	auditChain *audit.Chain,
	auditStore audit.Store,
	events eventstore.Store,
	c clock.Clock,
	log *obslog.Logger,
	authToken string,
	approverToken string,
) *Server {
	if c == nil {
		c = clock.Real{}
	}
	return &Server{
		Schemas:       schemas,
		Policy:        pol,
		Profiler:      profiler,
		Engine:        engine,
		Signer:        sign,
		SigVerifier:   sigVerifier,
		AuditChain:    auditChain,
		AuditStore:    auditStore,
		Events:        events,
		Clock:         c,
		Log:           log,
		AuthToken:     authToken,
		ApproverToken: approverToken,
		idempotency:   newKeyedMutex(),
	}
}

// Router builds the chi router exposing the Bridge's HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.Log))

	r.Get("/health", s.handleHealth)
	r.Get("/audit", s.withAuth(s.handleAuditExport))
	r.Post("/intents", s.withAuth(s.handleIntent))
	r.Post("/verify", s.withAuth(s.handleVerify))
	r.Get("/replay/{intentId}", s.withAuth(s.handleReplay))
	r.Post("/approvals/grant", s.withApproverAuth(s.handleGrantApproval))

	return r
}

// ExecutorFor adapts this Server's components into a verifier.Verifier
// bound to the current policy snapshot, for callers that run the
// Executor Verifier in-process rather than as a separate component.
func (s *Server) ExecutorFor(clockSkew time.Duration) *verifier.Verifier {
	return verifier.New(s.SigVerifier, s.Clock, clockSkew).WithAudit(s.AuditChain)
}

// ReplayHarness builds a replay.Harness over this Server's Event Store,
// resolving past policy generations from policy.reloaded events. The
// CachedLoader must have had replay.RecordGeneration wired via
// OnGeneration for generations to be resolvable.
func (s *Server) ReplayHarness() *replay.Harness {
	return replay.New(s.Events, replay.EventStorePolicyHistory{Events: s.Events}, s.Engine.TTLConfig())
}
