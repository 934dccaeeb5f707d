package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aureus-sentinel/bridge/audit"
	"github.com/aureus-sentinel/bridge/canon"
	"github.com/aureus-sentinel/bridge/eventstore"
	"github.com/aureus-sentinel/bridge/schema"
	"github.com/aureus-sentinel/bridge/signer"
	"github.com/aureus-sentinel/bridge/types"
)

// maxBodyBytes bounds request bodies the Bridge will read before giving
// up, matching the request store's bounded-read posture elsewhere in this
// codebase.
const maxBodyBytes = 1 << 20

// errorCode is one of the stable taxonomy kinds surfaced to callers.
type errorCode string

const (
	codeValidationFailure     errorCode = "ValidationFailure"
	codePolicyDenial          errorCode = "PolicyDenial"
	codeSignatureFailure      errorCode = "SignatureFailure"
	codeExpired               errorCode = "Expired"
	codeDependencyUnavailable errorCode = "DependencyUnavailable"
	codeIntegrityFailure      errorCode = "IntegrityFailure"
	codeUnauthorized          errorCode = "Unauthorized"
)

type errorEnvelope struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message, detail string) {
	writeJSON(w, status, errorEnvelope{Code: code, Message: message, Detail: detail})
}

// handleHealth reports 200 only when the signer, audit chain, and event
// store are all reachable, per the health contract.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.Signer == nil || s.Signer.KeyID() == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "signer unavailable"})
		return
	}
	if _, err := s.AuditChain.Verify(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "audit chain unavailable"})
		return
	}
	if _, err := s.Events.Query(ctx, eventstore.Query{Limit: 1}); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "event store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAuditExport serves GET /audit?since=<seq>&format=jsonl|cef.
func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	since := uint64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailure, "invalid since parameter", err.Error())
			return
		}
		since = v
	}

	format := audit.FormatJSONL
	if raw := r.URL.Query().Get("format"); raw == string(audit.FormatCEF) {
		format = audit.FormatCEF
	}

	out, err := audit.Export(r.Context(), s.AuditStore, since, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "audit export failed", "")
		return
	}
	w.Header().Set("Content-Type", "application/jsonl; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// handleVerify serves the stateless POST /verify convenience endpoint:
// checks a supplied Approval's signature, TTL, and plan binding without
// touching the policy registry or executing anything.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Approval  types.Approval `json:"approval"`
		Signature string         `json:"signature"`
		Plan      types.Plan     `json:"plan"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailure, "malformed /verify body", err.Error())
		return
	}

	sig, err := base64.StdEncoding.DecodeString(body.Signature)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": "malformed signature encoding"})
		return
	}

	verifier := s.ExecutorFor(0)
	if rej := verifier.VerifyApproval(r.Context(), body.Approval, sig, body.Plan); rej != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": string(rej.Reason)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// handleGrantApproval serves POST /approvals/grant: the only path that
// can make a subsequent POST /intents admit HumanApproved=true. Callers
// must authenticate with ApproverToken, a credential deliberately
// distinct from the one the ingress channel uses to submit Intents, so
// the untrusted request that asks for approval can never also grant it.
func (s *Server) handleGrantApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		IntentID string `json:"intentId"`
		Approver string `json:"approver"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailure, "malformed grant-approval body", err.Error())
		return
	}
	if body.IntentID == "" || body.Approver == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailure, "intentId and approver are required", "")
		return
	}

	grant := map[string]any{
		"intentId":  body.IntentID,
		"approver":  body.Approver,
		"grantedAt": s.Clock.Now().UTC(),
	}
	if _, err := s.recordEvent(ctx, types.EventHumanApprovalGranted, grant); err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "failed to persist human approval grant", "")
		return
	}
	if _, err := s.AuditChain.Append(ctx, types.EventHumanApprovalGranted, grant, nil); err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "audit append failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"granted": true, "intentId": body.IntentID})
}

// handleReplay serves GET /replay/{intentId}: re-runs the Decision Engine
// against the recorded (intent, context) pair for intentId and reports
// whether it reproduced the recorded Plan. A 200 with divergence=false
// means deterministic replay held; divergence=true carries both plans for
// diffing. A missing intentId or unresolvable policy generation is a
// DependencyUnavailable, not a divergence: replay could not even run.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentId")
	if intentID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailure, "missing intentId", "")
		return
	}

	harness := s.ReplayHarness()
	divergence, err := harness.ReplayIntent(r.Context(), intentID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeDependencyUnavailable, "replay could not be completed", err.Error())
		return
	}
	if divergence == nil {
		writeJSON(w, http.StatusOK, map[string]any{"intentId": intentID, "divergence": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"intentId":   intentID,
		"divergence": true,
		"recorded":   divergence.Recorded,
		"replayed":   divergence.Replayed,
		"diff":       divergence.Diff,
	})
}

// handleIntent serves POST /intents: the full authenticate → validate →
// enrich → decide → sign → persist → respond pipeline.
func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailure, "failed to read request body", err.Error())
		return
	}

	result, err := s.Schemas.Validate(schema.Key{Type: string(schema.TypeIntent), Version: schema.CurrentVersion}, raw)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeDependencyUnavailable, "schema validation unavailable", err.Error())
		return
	}
	if !result.Valid {
		writeError(w, http.StatusBadRequest, codeValidationFailure, "intent envelope failed schema validation", joinErrors(result.Errors))
		return
	}

	var intent types.Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailure, "intent envelope could not be decoded", err.Error())
		return
	}

	unlock := s.idempotency.Lock(intent.IntentID)
	defer unlock()

	bodyHash := hashBytes(raw)

	if cached, status, found, mismatch := s.lookupIdempotent(ctx, intent.IntentID, bodyHash); found {
		writeJSON(w, status, cached)
		return
	} else if mismatch {
		writeError(w, http.StatusBadRequest, codeValidationFailure, "intentId reused with a different request body", "")
		return
	}

	if _, err := s.recordEvent(ctx, types.EventIntentReceived, map[string]any{
		"intentId": intent.IntentID,
		"bodyHash": bodyHash,
		"intent":   toMap(intent),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "failed to persist received intent", "")
		return
	}
	if _, err := s.AuditChain.Append(ctx, types.EventIntentReceived, toMap(intent), nil); err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "audit append failed", "")
		return
	}

	profile, err := s.Profiler.RiskProfile(ctx, intent.Actor.ID, historyWindow)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeDependencyUnavailable, "risk profile unavailable", "")
		return
	}
	flags, err := s.Profiler.PatternFlags(ctx, intent.Actor.ID, historyWindow)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeDependencyUnavailable, "pattern flags unavailable", "")
		return
	}

	ctxSnap := types.ContextSnapshot{
		Version:      "1.0",
		Type:         "context_snapshot",
		IntentID:     intent.IntentID,
		Intent:       intent,
		TrustScore:   profile.TrustScore,
		CommonTools:  profile.CommonTools,
		PatternFlags: flags,
		Timestamp:    s.Clock.Now().UTC(),
	}

	if _, err := s.recordEvent(ctx, types.EventContextSnapshotted, map[string]any{
		"intentId": intent.IntentID,
		"context":  toMap(ctxSnap),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "failed to persist context snapshot", "")
		return
	}

	_, idx, gen, err := s.Policy.Current(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeDependencyUnavailable, "policy registry unavailable", "")
		return
	}

	plan, err := s.Engine.Decide(intent, ctxSnap, idx, gen)
	if err != nil {
		s.deny(ctx, w, intent.IntentID, "", err.Error())
		return
	}
	if _, err := s.recordEvent(ctx, types.EventPlanGenerated, map[string]any{
		"intentId": intent.IntentID,
		"plan":     toMap(plan),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "failed to persist plan", "")
		return
	}
	if _, err := s.AuditChain.Append(ctx, types.EventPlanGenerated, toMap(plan), nil); err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "audit append failed", "")
		return
	}

	humanApproved, approver, err := s.lookupHumanApproval(ctx, intent.IntentID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeDependencyUnavailable, "human approval lookup unavailable", "")
		return
	}
	if plan.RequiresHumanApproval && !humanApproved {
		s.deny(ctx, w, intent.IntentID, plan.PlanID, "human approval required but not present")
		return
	}

	planHash, err := canon.Marshal(plan)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "plan canonicalization failed", "")
		return
	}

	approval := types.Approval{
		Version:       "1.0",
		Type:          "approval",
		ApprovalID:    uuid.NewString(),
		PlanID:        plan.PlanID,
		IssuedAt:      s.Clock.Now().UTC(),
		ExpiresAt:     plan.ValidUntil,
		HumanApproved: humanApproved,
		Approver:      approver,
		PayloadHash:   hex.EncodeToString(sha256Sum(planHash)),
		KeyID:         s.Signer.KeyID(),
	}

	sig, err := s.Signer.Sign(ctx, approval)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeSignatureFailure, "failed to sign approval", "")
		return
	}
	approval.Signature = base64.StdEncoding.EncodeToString(sig)

	if _, err := s.recordEvent(ctx, types.EventApprovalIssued, map[string]any{
		"intentId": intent.IntentID,
		"approval": toMap(approval),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "failed to persist approval", "")
		return
	}
	if _, err := s.AuditChain.Append(ctx, types.EventApprovalIssued, toMap(approval), nil); err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "audit append failed", "")
		return
	}

	writeJSON(w, http.StatusOK, approval)
}

// deny records an approval.denied event and audit entry and responds with
// a PolicyDenial.
func (s *Server) deny(ctx context.Context, w http.ResponseWriter, intentID, planID, reason string) {
	payload := map[string]any{"intentId": intentID, "planId": planID, "reason": reason}
	if _, err := s.recordEvent(ctx, types.EventApprovalDenied, payload); err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "failed to persist denial", "")
		return
	}
	if _, err := s.AuditChain.Append(ctx, types.EventApprovalDenied, payload, nil); err != nil {
		writeError(w, http.StatusInternalServerError, codeIntegrityFailure, "audit append failed", "")
		return
	}
	writeError(w, http.StatusForbidden, codePolicyDenial, "intent denied by policy", reason)
}

func (s *Server) recordEvent(ctx context.Context, eventType string, body map[string]any) (types.Event, error) {
	return s.Events.Append(ctx, eventType, body)
}

// lookupIdempotent checks whether intentId has already produced a
// terminal outcome. found reports whether a cached response should be
// returned verbatim; mismatch reports whether intentId was reused with a
// different request body, which is itself a terminal ValidationFailure.
func (s *Server) lookupIdempotent(ctx context.Context, intentID, bodyHash string) (any, int, bool, bool) {
	received, err := s.Events.Query(ctx, eventstore.Query{Type: types.EventIntentReceived, IntentID: intentID, Limit: 1})
	if err != nil || len(received) == 0 {
		return nil, 0, false, false
	}
	storedHash, _ := received[0].Body["bodyHash"].(string)
	if !signer.ConstantTimeEqual([]byte(storedHash), []byte(bodyHash)) {
		return nil, 0, false, true
	}

	if issued, err := s.Events.Query(ctx, eventstore.Query{Type: types.EventApprovalIssued, IntentID: intentID, Limit: 1}); err == nil && len(issued) > 0 {
		return issued[0].Body["approval"], http.StatusOK, true, false
	}
	if denied, err := s.Events.Query(ctx, eventstore.Query{Type: types.EventApprovalDenied, IntentID: intentID, Limit: 1}); err == nil && len(denied) > 0 {
		return errorEnvelope{Code: codePolicyDenial, Message: "intent denied by policy"}, http.StatusForbidden, true, false
	}
	return nil, 0, false, false
}

// lookupHumanApproval reports whether a human approver has granted
// intentId via POST /approvals/grant, and who. This is the only source
// of HumanApproved truth for handleIntent; Intent.Metadata is never
// consulted for it.
func (s *Server) lookupHumanApproval(ctx context.Context, intentID string) (bool, string, error) {
	granted, err := s.Events.Query(ctx, eventstore.Query{Type: types.EventHumanApprovalGranted, IntentID: intentID, Limit: 1})
	if err != nil {
		return false, "", err
	}
	if len(granted) == 0 {
		return false, "", nil
	}
	approver, _ := granted[0].Body["approver"].(string)
	return true, approver, nil
}

func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}

func hashBytes(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func sha256Sum(raw []byte) []byte {
	sum := sha256.Sum256(raw)
	return sum[:]
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}
