// Package decision implements the Decision Engine: a pure, deterministic
// mapping from a validated Intent and its enriched ContextSnapshot to a
// Plan. Given the same (intent, context, policy generation) triple it
// always produces the same canonical Plan, a property the replay harness
// relies on.
package decision

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aureus-sentinel/bridge/internal/clock"
	"github.com/aureus-sentinel/bridge/policy"
	"github.com/aureus-sentinel/bridge/types"
)

// ToolProfileIndex is the read-mostly, hot-reloadable view of the tool
// profile registry the engine consults. policy.byTool (returned from
// policy.CachedLoader.Current or policy.Compile) satisfies this.
type ToolProfileIndex interface {
	Lookup(tool string) policy.ToolProfile
}

// TTL maps a risk band to the duration a Plan built at that band remains
// valid; stricter (shorter) TTLs are expected for higher risk.
type TTL struct {
	Low, Medium, High time.Duration
}

// Engine is the stateless decision core. It is safe for concurrent use:
// all state it touches (tool index, TTLs) is read-only per call.
type Engine struct {
	clock clock.Clock
	ttl   TTL
}

// NewEngine constructs a decision Engine.
func NewEngine(c clock.Clock, ttl TTL) *Engine {
	if c == nil {
		c = clock.Real{}
	}
	return &Engine{clock: c, ttl: ttl}
}

// TTLConfig returns the TTL bands this Engine was constructed with, for
// callers (the replay harness) that need to reconstruct an equivalent
// Engine pinned to a different clock.
func (e *Engine) TTLConfig() TTL {
	return e.ttl
}

// newPlanID and newStepID are overridable in tests that need
// deterministic IDs; production uses random UUIDs.
var newPlanID = func() string { return uuid.NewString() }
var newStepID = func() string { return uuid.NewString() }

// Decide maps intent + context through the tool profile index to a Plan.
// policyGeneration is persisted on the Plan so replay can pin the exact
// registry snapshot this decision observed.
func (e *Engine) Decide(intent types.Intent, ctxSnap types.ContextSnapshot, profiles ToolProfileIndex, policyGeneration uint64) (types.Plan, error) {
	return e.DecideWithIDs(intent, ctxSnap, profiles, policyGeneration, newPlanID(), newStepID())
}

// DecideWithIDs is Decide with the planId/stepId supplied by the caller
// instead of freshly generated. The replay harness uses this to
// reconstruct a past decision under its original identifiers, since
// planId/stepId are randomly generated at issuance time and are not
// themselves part of what replay verifies — only the deterministic
// fields (risk assessment, steps, human-approval requirement, TTL
// window) are.
func (e *Engine) DecideWithIDs(intent types.Intent, ctxSnap types.ContextSnapshot, profiles ToolProfileIndex, policyGeneration uint64, planID, stepID string) (types.Plan, error) {
	profile := profiles.Lookup(intent.Tool)
	if !profile.Allowed {
		return types.Plan{}, fmt.Errorf("decision: tool %q is not allowed by policy", intent.Tool)
	}

	baseRisk := profile.BaseRisk
	adjusted, reason := adjustRisk(baseRisk, ctxSnap, profile, ctxSnap.PatternFlags.Suspicious)

	step := types.Step{
		StepID:       stepID,
		Tool:         intent.Tool,
		Args:         intent.Parameters,
		DeclaredRisk: adjusted,
		// SkillHash is the policy registry's pinned hash for this tool,
		// never the caller's own Intent.Metadata — that field is
		// attacker-controlled and the verifier's hash-pin check would be
		// meaningless comparing a value against itself.
		SkillHash: profile.HashPin,
	}

	requiresApproval := adjusted == types.RiskHigh || ctxSnap.PatternFlags.Suspicious
	if profile.Overrides != nil && profile.Overrides.AlwaysRequireHumanApproval {
		requiresApproval = true
	}

	now := e.clock.Now().UTC()
	ttl := e.ttlFor(adjusted)

	plan := types.Plan{
		Version:  "1.0",
		Type:     "plan",
		PlanID:   planID,
		IntentID: intent.IntentID,
		Steps:    []types.Step{step},
		RiskAssessment: types.RiskAssessment{
			BaseRisk:     baseRisk,
			AdjustedRisk: adjusted,
			Reason:       reason,
		},
		RequiresHumanApproval: requiresApproval,
		PolicyGeneration:      policyGeneration,
		ValidFrom:             now,
		ValidUntil:            now.Add(ttl),
	}
	return plan, nil
}

// adjustRisk applies the Decision Engine's contextual adjustment rules.
// Suspicion is applied last and is monotone: it never lowers the risk a
// trust-score downgrade would otherwise have produced, it only blocks that
// downgrade and forces human approval (handled by the caller). This
// resolves the race the source left ambiguous between "trusted" and
// "suspicious" acting on the same request — see DESIGN.md for the
// decision record.
func adjustRisk(base types.RiskBand, ctxSnap types.ContextSnapshot, profile policy.ToolProfile, suspicious bool) (types.RiskBand, string) {
	adjusted := base
	reason := "base risk from tool profile"

	disableDowngrade := profile.Overrides != nil && profile.Overrides.DisableTrustDowngrade

	if !disableDowngrade && !suspicious && ctxSnap.TrustScore > 0.8 && isCommonTool(ctxSnap.CommonTools, ctxSnap.Intent.Tool) {
		if downgraded, ok := downgrade(adjusted); ok {
			adjusted = downgraded
			reason = "downgraded: high trust score and common tool"
		}
	}

	if ctxSnap.TrustScore < 0.3 {
		if upgraded, ok := upgrade(adjusted); ok {
			adjusted = upgraded
			reason = "upgraded: low trust score"
		}
	}

	if suspicious {
		reason += "; suspicious pattern blocks any downgrade and forces human approval"
	}

	return adjusted, reason
}

func isCommonTool(commonTools []string, tool string) bool {
	for _, t := range commonTools {
		if t == tool {
			return true
		}
	}
	return false
}

func downgrade(r types.RiskBand) (types.RiskBand, bool) {
	switch r {
	case types.RiskMedium:
		return types.RiskLow, true
	case types.RiskHigh:
		return types.RiskMedium, true
	default:
		return r, false
	}
}

func upgrade(r types.RiskBand) (types.RiskBand, bool) {
	switch r {
	case types.RiskLow:
		return types.RiskMedium, true
	case types.RiskMedium:
		return types.RiskHigh, true
	default:
		return r, false
	}
}

func (e *Engine) ttlFor(band types.RiskBand) time.Duration {
	switch band {
	case types.RiskLow:
		return e.ttl.Low
	case types.RiskMedium:
		return e.ttl.Medium
	default:
		return e.ttl.High
	}
}
