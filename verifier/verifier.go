// Package verifier implements the Executor Verifier: the fail-closed gate
// that runs adjacent to the tool executor, immediately before any step of
// an approved Plan is allowed to run. Every uncaught error becomes a
// reject for the step it occurred on; nothing here ever fails open.
package verifier

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aureus-sentinel/bridge/internal/clock"
	"github.com/aureus-sentinel/bridge/policy"
	"github.com/aureus-sentinel/bridge/signer"
	"github.com/aureus-sentinel/bridge/types"
)

// newReportID is overridable in tests that need deterministic IDs;
// production uses random UUIDs.
var newReportID = func() string { return uuid.NewString() }

// ToolProfileIndex is the read-mostly tool profile lookup the verifier
// consults for each step; policy.byTool satisfies it.
type ToolProfileIndex interface {
	Lookup(tool string) policy.ToolProfile
}

// Executor runs a single allowed step and reports its outcome. Verify
// calls it once per step that survives all gating checks, in declared
// order.
type Executor interface {
	Execute(ctx context.Context, step types.Step) (status types.StepStatus, execErr error)
}

// RejectReason enumerates the terminal rejection reasons Verify can
// report, matching spec.md's error taxonomy for this component.
type RejectReason string

const (
	ReasonSignatureInvalid    RejectReason = "signature-invalid"
	ReasonExpired             RejectReason = "expired"
	ReasonNotYetValid         RejectReason = "not-yet-valid"
	ReasonPlanMismatch        RejectReason = "plan-mismatch"
	ReasonToolNotAllowed      RejectReason = "tool-not-allowed"
	ReasonHashPinMismatch     RejectReason = "hash-pin-mismatch"
	ReasonHumanApprovalNeeded RejectReason = "human-approval-required"
)

// Rejection is returned when the approval or an individual step fails a
// gating check before execution.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r *Rejection) Error() string { return string(r.Reason) + ": " + r.Detail }

// AuditRecorder is the minimal audit sink the verifier uses to record an
// expired-approval rejection executor-side; audit.Chain.Append satisfies
// it. Wiring is optional: a verifier with no recorder still rejects
// correctly, it just produces no audit trail of its own (the caller's own
// audit boundary, e.g. the Bridge's, still applies upstream).
type AuditRecorder interface {
	Append(ctx context.Context, action string, payload map[string]any, metadata map[string]string) (types.AuditEntry, error)
}

// Verifier gates execution of a Plan behind its bound Approval.
type Verifier struct {
	sigVerifier *signer.Verifier
	clock       clock.Clock
	clockSkew   time.Duration
	audit       AuditRecorder
}

// New constructs a Verifier. clockSkew defaults to 30s, matching
// ALLOW_CLOCK_SKEW_SEC's documented default, when zero is passed.
func New(sigVerifier *signer.Verifier, c clock.Clock, clockSkew time.Duration) *Verifier {
	if c == nil {
		c = clock.Real{}
	}
	if clockSkew == 0 {
		clockSkew = 30 * time.Second
	}
	return &Verifier{sigVerifier: sigVerifier, clock: c, clockSkew: clockSkew}
}

// WithAudit attaches an audit sink and returns v for chaining. Call before
// the verifier is shared across goroutines; it is not safe to call
// concurrently with VerifyAndEnforce.
func (v *Verifier) WithAudit(audit AuditRecorder) *Verifier {
	v.audit = audit
	return v
}

// VerifyApproval runs steps 1-3 of the contract: signature, TTL/clock-skew
// window, and plan binding. It does not inspect individual steps.
func (v *Verifier) VerifyApproval(ctx context.Context, approval types.Approval, signature []byte, plan types.Plan) *Rejection {
	ok, err := v.sigVerifier.Verify(approval, signature)
	if err != nil || !ok {
		return &Rejection{Reason: ReasonSignatureInvalid, Detail: "ed25519 verification failed"}
	}

	now := v.clock.Now().UTC()
	if now.After(approval.ExpiresAt.Add(v.clockSkew)) {
		if v.audit != nil {
			v.audit.Append(ctx, types.EventApprovalExpired, map[string]any{
				"approvalId": approval.ApprovalID,
				"planId":     approval.PlanID,
			}, nil)
		}
		return &Rejection{Reason: ReasonExpired, Detail: "approval expired"}
	}
	if now.Before(approval.IssuedAt.Add(-v.clockSkew)) {
		return &Rejection{Reason: ReasonNotYetValid, Detail: "approval not yet valid"}
	}

	if approval.PlanID != plan.PlanID {
		return &Rejection{Reason: ReasonPlanMismatch, Detail: "approval.planId does not match plan.planId"}
	}

	return nil
}

// checkStep runs step 4-5 of the contract against a single step.
func checkStep(step types.Step, profiles ToolProfileIndex, humanApproved bool) *Rejection {
	profile := profiles.Lookup(step.Tool)
	if !profile.Allowed {
		return &Rejection{Reason: ReasonToolNotAllowed, Detail: step.Tool}
	}
	if profile.HashPin != "" && profile.HashPin != step.SkillHash {
		return &Rejection{Reason: ReasonHashPinMismatch, Detail: step.Tool}
	}
	if step.DeclaredRisk == types.RiskHigh && !humanApproved {
		return &Rejection{Reason: ReasonHumanApprovalNeeded, Detail: step.Tool}
	}
	return nil
}

// VerifyAndEnforce runs the full contract: approval-level checks, then
// per-step checks and execution in declared order. Steps that fail their
// own check are reported rejected without blocking siblings; partial
// success is permitted and reported in full.
func (v *Verifier) VerifyAndEnforce(ctx context.Context, approval types.Approval, signature []byte, plan types.Plan, profiles ToolProfileIndex, exec Executor) (types.Report, *Rejection) {
	if rej := v.VerifyApproval(ctx, approval, signature, plan); rej != nil {
		return types.Report{}, rej
	}

	outcomes := make([]types.StepOutcome, 0, len(plan.Steps))
	terminal := types.StepExecuted

	for _, step := range plan.Steps {
		if rej := checkStep(step, profiles, approval.HumanApproved); rej != nil {
			outcomes = append(outcomes, types.StepOutcome{StepID: step.StepID, Status: types.StepRejected, Error: rej.Error()})
			terminal = types.StepRejected
			continue
		}

		status, execErr := safeExecute(ctx, exec, step)
		if execErr != nil {
			outcomes = append(outcomes, types.StepOutcome{StepID: step.StepID, Status: types.StepFailed, Error: execErr.Error()})
			terminal = types.StepFailed
			continue
		}
		outcomes = append(outcomes, types.StepOutcome{StepID: step.StepID, Status: status})
	}

	report := types.Report{
		Version:    "1.0",
		Type:       "report",
		ReportID:   newReportID(),
		ApprovalID: approval.ApprovalID,
		PlanID:     plan.PlanID,
		Steps:      outcomes,
		Status:     terminal,
		Timestamp:  v.clock.Now().UTC(),
	}
	return report, nil
}

// safeExecute recovers from a panicking Executor so one misbehaving tool
// implementation cannot abort the whole plan; the verifier is fail-closed
// by contract, including against its own execution seam.
func safeExecute(ctx context.Context, exec Executor, step types.Step) (status types.StepStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			status = types.StepFailed
			err = &panicError{value: r}
		}
	}()
	return exec.Execute(ctx, step)
}

type panicError struct{ value any }

func (p *panicError) Error() string { return "verifier: executor panicked" }
