package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aureus-sentinel/bridge/canon"
	"github.com/aureus-sentinel/bridge/internal/clock"
	"github.com/aureus-sentinel/bridge/policy"
	"github.com/aureus-sentinel/bridge/types"
)

func fixedEngine() *Engine {
	return NewEngine(clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, TTL{
		Low: time.Hour, Medium: 15 * time.Minute, High: 5 * time.Minute,
	})
}

func withDeterministicIDs(t *testing.T) {
	t.Helper()
	origPlan, origStep := newPlanID, newStepID
	newPlanID = func() string { return "plan-fixed" }
	newStepID = func() string { return "step-fixed" }
	t.Cleanup(func() { newPlanID, newStepID = origPlan, origStep })
}

func TestDecide_S1_LowRiskHappyPath(t *testing.T) {
	withDeterministicIDs(t)
	e := fixedEngine()
	idx := policy.Compile(&policy.Registry{Version: policy.Version1, Profiles: []policy.ToolProfile{
		{Tool: "web_search", Allowed: true, BaseRisk: types.RiskLow},
	}})

	intent := types.Intent{IntentID: "i1", Tool: "web_search", DeclaredRiskLevel: types.RiskLow}
	ctxSnap := types.ContextSnapshot{
		Intent:      intent,
		TrustScore:  0.9,
		CommonTools: []string{"web_search"},
	}

	plan, err := e.Decide(intent, ctxSnap, idx, 1)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 1)
	assert.Equal(t, types.RiskLow, plan.RiskAssessment.AdjustedRisk)
	assert.False(t, plan.RequiresHumanApproval)
}

func TestDecide_S2_HighRiskRequiresHuman(t *testing.T) {
	withDeterministicIDs(t)
	e := fixedEngine()
	idx := policy.Compile(&policy.Registry{Version: policy.Version1, Profiles: []policy.ToolProfile{
		{Tool: "delete_data", Allowed: true, BaseRisk: types.RiskHigh},
	}})

	intent := types.Intent{IntentID: "i2", Tool: "delete_data", DeclaredRiskLevel: types.RiskHigh}
	ctxSnap := types.ContextSnapshot{Intent: intent, TrustScore: 0.5}

	plan, err := e.Decide(intent, ctxSnap, idx, 1)
	require.NoError(t, err)
	assert.True(t, plan.RequiresHumanApproval)
}

func TestDecide_S6_SuspiciousBlocksDowngradeAndForcesApproval(t *testing.T) {
	withDeterministicIDs(t)
	e := fixedEngine()
	idx := policy.Compile(&policy.Registry{Version: policy.Version1, Profiles: []policy.ToolProfile{
		{Tool: "send_email", Allowed: true, BaseRisk: types.RiskMedium},
	}})

	intent := types.Intent{IntentID: "i6", Tool: "send_email", DeclaredRiskLevel: types.RiskMedium}
	ctxSnap := types.ContextSnapshot{
		Intent:      intent,
		TrustScore:  0.95,
		CommonTools: []string{"send_email"},
		PatternFlags: types.PatternFlags{
			RapidRequests: true,
			Suspicious:    true,
		},
	}

	plan, err := e.Decide(intent, ctxSnap, idx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.RiskMedium, plan.RiskAssessment.AdjustedRisk, "suspicious must block the trust downgrade")
	assert.True(t, plan.RequiresHumanApproval)
}

func TestDecide_DeniesUnknownTool(t *testing.T) {
	e := fixedEngine()
	idx := policy.Compile(&policy.Registry{Version: policy.Version1, Profiles: []policy.ToolProfile{
		{Tool: "web_search", Allowed: true, BaseRisk: types.RiskLow},
	}})

	intent := types.Intent{IntentID: "i3", Tool: "never_registered"}
	_, err := e.Decide(intent, types.ContextSnapshot{Intent: intent}, idx, 1)
	assert.Error(t, err)
}

func TestDecide_DeterministicGivenSameInputs(t *testing.T) {
	withDeterministicIDs(t)
	e := fixedEngine()
	idx := policy.Compile(&policy.Registry{Version: policy.Version1, Profiles: []policy.ToolProfile{
		{Tool: "web_search", Allowed: true, BaseRisk: types.RiskLow},
	}})
	intent := types.Intent{IntentID: "i4", Tool: "web_search"}
	ctxSnap := types.ContextSnapshot{Intent: intent, TrustScore: 0.5}

	plan1, err := e.Decide(intent, ctxSnap, idx, 1)
	require.NoError(t, err)
	plan2, err := e.Decide(intent, ctxSnap, idx, 1)
	require.NoError(t, err)

	raw1, err := canon.Marshal(plan1)
	require.NoError(t, err)
	raw2, err := canon.Marshal(plan2)
	require.NoError(t, err)
	assert.Equal(t, raw1, raw2)
}
