package replay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/aureus-sentinel/bridge/canon"
	"github.com/aureus-sentinel/bridge/decision"
	"github.com/aureus-sentinel/bridge/eventstore"
	"github.com/aureus-sentinel/bridge/internal/clock"
	"github.com/aureus-sentinel/bridge/types"
)

// Divergence reports a replayed decision that did not reproduce the
// recorded Plan byte-for-byte.
type Divergence struct {
	IntentID string
	Recorded types.Plan
	Replayed types.Plan
	Diff     string
}

// Harness replays a past decision from its recorded events and checks it
// against the original output. Replay does not re-sign: signatures
// depend on fresh time and random approval identifiers that are never
// reproducible, so the harness compares only the Plan layer, which is
// what the Decision Engine's determinism guarantee actually covers.
type Harness struct {
	Events eventstore.Store
	Policy PolicyHistory
	TTL    decision.TTL
}

// New constructs a replay Harness.
func New(events eventstore.Store, history PolicyHistory, ttl decision.TTL) *Harness {
	return &Harness{Events: events, Policy: history, TTL: ttl}
}

// ReplayIntent reconstructs the (intent, context) pair recorded for
// intentID, re-runs the Decision Engine at the policy generation and
// wall-clock time the original decision observed, and compares the
// result against the recorded plan.generated event. A nil Divergence
// with a nil error means the replay reproduced the recorded Plan exactly.
func (h *Harness) ReplayIntent(ctx context.Context, intentID string) (*Divergence, error) {
	intent, err := h.fetchIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	ctxSnap, err := h.fetchContext(ctx, intentID)
	if err != nil {
		return nil, err
	}
	recorded, err := h.fetchPlan(ctx, intentID)
	if err != nil {
		return nil, err
	}

	profiles, err := h.Policy.ProfilesAt(ctx, recorded.PolicyGeneration)
	if err != nil {
		return nil, fmt.Errorf("replay: resolve policy generation %d for intent %s: %w", recorded.PolicyGeneration, intentID, err)
	}

	engine := decision.NewEngine(clock.Fixed{At: recorded.ValidFrom}, h.TTL)

	var stepID string
	if len(recorded.Steps) > 0 {
		stepID = recorded.Steps[0].StepID
	}
	replayed, err := engine.DecideWithIDs(intent, ctxSnap, profiles, recorded.PolicyGeneration, recorded.PlanID, stepID)
	if err != nil {
		return nil, fmt.Errorf("replay: re-decide intent %s: %w", intentID, err)
	}

	equal, err := canon.Equal(recorded, replayed)
	if err != nil {
		return nil, fmt.Errorf("replay: canonicalize plans for intent %s: %w", intentID, err)
	}
	if equal {
		return nil, nil
	}
	return &Divergence{
		IntentID: intentID,
		Recorded: recorded,
		Replayed: replayed,
		Diff:     cmp.Diff(recorded, replayed),
	}, nil
}

func (h *Harness) fetchIntent(ctx context.Context, intentID string) (types.Intent, error) {
	events, err := h.Events.Query(ctx, eventstore.Query{Type: types.EventIntentReceived, IntentID: intentID, Limit: 1})
	if err != nil {
		return types.Intent{}, fmt.Errorf("replay: query intent.received for %s: %w", intentID, err)
	}
	if len(events) == 0 {
		return types.Intent{}, fmt.Errorf("replay: no intent.received event recorded for %s", intentID)
	}
	var intent types.Intent
	if err := decodeBodyField(events[0].Body, "intent", &intent); err != nil {
		return types.Intent{}, fmt.Errorf("replay: decode recorded intent for %s: %w", intentID, err)
	}
	return intent, nil
}

func (h *Harness) fetchContext(ctx context.Context, intentID string) (types.ContextSnapshot, error) {
	events, err := h.Events.Query(ctx, eventstore.Query{Type: types.EventContextSnapshotted, IntentID: intentID, Limit: 1})
	if err != nil {
		return types.ContextSnapshot{}, fmt.Errorf("replay: query context.snapshotted for %s: %w", intentID, err)
	}
	if len(events) == 0 {
		return types.ContextSnapshot{}, fmt.Errorf("replay: no context.snapshotted event recorded for %s", intentID)
	}
	var snap types.ContextSnapshot
	if err := decodeBodyField(events[0].Body, "context", &snap); err != nil {
		return types.ContextSnapshot{}, fmt.Errorf("replay: decode recorded context for %s: %w", intentID, err)
	}
	return snap, nil
}

func (h *Harness) fetchPlan(ctx context.Context, intentID string) (types.Plan, error) {
	events, err := h.Events.Query(ctx, eventstore.Query{Type: types.EventPlanGenerated, IntentID: intentID, Limit: 1})
	if err != nil {
		return types.Plan{}, fmt.Errorf("replay: query plan.generated for %s: %w", intentID, err)
	}
	if len(events) == 0 {
		return types.Plan{}, fmt.Errorf("replay: no plan.generated event recorded for %s (intent denied or never decided)", intentID)
	}
	var plan types.Plan
	if err := decodeBodyField(events[0].Body, "plan", &plan); err != nil {
		return types.Plan{}, fmt.Errorf("replay: decode recorded plan for %s: %w", intentID, err)
	}
	return plan, nil
}

// decodeBodyField re-marshals body[key] (an any, typically already a
// map[string]any from a JSON-round-tripping Store) into dst via
// encoding/json, the same mechanism bridge.toMap uses in reverse.
func decodeBodyField(body map[string]any, key string, dst any) error {
	raw, err := json.Marshal(body[key])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
