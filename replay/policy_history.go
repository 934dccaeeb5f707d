// Package replay implements the deterministic replay harness: given a
// recorded (intent, context) pair and the policy generation the original
// decision observed, it re-runs the Decision Engine and checks the
// reproduced Plan against the recorded one byte-for-byte via canonical
// serialization. Any deviation is surfaced as a Divergence with both
// plans attached.
package replay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aureus-sentinel/bridge/decision"
	"github.com/aureus-sentinel/bridge/eventstore"
	"github.com/aureus-sentinel/bridge/policy"
	"github.com/aureus-sentinel/bridge/types"
)

// PolicyHistory resolves the tool profile index pinned to a past policy
// generation. CachedLoader itself only ever retains the current
// generation, so replaying a decision against the exact registry it
// observed requires the deployment to retain a history of past
// generations somewhere durable; this interface is that seam.
type PolicyHistory interface {
	ProfilesAt(ctx context.Context, gen uint64) (decision.ToolProfileIndex, error)
}

// ErrGenerationNotFound is returned when no retained registry snapshot
// matches the requested generation, which per the Event Store's
// compaction contract can happen if the deployment compacted away the
// policy.reloaded event for that generation. Treat this as a deployment
// constraint, not a replay bug: the Event Store must either not compact
// policy.reloaded events or retain one per distinct generation referenced
// by a still-retained plan.generated event.
var ErrGenerationNotFound = fmt.Errorf("replay: no retained policy registry for that generation")

// EventStorePolicyHistory resolves policy generations from policy.reloaded
// events recorded by wiring CachedLoader.OnGeneration to append one such
// event per fresh load. It is the default production PolicyHistory.
type EventStorePolicyHistory struct {
	Events eventstore.Store
}

// ProfilesAt scans policy.reloaded events for one matching gen and
// compiles its registry. The scan is linear in the number of retained
// reload events, expected to be small: registries reload on the order of
// once per cache TTL, not once per request.
func (h EventStorePolicyHistory) ProfilesAt(ctx context.Context, gen uint64) (decision.ToolProfileIndex, error) {
	events, err := h.Events.Query(ctx, eventstore.Query{Type: types.EventPolicyReloaded, Limit: eventstore.MaxQueryLimit})
	if err != nil {
		return nil, fmt.Errorf("replay: query policy history: %w", err)
	}
	for _, e := range events {
		if generationOf(e.Body) != gen {
			continue
		}
		registry, err := registryFromBody(e.Body)
		if err != nil {
			return nil, fmt.Errorf("replay: decode retained registry at generation %d: %w", gen, err)
		}
		return policy.Compile(registry), nil
	}
	return nil, fmt.Errorf("%w: generation %d", ErrGenerationNotFound, gen)
}

// generationOf reads the "generation" field out of an event body, which
// may be a uint64 (an in-process Store that keeps values as-is) or a
// float64 (a Store that round-trips bodies through JSON).
func generationOf(body map[string]any) uint64 {
	switch v := body["generation"].(type) {
	case uint64:
		return v
	case float64:
		return uint64(v)
	case int:
		return uint64(v)
	default:
		return 0
	}
}

func registryFromBody(body map[string]any) (*policy.Registry, error) {
	raw, err := json.Marshal(body["registry"])
	if err != nil {
		return nil, err
	}
	var registry policy.Registry
	if err := json.Unmarshal(raw, &registry); err != nil {
		return nil, err
	}
	return &registry, nil
}

// RecordGeneration is the callback to pass to CachedLoader.OnGeneration so
// that EventStorePolicyHistory can later resolve this generation.
func RecordGeneration(events eventstore.Store) func(ctx context.Context, gen uint64, registry *policy.Registry) {
	return func(ctx context.Context, gen uint64, registry *policy.Registry) {
		_, _ = events.Append(ctx, types.EventPolicyReloaded, map[string]any{
			"generation": gen,
			"registry":   registry,
		})
	}
}
