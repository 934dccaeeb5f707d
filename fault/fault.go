// Package fault implements the Fault Injector: scoped rules consulted at
// well-defined call seams (a KMS call, a database call, an external-API
// call) that can make a selected call fail or stall on purpose. It is
// chaos-testing infrastructure, not a production resilience mechanism —
// pair it with breaker.Execute at the same seam rather than in place of
// it. Disabled by default; every trigger is recorded to the audit chain
// for postmortem.
package fault

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/aureus-sentinel/bridge/types"
)

// Type identifies the kind of fault a Rule injects.
type Type string

const (
	// ToolFailure makes the call return ErrInjected instead of running.
	ToolFailure Type = "ToolFailure"
	// LatencySpike sleeps for Config["latency"] before running the call.
	LatencySpike Type = "LatencySpike"
	// PartialOutage fails the call without running it, identically to
	// ToolFailure but recorded under a distinct Type for postmortem
	// classification (a rule author may run a ToolFailure and a
	// PartialOutage rule on the same seam to model different incident
	// shapes even though both reject the call outright).
	PartialOutage Type = "PartialOutage"
)

// ErrInjected is returned (wrapped with the rule's seam and type) when a
// ToolFailure or PartialOutage rule fires.
var ErrInjected = errors.New("fault: injected failure")

// Rule is one fault-injection rule bound to a seam name. Probability is
// independently rolled per call; Config carries type-specific parameters
// (LatencySpike reads Config["latency"] as a time.Duration).
type Rule struct {
	Seam        string
	Type        Type
	Probability float64
	Config      map[string]any
}

// AuditRecorder is the minimal audit sink the injector records triggered
// faults to; audit.Chain.Append satisfies it.
type AuditRecorder interface {
	Append(ctx context.Context, action string, payload map[string]any, metadata map[string]string) (types.AuditEntry, error)
}

// auditEventFaultInjected is the audit action recorded on every trigger.
const auditEventFaultInjected = "fault.injected"

// roll is overridable in tests that need deterministic fault triggering;
// production uses math/rand.
var roll = func() float64 { return rand.Float64() }

// Injector holds the active rule set and dispatches Execute calls through
// it. Safe for concurrent use; rules can be reconfigured at runtime via
// SetRules, the same hot-reload posture as the tool profile registry.
type Injector struct {
	mu      sync.RWMutex
	enabled bool
	rules   map[string][]Rule
	audit   func(ctx context.Context, seam string, r Rule)
}

// New constructs a disabled Injector. Call Enable to activate it; the
// zero value (and a nil *Injector) are both safe no-ops so call sites
// never need a nil check before wrapping a seam with Execute.
func New() *Injector {
	return &Injector{rules: make(map[string][]Rule)}
}

// Enable turns fault injection on or off. Production wiring should leave
// this false; chaos-test harnesses flip it on for the duration of a run.
func (inj *Injector) Enable(on bool) {
	if inj == nil {
		return
	}
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.enabled = on
}

// WithAudit records every triggered fault via recorder.
func (inj *Injector) WithAudit(recorder AuditRecorder) *Injector {
	if inj == nil {
		return inj
	}
	inj.audit = func(ctx context.Context, seam string, r Rule) {
		_, _ = recorder.Append(ctx, auditEventFaultInjected, map[string]any{
			"seam":        seam,
			"type":        string(r.Type),
			"probability": r.Probability,
		}, nil)
	}
	return inj
}

// SetRules replaces the rule set for seam wholesale.
func (inj *Injector) SetRules(seam string, rules []Rule) {
	if inj == nil {
		return
	}
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.rules[seam] = rules
}

func (inj *Injector) rulesFor(seam string) ([]Rule, bool) {
	if inj == nil {
		return nil, false
	}
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	if !inj.enabled {
		return nil, false
	}
	return inj.rules[seam], inj.enabled
}

// Execute runs fn after consulting seam's rules in order. The first rule
// whose probability roll fires wins: a ToolFailure or PartialOutage
// short-circuits fn entirely and returns a wrapped ErrInjected; a
// LatencySpike sleeps (respecting ctx cancellation) and then still calls
// fn. A nil Injector, or one that is disabled, always just calls fn.
func Execute[T any](ctx context.Context, inj *Injector, seam string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	rules, enabled := inj.rulesFor(seam)
	if !enabled {
		return fn(ctx)
	}
	for _, r := range rules {
		if roll() >= r.Probability {
			continue
		}
		if inj.audit != nil {
			inj.audit(ctx, seam, r)
		}
		switch r.Type {
		case ToolFailure, PartialOutage:
			return zero, fmt.Errorf("%w: seam=%s type=%s", ErrInjected, seam, r.Type)
		case LatencySpike:
			latency, _ := r.Config["latency"].(time.Duration)
			if latency > 0 {
				select {
				case <-time.After(latency):
				case <-ctx.Done():
					return zero, ctx.Err()
				}
			}
			return fn(ctx)
		}
	}
	return fn(ctx)
}
