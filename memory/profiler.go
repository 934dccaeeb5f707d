// Package memory persists every completed execution keyed by actor and
// derives trust scores and pattern flags used by the Decision Engine. It
// does not itself decide anything — its outputs are inputs to decision.
package memory

import (
	"context"
	"time"

	"github.com/aureus-sentinel/bridge/types"
)

// Outcome records one completed execution for the actor's history.
type Outcome struct {
	Actor      string
	Tool       string
	RiskBand   types.RiskBand
	Approved   bool
	OccurredAt time.Time
}

// RiskDistribution counts completed executions per risk band.
type RiskDistribution struct {
	Low    int
	Medium int
	High   int
}

// Profile is the derived summary returned by RiskProfile.
type Profile struct {
	TotalExecutions  int
	ApprovalRate     float64
	RiskDistribution RiskDistribution
	CommonTools      []string
	TrustScore       float64
}

// rapidRequestsPerMinute and the window/ratio constants below implement
// the pattern-flag thresholds from the risk profiler contract: more than
// this many requests per minute is "rapid", more than half rejected is
// "high rejection rate", and more than this many high-risk attempts in
// the window is "many high risk".
const (
	rapidRequestsPerMinute  = 5
	highRejectionRateCutoff = 0.5
	manyHighRiskCutoff      = 3
	commonToolMinCount      = 3
)

// Store persists per-actor execution history. Implementations must be
// safe for concurrent use; History returns a fresh slice that later
// Records do not change.
type Store interface {
	// Record appends one completed execution to the actor's history.
	Record(ctx context.Context, outcome Outcome) error
	// History returns outcomes for actor within the last window. The
	// order is the backend's: InMemoryStore returns recording order,
	// DynamoDBStore ascending sort-key order.
	History(ctx context.Context, actor string, window time.Duration) ([]Outcome, error)
}

// Profiler computes trust scores and pattern flags from a Store, with an
// optional cache in front of the read path.
type Profiler struct {
	store Store
	cache Cache
}

// Cache is an optional hot-cache layer for recently computed profiles
// (backed by Redis in production). A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, actor string) (Profile, bool)
	Set(ctx context.Context, actor string, profile Profile, ttl time.Duration)
}

// NewProfiler constructs a Profiler. cache may be nil.
func NewProfiler(store Store, cache Cache) *Profiler {
	return &Profiler{store: store, cache: cache}
}

// PatternFlags derives suspicion signals for actor over window.
func (p *Profiler) PatternFlags(ctx context.Context, actor string, window time.Duration) (types.PatternFlags, error) {
	history, err := p.store.History(ctx, actor, window)
	if err != nil {
		return types.PatternFlags{}, err
	}
	return deriveFlags(history, window), nil
}

// RiskProfile computes the full derived profile for actor over window,
// consulting the cache first when one is configured. Trust formula:
// trustScore = 0.7*approvalRate + 0.3*lowRiskRate.
func (p *Profiler) RiskProfile(ctx context.Context, actor string, window time.Duration) (Profile, error) {
	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx, actor); ok {
			return cached, nil
		}
	}

	history, err := p.store.History(ctx, actor, window)
	if err != nil {
		return Profile{}, err
	}
	profile := computeProfile(history)

	if p.cache != nil {
		p.cache.Set(ctx, actor, profile, 5*time.Minute)
	}
	return profile, nil
}

// Record persists a completed outcome and invalidates the actor's cached
// profile so the next RiskProfile call reflects it.
func (p *Profiler) Record(ctx context.Context, outcome Outcome) error {
	if err := p.store.Record(ctx, outcome); err != nil {
		return err
	}
	if p.cache != nil {
		p.cache.Set(ctx, outcome.Actor, Profile{}, 0)
	}
	return nil
}

func computeProfile(history []Outcome) Profile {
	total := len(history)
	if total == 0 {
		return Profile{}
	}

	var approved, low int
	dist := RiskDistribution{}
	toolCounts := map[string]int{}
	for _, o := range history {
		if o.Approved {
			approved++
		}
		switch o.RiskBand {
		case types.RiskLow:
			dist.Low++
			low++
		case types.RiskMedium:
			dist.Medium++
		case types.RiskHigh:
			dist.High++
		}
		toolCounts[o.Tool]++
	}

	approvalRate := float64(approved) / float64(total)
	lowRiskRate := float64(low) / float64(total)
	trustScore := 0.7*approvalRate + 0.3*lowRiskRate

	var commonTools []string
	for tool, count := range toolCounts {
		if count >= commonToolMinCount {
			commonTools = append(commonTools, tool)
		}
	}

	return Profile{
		TotalExecutions:  total,
		ApprovalRate:     approvalRate,
		RiskDistribution: dist,
		CommonTools:      commonTools,
		TrustScore:       trustScore,
	}
}

func deriveFlags(history []Outcome, window time.Duration) types.PatternFlags {
	flags := types.PatternFlags{}
	if len(history) == 0 {
		return flags
	}

	oneMinuteAgo := latestTimestamp(history).Add(-time.Minute)
	var withinMinute, rejected, highRisk int
	for _, o := range history {
		if o.OccurredAt.After(oneMinuteAgo) {
			withinMinute++
		}
		if !o.Approved {
			rejected++
		}
		if o.RiskBand == types.RiskHigh {
			highRisk++
		}
	}

	flags.RapidRequests = withinMinute > rapidRequestsPerMinute
	flags.HighRejectionRate = float64(rejected)/float64(len(history)) > highRejectionRateCutoff
	flags.ManyHighRisk = highRisk > manyHighRiskCutoff
	flags.Suspicious = flags.RapidRequests || flags.HighRejectionRate || flags.ManyHighRisk
	return flags
}

func latestTimestamp(history []Outcome) time.Time {
	latest := history[0].OccurredAt
	for _, o := range history[1:] {
		if o.OccurredAt.After(latest) {
			latest = o.OccurredAt
		}
	}
	return latest
}
