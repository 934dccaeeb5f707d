// Package policy defines Sentinel's per-tool policy registry: the
// allowlist, hash pins, and risk overrides the Decision Engine and
// Executor Verifier consult for every tool. Hot-reloaded behind a
// generation counter; in-flight decisions pin the generation they
// observed and persist it on the Plan for replay.
package policy

import "github.com/aureus-sentinel/bridge/types"

// SupportedVersions lists the registry schema versions this build can
// parse.
var SupportedVersions = []Version{Version1}

// Version identifies the registry document's schema version.
type Version string

const Version1 Version = "1"

// IsValid reports whether v is a version this build understands.
func (v Version) IsValid() bool {
	for _, sv := range SupportedVersions {
		if sv == v {
			return true
		}
	}
	return false
}

// Registry is the top-level document: a version and the per-tool
// profiles it declares. Parsed from YAML at load time.
type Registry struct {
	Version  Version        `yaml:"version" json:"version"`
	Profiles []ToolProfile  `yaml:"profiles" json:"profiles"`
}

// ToolProfile is one tool's policy entry: whether it is allowed at all,
// its base risk band, an optional pinned implementation hash, and
// optional per-field overrides applied after the Decision Engine's
// contextual adjustment.
type ToolProfile struct {
	Tool     string          `yaml:"tool" json:"tool"`
	Allowed  bool            `yaml:"allowed" json:"allowed"`
	BaseRisk types.RiskBand  `yaml:"base_risk" json:"base_risk"`
	HashPin  string          `yaml:"hash_pin,omitempty" json:"hashPin,omitempty"`
	Overrides *RiskOverrides `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// RiskOverrides pins specific risk-adjustment behaviors for a tool,
// overriding the Decision Engine's default contextual adjustment rules.
type RiskOverrides struct {
	// DisableTrustDowngrade prevents a high-trust actor from ever
	// downgrading this tool's risk band, regardless of trust score.
	DisableTrustDowngrade bool `yaml:"disable_trust_downgrade,omitempty" json:"disableTrustDowngrade,omitempty"`
	// AlwaysRequireHumanApproval forces human approval for this tool
	// regardless of the computed risk band.
	AlwaysRequireHumanApproval bool `yaml:"always_require_human_approval,omitempty" json:"alwaysRequireHumanApproval,omitempty"`
}

// byTool indexes Profiles for O(1) lookup; built once by Compile.
type byTool map[string]ToolProfile

// DenyAllProfile is substituted for any tool absent from the registry:
// the Executor Verifier must fail closed on unknown tools.
var DenyAllProfile = ToolProfile{Allowed: false, BaseRisk: types.RiskHigh}

// Compile indexes a Registry's profiles by tool name for lookup.
func Compile(r *Registry) byTool {
	idx := make(byTool, len(r.Profiles))
	for _, p := range r.Profiles {
		idx[p.Tool] = p
	}
	return idx
}

// Lookup returns the profile for tool, or DenyAllProfile if the registry
// has no entry for it.
func (idx byTool) Lookup(tool string) ToolProfile {
	if p, ok := idx[tool]; ok {
		return p
	}
	return DenyAllProfile
}
