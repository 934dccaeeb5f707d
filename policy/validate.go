package policy

import (
	"fmt"

	"github.com/aureus-sentinel/bridge/types"
)

// Validate checks that the Registry is semantically correct: a supported
// version, at least one profile, unique tool names, and well-formed
// per-profile fields.
func (r *Registry) Validate() error {
	if !r.Version.IsValid() {
		return fmt.Errorf("unsupported tool profile registry version %q, supported: %v", r.Version, SupportedVersions)
	}
	if len(r.Profiles) == 0 {
		return fmt.Errorf("tool profile registry must declare at least one profile")
	}

	seen := make(map[string]bool, len(r.Profiles))
	for i, p := range r.Profiles {
		if err := p.validate(i); err != nil {
			return err
		}
		if seen[p.Tool] {
			return fmt.Errorf("tool profile registry: duplicate tool %q", p.Tool)
		}
		seen[p.Tool] = true
	}
	return nil
}

func (p *ToolProfile) validate(index int) error {
	if p.Tool == "" {
		return fmt.Errorf("tool profile at index %d missing tool name", index)
	}
	switch p.BaseRisk {
	case types.RiskLow, types.RiskMedium, types.RiskHigh:
	default:
		return fmt.Errorf("tool profile %q has invalid base_risk %q", p.Tool, p.BaseRisk)
	}
	return nil
}
