package policy

import "fmt"

// IssueType categorizes the kind of lint issue detected.
type IssueType string

const (
	// IssueHashPinOnDenied flags a hash pin set on a tool that is not
	// allowed; the pin can never be checked because the tool never
	// reaches the verifier's hash-pin step.
	IssueHashPinOnDenied IssueType = "hash-pin-on-denied-tool"
	// IssueRedundantOverrides flags an override block on a denied tool;
	// risk-adjustment overrides never apply to a tool that is never run.
	IssueRedundantOverrides IssueType = "overrides-on-denied-tool"
	// IssueLowRiskForcesApproval flags a low-risk tool that always
	// requires human approval, which is usually a sign the base risk
	// should be raised instead.
	IssueLowRiskForcesApproval IssueType = "low-risk-forces-approval"
)

// Issue represents a potential problem detected in a Registry that
// Validate's structural checks don't catch.
type Issue struct {
	Type    IssueType
	Tool    string
	Message string
}

// Lint analyzes a Registry for common authoring mistakes that are
// syntactically valid but semantically suspect, and returns any issues
// found. Lint does not reject a Registry; callers decide whether issues
// block activation.
func Lint(r *Registry) []Issue {
	var issues []Issue
	for _, p := range r.Profiles {
		issues = append(issues, lintProfile(p)...)
	}
	return issues
}

func lintProfile(p ToolProfile) []Issue {
	var issues []Issue

	if !p.Allowed {
		if p.HashPin != "" {
			issues = append(issues, Issue{
				Type:    IssueHashPinOnDenied,
				Tool:    p.Tool,
				Message: fmt.Sprintf("tool %q has a hash_pin but is not allowed", p.Tool),
			})
		}
		if p.Overrides != nil {
			issues = append(issues, Issue{
				Type:    IssueRedundantOverrides,
				Tool:    p.Tool,
				Message: fmt.Sprintf("tool %q has risk overrides but is not allowed", p.Tool),
			})
		}
		return issues
	}

	if p.Overrides != nil && p.Overrides.AlwaysRequireHumanApproval && p.BaseRisk == "low" {
		issues = append(issues, Issue{
			Type:    IssueLowRiskForcesApproval,
			Tool:    p.Tool,
			Message: fmt.Sprintf("tool %q is base_risk low but always_require_human_approval is set", p.Tool),
		})
	}

	return issues
}
