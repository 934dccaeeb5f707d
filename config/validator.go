package config

import (
	"fmt"
	"os"

	"github.com/aureus-sentinel/bridge/policy"
)

// ValidateRegistry validates tool profile registry YAML content: parses
// it, runs structural Validate, then runs Lint for non-fatal warnings.
func ValidateRegistry(content []byte, source string) ValidationResult {
	result := ValidationResult{Source: source, Valid: true}

	if len(content) == 0 {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Message:    "empty tool profile registry",
			Suggestion: "provide at least one tool profile",
		})
		return result
	}

	registry, err := policy.ParseRegistry(content)
	if err != nil {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Message:    err.Error(),
			Suggestion: "fix the YAML syntax or required fields and re-validate",
		})
		return result
	}

	for _, issue := range policy.Lint(registry) {
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityWarning,
			Location: fmt.Sprintf("profiles[tool=%s]", issue.Tool),
			Message:  issue.Message,
		})
	}
	return result
}

// ValidateRegistryFile reads path and validates it as a tool profile
// registry.
func ValidateRegistryFile(path string) (ValidationResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return ValidationResult{
			Source: path,
			Valid:  false,
			Issues: []ValidationIssue{{
				Severity:   SeverityError,
				Message:    fmt.Sprintf("failed to read file: %v", err),
				Suggestion: "verify the file path exists and is readable",
			}},
		}, err
	}
	return ValidateRegistry(content, path), nil
}
