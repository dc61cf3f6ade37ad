package validation

import (
	"fmt"
	"strings"
)

// Prompt length bounds for report-generation requests.
const (
	MinPromptLength = 1
	MaxPromptLength = 2000
)

// injectionMarkers are role-switch and instruction-override phrases commonly
// used to subvert the report generator.
var injectionMarkers = []string{
	"system:",
	"assistant:",
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard previous instructions",
	"disregard your instructions",
	"you are now",
	"pretend to be",
	"new instructions:",
}

// PromptResult carries the validation outcome together with the sanitized
// text, which is returned even when invalid so callers can log and inspect it.
type PromptResult struct {
	IsValid   bool     `json:"is_valid"`
	Sanitized string   `json:"sanitized"`
	Errors    []string `json:"errors,omitempty"`
}

// ValidatePrompt bounds the prompt length, sanitizes it, and scans the
// sanitized text for prompt-injection markers.
func ValidatePrompt(prompt string) PromptResult {
	var errs []string

	if len(prompt) < MinPromptLength {
		errs = append(errs, "prompt must not be empty")
	}
	if len(prompt) > MaxPromptLength {
		errs = append(errs, fmt.Sprintf("prompt exceeds maximum length of %d characters", MaxPromptLength))
	}

	sanitized := SanitizeText(prompt)
	lower := strings.ToLower(sanitized)
	for _, marker := range injectionMarkers {
		if strings.Contains(lower, marker) {
			errs = append(errs, fmt.Sprintf("prompt contains disallowed pattern %q", marker))
		}
	}

	return PromptResult{IsValid: len(errs) == 0, Sanitized: sanitized, Errors: errs}
}
