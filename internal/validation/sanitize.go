package validation

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MaxTextLength caps sanitized free-form text fields.
const MaxTextLength = 10000

var (
	// dangerousChars is the fixed set of shell/markup-dangerous characters
	// removed from plain-text input.
	dangerousChars = regexp.MustCompile("[<>\"'`;\\\\|{}$&]")

	// dangerousSchemes matches URI schemes that execute in browser contexts.
	dangerousSchemes = regexp.MustCompile(`(?i)(javascript|data|vbscript)\s*:`)

	htmlPolicy = buildHTMLPolicy()
)

func buildHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	// Structural tags only: no links, no media, no scripts, no styles.
	p.AllowElements(
		"p", "br",
		"b", "strong", "i", "em", "u",
		"ul", "ol", "li",
		"h1", "h2", "h3", "h4", "h5", "h6",
	)
	p.AllowAttrs("class").Globally()
	return p
}

// SanitizeHTML strips rich-text input down to an allow-list of structural
// tags plus a class attribute. Scripts, iframes, objects, embeds, links,
// style blocks, and inline event handlers never survive.
func SanitizeHTML(input string) string {
	return htmlPolicy.Sanitize(input)
}

// SanitizeText removes dangerous characters and executable URI schemes from
// plain text, trims surrounding whitespace, and truncates to MaxTextLength.
// The function is idempotent: sanitizing sanitized text is a no-op.
func SanitizeText(input string) string {
	s := dangerousChars.ReplaceAllString(input, "")
	// Stripping a scheme can splice a new occurrence together, so repeat
	// until the output is stable.
	for {
		next := dangerousSchemes.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	s = strings.TrimSpace(s)
	if len(s) > MaxTextLength {
		s = s[:MaxTextLength]
	}
	return strings.TrimSpace(s)
}

// ContainsDangerousPattern reports whether raw input carries characters or
// schemes that SanitizeText would remove.
func ContainsDangerousPattern(input string) bool {
	return dangerousChars.MatchString(input) || dangerousSchemes.MatchString(input)
}
