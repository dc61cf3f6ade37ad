package validation

import (
	"regexp"
	"strings"
)

// MaxEmailLength is the RFC 3696 total length ceiling for an address.
const MaxEmailLength = 320

var emailShape = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// ValidateEmail checks address shape, length, dot placement, and the absence
// of dangerous characters or schemes.
func ValidateEmail(email string) bool {
	if email == "" || len(email) > MaxEmailLength {
		return false
	}
	if ContainsDangerousPattern(email) {
		return false
	}
	if strings.Contains(email, "..") {
		return false
	}
	if strings.HasPrefix(email, ".") || strings.HasSuffix(email, ".") {
		return false
	}
	local, _, found := strings.Cut(email, "@")
	if !found || strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return false
	}
	return emailShape.MatchString(email)
}
