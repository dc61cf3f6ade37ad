package validation

import (
	"fmt"
	"strings"
)

// bodyPatterns is the basic injection scan run by the request guard across
// serialized request bodies. Deliberately coarse; field-level validation
// happens in the handlers.
var bodyPatterns = []string{
	"<script",
	"javascript:",
	"vbscript:",
	"data:text/html",
	"onerror=",
	"onload=",
	"document.cookie",
	"<iframe",
	"<object",
	"<embed",
}

// ScanBody returns a description for every injection pattern present in the
// serialized request body. An empty slice means the body passed the scan.
func ScanBody(body []byte) []string {
	if len(body) == 0 {
		return nil
	}
	lower := strings.ToLower(string(body))
	var errs []string
	for _, p := range bodyPatterns {
		if strings.Contains(lower, p) {
			errs = append(errs, fmt.Sprintf("request body contains disallowed pattern %q", p))
		}
	}
	return errs
}
