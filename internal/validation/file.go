package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxUploadSize is the application-level ceiling for uploaded files.
// The edge middleware applies a looser 25MB Content-Length cut-off first.
const MaxUploadSize = 20 * 1024 * 1024

// FileInfo carries the upload metadata under validation.
type FileInfo struct {
	Name        string
	Size        int64
	ContentType string
}

// Result accumulates validation errors; validity is their absence.
type Result struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

var (
	allowedFilename = regexp.MustCompile(`(?i)^[^.\s][^/\\]*\.(pdf|docx|xlsx|txt)$`)

	// executableExt flags executable extensions anywhere in the name so
	// double extensions such as report.exe.pdf are caught.
	executableExt = regexp.MustCompile(`(?i)\.(exe|bat|cmd|com|scr|pif|msi|dll|sh|bash|ps1|vbs|js|jar|php|py|rb|pl)(\.|$)`)

	dangerousFilenameChars = regexp.MustCompile("[<>:\"'`|?*\x00]")
)

var allowedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       {},
	"text/plain": {},
}

// ValidateFileUpload runs every applicable check against the upload metadata
// and accumulates all failures, so callers can present complete feedback and
// the audit log captures the full violation set in one event.
func ValidateFileUpload(file FileInfo) Result {
	var errs []string

	if file.Size <= 0 {
		errs = append(errs, "file is empty")
	}
	if file.Size > MaxUploadSize {
		errs = append(errs, fmt.Sprintf("file exceeds maximum size of %d bytes", MaxUploadSize))
	}

	if !allowedFilename.MatchString(file.Name) {
		errs = append(errs, "filename must end in .pdf, .docx, .xlsx, or .txt")
	}

	mime := file.ContentType
	if i := strings.Index(mime, ";"); i != -1 {
		mime = strings.TrimSpace(mime[:i])
	}
	if _, ok := allowedContentTypes[strings.ToLower(mime)]; !ok {
		errs = append(errs, fmt.Sprintf("content type %q is not allowed", file.ContentType))
	}

	if executableExt.MatchString(file.Name) {
		errs = append(errs, "filename contains an executable extension")
	}
	if strings.Contains(file.Name, "..") || strings.ContainsAny(file.Name, "/\\") || dangerousFilenameChars.MatchString(file.Name) {
		errs = append(errs, "filename contains path traversal or dangerous characters")
	}

	return Result{IsValid: len(errs) == 0, Errors: errs}
}
