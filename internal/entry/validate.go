package entry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrSchemaViolation marks a write-rejecting validation failure. Warnings
// never carry it; they ride along with an otherwise valid entry.
var ErrSchemaViolation = errors.New("schema violation")

var errEmptyTimestamp = errors.New("empty timestamp")

// idPattern: type prefix, source-anchor slug, 8 hex chars of content hash.
var idPattern = regexp.MustCompile(`^[a-z]+-[a-z0-9_]+-[a-f0-9]{8}$`)

var validTypes = map[string]bool{
	TypeDecision: true, TypeLesson: true, TypeConstraint: true,
	TypeRisk: true, TypeFact: true,
}

var validClassifications = map[string]bool{ClassHard: true, ClassSoft: true}

var validSeverities = map[string]bool{SeverityS1: true, SeverityS2: true, SeverityS3: true}

const (
	maxTitleLen   = 120
	minContentLen = 2
	maxContentLen = 6
)

// ValidationResult separates write-rejecting errors from advisory warnings.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether the entry may be appended.
func (r *ValidationResult) Valid() bool { return len(r.Errors) == 0 }

// Err returns a single error wrapping ErrSchemaViolation, or nil.
func (r *ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(r.Errors, "; "))
}

// Validate checks the entry schema. Errors reject the write; warnings are
// returned for reporting but never block an append.
func Validate(e *Entry) *ValidationResult {
	r := &ValidationResult{}

	if e.ID == "" {
		r.Errors = append(r.Errors, "missing required field: id")
	} else if !idPattern.MatchString(e.ID) {
		r.Errors = append(r.Errors, fmt.Sprintf("invalid id format: %q", e.ID))
	}

	if e.Type == "" {
		r.Errors = append(r.Errors, "missing required field: type")
	} else if !validTypes[e.Type] {
		r.Errors = append(r.Errors, fmt.Sprintf("invalid type: %q", e.Type))
	}

	if e.Classification == "" {
		r.Errors = append(r.Errors, "missing required field: classification")
	} else if !validClassifications[e.Classification] {
		r.Errors = append(r.Errors, fmt.Sprintf("invalid classification: %q", e.Classification))
	}

	if e.Severity != "" && !validSeverities[e.Severity] {
		r.Errors = append(r.Errors, fmt.Sprintf("invalid severity: %q", e.Severity))
	}
	if e.Classification == ClassHard && e.Severity == "" {
		r.Warnings = append(r.Warnings, "hard entry without severity")
	}

	if e.Title == "" {
		r.Errors = append(r.Errors, "missing required field: title")
	} else if len(e.Title) > maxTitleLen {
		r.Warnings = append(r.Warnings, fmt.Sprintf("title is %d chars (max %d)", len(e.Title), maxTitleLen))
	}

	if n := len(e.Content); n < minContentLen || n > maxContentLen {
		r.Warnings = append(r.Warnings, fmt.Sprintf("content has %d items (expected %d-%d)", n, minContentLen, maxContentLen))
	}

	// At least one of rule/implication must be present: an entry with
	// neither carries nothing actionable.
	if e.Rule == nil && e.Implication == nil {
		r.Errors = append(r.Errors, "at least one of rule or implication must be non-null")
	}

	if len(e.Source) == 0 {
		r.Errors = append(r.Errors, "source must be a non-empty list")
	}
	for i, src := range e.Source {
		if strings.TrimSpace(src) == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("source[%d] must be a non-empty string", i))
		} else if ParseRef(src).Kind == RefUnknown {
			r.Warnings = append(r.Warnings, fmt.Sprintf("source[%d] %q does not match any known format", i, src))
		}
	}

	if e.CreatedAt == "" {
		r.Errors = append(r.Errors, "missing required field: created_at")
	} else if _, err := ParseTime(e.CreatedAt); err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("invalid created_at: %q", e.CreatedAt))
	}
	if e.LastVerified != "" {
		if _, err := ParseTime(e.LastVerified); err != nil {
			r.Warnings = append(r.Warnings, fmt.Sprintf("invalid last_verified: %q", e.LastVerified))
		}
	}

	if e.Verify != "" {
		if status, msg := CheckVerifyCommand(e.Verify, nil); status != "OK" {
			r.Warnings = append(r.Warnings, fmt.Sprintf("verify command: %s", msg))
		}
	}

	return r
}
