package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation matches any *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// FailureKind identifies which rule a document broke.
type FailureKind string

const (
	FailureRequired FailureKind = "required" // value absent or nil
	FailureEnum     FailureKind = "enum"     // value outside the allowed set
)

// Failure is a single broken rule.
type Failure struct {
	Field   string      `json:"field"`
	Kind    FailureKind `json:"kind"`
	Value   any         `json:"value,omitempty"`
	Message string      `json:"message"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// ValidationError holds every failure found while validating a document.
type ValidationError struct {
	Failures []Failure `json:"failures"`
}

// Error returns a combined error message.
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Has reports whether field failed with the given kind.
func (e *ValidationError) Has(field string, kind FailureKind) bool {
	for _, f := range e.Failures {
		if f.Field == field && f.Kind == kind {
			return true
		}
	}
	return false
}

// Fields returns the distinct failing field names in failure order.
func (e *ValidationError) Fields() []string {
	seen := make(map[string]bool, len(e.Failures))
	var out []string
	for _, f := range e.Failures {
		if !seen[f.Field] {
			seen[f.Field] = true
			out = append(out, f.Field)
		}
	}
	return out
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
