package onboarding

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidOTP is returned when the backend rejects the submitted code.
	ErrInvalidOTP = errors.New("invalid or expired OTP")
	// ErrResendDisabled is returned when a resend is attempted before the
	// countdown has reached zero. No backend call is made.
	ErrResendDisabled = errors.New("OTP resend is not available yet")
	// ErrWrongStage is returned when an operation is invoked from a stage
	// that does not allow it.
	ErrWrongStage = errors.New("operation not allowed in current stage")
	// ErrNoPreviousStage is returned by GoBack from EmailEntry or Submitted.
	ErrNoPreviousStage = errors.New("no previous stage")
)

// ValidationError carries field-scoped input errors detected locally.
// A ValidationError never results from a backend call.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the message recorded for field, if any.
func (e *ValidationError) Field(field string) (string, bool) {
	msg, ok := e.Fields[field]
	return msg, ok
}

// stageError wraps ErrWrongStage with the stage names involved.
func stageError(op string, got, want Stage) error {
	return fmt.Errorf("%s: in %s, expected %s: %w", op, got, want, ErrWrongStage)
}
