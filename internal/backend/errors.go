package backend

import (
	"errors"
	"fmt"
)

// Error is returned for any failed backend call: a transport failure,
// a non-2xx status or a body that could not be understood.
type Error struct {
	// Op names the backend operation, e.g. "send-otp".
	Op string
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	// Message is the human readable reason, taken from the JSON "message"
	// or "error" field or the raw text body.
	Message string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.StatusCode)
}

// IsClientError reports whether the backend rejected the request itself (4xx).
func (e *Error) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// AsError unwraps err into a *Error if it is one.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
