package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/GophBank/internal/admin"
	"github.com/atinyakov/GophBank/internal/backend"
	"github.com/atinyakov/GophBank/internal/onboarding"
	"github.com/atinyakov/GophBank/internal/service"
)

// errorResponse is the JSON body of every non-2xx answer.
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var verr *onboarding.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, statusFor(err), resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		verr    *onboarding.ValidationError
		blocked *admin.ApprovalBlockedError
		berr    *backend.Error
	)
	switch {
	case errors.As(err, &verr), errors.Is(err, admin.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, onboarding.ErrInvalidOTP),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, onboarding.ErrWrongStage),
		errors.Is(err, onboarding.ErrResendDisabled),
		errors.Is(err, onboarding.ErrNoPreviousStage),
		errors.Is(err, admin.ErrFinalized):
		return http.StatusConflict
	case errors.As(err, &blocked), errors.Is(err, admin.ErrNoCustomer):
		return http.StatusUnprocessableEntity
	case errors.As(err, &berr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
