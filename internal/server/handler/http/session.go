package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/atinyakov/GophBank/internal/middleware"
	"github.com/atinyakov/GophBank/internal/service"
)

// SessionManager starts and ends sessions.
type SessionManager interface {
	Start(ctx context.Context, token string) (*service.Session, error)
	End(ctx context.Context, id string) error
}

// SessionHandler handles POST and DELETE /api/sessions.
type SessionHandler struct {
	Sessions SessionManager
}

type sessionResponse struct {
	SessionID string    `json:"sessionId"`
	Subject   string    `json:"subject,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	Admin     bool      `json:"admin"`
}

// Start opens a session. An optional "Authorization: Bearer <token>" header
// binds the session to a backend token and enables the admin endpoints.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	sess, err := h.Sessions.Start(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: sess.ID,
		Subject:   sess.Subject,
		ExpiresAt: sess.ExpiresAt,
		Admin:     sess.Reviewer != nil,
	})
}

// End logs out: the session and its OTP countdown are discarded.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetSessionIDFromContext(r.Context())
	if err := h.Sessions.End(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
