// Package middleware provides HTTP middlewares for sessions, rate limiting
// and logging.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/atinyakov/GophBank/internal/service"
)

// SessionHeader carries the session ID issued by POST /api/sessions.
const SessionHeader = "X-Session-ID"

type ctxKey string

const (
	sessionIDKey ctxKey = "sessionID"
	sessionKey   ctxKey = "session"
)

// SessionStore resolves a session ID.
type SessionStore interface {
	Get(ctx context.Context, id string) (*service.Session, error)
}

// RequireSession rejects requests without a live session and stores the
// resolved session in the request context.
func RequireSession(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(SessionHeader)
			if id == "" {
				http.Error(w, "missing "+SessionHeader+" header", http.StatusUnauthorized)
				return
			}
			sess, err := store.Get(r.Context(), id)
			if errors.Is(err, service.ErrSessionNotFound) {
				http.Error(w, "session not found or expired", http.StatusUnauthorized)
				return
			}
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			ctx := context.WithValue(r.Context(), sessionIDKey, sess.ID)
			ctx = context.WithValue(ctx, sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireToken rejects sessions that were started without a bearer token.
// It must run after RequireSession.
func RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if sess == nil || sess.Reviewer == nil {
			http.Error(w, "admin token required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetSessionIDFromContext returns the session ID stored by RequireSession,
// or an empty string if none.
func GetSessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sessionIDKey).(string); ok {
		return s
	}
	return ""
}

// SessionFromContext returns the session stored by RequireSession, or nil.
func SessionFromContext(ctx context.Context) *service.Session {
	s, _ := ctx.Value(sessionKey).(*service.Session)
	return s
}
