// Package service keeps the per-applicant onboarding sessions of the
// front-end server. Each session owns its own workflow and, when started
// with a bearer token carrying the admin role, a reviewer bound to that token.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atinyakov/GophBank/internal/admin"
	"github.com/atinyakov/GophBank/internal/onboarding"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTTL bounds sessions whose token carries no exp claim.
const DefaultTTL = 30 * time.Minute

// DefaultAdminRole is the role claim that enables the review endpoints.
const DefaultAdminRole = "ADMIN"

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidToken is returned when the bearer token is not a JWT.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when the bearer token's exp is in the past.
	ErrTokenExpired = errors.New("token expired")
)

// Backend is what a session needs from the banking backend: the onboarding
// calls plus the admin review calls.
type Backend interface {
	onboarding.Backend
	admin.Backend
}

// BackendFactory returns a backend client that authenticates with token.
// An empty token means an anonymous applicant.
type BackendFactory func(token string) Backend

// tokenClaims are the JWT claims read from a bearer token.
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Record is the durable form of a Session.
type Record struct {
	ID        string
	Token     string
	Subject   string
	Role      string
	ExpiresAt time.Time
	Snapshot  onboarding.Snapshot
}

// Store persists sessions so that a restarted server can resume them.
type Store interface {
	SaveSession(ctx context.Context, rec Record) error
	// LoadSession returns nil, nil when id is unknown.
	LoadSession(ctx context.Context, id string) (*Record, error)
	DeleteSession(ctx context.Context, id string) error
}

// Session is one connected applicant or reviewer.
type Session struct {
	ID        string
	Token     string
	Subject   string
	Role      string
	ExpiresAt time.Time

	Workflow *onboarding.Workflow
	// Reviewer is nil unless the token carries the admin role.
	Reviewer *admin.Reviewer
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Option configures a SessionService.
type Option func(*SessionService)

// WithClock overrides the time source for sessions and their workflows.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *SessionService) { s.log = log }
}

// WithTTL changes the lifetime of sessions without a token exp.
func WithTTL(ttl time.Duration) Option {
	return func(s *SessionService) { s.ttl = ttl }
}

// WithStore persists sessions in store. Without it sessions are lost on restart.
func WithStore(store Store) Option {
	return func(s *SessionService) { s.store = store }
}

// WithOnEnd registers fn to run with the ID of every ended session,
// whether it was ended explicitly or swept after expiry.
func WithOnEnd(fn func(id string)) Option {
	return func(s *SessionService) { s.onEnd = append(s.onEnd, fn) }
}

// WithAdminRole changes the role claim required for the review endpoints.
func WithAdminRole(role string) Option {
	return func(s *SessionService) { s.adminRole = role }
}

// SessionService creates, looks up and ends sessions.
type SessionService struct {
	mu       sync.Mutex
	sessions map[string]*Session

	timers     onboarding.TimerStore
	newBackend BackendFactory
	store      Store
	onEnd      []func(id string)
	now        func() time.Time
	log        *zap.Logger
	ttl        time.Duration
	adminRole  string
}

// NewSessionService constructs a SessionService. Countdowns of every session
// are kept in timers under onboarding.SessionTimerKey.
func NewSessionService(timers onboarding.TimerStore, newBackend BackendFactory, opts ...Option) *SessionService {
	s := &SessionService{
		sessions:   make(map[string]*Session),
		timers:     timers,
		newBackend: newBackend,
		now:        time.Now,
		log:        zap.NewNop(),
		ttl:        DefaultTTL,
		adminRole:  DefaultAdminRole,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a new session. token may be empty; otherwise its exp, sub and
// role claims are read without verifying the signature, the backend being
// the authority on the token itself.
func (s *SessionService) Start(ctx context.Context, token string) (*Session, error) {
	now := s.now()
	rec := Record{
		ID:        uuid.NewString(),
		Token:     token,
		ExpiresAt: now.Add(s.ttl),
	}

	if token != "" {
		var claims tokenClaims
		if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if claims.ExpiresAt != nil {
			if !now.Before(claims.ExpiresAt.Time) {
				return nil, ErrTokenExpired
			}
			rec.ExpiresAt = claims.ExpiresAt.Time
		}
		rec.Subject = claims.Subject
		rec.Role = claims.Role
	}

	sess := s.build(rec)
	rec.Snapshot = sess.Workflow.Snapshot()
	if s.store != nil {
		if err := s.store.SaveSession(ctx, rec); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.log.Info("session started",
		zap.String("session", sess.ID),
		zap.String("subject", sess.Subject),
		zap.Bool("admin", sess.Reviewer != nil),
		zap.Time("expires", sess.ExpiresAt))
	return sess, nil
}

// build wires a Session for rec. The workflow reports every transition back
// to the store.
func (s *SessionService) build(rec Record) *Session {
	sess := &Session{
		ID:        rec.ID,
		Token:     rec.Token,
		Subject:   rec.Subject,
		Role:      rec.Role,
		ExpiresAt: rec.ExpiresAt,
	}
	log := s.log.With(zap.String("session", sess.ID))
	b := s.newBackend(rec.Token)
	sess.Workflow = onboarding.New(b, s.timers,
		onboarding.WithClock(s.now),
		onboarding.WithLogger(log),
		onboarding.WithTimerKey(onboarding.SessionTimerKey(sess.ID)),
		onboarding.WithOnTransition(func(ctx context.Context, snap onboarding.Snapshot) {
			s.checkpoint(ctx, sess, snap)
		}),
	)
	if rec.Token != "" && strings.EqualFold(rec.Role, s.adminRole) {
		sess.Reviewer = admin.NewReviewer(b, log)
	}
	return sess
}

// checkpoint stores snap for a live session. Ended sessions are skipped so a
// Discard during End does not resurrect the row.
func (s *SessionService) checkpoint(ctx context.Context, sess *Session, snap onboarding.Snapshot) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	live := s.sessions[sess.ID] == sess
	s.mu.Unlock()
	if !live {
		return
	}
	rec := Record{
		ID:        sess.ID,
		Token:     sess.Token,
		Subject:   sess.Subject,
		Role:      sess.Role,
		ExpiresAt: sess.ExpiresAt,
		Snapshot:  snap,
	}
	if err := s.store.SaveSession(ctx, rec); err != nil {
		s.log.Error("failed to persist session",
			zap.String("session", sess.ID),
			zap.Stringer("stage", snap.Stage),
			zap.Error(err))
	}
}

// Get returns the live session with id. A session missing from memory is
// resumed from the store, stage and countdown included. Expired sessions are
// ended and reported as ErrSessionNotFound.
func (s *SessionService) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		var err error
		if sess, err = s.resume(ctx, id); err != nil {
			return nil, err
		}
	}
	if sess.Expired(s.now()) {
		_ = s.End(ctx, id)
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *SessionService) resume(ctx context.Context, id string) (*Session, error) {
	if s.store == nil {
		return nil, ErrSessionNotFound
	}
	rec, err := s.store.LoadSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if rec == nil {
		return nil, ErrSessionNotFound
	}

	sess := s.build(*rec)
	if err := sess.Workflow.Restore(rec.Snapshot); err != nil {
		s.log.Warn("dropping unrestorable session", zap.String("session", id), zap.Error(err))
		if derr := s.store.DeleteSession(ctx, id); derr != nil {
			s.log.Error("failed to delete session", zap.String("session", id), zap.Error(derr))
		}
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		sess = existing
	} else {
		s.sessions[id] = sess
	}
	s.mu.Unlock()

	s.log.Info("session resumed",
		zap.String("session", id),
		zap.Stringer("stage", rec.Snapshot.Stage))
	return sess, nil
}

// End removes the session, clears its OTP countdown and runs the WithOnEnd hooks.
func (s *SessionService) End(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.Workflow.Discard(ctx)
	if s.store != nil {
		if err := s.store.DeleteSession(ctx, id); err != nil {
			s.log.Error("failed to delete session", zap.String("session", id), zap.Error(err))
		}
	}
	for _, fn := range s.onEnd {
		fn(id)
	}
	s.log.Info("session ended", zap.String("session", id))
	return nil
}

// Sweep ends every expired session and returns how many were removed.
func (s *SessionService) Sweep(ctx context.Context) int {
	now := s.now()
	var expired []string
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, id := range expired {
		if s.End(ctx, id) == nil {
			n++
		}
	}
	return n
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *SessionService) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(ctx); n > 0 {
					s.log.Info("expired sessions removed", zap.Int("removed", n))
				}
			}
		}
	}()
}
