package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/GophBank/internal/backend"
	"github.com/atinyakov/GophBank/internal/models"
	"github.com/atinyakov/GophBank/internal/onboarding"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	token string
}

func (b *stubBackend) SendOTP(context.Context, string) (string, error) { return "sent", nil }
func (b *stubBackend) ResendOTP(context.Context, string) (string, error) {
	return "resent", nil
}
func (b *stubBackend) VerifyOTP(context.Context, string, string) (bool, error) { return true, nil }
func (b *stubBackend) Apply(context.Context, models.PersonalDetails) (*models.ApplicationRecord, error) {
	return &models.ApplicationRecord{ID: 1}, nil
}
func (b *stubBackend) UploadKYC(context.Context, int64, models.KYCDocuments) (string, error) {
	return "uploaded", nil
}
func (b *stubBackend) ListApplications(context.Context) ([]models.ApplicationRecord, error) {
	return nil, nil
}
func (b *stubBackend) GetApplication(context.Context, int64) (*models.ApplicationRecord, error) {
	return nil, errors.New("not found")
}
func (b *stubBackend) Approve(context.Context, int64) (string, error)        { return "", nil }
func (b *stubBackend) Reject(context.Context, int64, string) (string, error) { return "", nil }
func (b *stubBackend) VerifyDocument(context.Context, int64, models.DocumentType) (string, error) {
	return "", nil
}
func (b *stubBackend) ViewImage(context.Context, string) (*backend.Image, error) {
	return nil, errors.New("no image")
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*SessionService, *onboarding.MemoryTimerStore, *testClock, *[]string) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	timers := onboarding.NewMemoryTimerStore()
	var tokens []string
	svc := NewSessionService(timers, func(token string) Backend {
		tokens = append(tokens, token)
		return &stubBackend{token: token}
	}, WithClock(clock.Now))
	return svc, timers, clock, &tokens
}

func signToken(t *testing.T, claims tokenClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestStart_Anonymous(t *testing.T) {
	svc, _, clock, tokens := newTestService(t)

	sess, err := svc.Start(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, clock.Now().Add(DefaultTTL), sess.ExpiresAt)
	assert.Nil(t, sess.Reviewer, "anonymous sessions have no reviewer")
	assert.Equal(t, onboarding.StageEmailEntry, sess.Workflow.Stage())
	assert.Equal(t, []string{""}, *tokens)

	got, err := svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestStart_TokenClaims(t *testing.T) {
	svc, _, clock, tokens := newTestService(t)
	exp := clock.Now().Add(5 * time.Minute)
	token := signToken(t, tokenClaims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "admin@bank", ExpiresAt: jwt.NewNumericDate(exp)}})

	sess, err := svc.Start(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "admin@bank", sess.Subject)
	assert.True(t, sess.ExpiresAt.Equal(exp))
	assert.NotNil(t, sess.Reviewer)
	assert.Equal(t, []string{token}, *tokens)
}

func TestStart_TokenErrors(t *testing.T) {
	svc, _, clock, _ := newTestService(t)

	_, err := svc.Start(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := signToken(t, tokenClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.Now().Add(-time.Second))}})
	_, err = svc.Start(context.Background(), expired)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestGet_ExpiredIsAbsent(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	sess, err := svc.Start(context.Background(), "")
	require.NoError(t, err)

	clock.Advance(DefaultTTL)
	_, err = svc.Get(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Get(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEnd_ClearsTimer(t *testing.T) {
	ctx := context.Background()
	svc, timers, _, _ := newTestService(t)
	sess, err := svc.Start(ctx, "")
	require.NoError(t, err)

	require.NoError(t, sess.Workflow.RequestOTP(ctx, "asha@example.com"))
	key := onboarding.SessionTimerKey(sess.ID)
	st, err := timers.LoadTimer(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, st, "countdown should be stored under the session key")

	require.NoError(t, svc.End(ctx, sess.ID))
	st, err = timers.LoadTimer(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, st)

	assert.ErrorIs(t, svc.End(ctx, sess.ID), ErrSessionNotFound)
}

func TestSessions_IndependentTimers(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	a, _ := svc.Start(ctx, "")
	b, _ := svc.Start(ctx, "")

	require.NoError(t, a.Workflow.RequestOTP(ctx, "a@example.com"))

	ra, err := a.Workflow.ResendRemaining(ctx)
	require.NoError(t, err)
	rb, err := b.Workflow.ResendRemaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, ra)
	assert.Equal(t, 0, rb)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	svc, _, clock, _ := newTestService(t)
	old, _ := svc.Start(ctx, "")
	clock.Advance(DefaultTTL / 2)
	fresh, _ := svc.Start(ctx, "")
	clock.Advance(DefaultTTL / 2)

	assert.Equal(t, 1, svc.Sweep(ctx))
	_, err := svc.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestStart_NonAdminTokenHasNoReviewer(t *testing.T) {
	svc, _, _, tokens := newTestService(t)
	token := signToken(t, tokenClaims{Role: "CUSTOMER", RegisteredClaims: jwt.RegisteredClaims{Subject: "asha@example.com"}})

	sess, err := svc.Start(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, sess.Reviewer)
	assert.Equal(t, "CUSTOMER", sess.Role)
	assert.Equal(t, []string{token}, *tokens, "the workflow still calls the backend with the token")
}

func TestOnEnd_RunsForEndAndSweep(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	var ended []string
	svc := NewSessionService(onboarding.NewMemoryTimerStore(),
		func(string) Backend { return &stubBackend{} },
		WithClock(clock.Now),
		WithOnEnd(func(id string) { ended = append(ended, id) }),
	)

	a, _ := svc.Start(ctx, "")
	b, _ := svc.Start(ctx, "")
	require.NoError(t, svc.End(ctx, a.ID))
	clock.Advance(DefaultTTL)
	assert.Equal(t, 1, svc.Sweep(ctx))

	assert.Equal(t, []string{a.ID, b.ID}, ended)
}

// memoryStore is an in-process Store shared between service instances.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	deleted []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]Record)}
}

func (m *memoryStore) SaveSession(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *memoryStore) LoadSession(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func TestRestart_ResumesStageAndCountdown(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	timers := onboarding.NewMemoryTimerStore()
	store := newMemoryStore()
	newService := func() *SessionService {
		return NewSessionService(timers, func(string) Backend { return &stubBackend{} },
			WithClock(clock.Now), WithStore(store))
	}

	first := newService()
	sess, err := first.Start(ctx, "")
	require.NoError(t, err)
	require.NoError(t, sess.Workflow.RequestOTP(ctx, "asha@example.com"))
	assert.Equal(t, onboarding.StageOtpPending, store.records[sess.ID].Snapshot.Stage)

	clock.Advance(45 * time.Second)

	second := newService()
	resumed, err := second.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, onboarding.StageOtpPending, resumed.Workflow.Stage())
	assert.Equal(t, "asha@example.com", resumed.Workflow.Email())
	remaining, err := resumed.Workflow.ResendRemaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 75, remaining)

	again, err := second.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Same(t, resumed, again)

	require.NoError(t, second.End(ctx, sess.ID))
	_, ok := store.records[sess.ID]
	assert.False(t, ok, "ended sessions must not be written back")
	_, err = newService().Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResume_ExpiredAndBroken(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newMemoryStore()
	svc := NewSessionService(onboarding.NewMemoryTimerStore(), func(string) Backend { return &stubBackend{} },
		WithClock(clock.Now), WithStore(store))

	store.records["old"] = Record{ID: "old", ExpiresAt: clock.Now().Add(-time.Minute)}
	store.records["broken"] = Record{
		ID:        "broken",
		ExpiresAt: clock.Now().Add(time.Hour),
		Snapshot:  onboarding.Snapshot{Stage: onboarding.StageKycUpload},
	}

	_, err := svc.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Get(ctx, "broken")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, store.records)
}
