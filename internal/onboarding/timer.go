package onboarding

import (
	"context"
	"sync"
	"time"

	"github.com/atinyakov/GophBank/internal/models"
)

// TimerKey is the durable storage key of the OTP resend countdown.
const TimerKey = "otpTimerState"

// DefaultResendWindow is how long resend stays disabled after an OTP is sent.
const DefaultResendWindow = 120 * time.Second

// SessionTimerKey scopes TimerKey to one server-side session.
func SessionTimerKey(sessionID string) string {
	return TimerKey + "/" + sessionID
}

// TimerStore persists the OTP countdown so that a reload recomputes the
// remaining time from the absolute expiry instead of restarting it.
type TimerStore interface {
	// LoadTimer returns the state stored under key, or nil if there is none.
	LoadTimer(ctx context.Context, key string) (*models.TimerState, error)
	// SaveTimer stores st under key, replacing any previous value.
	SaveTimer(ctx context.Context, key string, st models.TimerState) error
	// DeleteTimer removes key. Deleting a missing key is not an error.
	DeleteTimer(ctx context.Context, key string) error
}

// remainingSeconds returns the whole seconds left until expiry, rounded up,
// and never negative.
func remainingSeconds(st *models.TimerState, now time.Time) int {
	if st == nil {
		return 0
	}
	left := st.ExpiryTime - now.UnixMilli()
	if left <= 0 {
		return 0
	}
	return int((left + 999) / 1000)
}

// Countdown reports the remaining resend seconds to tick once per second
// until they reach zero or ctx is cancelled. The final tick is always 0
// unless ctx ends first.
func Countdown(ctx context.Context, w *Workflow, tick func(remaining int)) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		remaining, err := w.ResendRemaining(ctx)
		if err != nil {
			return err
		}
		tick(remaining)
		if remaining == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// MemoryTimerStore keeps timers in process memory. It is safe for
// concurrent use.
type MemoryTimerStore struct {
	mu     sync.Mutex
	timers map[string]models.TimerState
}

// NewMemoryTimerStore returns an empty MemoryTimerStore.
func NewMemoryTimerStore() *MemoryTimerStore {
	return &MemoryTimerStore{timers: make(map[string]models.TimerState)}
}

func (m *MemoryTimerStore) LoadTimer(_ context.Context, key string) (*models.TimerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.timers[key]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *MemoryTimerStore) SaveTimer(_ context.Context, key string, st models.TimerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[key] = st
	return nil
}

func (m *MemoryTimerStore) DeleteTimer(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, key)
	return nil
}
