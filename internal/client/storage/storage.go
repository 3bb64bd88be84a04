// Package storage is the shell's durable local storage: a JSON file of
// keyed values that survives restarts. It keeps the OTP countdown and the
// onboarding snapshot so an interrupted flow can be resumed.
package storage

import (
	"context"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/atinyakov/GophBank/internal/models"
	"github.com/atinyakov/GophBank/internal/onboarding"
)

// SessionKey stores the onboarding snapshot.
const SessionKey = "onboardingSession"

// LocalStorage is a file-backed key/value store. Every mutation is written
// through to disk. With a cipher configured, values are stored encrypted.
type LocalStorage struct {
	Items map[string]json.RawMessage `json:"items"`

	path string
	aead cipher.AEAD
	mu   sync.Mutex
}

// Option configures a LocalStorage.
type Option func(*LocalStorage)

// WithCipher encrypts every stored value with aead.
func WithCipher(aead cipher.AEAD) Option {
	return func(ls *LocalStorage) { ls.aead = aead }
}

// Open loads the store at path, starting empty if the file does not exist.
func Open(path string, opts ...Option) (*LocalStorage, error) {
	ls := &LocalStorage{path: path}
	for _, opt := range opts {
		opt(ls)
	}
	if err := ls.Load(); err != nil {
		return nil, err
	}
	return ls, nil
}

// Load re-reads the file.
func (ls *LocalStorage) Load() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	f, err := os.Open(ls.path)
	if err != nil {
		if os.IsNotExist(err) {
			ls.Items = make(map[string]json.RawMessage)
			return nil
		}
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(ls); err != nil {
		return fmt.Errorf("decode %s: %w", ls.path, err)
	}
	if ls.Items == nil {
		ls.Items = make(map[string]json.RawMessage)
	}
	return nil
}

// save writes the file atomically. Callers hold mu.
func (ls *LocalStorage) save() error {
	b, err := json.Marshal(ls)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(ls.path), ".storage-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), ls.path)
}

// Get decodes the value stored under key into v. It reports false when the
// key is absent.
func (ls *LocalStorage) Get(key string, v any) (bool, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	raw, ok := ls.Items[key]
	if !ok {
		return false, nil
	}
	if ls.aead != nil {
		var sealed string
		if err := json.Unmarshal(raw, &sealed); err != nil {
			return false, fmt.Errorf("decode %q: %w", key, err)
		}
		plain, err := open(ls.aead, sealed)
		if err != nil {
			return false, fmt.Errorf("open %q: %w", key, err)
		}
		raw = plain
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Set stores v under key and saves the file.
func (ls *LocalStorage) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if ls.aead != nil {
		sealed, err := seal(ls.aead, raw)
		if err != nil {
			return fmt.Errorf("seal %q: %w", key, err)
		}
		if raw, err = json.Marshal(sealed); err != nil {
			return err
		}
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.Items == nil {
		ls.Items = make(map[string]json.RawMessage)
	}
	ls.Items[key] = raw
	return ls.save()
}

// Remove deletes key and saves the file. Removing a missing key is a no-op.
func (ls *LocalStorage) Remove(key string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if _, ok := ls.Items[key]; !ok {
		return nil
	}
	delete(ls.Items, key)
	return ls.save()
}

// LoadTimer implements onboarding.TimerStore.
func (ls *LocalStorage) LoadTimer(_ context.Context, key string) (*models.TimerState, error) {
	var st models.TimerState
	ok, err := ls.Get(key, &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

// SaveTimer implements onboarding.TimerStore.
func (ls *LocalStorage) SaveTimer(_ context.Context, key string, st models.TimerState) error {
	return ls.Set(key, st)
}

// DeleteTimer implements onboarding.TimerStore.
func (ls *LocalStorage) DeleteTimer(_ context.Context, key string) error {
	return ls.Remove(key)
}

// SaveSession persists the workflow snapshot.
func (ls *LocalStorage) SaveSession(s onboarding.Snapshot) error {
	return ls.Set(SessionKey, s)
}

// LoadSession returns the persisted snapshot, or nil if none was saved.
func (ls *LocalStorage) LoadSession() (*onboarding.Snapshot, error) {
	var s onboarding.Snapshot
	ok, err := ls.Get(SessionKey, &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

// ClearSession removes the snapshot and the OTP timer.
func (ls *LocalStorage) ClearSession() error {
	return errors.Join(ls.Remove(SessionKey), ls.Remove(onboarding.TimerKey))
}
