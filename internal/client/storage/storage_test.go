package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atinyakov/GophBank/internal/models"
	"github.com/atinyakov/GophBank/internal/onboarding"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "onboarding.json")
}

func TestOpen_FileNotExist(t *testing.T) {
	ls, err := Open(tempPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(ls.Items) != 0 {
		t.Errorf("expected no items, got %d", len(ls.Items))
	}
}

func TestOpen_Corrupt(t *testing.T) {
	path := tempPath(t)
	os.WriteFile(path, []byte("{not json"), 0600)

	if _, err := Open(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSetGetRemove_Persist(t *testing.T) {
	path := tempPath(t)
	ls, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := ls.Set("greeting", map[string]string{"hello": "world"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// a fresh store sees the write
	ls2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	ok, err := ls2.Get("greeting", &got)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got["hello"] != "world" {
		t.Errorf("unexpected value %v", got)
	}

	if err := ls2.Remove("greeting"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := ls2.Remove("greeting"); err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}

	ls3, _ := Open(path)
	ok, err = ls3.Get("greeting", &got)
	if err != nil || ok {
		t.Errorf("expected key gone, got ok=%v err=%v", ok, err)
	}
}

func TestTimerStore(t *testing.T) {
	ctx := context.Background()
	ls, _ := Open(tempPath(t))

	st, err := ls.LoadTimer(ctx, onboarding.TimerKey)
	if err != nil || st != nil {
		t.Fatalf("LoadTimer on empty store = %v, %v", st, err)
	}

	if err := ls.SaveTimer(ctx, onboarding.TimerKey, models.TimerState{ExpiryTime: 1700000120000}); err != nil {
		t.Fatalf("SaveTimer failed: %v", err)
	}
	st, err = ls.LoadTimer(ctx, onboarding.TimerKey)
	if err != nil || st == nil || st.ExpiryTime != 1700000120000 {
		t.Fatalf("LoadTimer = %+v, %v", st, err)
	}

	raw, _ := os.ReadFile(ls.path)
	if !strings.Contains(string(raw), `"otpTimerState":{"expiryTime":1700000120000}`) {
		t.Errorf("timer not stored under its key: %s", raw)
	}

	if err := ls.DeleteTimer(ctx, onboarding.TimerKey); err != nil {
		t.Fatalf("DeleteTimer failed: %v", err)
	}
	if st, _ := ls.LoadTimer(ctx, onboarding.TimerKey); st != nil {
		t.Errorf("expected timer removed, got %+v", st)
	}
}

func TestSession_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := tempPath(t)
	ls, _ := Open(path)

	snap := onboarding.Snapshot{
		Stage:         onboarding.StageKycUpload,
		Email:         "asha@example.com",
		Details:       &models.PersonalDetails{FullName: "Asha Rao", PAN: "ABCDE1234F"},
		ApplicationID: 77,
	}
	if err := ls.SaveSession(snap); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	ls.SaveTimer(ctx, onboarding.TimerKey, models.TimerState{ExpiryTime: 1})

	reopened, _ := Open(path)
	got, err := reopened.LoadSession()
	if err != nil || got == nil {
		t.Fatalf("LoadSession = %v, %v", got, err)
	}
	if got.Stage != snap.Stage || got.Email != snap.Email || got.ApplicationID != 77 {
		t.Errorf("snapshot mismatch: %+v", got)
	}
	if got.Details == nil || got.Details.FullName != "Asha Rao" {
		t.Errorf("details lost: %+v", got.Details)
	}

	if err := reopened.ClearSession(); err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}
	if s, _ := reopened.LoadSession(); s != nil {
		t.Errorf("expected no session, got %+v", s)
	}
	if st, _ := reopened.LoadTimer(ctx, onboarding.TimerKey); st != nil {
		t.Errorf("expected timer cleared, got %+v", st)
	}
}

func TestEncryptedValues(t *testing.T) {
	path := tempPath(t)
	aead, err := NewAEAD([]byte("state key"))
	if err != nil {
		t.Fatal(err)
	}
	ls, _ := Open(path, WithCipher(aead))

	details := models.PersonalDetails{Aadhaar: "123412341234", PAN: "ABCDE1234F"}
	if err := ls.Set("details", details); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "123412341234") || strings.Contains(string(raw), "ABCDE1234F") {
		t.Fatalf("identity numbers stored in plaintext: %s", raw)
	}

	reopened, _ := Open(path, WithCipher(aead))
	var got models.PersonalDetails
	ok, err := reopened.Get("details", &got)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got != details {
		t.Errorf("got %+v; want %+v", got, details)
	}

	other, _ := NewAEAD([]byte("wrong key"))
	wrong, _ := Open(path, WithCipher(other))
	if _, err := wrong.Get("details", &got); err == nil {
		t.Error("expected error opening with a different key")
	}
}
