package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Missing(t *testing.T) {
	opts := &Options{Port: "keep"}
	require.NoError(t, loadFile(filepath.Join(t.TempDir(), "nope.json"), opts))
	assert.Equal(t, "keep", opts.Port)
}

func TestLoadFile_Merges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"backend_url":"https://bank.example","log_level":"debug"}`), 0600))

	opts := &Options{Port: "localhost:8080", BackendURL: "http://localhost:9090"}
	require.NoError(t, loadFile(path, opts))

	assert.Equal(t, "localhost:8080", opts.Port)
	assert.Equal(t, "https://bank.example", opts.BackendURL)
	assert.Equal(t, "debug", opts.LogLevel)
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0600))
	assert.Error(t, loadFile(path, &Options{}))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9999")
	t.Setenv("BACKEND_URL", "https://api.bank.example")
	t.Setenv("DATABASE_DSN", "postgres://x")
	t.Setenv("LOG_LEVEL", "warn")

	opts := &Options{}
	applyEnv(opts)

	assert.Equal(t, ":9999", opts.Port)
	assert.Equal(t, "https://api.bank.example", opts.BackendURL)
	assert.Equal(t, "postgres://x", opts.DatabaseDSN)
	assert.Equal(t, "warn", opts.LogLevel)
}
