package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears a variable while keeping t.Setenv's restore-on-cleanup.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	_ = os.Unsetenv(key)
}

func TestLoad_RequiresDBURL(t *testing.T) {
	unsetenv(t, "DB_URL")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/ingest")
	unsetenv(t, "API_KEYS")
	unsetenv(t, "LISTEN_ADDR")
	unsetenv(t, "LOG_MODE")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "dev", cfg.LogMode)
	assert.NotEmpty(t, cfg.APIKeys, "dev fallback key expected")
}

func TestParseAPIKeys(t *testing.T) {
	keys, err := parseAPIKeys("alice:key-a, bob:key-b")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"key-a": "alice",
		"key-b": "bob",
	}, keys)
}

func TestParseAPIKeys_Malformed(t *testing.T) {
	_, err := parseAPIKeys("alice")
	assert.Error(t, err)

	_, err = parseAPIKeys("alice:")
	assert.Error(t, err)
}
