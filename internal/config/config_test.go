package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	assert.Equal(t, "ws://localhost:8080/ws/websocket", cfg.WSURL)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 256, cfg.ProfileCacheSize)
	assert.Equal(t, "default", cfg.CredentialsProfile)
	assert.Empty(t, cfg.RedisAddr)

	tc := cfg.Transport()
	assert.Equal(t, 10*time.Second, tc.HeartbeatOutgoing)
	assert.Equal(t, 15*time.Second, cfg.API().Timeout)
}

func TestLoad_EnvFileAndOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CHAT_RECONNECT_DELAY=2s\nCHAT_API_BASE_URL=http://file\n"), 0o600))
	t.Setenv("CHAT_API_BASE_URL", "http://env")
	t.Cleanup(func() { os.Unsetenv("CHAT_RECONNECT_DELAY") })

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, "http://env", cfg.APIBaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CHAT_WS_URL", "http://localhost:8080/ws")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("CHAT_RECONNECT_DELAY", "soon")
	_, err := Load()
	assert.Error(t, err)
}
