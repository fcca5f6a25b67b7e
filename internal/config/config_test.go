package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Presence.ActiveWindow)
	assert.Equal(t, 10*time.Minute, cfg.Presence.StaleGrace)
	assert.Equal(t, "gorm", cfg.Chat.Store)
	assert.Equal(t, 50, cfg.Chat.DefaultLimit)
	assert.Equal(t, 100, cfg.Chat.MaxLimit)
	assert.Equal(t, "transcripts", cfg.Archive.Prefix)
	assert.Equal(t, int64(4096), cfg.WebSocket.MaxMessageSize)
	assert.Equal(t, "stream-service", cfg.Log.ServiceName)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "server:\n  port: 9100\nchat:\n  store: cassandra\nlog:\n  level: debug\n")
	t.Setenv("CONFIG_PATH", dir)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("PRESENCE_ACTIVE_WINDOW", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "cassandra", cfg.Chat.Store)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 90*time.Second, cfg.Presence.ActiveWindow)
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "server: [\n")
	t.Setenv("CONFIG_PATH", dir)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadAndWatch(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "log:\n  level: info\n")
	t.Setenv("CONFIG_PATH", dir)

	levels := make(chan string, 8)
	cfg, err := LoadAndWatch(func(next *Config) {
		levels <- next.Log.Level
	})
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)

	writeConfig(t, dir, "log:\n  level: debug\n")

	select {
	case level := <-levels:
		assert.Equal(t, "debug", level)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
}
