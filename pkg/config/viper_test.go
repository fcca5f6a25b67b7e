package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFile(t *testing.T) {
	v, err := Load(t.TempDir(), "missing")
	require.NoError(t, err)
	assert.Empty(t, v.ConfigFileUsed())
	assert.False(t, Watch(v, func(fsnotify.Event) {}))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("STREAM_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("STREAM_TEST_DOTENV", "")
	os.Unsetenv("STREAM_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env"), path))
	assert.Equal(t, "from-file", os.Getenv("STREAM_TEST_DOTENV"))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("STREAM_TEST_VALUE", "set")
	assert.Equal(t, "set", GetEnv("STREAM_TEST_VALUE", "default"))
	assert.Equal(t, "default", GetEnv("STREAM_TEST_UNSET_VALUE", "default"))
}
