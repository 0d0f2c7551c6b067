package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadFile("config/missing.yaml")
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.PongWait())
	assert.Equal(t, 30*time.Second, cfg.LivenessTimeout)
	assert.Equal(t, 60*time.Second, cfg.DrainGrace)
	assert.Equal(t, 64, cfg.SendBuffer)
	assert.Equal(t, 256, cfg.MailboxSize)
	assert.Equal(t, 20, cfg.RateLimit)
	assert.Equal(t, time.Second, cfg.RateInterval)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoadFile_FileEnvAndDotenv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := filepath.Join(dir, "config.test.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
mode: debug
port: 9000
drain_grace: 2m
allowed_origins:
  - https://band.example
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SETLIST_SECRET=from-dotenv\n"), 0o600))
	t.Setenv("SETLIST_PORT", "9100")
	t.Cleanup(func() { os.Unsetenv("SETLIST_SECRET") })

	cfg, err := LoadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.DrainGrace)
	assert.Equal(t, "from-dotenv", cfg.Secret)
	assert.Equal(t, []string{"https://band.example"}, cfg.AllowedOrigins)
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	file := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("port: 0\nsend_buffer: -1\n"), 0o600))

	_, err := LoadFile(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port 0 out of range")
	assert.Contains(t, err.Error(), "send_buffer")
}
