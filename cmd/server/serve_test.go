package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dkeye/Setlist/internal/adapters/auth"
	"github.com/dkeye/Setlist/internal/adapters/storage"
	"github.com/dkeye/Setlist/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretFor(t *testing.T) {
	s, err := secretFor(&config.Config{Mode: "release", Secret: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", s)

	s, err = secretFor(&config.Config{Mode: "debug"})
	require.NoError(t, err)
	assert.Equal(t, devSecret, s)

	_, err = secretFor(&config.Config{Mode: "release"})
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	cfg := &config.Config{Mode: "release", Secret: "cli-secret", LogLevel: "info"}
	cmd := tokenCmd(func() (*config.Config, error) { return cfg, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--user", "drummer", "--name", "Drums"})
	require.NoError(t, cmd.Execute())

	v, err := auth.NewJWTVerifier("cli-secret")
	require.NoError(t, err)
	user, err := v.Verify(t.Context(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "drummer", string(user.ID))
	assert.Equal(t, "Drums", user.DisplayName)
}

func TestImportCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "gig.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
id: gig
name: Friday
songs:
  - id: s1
    title: Opener
    duration_seconds: 200
  - id: s2
    title: Closer
`), 0o644))

	cfg := &config.Config{Mode: "release", DBPath: filepath.Join(dir, "db", "setlists.db"), LogLevel: "info"}
	cmd := importCmd(func() (*config.Config, error) { return cfg, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{file})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "imported 1 setlists")

	db, err := storage.Open(cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()
	snap, err := db.LoadSetlist(t.Context(), "gig")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
}
