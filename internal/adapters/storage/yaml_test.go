package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/dkeye/Setlist/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoSetlists = `
setlists:
  - id: friday
    name: Friday gig
    songs:
      - id: s1
        title: Opener
        duration_seconds: 200
      - id: s2
        title: Ballad
---
id: acoustic
name: Acoustic set
songs:
  - id: a1
    title: Unplugged
`

func TestDecodeSetlists(t *testing.T) {
	got, err := DecodeSetlists(strings.NewReader(twoSetlists))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, domain.SetlistID("friday"), got[0].ID)
	require.Len(t, got[0].Songs, 2)
	assert.Equal(t, domain.SongRef{SongID: "s1", Title: "Opener", DurationSeconds: 200}, got[0].Songs[0])
	assert.Equal(t, domain.SetlistID("acoustic"), got[1].ID)
}

func TestDecodeSetlists_Invalid(t *testing.T) {
	_, err := DecodeSetlists(strings.NewReader("name: no id\n"))
	require.ErrorIs(t, err, domain.ErrBadPayload)

	_, err = DecodeSetlists(strings.NewReader("setlists: [\n"))
	require.ErrorIs(t, err, domain.ErrBadPayload)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	n, err := db.Import(ctx, strings.NewReader(twoSetlists))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, err := db.LoadSetlist(ctx, "friday")
	require.NoError(t, err)
	assert.Equal(t, []domain.SongID{"s1", "s2"}, snap.SongIDs())
}
