package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dkeye/Setlist/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "setlists.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func gig() domain.Setlist {
	return domain.Setlist{
		ID:   "friday",
		Name: "Friday gig",
		Songs: []domain.SongRef{
			{SongID: "s1", Title: "Opener", DurationSeconds: 200},
			{SongID: "s2", Title: "Ballad", DurationSeconds: 310},
			{SongID: "s3", Title: "Closer", DurationSeconds: 245},
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveSetlist(ctx, gig()))

	snap, err := db.LoadSetlist(ctx, "friday")
	require.NoError(t, err)
	assert.Equal(t, []domain.SongID{"s1", "s2", "s3"}, snap.SongIDs())
	assert.Equal(t, "Ballad", snap[1].Title)
	assert.Equal(t, 310, snap[1].DurationSeconds)
	assert.Equal(t, 1, snap[1].Order)
}

func TestSaveReplacesSongs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveSetlist(ctx, gig()))

	edited := gig()
	edited.Songs = []domain.SongRef{edited.Songs[2], edited.Songs[0]}
	require.NoError(t, db.SaveSetlist(ctx, edited))

	snap, err := db.LoadSetlist(ctx, "friday")
	require.NoError(t, err)
	assert.Equal(t, []domain.SongID{"s3", "s1"}, snap.SongIDs())
}

func TestLoadMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LoadSetlist(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadEmptySetlist(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveSetlist(ctx, domain.Setlist{ID: "empty", Name: "TBD"}))

	snap, err := db.LoadSetlist(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())
}

func TestSaveRejectsBadSetlists(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.ErrorIs(t, db.SaveSetlist(ctx, domain.Setlist{}), domain.ErrBadPayload)

	dup := gig()
	dup.Songs = append(dup.Songs, dup.Songs[0])
	require.ErrorIs(t, db.SaveSetlist(ctx, dup), domain.ErrBadPayload)

	_, err := db.LoadSetlist(ctx, "friday")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveSetlist(ctx, gig()))
	require.NoError(t, db.SaveSetlist(ctx, domain.Setlist{ID: "acoustic", Name: "Acoustic", Songs: []domain.SongRef{{SongID: "a1"}}}))

	list, err := db.ListSetlists(ctx)
	require.NoError(t, err)
	assert.Equal(t, []SetlistInfo{
		{ID: "acoustic", Name: "Acoustic", Songs: 1},
		{ID: "friday", Name: "Friday gig", Songs: 3},
	}, list)

	require.NoError(t, db.DeleteSetlist(ctx, "friday"))
	require.ErrorIs(t, db.DeleteSetlist(ctx, "friday"), domain.ErrNotFound)
	_, err = db.LoadSetlist(ctx, "friday")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "setlists.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveSetlist(ctx, gig()))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	snap, err := db.LoadSetlist(ctx, "friday")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())
}
