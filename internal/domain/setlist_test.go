package domain

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeSongs() SetlistSnapshot {
	return NewSetlistSnapshot([]SongRef{
		{SongID: "s1", Title: "Opener", Order: 7},
		{SongID: "s2", Title: "Ballad"},
		{SongID: "s3", Title: "Closer"},
	})
}

func TestNewSetlistSnapshot_RenumbersOrder(t *testing.T) {
	snap := threeSongs()
	for i, s := range snap {
		assert.Equal(t, i, s.Order)
	}
}

func TestReorder(t *testing.T) {
	snap := threeSongs()

	tests := []struct {
		name    string
		order   []SongID
		wantErr bool
	}{
		{"permutation", []SongID{"s2", "s1", "s3"}, false},
		{"identity", []SongID{"s1", "s2", "s3"}, false},
		{"missing song", []SongID{"s2", "s1"}, true},
		{"extra song", []SongID{"s2", "s1", "s3", "s4"}, true},
		{"unknown song", []SongID{"s2", "s1", "s4"}, true},
		{"duplicate", []SongID{"s2", "s2", "s3"}, true},
		{"empty", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := snap.Reorder(tt.order)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidOrder)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.order, got.SongIDs())
			for i, s := range got {
				assert.Equal(t, i, s.Order)
			}
		})
	}

	// The receiver is never modified.
	assert.Equal(t, []SongID{"s1", "s2", "s3"}, snap.SongIDs())
}

func TestInBoundsAndIndexOf(t *testing.T) {
	snap := threeSongs()
	assert.False(t, snap.InBounds(-1))
	assert.True(t, snap.InBounds(0))
	assert.True(t, snap.InBounds(2))
	assert.False(t, snap.InBounds(3))

	assert.Equal(t, 1, snap.IndexOf("s2"))
	assert.Equal(t, -1, snap.IndexOf("nope"))
}

func TestPerformanceState_CurrentSong(t *testing.T) {
	st := NewPerformanceState("set", threeSongs(), time.Now())
	assert.Equal(t, NotStarted, st.CurrentIndex)
	assert.Equal(t, uint64(0), st.Version)
	_, ok := st.CurrentSong()
	assert.False(t, ok)

	st.CurrentIndex = 2
	song, ok := st.CurrentSong()
	require.True(t, ok)
	assert.Equal(t, SongID("s3"), song.SongID)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInvalidOrder, CodeOf(fmt.Errorf("reorder: %w", ErrInvalidOrder)))
	assert.Equal(t, CodePermissionDenied, CodeOf(ErrPermissionDenied))
	assert.Equal(t, CodeBadPayload, CodeOf(ErrDisplayNameTooLong))
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("boom")))
}

func TestNewUser(t *testing.T) {
	u, err := NewUser("u1", "  ")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.DisplayName)

	u, err = NewUser("u1", "Keys")
	require.NoError(t, err)
	assert.Equal(t, "Keys", u.DisplayName)

	_, err = NewUser("", "Keys")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = NewUser("u1", "a name that is far too long for anyone to read")
	require.ErrorIs(t, err, ErrDisplayNameTooLong)
}

func TestNewUser_LongIDFallsBackToTruncatedName(t *testing.T) {
	id := UserID("auth0|" + strings.Repeat("a", 34))
	require.Len(t, string(id), 40)

	u, err := NewUser(id, "")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, string(id)[:MaxDisplayNameLen], u.DisplayName)
}

func TestSetDisplayName_CountsCharacters(t *testing.T) {
	u, err := NewUser("u1", "")
	require.NoError(t, err)

	wide := strings.Repeat("é", MaxDisplayNameLen)
	require.NoError(t, u.SetDisplayName(wide))
	assert.Equal(t, wide, u.DisplayName)

	assert.ErrorIs(t, u.SetDisplayName(wide+"é"), ErrDisplayNameTooLong)
}
