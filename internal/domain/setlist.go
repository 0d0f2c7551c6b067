package domain

import (
	"fmt"
	"time"
)

type (
	SetlistID string
	SongID    string
)

type SongRef struct {
	SongID          SongID `json:"songId" yaml:"id"`
	Title           string `json:"title" yaml:"title"`
	DurationSeconds int    `json:"durationSeconds" yaml:"duration_seconds"`
	Order           int    `json:"order" yaml:"-"`
}

// SetlistSnapshot is the ordered song list of one state version. It is never
// mutated in place; edits produce a new snapshot.
type SetlistSnapshot []SongRef

// NewSetlistSnapshot copies songs and renumbers Order from 0.
func NewSetlistSnapshot(songs []SongRef) SetlistSnapshot {
	out := make(SetlistSnapshot, len(songs))
	for i, s := range songs {
		s.Order = i
		out[i] = s
	}
	return out
}

func (s SetlistSnapshot) Len() int { return len(s) }

func (s SetlistSnapshot) InBounds(index int) bool {
	return index >= 0 && index < len(s)
}

func (s SetlistSnapshot) SongIDs() []SongID {
	ids := make([]SongID, len(s))
	for i, song := range s {
		ids[i] = song.SongID
	}
	return ids
}

// Reorder returns a new snapshot in the given order. The order must be a
// permutation of the current song ids: no additions, removals or duplicates.
func (s SetlistSnapshot) Reorder(order []SongID) (SetlistSnapshot, error) {
	if len(order) != len(s) {
		return nil, fmt.Errorf("%w: got %d songs, want %d", ErrInvalidOrder, len(order), len(s))
	}
	byID := make(map[SongID]SongRef, len(s))
	for _, song := range s {
		byID[song.SongID] = song
	}
	seen := make(map[SongID]struct{}, len(order))
	songs := make([]SongRef, 0, len(order))
	for _, id := range order {
		song, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown song %q", ErrInvalidOrder, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate song %q", ErrInvalidOrder, id)
		}
		seen[id] = struct{}{}
		songs = append(songs, song)
	}
	return NewSetlistSnapshot(songs), nil
}

// IndexOf returns the position of id, or -1.
func (s SetlistSnapshot) IndexOf(id SongID) int {
	for i, song := range s {
		if song.SongID == id {
			return i
		}
	}
	return -1
}

// Setlist is the externally persisted record a session is started from.
type Setlist struct {
	ID    SetlistID `json:"id" yaml:"id"`
	Name  string    `json:"name" yaml:"name"`
	Songs []SongRef `json:"songs" yaml:"songs"`
}

// PerformanceState is the authoritative state of one live performance.
// CurrentIndex is -1 before the first song.
type PerformanceState struct {
	SetlistID    SetlistID       `json:"setlistId"`
	Version      uint64          `json:"version"`
	Snapshot     SetlistSnapshot `json:"snapshot"`
	CurrentIndex int             `json:"currentIndex"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

const NotStarted = -1

func NewPerformanceState(id SetlistID, snap SetlistSnapshot, now time.Time) PerformanceState {
	return PerformanceState{
		SetlistID:    id,
		Snapshot:     snap,
		CurrentIndex: NotStarted,
		UpdatedAt:    now,
	}
}

// CurrentSong returns the song at CurrentIndex, if any.
func (s PerformanceState) CurrentSong() (SongRef, bool) {
	if !s.Snapshot.InBounds(s.CurrentIndex) {
		return SongRef{}, false
	}
	return s.Snapshot[s.CurrentIndex], true
}
