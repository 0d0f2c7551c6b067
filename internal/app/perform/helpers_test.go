package perform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Setlist/internal/core"
	"github.com/dkeye/Setlist/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id    domain.ConnectionID
	limit int

	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: domain.ConnectionID(id)} }

func (c *fakeConn) ID() domain.ConnectionID { return c.id }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	if c.limit > 0 && len(c.frames) >= c.limit {
		return errors.New("backpressure")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// saturate makes the outbound queue full at its current length.
func (c *fakeConn) saturate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = len(c.frames)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// wireMsg is a superset of every server message shape.
type wireMsg struct {
	Type         string                  `json:"type"`
	Version      uint64                  `json:"version"`
	Kind         core.DeltaKind          `json:"kind"`
	Code         domain.ErrorCode        `json:"code"`
	Conflict     bool                    `json:"conflict"`
	Payload      json.RawMessage         `json:"payload"`
	State        domain.PerformanceState `json:"state"`
	Participants []domain.Participant    `json:"participants"`
	You          *domain.Participant     `json:"you"`
}

func (c *fakeConn) messages(t *testing.T) []wireMsg {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wireMsg, len(c.frames))
	for i, f := range c.frames {
		require.NoError(t, json.Unmarshal(f, &out[i]))
	}
	return out
}

func (c *fakeConn) deltas(t *testing.T) []wireMsg {
	t.Helper()
	var out []wireMsg
	for _, m := range c.messages(t) {
		if m.Type == core.TypeDelta || m.Type == core.TypeSnapshot {
			out = append(out, m)
		}
	}
	return out
}

type mapLoader struct {
	mu    sync.Mutex
	sets  map[domain.SetlistID]domain.SetlistSnapshot
	delay time.Duration
	calls int
	boom  bool
}

func newMapLoader() *mapLoader {
	return &mapLoader{sets: map[domain.SetlistID]domain.SetlistSnapshot{
		"set-1": songs("s1", "s2", "s3", "s4", "s5", "s6"),
		"set-3": songs("s1", "s2", "s3"),
	}}
}

func (l *mapLoader) LoadSetlist(ctx context.Context, id domain.SetlistID) (domain.SetlistSnapshot, error) {
	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.boom {
		panic("loader exploded")
	}
	l.calls++
	snap, ok := l.sets[id]
	if !ok {
		return nil, fmt.Errorf("setlist %s: %w", id, domain.ErrNotFound)
	}
	return snap, nil
}

func (l *mapLoader) set(id domain.SetlistID, snap domain.SetlistSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sets[id] = snap
}

func (l *mapLoader) explode() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.boom = true
}

func (l *mapLoader) loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func songs(ids ...string) domain.SetlistSnapshot {
	refs := make([]domain.SongRef, len(ids))
	for i, id := range ids {
		refs[i] = domain.SongRef{SongID: domain.SongID(id), Title: "Song " + id, DurationSeconds: 180}
	}
	return domain.NewSetlistSnapshot(refs)
}

// execFn runs arbitrary code on the executor.
type execFn func(*Session)

func (f execFn) apply(s *Session) { f(s) }

func testConfig() Config {
	return Config{
		DrainGrace:    time.Hour,
		MailboxSize:   64,
		ReloadTimeout: time.Second,
	}
}

func startSession(t *testing.T, id domain.SetlistID, cfg Config) (*Session, *mapLoader) {
	t.Helper()
	loader := newMapLoader()
	snap, err := loader.LoadSetlist(context.Background(), id)
	require.NoError(t, err)
	s := newSession(id, snap, cfg, loader, nil, nil, nil)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s, loader
}

func joinAs(t *testing.T, s *Session, id string) (*fakeConn, JoinResult) {
	t.Helper()
	conn := newFakeConn(id)
	user, err := domain.NewUser(domain.UserID("user-"+id), "")
	require.NoError(t, err)
	res, err := s.Join(context.Background(), conn, user)
	require.NoError(t, err)
	return conn, res
}

// onExecutor runs f between two mailbox messages and waits for it.
func onExecutor(t *testing.T, s *Session, f func(*Session)) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, s.post(context.Background(), execFn(func(s *Session) {
		defer close(done)
		f(s)
	})))
	<-done
}

func advance(i int, version uint64) core.Command {
	return core.Command{Kind: core.AdvanceTo, Index: i, Version: version}
}

func reorder(version uint64, ids ...domain.SongID) core.Command {
	return core.Command{Kind: core.Reorder, Order: ids, Version: version}
}

func leaders(ps []domain.Participant) []domain.ConnectionID {
	var out []domain.ConnectionID
	for _, p := range ps {
		if p.IsLeader() {
			out = append(out, p.ConnectionID)
		}
	}
	return out
}
