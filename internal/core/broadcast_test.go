package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Setlist/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recConn struct {
	id     domain.ConnectionID
	full   bool
	mu     sync.Mutex
	frames []Frame
}

func (c *recConn) ID() domain.ConnectionID { return c.id }

func (c *recConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recConn) Close() {}

func TestBroadcaster_PublishSkipsExcluded(t *testing.T) {
	b := NewBroadcaster("set")
	a := &recConn{id: "a"}
	c := &recConn{id: "c"}
	slow := &recConn{id: "slow", full: true}
	b.Attach(a)
	b.Attach(c)
	b.Attach(slow)

	res := b.Publish(Delta{Version: 1, Kind: IndexChanged, Payload: IndexChangedPayload{CurrentIndex: 0}}, "a")
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []domain.ConnectionID{"slow"}, res.Dropped)
	assert.Empty(t, a.frames)
	require.Len(t, c.frames, 1)
	assert.Contains(t, string(c.frames[0]), `"kind":"indexChanged"`)
}

func TestBroadcaster_SendToAndDetach(t *testing.T) {
	b := NewBroadcaster("set")
	a := &recConn{id: "a"}
	b.Attach(a)

	require.NoError(t, b.SendTo("a", NewAckMessage(2, true)))
	require.Len(t, a.frames, 1)
	assert.JSONEq(t, `{"type":"ack","version":2,"conflict":true}`, string(a.frames[0]))

	_, ok := b.Detach("a")
	assert.True(t, ok)
	assert.ErrorIs(t, b.SendTo("a", NewAckMessage(3, false)), ErrNoConnection)
	_, ok = b.Detach("a")
	assert.False(t, ok)
}
