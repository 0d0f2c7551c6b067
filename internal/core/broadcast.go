package core

import (
	"errors"
	"sync"

	"github.com/dkeye/Setlist/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNoConnection = errors.New("connection not attached")

// PublishResult reports delivery stats/backpressure to the session.
type PublishResult struct {
	SendTo  int
	Dropped []domain.ConnectionID
}

// Broadcaster fans deltas of one session out to its attached connections.
// Publish calls are serialized, so every connection sees deltas in publish
// order. It never closes adapter-owned connections.
type Broadcaster struct {
	setlist domain.SetlistID
	mu      sync.Mutex
	conns   map[domain.ConnectionID]SignalConnection
}

func NewBroadcaster(setlist domain.SetlistID) *Broadcaster {
	return &Broadcaster{
		setlist: setlist,
		conns:   make(map[domain.ConnectionID]SignalConnection),
	}
}

func (b *Broadcaster) Attach(c SignalConnection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[c.ID()] = c
}

func (b *Broadcaster) Detach(id domain.ConnectionID) (SignalConnection, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[id]
	delete(b.conns, id)
	return c, ok
}

// Publish encodes d once and queues it on every attached connection except
// exclude. Connections whose queue is full are reported as dropped; the
// caller decides what to do with them.
func (b *Broadcaster) Publish(d Delta, exclude domain.ConnectionID) PublishResult {
	res := PublishResult{}
	frame, err := Encode(OutboundMessage(d))
	if err != nil {
		log.Error().Err(err).Str("module", "core.broadcast").Str("setlist", string(b.setlist)).Msg("encode delta")
		return res
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, c := range b.conns {
		if id == exclude {
			continue
		}
		if err := c.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SendTo++
	}
	log.Debug().
		Str("module", "core.broadcast").
		Str("setlist", string(b.setlist)).
		Uint64("version", d.Version).
		Str("kind", string(d.Kind)).
		Int("sent_to", res.SendTo).
		Int("dropped", len(res.Dropped)).
		Msg("broadcast result")
	return res
}

// SendTo queues a single message for one attached connection.
func (b *Broadcaster) SendTo(id domain.ConnectionID, v any) error {
	frame, err := Encode(v)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[id]
	if !ok {
		return ErrNoConnection
	}
	return c.TrySend(frame)
}
