package app

import (
	"context"
	"sync"

	"github.com/dkeye/Setlist/internal/core"
	"github.com/dkeye/Setlist/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Conn        core.SignalConnection
	Client      string
	SetlistID   domain.SetlistID
	Participant domain.Participant
	Cancel      context.CancelFunc
}

// Binding is a read-only copy of a connection's registry entry.
type Binding struct {
	Conn        core.SignalConnection
	Client      string
	SetlistID   domain.SetlistID
	Participant domain.Participant
}

// Registry maps open connections to the session they are attached to.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnectionID]*connEntry)}
}

// BindConn records a freshly opened connection that is not attached yet.
func (r *Registry) BindConn(conn core.SignalConnection, client string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = &connEntry{Conn: conn, Client: client, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(conn.ID())).Str("client", client).Msg("bound connection")
}

func (r *Registry) Get(id domain.ConnectionID) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return Binding{}, false
	}
	return Binding{Conn: e.Conn, Client: e.Client, SetlistID: e.SetlistID, Participant: e.Participant}, true
}

// Attach marks the connection as a participant of setlist.
func (r *Registry) Attach(id domain.ConnectionID, setlist domain.SetlistID, p domain.Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.SetlistID = setlist
	e.Participant = p
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("setlist", string(setlist)).Msg("attached")
	return true
}

// SetlistOf reports the session the connection is attached to.
func (r *Registry) SetlistOf(id domain.ConnectionID) (domain.SetlistID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.SetlistID == "" {
		return "", false
	}
	return e.SetlistID, true
}

// Detach clears the session association but keeps the connection bound.
func (r *Registry) Detach(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.SetlistID = ""
		e.Participant = domain.Participant{}
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("detached")
}

func (r *Registry) Unbind(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbind connection")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Cancel stops the pumps of a connection.
func (r *Registry) Cancel(id domain.ConnectionID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("canceled connection")
	return true
}
