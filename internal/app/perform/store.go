package perform

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Setlist/internal/app"
	"github.com/dkeye/Setlist/internal/core"
	"github.com/dkeye/Setlist/internal/domain"
	"github.com/dkeye/Setlist/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const loadTimeout = 10 * time.Second

// Store is the registry of live sessions, one per setlist.
type Store struct {
	mu       sync.RWMutex
	sessions map[domain.SetlistID]*Session
	creating singleflight.Group

	cfg     Config
	policy  app.Policy
	metrics *metrics.Metrics
}

func NewStore(cfg Config, policy app.Policy, m *metrics.Metrics) *Store {
	return &Store{
		sessions: make(map[domain.SetlistID]*Session),
		cfg:      cfg,
		policy:   policy,
		metrics:  m,
	}
}

func (st *Store) Get(id domain.SetlistID) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// GetOrCreate returns the session of id, creating it from loader's snapshot
// when none exists. Concurrent callers for one id share a single creation;
// a failed load registers nothing.
func (st *Store) GetOrCreate(ctx context.Context, id domain.SetlistID, loader core.SetlistLoader) (*Session, error) {
	if s, ok := st.Get(id); ok {
		return s, nil
	}

	ch := st.creating.DoChan(string(id), func() (any, error) {
		if s, ok := st.Get(id); ok {
			return s, nil
		}
		// Shared by every waiter, so it must not die with the first caller.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		snap, err := loader.LoadSetlist(loadCtx, id)
		if err != nil {
			return nil, fmt.Errorf("load setlist %s: %w", id, err)
		}

		s := newSession(id, snap, st.cfg, loader, st.policy, st.metrics, st.forget)
		st.mu.Lock()
		st.sessions[id] = s
		st.mu.Unlock()
		st.metrics.SessionCreated()
		log.Info().Str("module", "perform.store").Str("setlist", string(id)).Int("songs", snap.Len()).Msg("session created")
		return s, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// forget unregisters s if it is still the registered session of its id.
func (st *Store) forget(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if cur, ok := st.sessions[s.id]; ok && cur == s {
		delete(st.sessions, s.id)
		st.metrics.SessionDestroyed()
		log.Info().Str("module", "perform.store").Str("setlist", string(s.id)).Msg("session removed")
	}
}

// Forget drops a session that was observed closed, so the next GetOrCreate
// builds a fresh one.
func (st *Store) Forget(s *Session) { st.forget(s) }

// RemoveIfEmpty destroys the session of id when it has no participants.
// It reports whether no session remains registered for id.
func (st *Store) RemoveIfEmpty(ctx context.Context, id domain.SetlistID) (bool, error) {
	s, ok := st.Get(id)
	if !ok {
		return true, nil
	}
	stopped, err := s.StopIfEmpty(ctx)
	if err != nil {
		return false, err
	}
	if stopped {
		st.forget(s)
	}
	return stopped, nil
}

// List returns the registered sessions ordered by setlist id.
func (st *Store) List() []*Session {
	st.mu.RLock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Shutdown stops every session.
func (st *Store) Shutdown(ctx context.Context) error {
	for _, s := range st.List() {
		if err := s.Stop(ctx); err != nil {
			return err
		}
		st.forget(s)
	}
	return nil
}
