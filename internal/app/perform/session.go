// Package perform runs live performance sessions. Each session is a single
// goroutine that owns the performance state and the participant set of one
// setlist and applies every join, leave and command in mailbox order.
package perform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Setlist/internal/app"
	"github.com/dkeye/Setlist/internal/core"
	"github.com/dkeye/Setlist/internal/domain"
	"github.com/dkeye/Setlist/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSessionBusy   = errors.New("session mailbox full")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseDraining
	PhaseDestroyed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseDraining:
		return "draining"
	case PhaseDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

type Config struct {
	// LivenessTimeout removes a participant that sent nothing for this long.
	// Zero disables liveness tracking.
	LivenessTimeout time.Duration
	// DrainGrace is how long an empty session survives waiting for a rejoin.
	DrainGrace time.Duration
	// MailboxSize bounds the queued, not yet applied messages.
	MailboxSize int
	// ReloadTimeout bounds a snapshot reload after an executor restart.
	ReloadTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		LivenessTimeout: 30 * time.Second,
		DrainGrace:      60 * time.Second,
		MailboxSize:     256,
		ReloadTimeout:   5 * time.Second,
	}
}

// JoinResult is what a new participant starts from: its own record and the
// FullSnapshot delta that was queued on its connection.
type JoinResult struct {
	Participant domain.Participant
	Snapshot    core.Delta
}

// Info is a point-in-time summary of a session.
type Info struct {
	SetlistID    domain.SetlistID `json:"setlistId"`
	Phase        Phase            `json:"phase"`
	Version      uint64           `json:"version"`
	Participants int              `json:"participants"`
	CurrentIndex int              `json:"currentIndex"`
}

type member struct {
	p        domain.Participant
	conn     core.SignalConnection
	lastSeen time.Time
	timer    *time.Timer
}

// Session is the single writer of one setlist's PerformanceState.
type Session struct {
	id      domain.SetlistID
	cfg     Config
	loader  core.SetlistLoader
	policy  app.Policy
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mailbox chan message
	done    chan struct{}
	// onDestroy runs on the executor right before it exits.
	onDestroy func(*Session)

	// Everything below is owned by the executor goroutine.
	state      domain.PerformanceState
	members    []*member
	phase      Phase
	bc         *core.Broadcaster
	evictEpoch uint64
	evictTimer *time.Timer
	// kicks holds slow consumers found while publishing; see settle.
	kicks []domain.ConnectionID
}

func newSession(
	id domain.SetlistID,
	snap domain.SetlistSnapshot,
	cfg Config,
	loader core.SetlistLoader,
	policy app.Policy,
	m *metrics.Metrics,
	onDestroy func(*Session),
) *Session {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = DefaultConfig().MailboxSize
	}
	if cfg.ReloadTimeout <= 0 {
		cfg.ReloadTimeout = DefaultConfig().ReloadTimeout
	}
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	s := &Session{
		id:        id,
		cfg:       cfg,
		loader:    loader,
		policy:    policy,
		metrics:   m,
		logger:    log.With().Str("module", "perform.session").Str("setlist", string(id)).Logger(),
		mailbox:   make(chan message, cfg.MailboxSize),
		done:      make(chan struct{}),
		onDestroy: onDestroy,
		state:     domain.NewPerformanceState(id, snap, time.Now()),
		phase:     PhaseIdle,
		bc:        core.NewBroadcaster(id),
	}
	// An idle session nobody joins is evicted like a drained one.
	s.armEviction()
	go s.run()
	return s
}

func (s *Session) ID() domain.SetlistID { return s.id }

// Done is closed once the session is destroyed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	defer close(s.done)
	for m := range s.mailbox {
		s.handle(m)
		if s.phase == PhaseDestroyed {
			return
		}
	}
}

// handle isolates a failing message: the session restarts from a freshly
// loaded snapshot instead of taking the process down.
func (s *Session) handle(m message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("executor panic, restarting session")
			if f, ok := m.(failer); ok {
				f.fail(domain.ErrUnavailable)
			}
			s.metrics.SessionRestarted()
			s.restart()
		}
	}()
	m.apply(s)
	s.settle()
}

// restart rebases everyone on a reloaded snapshot. If that fails too, the
// session is torn down and clients reattach to a fresh one.
func (s *Session) restart() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("restart failed, destroying session")
			s.abandon()
		}
	}()
	s.kicks = nil
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReloadTimeout)
	defer cancel()
	snap, err := s.loader.LoadSetlist(ctx, s.id)
	if err != nil {
		s.logger.Error().Err(err).Msg("restart: reload failed, keeping cached snapshot")
		snap = s.state.Snapshot
	}
	s.resetSnapshot(snap)
	s.settle()
}

// abandon closes every connection and destroys the session without
// publishing anything.
func (s *Session) abandon() {
	s.kicks = nil
	for len(s.members) > 0 {
		mb := s.dropMember(0)
		mb.conn.Close()
	}
	s.destroy("unrecoverable failure")
}

// post queues m, waiting for room in the mailbox.
func (s *Session) post(ctx context.Context, m message) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.mailbox <- m:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryPost queues m or fails immediately when the mailbox is full.
func (s *Session) tryPost(m message) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.mailbox <- m:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSessionBusy
	}
}

func await[T any](ctx context.Context, s *Session, reply <-chan T) (T, error) {
	var zero T
	select {
	case r := <-reply:
		return r, nil
	case <-s.done:
		// The reply may have been sent just before the executor exited.
		select {
		case r := <-reply:
			return r, nil
		default:
			return zero, ErrSessionClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Join registers conn as a new participant. The first participant of a
// session without a leader becomes leader. The FullSnapshot is queued on
// conn by the executor, so no later delta can overtake it.
func (s *Session) Join(ctx context.Context, conn core.SignalConnection, user *domain.User) (JoinResult, error) {
	reply := make(chan joinReply, 1)
	if err := s.post(ctx, joinMsg{conn: conn, user: user, reply: reply}); err != nil {
		return JoinResult{}, err
	}
	r, err := await(ctx, s, reply)
	if err != nil {
		return JoinResult{}, err
	}
	return r.res, r.err
}

// Leave removes the participant bound to conn. Unknown connections are ignored.
func (s *Session) Leave(ctx context.Context, conn domain.ConnectionID) error {
	reply := make(chan struct{}, 1)
	if err := s.post(ctx, leaveMsg{conn: conn, reason: "left", reply: reply}); err != nil {
		return err
	}
	_, err := await(ctx, s, reply)
	return err
}

// Enqueue hands a command to the executor without waiting. The outcome is
// sent to the originating connection: an ack, or an error message.
func (s *Session) Enqueue(from domain.ConnectionID, cmd core.Command) error {
	return s.tryPost(commandMsg{from: from, cmd: cmd})
}

// CommandResult is the synchronous outcome of Submit.
type CommandResult struct {
	Version  uint64
	Conflict bool
}

// Submit applies a command and waits for its outcome. The originating
// connection is notified exactly as with Enqueue.
func (s *Session) Submit(ctx context.Context, from domain.ConnectionID, cmd core.Command) (CommandResult, error) {
	reply := make(chan commandReply, 1)
	if err := s.post(ctx, commandMsg{from: from, cmd: cmd, reply: reply}); err != nil {
		return CommandResult{}, err
	}
	r, err := await(ctx, s, reply)
	if err != nil {
		return CommandResult{}, err
	}
	return r.res, r.err
}

// Snapshot reads the full state through the executor.
func (s *Session) Snapshot(ctx context.Context) (core.SnapshotPayload, error) {
	reply := make(chan core.SnapshotPayload, 1)
	if err := s.post(ctx, snapshotMsg{reply: reply}); err != nil {
		return core.SnapshotPayload{}, err
	}
	return await(ctx, s, reply)
}

func (s *Session) Info(ctx context.Context) (Info, error) {
	reply := make(chan Info, 1)
	if err := s.post(ctx, infoMsg{reply: reply}); err != nil {
		return Info{}, err
	}
	return await(ctx, s, reply)
}

// Reload refetches the setlist, typically after an out-of-session content
// edit, and broadcasts the new FullSnapshot to every participant.
func (s *Session) Reload(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.post(ctx, reloadMsg{ctx: ctx, reply: reply}); err != nil {
		return err
	}
	r, err := await(ctx, s, reply)
	if err != nil {
		return err
	}
	return r
}

// StopIfEmpty destroys the session when nobody is attached.
func (s *Session) StopIfEmpty(ctx context.Context) (bool, error) {
	reply := make(chan bool, 1)
	if err := s.post(ctx, stopMsg{onlyIfEmpty: true, reply: reply}); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return true, nil
		}
		return false, err
	}
	stopped, err := await(ctx, s, reply)
	if errors.Is(err, ErrSessionClosed) {
		return true, nil
	}
	return stopped, err
}

// Stop destroys the session and closes every attached connection.
func (s *Session) Stop(ctx context.Context) error {
	reply := make(chan bool, 1)
	if err := s.post(ctx, stopMsg{reply: reply}); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return nil
		}
		return err
	}
	_, err := await(ctx, s, reply)
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}
