package perform

import (
	"context"
	"time"

	"github.com/dkeye/Setlist/internal/core"
	"github.com/dkeye/Setlist/internal/domain"
)

// message is one unit of executor work.
type message interface {
	apply(s *Session)
}

// failer is implemented by messages whose caller waits for a reply; it is
// used to unblock the caller when apply panics.
type failer interface {
	fail(err error)
}

type joinReply struct {
	res JoinResult
	err error
}

type joinMsg struct {
	conn  core.SignalConnection
	user  *domain.User
	reply chan joinReply
}

func (m joinMsg) apply(s *Session) {
	res := s.join(m.conn, m.user)
	s.settle()
	m.reply <- joinReply{res: res}
}

func (m joinMsg) fail(err error) {
	select {
	case m.reply <- joinReply{err: err}:
	default:
	}
}

type leaveMsg struct {
	conn   domain.ConnectionID
	reason string
	reply  chan struct{}
}

func (m leaveMsg) apply(s *Session) {
	s.removeMember(m.conn, m.reason)
	s.settle()
	if m.reply != nil {
		m.reply <- struct{}{}
	}
}

func (m leaveMsg) fail(error) {
	select {
	case m.reply <- struct{}{}:
	default:
	}
}

type commandReply struct {
	res CommandResult
	err error
}

type commandMsg struct {
	from  domain.ConnectionID
	cmd   core.Command
	reply chan commandReply
}

func (m commandMsg) apply(s *Session) {
	res, err := s.command(m.from, m.cmd)
	s.settle()
	if m.reply != nil {
		m.reply <- commandReply{res: res, err: err}
	}
}

func (m commandMsg) fail(err error) {
	select {
	case m.reply <- commandReply{err: err}:
	default:
	}
}

type snapshotMsg struct {
	reply chan core.SnapshotPayload
}

func (m snapshotMsg) apply(s *Session) { m.reply <- s.snapshotPayload() }

type infoMsg struct {
	reply chan Info
}

func (m infoMsg) apply(s *Session) {
	m.reply <- Info{
		SetlistID:    s.id,
		Phase:        s.phase,
		Version:      s.state.Version,
		Participants: len(s.members),
		CurrentIndex: s.state.CurrentIndex,
	}
}

type reloadMsg struct {
	ctx   context.Context
	reply chan error
}

func (m reloadMsg) apply(s *Session) {
	snap, err := s.loader.LoadSetlist(m.ctx, s.id)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reload failed")
		m.reply <- err
		return
	}
	s.resetSnapshot(snap)
	s.settle()
	s.logger.Info().Uint64("version", s.state.Version).Int("songs", snap.Len()).Msg("snapshot reloaded")
	m.reply <- nil
}

func (m reloadMsg) fail(err error) {
	select {
	case m.reply <- err:
	default:
	}
}

type stopMsg struct {
	onlyIfEmpty bool
	reply       chan bool
}

func (m stopMsg) apply(s *Session) {
	if m.onlyIfEmpty && len(s.members) > 0 {
		m.reply <- false
		return
	}
	for len(s.members) > 0 {
		mb := s.members[0]
		s.dropMember(0)
		mb.conn.Close()
	}
	s.destroy("stopped")
	m.reply <- true
}

// livenessMsg is posted by a participant's inactivity timer.
type livenessMsg struct {
	conn domain.ConnectionID
}

func (m livenessMsg) apply(s *Session) {
	_, mb := s.member(m.conn)
	if mb == nil {
		return
	}
	idle := time.Since(mb.lastSeen)
	if idle < s.cfg.LivenessTimeout {
		mb.timer.Reset(s.cfg.LivenessTimeout - idle)
		return
	}
	s.logger.Warn().Str("conn", string(m.conn)).Dur("idle", idle).Msg("participant timed out")
	s.metrics.LivenessTimedOut()
	s.removeMember(m.conn, "liveness timeout")
	mb.conn.Close()
}

// evictMsg is posted by the eviction timer of an idle or draining session.
type evictMsg struct {
	epoch uint64
}

func (m evictMsg) apply(s *Session) {
	if m.epoch != s.evictEpoch || len(s.members) > 0 {
		return
	}
	s.destroy("grace period expired")
}
