package perform

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/Setlist/internal/app"
	"github.com/dkeye/Setlist/internal/core"
	"github.com/dkeye/Setlist/internal/domain"
)

// Executor-only helpers. None of these may be called outside apply.

func (s *Session) member(conn domain.ConnectionID) (int, *member) {
	for i, mb := range s.members {
		if mb.p.ConnectionID == conn {
			return i, mb
		}
	}
	return -1, nil
}

func (s *Session) leader() *member {
	for _, mb := range s.members {
		if mb.p.IsLeader() {
			return mb
		}
	}
	return nil
}

// participants lists members in join order.
func (s *Session) participants() []domain.Participant {
	out := make([]domain.Participant, len(s.members))
	for i, mb := range s.members {
		out[i] = mb.p
	}
	return out
}

func (s *Session) snapshotPayload() core.SnapshotPayload {
	return core.SnapshotPayload{State: s.state, Participants: s.participants()}
}

func (s *Session) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	s.logger.Info().Str("from", s.phase.String()).Str("to", p.String()).Msg("phase change")
	s.phase = p
}

// publish consumes the next version and fans the delta out to everyone but
// exclude. build runs after the version bump so payloads may embed it.
func (s *Session) publish(kind core.DeltaKind, build func() any, exclude domain.ConnectionID) core.Delta {
	s.state.Version++
	d := core.Delta{Version: s.state.Version, Kind: kind, Payload: build()}
	res := s.bc.Publish(d, exclude)
	s.metrics.DeltaPublished(string(kind), res.SendTo)
	for _, slow := range res.Dropped {
		s.onBackPressure(slow)
	}
	return d
}

// onBackPressure marks conn for removal. Kicks are applied by settle once
// the current message has published all of its deltas.
func (s *Session) onBackPressure(conn domain.ConnectionID) {
	if s.policy.OnBackPressure(s.id, conn) != app.KickMember {
		return
	}
	if slices.Contains(s.kicks, conn) {
		return
	}
	s.kicks = append(s.kicks, conn)
}

// settle removes the participants marked by onBackPressure. Removing one
// may publish deltas that mark others, so it runs until nothing is left.
func (s *Session) settle() {
	for len(s.kicks) > 0 {
		conn := s.kicks[0]
		s.kicks = s.kicks[1:]
		_, mb := s.member(conn)
		if mb == nil {
			continue
		}
		s.logger.Warn().Str("conn", string(conn)).Msg("outbound queue full, disconnecting participant")
		s.metrics.SlowConsumerKicked()
		s.removeMember(conn, "slow consumer")
		mb.conn.Close()
	}
	s.kicks = nil
}

// reply sends a message to one participant; a full queue is treated like a
// full queue during broadcast.
func (s *Session) reply(conn domain.ConnectionID, v any) {
	if err := s.bc.SendTo(conn, v); err != nil {
		if errors.Is(err, core.ErrNoConnection) {
			return
		}
		s.onBackPressure(conn)
	}
}

func (s *Session) join(conn core.SignalConnection, user *domain.User) JoinResult {
	if i, _ := s.member(conn.ID()); i >= 0 {
		s.dropMember(i)
	}

	mb := &member{
		p:        *domain.NewParticipant(conn.ID(), user, time.Now()),
		conn:     conn,
		lastSeen: time.Now(),
	}
	if s.leader() == nil {
		mb.p.Role = domain.RoleLeader
	}
	s.members = append(s.members, mb)
	s.bc.Attach(conn)
	s.armLiveness(mb)
	s.metrics.ParticipantJoined()

	if s.phase != PhaseActive {
		s.cancelEviction()
		s.setPhase(PhaseActive)
	}

	if len(s.members) > 1 {
		s.publish(core.ParticipantsChanged, func() any {
			return core.ParticipantsChangedPayload{Participants: s.participants()}
		}, conn.ID())
	}

	snap := core.Delta{Version: s.state.Version, Kind: core.FullSnapshot, Payload: s.snapshotPayload()}
	you := mb.p
	s.reply(conn.ID(), core.NewSnapshotMessage(snap, &you))

	s.logger.Info().
		Str("conn", string(conn.ID())).
		Str("user", string(user.ID)).
		Str("role", string(mb.p.Role)).
		Uint64("version", s.state.Version).
		Msg("participant joined")
	return JoinResult{Participant: mb.p, Snapshot: snap}
}

// dropMember unregisters member i without publishing anything.
func (s *Session) dropMember(i int) *member {
	mb := s.members[i]
	if mb.timer != nil {
		mb.timer.Stop()
	}
	s.members = append(s.members[:i], s.members[i+1:]...)
	s.bc.Detach(mb.p.ConnectionID)
	s.metrics.ParticipantLeft()
	return mb
}

// removeMember handles a disconnect: leadership moves to the longest-joined
// remaining participant and the others are told. The last leave starts the
// eviction grace period.
func (s *Session) removeMember(conn domain.ConnectionID, reason string) {
	i, _ := s.member(conn)
	if i < 0 {
		return
	}
	gone := s.dropMember(i)
	s.logger.Info().Str("conn", string(conn)).Str("reason", reason).Int("remaining", len(s.members)).Msg("participant removed")

	if len(s.members) == 0 {
		s.setPhase(PhaseDraining)
		s.armEviction()
		return
	}

	var newLeader *member
	if gone.p.IsLeader() {
		newLeader = s.members[0]
		newLeader.p.Role = domain.RoleLeader
	}
	s.publish(core.ParticipantsChanged, func() any {
		return core.ParticipantsChangedPayload{Participants: s.participants()}
	}, "")
	if newLeader != nil {
		s.logger.Info().Str("leader", string(newLeader.p.ConnectionID)).Msg("leadership reassigned")
		s.publish(core.LeaderChanged, func() any {
			return core.LeaderChangedPayload{
				Leader:       newLeader.p.ConnectionID,
				Previous:     conn,
				Participants: s.participants(),
			}
		}, "")
	}
}

func (s *Session) command(from domain.ConnectionID, cmd core.Command) (CommandResult, error) {
	_, mb := s.member(from)
	if mb == nil {
		s.metrics.Command(string(cmd.Kind), string(domain.CodeNotFound))
		return CommandResult{}, domain.ErrNotFound
	}
	mb.lastSeen = time.Now()

	conflict := cmd.Kind != core.Heartbeat && cmd.Version != s.state.Version
	var err error
	if conflict && cmd.Strict {
		err = fmt.Errorf("%w: at version %d, command was for %d", domain.ErrVersionConflict, s.state.Version, cmd.Version)
	} else {
		err = s.execute(mb, cmd)
	}
	if err != nil {
		s.metrics.Command(string(cmd.Kind), string(domain.CodeOf(err)))
		s.logger.Warn().Err(err).Str("conn", string(from)).Str("command", string(cmd.Kind)).Msg("command rejected")
		s.reply(from, core.NewErrorMessage(err))
		return CommandResult{}, err
	}
	s.metrics.Command(string(cmd.Kind), "ok")

	res := CommandResult{Version: s.state.Version, Conflict: conflict}
	if cmd.Kind != core.Heartbeat {
		if conflict {
			s.logger.Debug().Str("conn", string(from)).Uint64("stated", cmd.Version).Uint64("version", s.state.Version).Msg("applied command with stale version")
		}
		s.reply(from, core.NewAckMessage(res.Version, conflict))
	}
	return res, nil
}

func (s *Session) execute(mb *member, cmd core.Command) error {
	switch cmd.Kind {
	case core.Heartbeat:
		return nil

	case core.AdvanceTo:
		if !mb.p.IsLeader() {
			return domain.ErrPermissionDenied
		}
		if !s.state.Snapshot.InBounds(cmd.Index) {
			return domain.ErrInvalidIndex
		}
		s.state.CurrentIndex = cmd.Index
		s.state.UpdatedAt = time.Now()
		s.publish(core.IndexChanged, func() any {
			return core.IndexChangedPayload{CurrentIndex: s.state.CurrentIndex, UpdatedAt: s.state.UpdatedAt}
		}, mb.p.ConnectionID)
		return nil

	case core.Reorder:
		if !mb.p.IsLeader() {
			return domain.ErrPermissionDenied
		}
		snap, err := s.state.Snapshot.Reorder(cmd.Order)
		if err != nil {
			return err
		}
		// The current song keeps playing; only its position moves.
		if cur, ok := s.state.CurrentSong(); ok {
			s.state.CurrentIndex = snap.IndexOf(cur.SongID)
		}
		s.state.Snapshot = snap
		s.state.UpdatedAt = time.Now()
		s.publish(core.OrderChanged, func() any {
			return core.OrderChangedPayload{
				Snapshot:     s.state.Snapshot,
				CurrentIndex: s.state.CurrentIndex,
				UpdatedAt:    s.state.UpdatedAt,
			}
		}, mb.p.ConnectionID)
		return nil

	case core.ClaimLeadership:
		if mb.p.IsLeader() {
			return nil
		}
		var previous domain.ConnectionID
		if prev := s.leader(); prev != nil {
			prev.p.Role = domain.RoleFollower
			previous = prev.p.ConnectionID
		}
		mb.p.Role = domain.RoleLeader
		s.logger.Info().Str("leader", string(mb.p.ConnectionID)).Str("previous", string(previous)).Msg("leadership claimed")
		s.publish(core.LeaderChanged, func() any {
			return core.LeaderChangedPayload{
				Leader:       mb.p.ConnectionID,
				Previous:     previous,
				Participants: s.participants(),
			}
		}, mb.p.ConnectionID)
		return nil
	}
	return domain.ErrBadPayload
}

// resetSnapshot swaps in a reloaded song list and rebases every participant
// with a FullSnapshot.
func (s *Session) resetSnapshot(snap domain.SetlistSnapshot) {
	idx := domain.NotStarted
	if cur, ok := s.state.CurrentSong(); ok {
		idx = snap.IndexOf(cur.SongID)
		if idx < 0 {
			idx = min(s.state.CurrentIndex, snap.Len()-1)
		}
	}
	s.state.Snapshot = snap
	s.state.CurrentIndex = idx
	s.state.UpdatedAt = time.Now()
	s.publish(core.FullSnapshot, func() any { return s.snapshotPayload() }, "")
}

func (s *Session) armLiveness(mb *member) {
	if s.cfg.LivenessTimeout <= 0 {
		return
	}
	conn := mb.p.ConnectionID
	mb.timer = time.AfterFunc(s.cfg.LivenessTimeout, func() {
		s.postTimer(livenessMsg{conn: conn})
	})
}

func (s *Session) armEviction() {
	s.cancelEviction()
	epoch := s.evictEpoch
	s.evictTimer = time.AfterFunc(s.cfg.DrainGrace, func() {
		s.postTimer(evictMsg{epoch: epoch})
	})
}

// cancelEviction invalidates any pending eviction, including one whose
// message is already queued.
func (s *Session) cancelEviction() {
	s.evictEpoch++
	if s.evictTimer != nil {
		s.evictTimer.Stop()
		s.evictTimer = nil
	}
}

func (s *Session) postTimer(m message) {
	select {
	case s.mailbox <- m:
	case <-s.done:
	}
}

func (s *Session) destroy(reason string) {
	s.cancelEviction()
	s.setPhase(PhaseDestroyed)
	s.logger.Info().Str("reason", reason).Uint64("version", s.state.Version).Msg("session destroyed")
	if s.onDestroy != nil {
		s.onDestroy(s)
	}
}
