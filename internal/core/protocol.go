package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Setlist/internal/domain"
)

// Client -> server message types.
const (
	TypeJoin        = "join"
	TypeLeave       = "leave"
	TypeAdvance     = "advance"
	TypeReorder     = "reorder"
	TypeClaimLeader = "claimLeader"
	TypeHeartbeat   = "heartbeat"
	TypePing        = "ping"
	TypeWhoAmI      = "whoami"
)

// Server -> client message types.
const (
	TypeSnapshot = "snapshot"
	TypeDelta    = "delta"
	TypeError    = "error"
	TypeAck      = "ack"
	TypePong     = "pong"
	TypeLeft     = "left"
)

// ClientMessage is the union of every inbound message.
type ClientMessage struct {
	Type        string           `json:"type"`
	SetlistID   domain.SetlistID `json:"setlistId,omitempty"`
	Token       string           `json:"token,omitempty"`
	DisplayName string           `json:"displayName,omitempty"`
	Index       *int             `json:"index,omitempty"`
	Order       []domain.SongID  `json:"order,omitempty"`
	Version     uint64           `json:"version"`
	// Strict rejects the command when Version is stale instead of applying
	// it against the current state.
	Strict bool `json:"strict,omitempty"`
}

func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", domain.ErrBadPayload, err)
	}
	if m.Type == "" {
		return ClientMessage{}, fmt.Errorf("%w: missing type", domain.ErrBadPayload)
	}
	return m, nil
}

type CommandKind string

const (
	AdvanceTo       CommandKind = TypeAdvance
	Reorder         CommandKind = TypeReorder
	ClaimLeadership CommandKind = TypeClaimLeader
	Heartbeat       CommandKind = TypeHeartbeat
)

// Command is a session mutation request. Version is the sender's last
// applied version.
type Command struct {
	Kind    CommandKind
	Index   int
	Order   []domain.SongID
	Version uint64
	Strict  bool
}

// Command converts an inbound message into a session command.
func (m ClientMessage) Command() (Command, error) {
	cmd := Command{Kind: CommandKind(m.Type), Version: m.Version, Strict: m.Strict}
	switch cmd.Kind {
	case AdvanceTo:
		if m.Index == nil {
			return Command{}, fmt.Errorf("%w: advance without index", domain.ErrBadPayload)
		}
		cmd.Index = *m.Index
	case Reorder:
		if m.Order == nil {
			return Command{}, fmt.Errorf("%w: reorder without order", domain.ErrBadPayload)
		}
		cmd.Order = m.Order
	case ClaimLeadership, Heartbeat:
	default:
		return Command{}, fmt.Errorf("%w: unknown command %q", domain.ErrBadPayload, m.Type)
	}
	return cmd, nil
}

// DecodeCommand decodes a raw inbound frame straight into a command.
func DecodeCommand(raw []byte) (Command, error) {
	m, err := DecodeClientMessage(raw)
	if err != nil {
		return Command{}, err
	}
	return m.Command()
}

type DeltaKind string

const (
	FullSnapshot        DeltaKind = "fullSnapshot"
	IndexChanged        DeltaKind = "indexChanged"
	OrderChanged        DeltaKind = "orderChanged"
	ParticipantsChanged DeltaKind = "participantsChanged"
	LeaderChanged       DeltaKind = "leaderChanged"
)

// Delta is one versioned state change of a session.
type Delta struct {
	Version uint64    `json:"version"`
	Kind    DeltaKind `json:"kind"`
	Payload any       `json:"payload"`
}

type SnapshotPayload struct {
	State        domain.PerformanceState `json:"state"`
	Participants []domain.Participant    `json:"participants"`
}

type IndexChangedPayload struct {
	CurrentIndex int       `json:"currentIndex"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type OrderChangedPayload struct {
	Snapshot     domain.SetlistSnapshot `json:"snapshot"`
	CurrentIndex int                    `json:"currentIndex"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

type ParticipantsChangedPayload struct {
	Participants []domain.Participant `json:"participants"`
}

// LeaderChangedPayload names the new leader; Leader is empty when nobody
// holds leadership.
type LeaderChangedPayload struct {
	Leader       domain.ConnectionID  `json:"leader"`
	Previous     domain.ConnectionID  `json:"previous,omitempty"`
	Participants []domain.Participant `json:"participants"`
}

type SnapshotMessage struct {
	Type         string                  `json:"type"`
	Version      uint64                  `json:"version"`
	State        domain.PerformanceState `json:"state"`
	Participants []domain.Participant    `json:"participants"`
	You          *domain.Participant     `json:"you,omitempty"`
}

type DeltaMessage struct {
	Type    string    `json:"type"`
	Version uint64    `json:"version"`
	Kind    DeltaKind `json:"kind"`
	Payload any       `json:"payload"`
}

type ErrorMessage struct {
	Type    string           `json:"type"`
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

type AckMessage struct {
	Type     string `json:"type"`
	Version  uint64 `json:"version"`
	Conflict bool   `json:"conflict,omitempty"`
}

// NewSnapshotMessage renders a FullSnapshot delta; you is set only for the
// participant that just attached.
func NewSnapshotMessage(d Delta, you *domain.Participant) SnapshotMessage {
	p, _ := d.Payload.(SnapshotPayload)
	return SnapshotMessage{
		Type:         TypeSnapshot,
		Version:      d.Version,
		State:        p.State,
		Participants: p.Participants,
		You:          you,
	}
}

// OutboundMessage picks the wire shape of a delta: full snapshots travel as
// snapshot messages, everything else as delta messages.
func OutboundMessage(d Delta) any {
	if d.Kind == FullSnapshot {
		return NewSnapshotMessage(d, nil)
	}
	return DeltaMessage{Type: TypeDelta, Version: d.Version, Kind: d.Kind, Payload: d.Payload}
}

func NewErrorMessage(err error) ErrorMessage {
	return ErrorMessage{Type: TypeError, Code: domain.CodeOf(err), Message: err.Error()}
}

func NewAckMessage(version uint64, conflict bool) AckMessage {
	return AckMessage{Type: TypeAck, Version: version, Conflict: conflict}
}

func Encode(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
