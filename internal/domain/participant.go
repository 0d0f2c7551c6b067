package domain

import "time"

type ConnectionID string

type Role string

const (
	RoleLeader   Role = "leader"
	RoleFollower Role = "follower"
)

// Participant is one attached connection of a performance.
// Exactly one participant of a session holds RoleLeader while it is non-empty.
type Participant struct {
	ConnectionID ConnectionID `json:"connectionId"`
	UserID       UserID       `json:"userId"`
	DisplayName  string       `json:"displayName"`
	Role         Role         `json:"role"`
	JoinedAt     time.Time    `json:"joinedAt"`
}

func NewParticipant(conn ConnectionID, user *User, joinedAt time.Time) *Participant {
	return &Participant{
		ConnectionID: conn,
		UserID:       user.ID,
		DisplayName:  user.DisplayName,
		Role:         RoleFollower,
		JoinedAt:     joinedAt,
	}
}

func (p *Participant) IsLeader() bool { return p.Role == RoleLeader }
