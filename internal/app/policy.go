package app

import "github.com/dkeye/Setlist/internal/domain"

type BackpressureAction int

const (
	// KickMember removes the participant and closes its connection.
	KickMember BackpressureAction = iota + 1
)

// Policy decides what happens to a participant whose outbound queue is full.
// Any action other than KickMember leaves the participant attached with the
// delta lost, which its client detects as a version gap.
type Policy interface {
	OnBackPressure(setlist domain.SetlistID, conn domain.ConnectionID) BackpressureAction
}

// SimplePolicy disconnects slow consumers. The client reattaches and gets a
// fresh snapshot, so nothing is lost except the stalled link.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.SetlistID, domain.ConnectionID) BackpressureAction {
	return KickMember
}
