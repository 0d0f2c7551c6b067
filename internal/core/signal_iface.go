package core

import "github.com/dkeye/Setlist/internal/domain"

// Frame is one encoded outbound message.
type Frame []byte

// SignalConnection abstracts the real-time transport of one client.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() domain.ConnectionID
	// TrySend queues a frame without blocking. It fails when the
	// connection's outbound buffer is full or the connection is closed.
	TrySend(Frame) error
	Close()
}
