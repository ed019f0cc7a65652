package session

import "errors"

var (
	// ErrNotConnected is returned when sending to a connection whose
	// transport has already gone away.
	ErrNotConnected = errors.New("session: connection is closed")
	// ErrSlowConsumer is returned when a connection's send queue is full.
	// The connection is closed as a side effect.
	ErrSlowConsumer = errors.New("session: send queue full")
	ErrNotInRoom    = errors.New("session: connection has not joined a room")
	ErrHubClosed    = errors.New("session: hub is closed")
)
