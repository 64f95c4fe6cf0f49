package interfaces

import "pollroom/pkg/types"

// Notifier delivers outbound events to live connections. The router depends
// on this interface only; the websocket registry is the production
// implementation.
type Notifier interface {
	// Send delivers an event to a single connection. Unknown connection
	// IDs are ignored (the peer may have disconnected mid-dispatch).
	Send(connID string, event *types.Event)

	// Broadcast delivers an event to every connection joined to a session.
	// All members receive the same snapshot.
	Broadcast(sessionID string, event *types.Event)

	// JoinSession adds a connection to a session's broadcast target set.
	JoinSession(sessionID, connID string)

	// LeaveSession removes a connection from a session's broadcast set.
	LeaveSession(sessionID, connID string)

	// DropSession removes the whole broadcast set for a torn-down session.
	DropSession(sessionID string)
}
