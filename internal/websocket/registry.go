package websocket

import (
	"log"
	"sync"

	"pollroom/pkg/types"
)

// Registry tracks live connections and per-session broadcast target sets.
// It implements interfaces.Notifier for the router. It knows nothing about
// rosters or polls; membership is driven by the router after admission.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // connID -> Connection
	sessions    map[string]map[string]*Connection // sessionID -> connID -> Connection
}

// NewRegistry creates an empty live-connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]*Connection),
	}
}

// Add tracks a freshly upgraded connection.
func (r *Registry) Add(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
}

// Remove drops a connection and any session membership it still holds.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connections, connID)
	for sessionID, members := range r.sessions {
		if _, member := members[connID]; member {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.sessions, sessionID)
			}
		}
	}
}

// Send delivers an event to one connection. Unknown IDs are ignored; the
// peer may already be gone.
func (r *Registry) Send(connID string, event *types.Event) {
	r.mu.RLock()
	conn, exists := r.connections[connID]
	r.mu.RUnlock()

	if !exists {
		return
	}
	if err := conn.WriteJSON(event); err != nil {
		log.Printf("Event delivery failed: conn=%s type=%s err=%v", connID, event.Type, err)
	}
}

// Broadcast delivers an event to every member of a session. Delivery
// continues past individual failures.
func (r *Registry) Broadcast(sessionID string, event *types.Event) {
	r.mu.RLock()
	members := make([]*Connection, 0, len(r.sessions[sessionID]))
	for _, conn := range r.sessions[sessionID] {
		members = append(members, conn)
	}
	r.mu.RUnlock()

	for _, conn := range members {
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("Broadcast delivery failed: session=%s conn=%s type=%s err=%v",
				sessionID, conn.ID(), event.Type, err)
		}
	}
}

// JoinSession adds a connection to a session's broadcast set.
func (r *Registry) JoinSession(sessionID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[connID]
	if !exists {
		return
	}
	if r.sessions[sessionID] == nil {
		r.sessions[sessionID] = make(map[string]*Connection)
	}
	r.sessions[sessionID][connID] = conn
}

// LeaveSession removes a connection from a session's broadcast set.
func (r *Registry) LeaveSession(sessionID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, exists := r.sessions[sessionID]; exists {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.sessions, sessionID)
		}
	}
}

// DropSession removes a torn-down session's whole broadcast set.
func (r *Registry) DropSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
}

// Stats reports connection counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"connections":     len(r.connections),
		"active_sessions": len(r.sessions),
	}
}
