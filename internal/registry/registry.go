package registry

import (
	"sync"

	"pollroom/internal/store"
	"pollroom/pkg/types"
)

// Binding resolves a connection identity to its session and role. Name is
// empty for presenters.
type Binding struct {
	SessionID string
	Role      string
	Name      string
}

// Registry maps live connection identities to sessions. The reverse index
// makes disconnect cleanup O(1) instead of scanning every live session.
// Session and poll data stay owned by the entity store; the registry holds
// only bindings.
type Registry struct {
	mu       sync.RWMutex
	store    *store.Store
	bindings map[string]Binding             // connID -> binding
	sessions map[string]map[string]struct{} // sessionID -> member connIDs
}

// NewRegistry creates a registry backed by the given entity store.
func NewRegistry(st *store.Store) *Registry {
	return &Registry{
		store:    st,
		bindings: make(map[string]Binding),
		sessions: make(map[string]map[string]struct{}),
	}
}

// RegisterPresenter creates a session owned by connID and indexes the
// connection as its presenter.
func (r *Registry) RegisterPresenter(connID string) (string, error) {
	session, err := r.store.CreateSession(connID)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bindings[connID] = Binding{SessionID: session.ID, Role: types.RolePresenter}
	r.index(session.ID, connID)
	return session.ID, nil
}

// RegisterParticipant admits a named connection into a session's roster.
// Fails when the session does not exist or the name is permanently removed.
func (r *Registry) RegisterParticipant(connID, sessionID, name string) error {
	session, exists := r.store.Get(sessionID)
	if !exists {
		return types.ErrSessionNotFound
	}
	if _, removed := session.Removed[name]; removed {
		return types.ErrParticipantRemoved
	}

	session.Roster[connID] = name

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bindings[connID] = Binding{SessionID: sessionID, Role: types.RoleParticipant, Name: name}
	r.index(sessionID, connID)
	return nil
}

// Resolve looks up the binding for a connection identity.
func (r *Registry) Resolve(connID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	binding, exists := r.bindings[connID]
	return binding, exists
}

// Unregister removes a connection's roster entry and reverse index.
// Idempotent.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	binding, exists := r.bindings[connID]
	if !exists {
		r.mu.Unlock()
		return
	}
	delete(r.bindings, connID)
	r.unindex(binding.SessionID, connID)
	r.mu.Unlock()

	if binding.Role == types.RoleParticipant {
		if session, ok := r.store.Get(binding.SessionID); ok {
			delete(session.Roster, connID)
		}
	}
}

// UnregisterSession drops every binding associated with a session. Used on
// presenter disconnect, where the whole session is torn down.
func (r *Registry) UnregisterSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for connID := range r.sessions[sessionID] {
		delete(r.bindings, connID)
	}
	delete(r.sessions, sessionID)
}

// FindParticipant returns the connection ID currently bound to a display
// name in a session, if any.
func (r *Registry) FindParticipant(sessionID, name string) (string, bool) {
	session, exists := r.store.Get(sessionID)
	if !exists {
		return "", false
	}
	for connID, rosterName := range session.Roster {
		if rosterName == name {
			return connID, true
		}
	}
	return "", false
}

// Stats reports binding counts for monitoring.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"bindings":         len(r.bindings),
		"indexed_sessions": len(r.sessions),
	}
}

// callers hold r.mu
func (r *Registry) index(sessionID, connID string) {
	if r.sessions[sessionID] == nil {
		r.sessions[sessionID] = make(map[string]struct{})
	}
	r.sessions[sessionID][connID] = struct{}{}
}

func (r *Registry) unindex(sessionID, connID string) {
	if members, exists := r.sessions[sessionID]; exists {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.sessions, sessionID)
		}
	}
}
