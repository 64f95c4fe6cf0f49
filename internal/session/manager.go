package session

import (
	"log"

	"pollroom/internal/registry"
	"pollroom/internal/store"
	"pollroom/pkg/types"
)

// PollControl is the slice of the poll coordinator the lifecycle manager
// needs: canceling pending close timers when a session is torn down.
type PollControl interface {
	CancelTimer(sessionID string)
}

// DisconnectOutcome reports what a disconnect meant for the session.
type DisconnectOutcome struct {
	Kind      OutcomeKind
	SessionID string
	Roster    []string
}

type OutcomeKind int

const (
	// OutcomeNoOp means the connection was never admitted or is already
	// cleaned up.
	OutcomeNoOp OutcomeKind = iota
	// OutcomeSessionEnded means the presenter left and the session was
	// destroyed.
	OutcomeSessionEnded
	// OutcomeParticipantLeft means a participant's roster entry was removed.
	OutcomeParticipantLeft
)

// JoinResult carries what a newly admitted participant needs: the roster and
// the active poll's tallied snapshot, if one is running. Late joiners never
// see raw per-participant answers.
type JoinResult struct {
	Roster []string
	Poll   *types.PollSnapshot
}

// RemovalResult identifies the ejected connection (empty if the name is not
// currently connected) and the roster after removal.
type RemovalResult struct {
	TargetConnID string
	Roster       []string
}

// Manager handles session creation/teardown, participant admission rules and
// disconnect-driven cleanup.
type Manager struct {
	store    *store.Store
	registry *registry.Registry
	polls    PollControl
}

// NewManager creates a session lifecycle manager.
func NewManager(st *store.Store, reg *registry.Registry, polls PollControl) *Manager {
	return &Manager{
		store:    st,
		registry: reg,
		polls:    polls,
	}
}

// AdmitPresenter creates a session and registers connID as its presenter.
func (m *Manager) AdmitPresenter(connID string) (string, error) {
	sessionID, err := m.registry.RegisterPresenter(connID)
	if err != nil {
		return "", err
	}
	log.Printf("Session created: id=%s", sessionID)
	return sessionID, nil
}

// AdmitParticipant admits a named connection into a session. Admission rules
// (existence, permanent removal) are enforced by the registry.
func (m *Manager) AdmitParticipant(name, sessionID, connID string) (*JoinResult, error) {
	if err := types.ValidateName(name); err != nil {
		return nil, err
	}
	if err := m.registry.RegisterParticipant(connID, sessionID, name); err != nil {
		return nil, err
	}

	session, _ := m.store.Get(sessionID)
	result := &JoinResult{Roster: session.RosterNames()}
	if session.ActivePoll >= 0 {
		result.Poll = session.Polls[session.ActivePoll].Snapshot()
	}

	log.Printf("Participant joined: session=%s name=%s roster=%d", sessionID, name, len(result.Roster))
	return result, nil
}

// RemoveParticipant permanently bars a display name from the session and
// unregisters its current connection if one is live. The ban outlives all
// roster mutations until the session itself is destroyed.
func (m *Manager) RemoveParticipant(sessionID, name string) (*RemovalResult, error) {
	session, exists := m.store.Get(sessionID)
	if !exists {
		return nil, types.ErrSessionNotFound
	}

	session.Removed[name] = struct{}{}

	result := &RemovalResult{}
	if connID, connected := m.registry.FindParticipant(sessionID, name); connected {
		m.registry.Unregister(connID)
		result.TargetConnID = connID
	}
	result.Roster = session.RosterNames()

	log.Printf("Participant removed: session=%s name=%s", sessionID, name)
	return result, nil
}

// HandleDisconnect resolves the connection's role and cleans up. Presenter
// disconnect destroys the session: pending timers are canceled explicitly,
// all bindings dropped, the session deleted.
func (m *Manager) HandleDisconnect(connID string) DisconnectOutcome {
	binding, exists := m.registry.Resolve(connID)
	if !exists {
		return DisconnectOutcome{Kind: OutcomeNoOp}
	}

	if binding.Role == types.RolePresenter {
		m.polls.CancelTimer(binding.SessionID)
		m.registry.UnregisterSession(binding.SessionID)
		m.store.Delete(binding.SessionID)
		log.Printf("Session ended: id=%s (presenter disconnected)", binding.SessionID)
		return DisconnectOutcome{Kind: OutcomeSessionEnded, SessionID: binding.SessionID}
	}

	m.registry.Unregister(connID)
	outcome := DisconnectOutcome{Kind: OutcomeParticipantLeft, SessionID: binding.SessionID}
	if session, ok := m.store.Get(binding.SessionID); ok {
		outcome.Roster = session.RosterNames()
	}
	log.Printf("Participant left: session=%s name=%s", binding.SessionID, binding.Name)
	return outcome
}
