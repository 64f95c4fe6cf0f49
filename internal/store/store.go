package store

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"pollroom/pkg/types"
)

// Session codes use an alphabet without lookalike characters so presenters
// can read them aloud.
const (
	codeAlphabet    = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength      = 6
	maxCodeAttempts = 10
)

// Store owns the in-memory representation of sessions, polls, rosters and
// removal lists. Pure data access; callers enforce invariants.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
}

// NewStore creates an empty entity store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*types.Session),
	}
}

// CreateSession allocates a session with a code guaranteed unique among
// currently live sessions. Codes are drawn from crypto/rand and retried on
// collision.
func (s *Store) CreateSession(ownerConnID string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session code: %w", err)
		}
		if _, taken := s.sessions[code]; taken {
			continue
		}

		session := &types.Session{
			ID:          code,
			OwnerConnID: ownerConnID,
			Roster:      make(map[string]string),
			Removed:     make(map[string]struct{}),
			ActivePoll:  -1,
		}
		s.sessions[code] = session
		return session, nil
	}

	return nil, fmt.Errorf("failed to allocate unique session code after %d attempts", maxCodeAttempts)
}

// Get returns the session for an ID, if live.
func (s *Store) Get(sessionID string) (*types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	return session, exists
}

// Delete removes a session and everything it owns. Idempotent.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
}

// RecordHistory appends a completed-poll snapshot to the session's history.
func (s *Store) RecordHistory(sessionID string, poll *types.Poll, counts map[string]int) (*types.PollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, types.ErrSessionNotFound
	}

	record := &types.PollRecord{
		SessionID: sessionID,
		Question:  poll.Question,
		Options:   append([]string(nil), poll.Options...),
		Duration:  poll.Duration,
		StartedAt: poll.StartedAt,
		ClosedAt:  time.Now(),
		Counts:    counts,
	}
	session.History = append(session.History, record)
	return record, nil
}

// History returns a copy of the session's completed-poll snapshots.
func (s *Store) History(sessionID string) ([]*types.PollRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, false
	}
	return append([]*types.PollRecord(nil), session.History...), true
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
