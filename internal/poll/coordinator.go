package poll

import (
	"context"
	"log"
	"sync"
	"time"

	"pollroom/internal/registry"
	"pollroom/internal/store"
	"pollroom/pkg/types"
)

// Archiver persists completed-poll records. Optional; nil disables archiving.
type Archiver interface {
	RecordPoll(ctx context.Context, record *types.PollRecord) error
}

// Coordinator owns poll lifecycle transitions, answer recording, tallying
// and the scheduling of auto-close timers. Close callbacks run through the
// submit function so they are serialized with inbound events.
type Coordinator struct {
	store    *store.Store
	registry *registry.Registry
	archive  Archiver
	submit   func(task func()) error

	// schedule is swappable in tests to capture close callbacks.
	schedule func(d time.Duration, fn func()) *time.Timer

	onClosed func(sessionID string, record *types.PollRecord)

	mu     sync.Mutex
	timers map[string]*time.Timer // sessionID -> pending close timer
}

// NewCoordinator creates a poll coordinator. submit serializes timer
// callbacks onto the event stream; archive may be nil.
func NewCoordinator(st *store.Store, reg *registry.Registry, archive Archiver, submit func(task func()) error) *Coordinator {
	return &Coordinator{
		store:    st,
		registry: reg,
		archive:  archive,
		submit:   submit,
		schedule: time.AfterFunc,
		timers:   make(map[string]*time.Timer),
	}
}

// OnPollClosed registers the hook invoked after a poll closes through its
// timer. The record carries tallied counts only.
func (c *Coordinator) OnPollClosed(fn func(sessionID string, record *types.PollRecord)) {
	c.onClosed = fn
}

// CreatePoll validates input, appends the poll, makes it the session's
// active poll and schedules its close. A still-running timer from a
// superseded poll is left to fire; the identity guard in finishPoll makes it
// a no-op.
func (c *Coordinator) CreatePoll(sessionID, question string, options []string, duration int) (*types.Poll, error) {
	session, exists := c.store.Get(sessionID)
	if !exists {
		return nil, types.ErrSessionNotFound
	}

	cleaned, err := types.ValidatePoll(question, options, duration)
	if err != nil {
		return nil, err
	}

	poll := &types.Poll{
		Question:  question,
		Options:   cleaned,
		Duration:  duration,
		StartedAt: time.Now(),
		Answers:   make(map[string]string),
	}
	session.Polls = append(session.Polls, poll)
	session.ActivePoll = len(session.Polls) - 1

	timer := c.schedule(time.Duration(duration)*time.Second, func() {
		if err := c.submit(func() { c.finishPoll(sessionID, poll) }); err != nil {
			log.Printf("Poll close dropped: session=%s err=%v", sessionID, err)
		}
	})

	c.mu.Lock()
	c.timers[sessionID] = timer
	c.mu.Unlock()

	log.Printf("Poll started: session=%s options=%d duration=%ds", sessionID, len(cleaned), duration)
	return poll, nil
}

// SubmitAnswer records a participant's choice on the active poll and returns
// the fresh tally. Resubmission overwrites the previous choice.
func (c *Coordinator) SubmitAnswer(sessionID, connID, choice string) (map[string]int, error) {
	session, exists := c.store.Get(sessionID)
	if !exists {
		return nil, types.ErrSessionNotFound
	}
	if session.ActivePoll < 0 {
		return nil, types.ErrNoActivePoll
	}
	poll := session.Polls[session.ActivePoll]

	binding, ok := c.registry.Resolve(connID)
	if !ok || binding.SessionID != sessionID || binding.Role != types.RoleParticipant {
		return nil, types.ErrUnknownParticipant
	}

	if err := types.ValidateChoice(choice, poll.Options); err != nil {
		return nil, err
	}

	poll.Answers[binding.Name] = choice
	return poll.Tally(), nil
}

// Tally aggregates raw answers into option -> count.
func Tally(answers map[string]string) map[string]int {
	counts := make(map[string]int)
	for _, choice := range answers {
		counts[choice]++
	}
	return counts
}

// CancelTimer stops a session's pending close timer. Called on session
// teardown so timers are not leaked waiting to fail the existence check.
func (c *Coordinator) CancelTimer(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timer, exists := c.timers[sessionID]; exists {
		timer.Stop()
		delete(c.timers, sessionID)
	}
}

// finishPoll is the guarded close callback. It verifies the poll it was
// scheduled for is still the session's active poll before clearing the
// active index: a stale timer from a superseded poll must never close a
// newer one. No-op when the session is gone.
func (c *Coordinator) finishPoll(sessionID string, poll *types.Poll) {
	session, exists := c.store.Get(sessionID)
	if !exists {
		return
	}
	if session.ActivePoll < 0 || session.Polls[session.ActivePoll] != poll {
		return
	}
	session.ActivePoll = -1

	c.mu.Lock()
	delete(c.timers, sessionID)
	c.mu.Unlock()

	record, err := c.store.RecordHistory(sessionID, poll, poll.Tally())
	if err != nil {
		log.Printf("History record failed: session=%s err=%v", sessionID, err)
		return
	}

	if c.archive != nil {
		if err := c.archive.RecordPoll(context.Background(), record); err != nil {
			log.Printf("Poll archive failed: session=%s err=%v", sessionID, err)
		}
	}

	log.Printf("Poll ended: session=%s answers=%d", sessionID, len(poll.Answers))
	if c.onClosed != nil {
		c.onClosed(sessionID, record)
	}
}
