package types

import (
	"sort"
	"time"
)

// Connection roles within a session.
const (
	RolePresenter   = "presenter"
	RoleParticipant = "participant"
)

// Inbound event types accepted by the router.
const (
	EventCreateSession     = "create_session"
	EventJoinSession       = "join_session"
	EventCreatePoll        = "create_poll"
	EventSubmitAnswer      = "submit_answer"
	EventRemoveParticipant = "remove_participant"
	EventChatMessage       = "chat_message"
)

// Outbound event types emitted to clients.
const (
	EventSessionCreated = "session_created"
	EventJoinAck        = "join_ack"
	EventCreatePollAck  = "create_poll_ack"
	EventRemoveAck      = "remove_ack"
	EventRosterUpdated  = "roster_updated"
	EventPollStarted    = "poll_started"
	EventPollEnded      = "poll_ended"
	EventTallyUpdated   = "tally_updated"
	EventKicked         = "kicked"
	EventSessionEnded   = "session_ended"
	EventError          = "error"
)

// Session is a single presenter's live polling instance. The entity store
// owns all Session records; mutation is serialized through the hub.
type Session struct {
	ID          string              `json:"id"`
	OwnerConnID string              `json:"-"`
	Roster      map[string]string   `json:"-"` // connection ID -> display name
	Removed     map[string]struct{} `json:"-"` // display names barred from rejoining
	Polls       []*Poll             `json:"polls"`
	ActivePoll  int                 `json:"active_poll"` // index into Polls, -1 when none
	History     []*PollRecord       `json:"history"`
}

// RosterNames returns the current participant display names sorted so every
// broadcast carries an identical snapshot.
func (s *Session) RosterNames() []string {
	names := make([]string, 0, len(s.Roster))
	for _, name := range s.Roster {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Poll is one question with ordered options, a duration, and per-participant
// answers. Answers map display name to chosen option; last submission wins.
type Poll struct {
	Question  string            `json:"question"`
	Options   []string          `json:"options"`
	Duration  int               `json:"duration"` // seconds
	StartedAt time.Time         `json:"started_at"`
	Answers   map[string]string `json:"-"` // display name -> option, never sent raw
}

// Tally aggregates current answers into option -> vote count. Pure function
// of Answers, recomputable at any time.
func (p *Poll) Tally() map[string]int {
	counts := make(map[string]int)
	for _, choice := range p.Answers {
		counts[choice]++
	}
	return counts
}

// Snapshot returns the poll's public view: question, options, duration and
// tallied counts. Raw per-participant answers are never exposed.
func (p *Poll) Snapshot() *PollSnapshot {
	return &PollSnapshot{
		Question: p.Question,
		Options:  append([]string(nil), p.Options...),
		Duration: p.Duration,
		Counts:   p.Tally(),
	}
}

// PollSnapshot is the tallied view of a poll sent to clients.
type PollSnapshot struct {
	Question string         `json:"question"`
	Options  []string       `json:"options"`
	Duration int            `json:"duration"`
	Counts   map[string]int `json:"counts"`
}

// PollRecord is a completed-poll snapshot captured at close time.
type PollRecord struct {
	SessionID string         `json:"session_id"`
	Question  string         `json:"question"`
	Options   []string       `json:"options"`
	Duration  int            `json:"duration"`
	StartedAt time.Time      `json:"started_at"`
	ClosedAt  time.Time      `json:"closed_at"`
	Counts    map[string]int `json:"counts"`
}

// Request is the tagged union of all inbound events. Type selects the event;
// the remaining fields carry that event's payload.
type Request struct {
	Type      string   `json:"type"`
	SessionID string   `json:"session_id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Question  string   `json:"question,omitempty"`
	Options   []string `json:"options,omitempty"`
	Duration  int      `json:"duration,omitempty"`
	Choice    string   `json:"choice,omitempty"`
	Sender    string   `json:"sender,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Event is an outbound notification, either point-to-point or broadcast.
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Success   *bool          `json:"success,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Roster    []string       `json:"roster,omitempty"`
	Poll      *PollSnapshot  `json:"poll,omitempty"`
	Question  string         `json:"question,omitempty"`
	Options   []string       `json:"options,omitempty"`
	Duration  int            `json:"duration,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	Sender    string         `json:"sender,omitempty"`
	Message   string         `json:"message,omitempty"`
}
