package router

import (
	"log"

	"pollroom/internal/poll"
	"pollroom/internal/session"
	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// Router is the single entry/exit boundary of the coordination engine. It
// receives inbound typed requests, delegates to the session manager or poll
// coordinator, and emits acks and broadcasts through the notifier. Handlers
// are invoked from the hub goroutine, so each runs to completion before the
// next event is processed.
type Router struct {
	sessions *session.Manager
	polls    *poll.Coordinator
	notifier interfaces.Notifier
	limiter  *RateLimiter
}

// NewRouter creates an event router and hooks the poll-ended broadcast into
// the coordinator's guarded close path.
func NewRouter(sessions *session.Manager, polls *poll.Coordinator, notifier interfaces.Notifier) *Router {
	r := &Router{
		sessions: sessions,
		polls:    polls,
		notifier: notifier,
		limiter:  NewRateLimiter(),
	}
	polls.OnPollClosed(r.pollClosed)
	return r
}

// HandleRequest dispatches one inbound event from a connection. Failures are
// always scoped to the requesting connection: request/response events get a
// failure ack; fire-and-forget events get a point-to-point error.
func (r *Router) HandleRequest(connID string, req *types.Request) {
	if !r.limiter.Allow(connID) {
		r.sendError(connID, ErrRateLimitExceeded)
		return
	}

	switch req.Type {
	case types.EventCreateSession:
		r.createSession(connID)
	case types.EventJoinSession:
		r.joinSession(connID, req)
	case types.EventCreatePoll:
		r.createPoll(connID, req)
	case types.EventSubmitAnswer:
		r.submitAnswer(connID, req)
	case types.EventRemoveParticipant:
		r.removeParticipant(connID, req)
	case types.EventChatMessage:
		r.chatMessage(req)
	default:
		r.sendError(connID, ErrUnknownEventType)
	}
}

// HandleDisconnect processes a dropped connection and notifies the affected
// session.
func (r *Router) HandleDisconnect(connID string) {
	r.limiter.Forget(connID)
	outcome := r.sessions.HandleDisconnect(connID)

	switch outcome.Kind {
	case session.OutcomeSessionEnded:
		r.notifier.Broadcast(outcome.SessionID, &types.Event{
			Type:      types.EventSessionEnded,
			SessionID: outcome.SessionID,
		})
		r.notifier.DropSession(outcome.SessionID)

	case session.OutcomeParticipantLeft:
		r.notifier.LeaveSession(outcome.SessionID, connID)
		r.notifier.Broadcast(outcome.SessionID, &types.Event{
			Type:      types.EventRosterUpdated,
			SessionID: outcome.SessionID,
			Roster:    outcome.Roster,
		})
	}
}

func (r *Router) createSession(connID string) {
	sessionID, err := r.sessions.AdmitPresenter(connID)
	if err != nil {
		log.Printf("Session creation failed: conn=%s err=%v", connID, err)
		r.notifier.Send(connID, failureAck(types.EventSessionCreated, err))
		return
	}

	r.notifier.JoinSession(sessionID, connID)
	r.notifier.Send(connID, &types.Event{
		Type:      types.EventSessionCreated,
		SessionID: sessionID,
		Success:   boolPtr(true),
	})
}

func (r *Router) joinSession(connID string, req *types.Request) {
	result, err := r.sessions.AdmitParticipant(req.Name, req.SessionID, connID)
	if err != nil {
		r.notifier.Send(connID, failureAck(types.EventJoinAck, err))
		return
	}

	r.notifier.JoinSession(req.SessionID, connID)
	r.notifier.Send(connID, &types.Event{
		Type:      types.EventJoinAck,
		SessionID: req.SessionID,
		Success:   boolPtr(true),
		Roster:    result.Roster,
		Poll:      result.Poll,
	})
	r.notifier.Broadcast(req.SessionID, &types.Event{
		Type:      types.EventRosterUpdated,
		SessionID: req.SessionID,
		Roster:    result.Roster,
	})
}

func (r *Router) createPoll(connID string, req *types.Request) {
	created, err := r.polls.CreatePoll(req.SessionID, req.Question, req.Options, req.Duration)
	if err != nil {
		r.notifier.Send(connID, failureAck(types.EventCreatePollAck, err))
		return
	}

	r.notifier.Send(connID, &types.Event{
		Type:      types.EventCreatePollAck,
		SessionID: req.SessionID,
		Success:   boolPtr(true),
		Poll:      created.Snapshot(),
	})
	r.notifier.Broadcast(req.SessionID, &types.Event{
		Type:      types.EventPollStarted,
		SessionID: req.SessionID,
		Question:  created.Question,
		Options:   created.Options,
		Duration:  created.Duration,
	})
}

func (r *Router) submitAnswer(connID string, req *types.Request) {
	counts, err := r.polls.SubmitAnswer(req.SessionID, connID, req.Choice)
	if err != nil {
		// Fire-and-forget: failure goes only to the submitter.
		r.sendError(connID, err)
		return
	}

	r.notifier.Broadcast(req.SessionID, &types.Event{
		Type:      types.EventTallyUpdated,
		SessionID: req.SessionID,
		Counts:    counts,
	})
}

func (r *Router) removeParticipant(connID string, req *types.Request) {
	result, err := r.sessions.RemoveParticipant(req.SessionID, req.Name)
	if err != nil {
		r.notifier.Send(connID, failureAck(types.EventRemoveAck, err))
		return
	}

	if result.TargetConnID != "" {
		r.notifier.Send(result.TargetConnID, &types.Event{
			Type:      types.EventKicked,
			SessionID: req.SessionID,
		})
		r.notifier.LeaveSession(req.SessionID, result.TargetConnID)
	}
	r.notifier.Send(connID, &types.Event{
		Type:      types.EventRemoveAck,
		SessionID: req.SessionID,
		Success:   boolPtr(true),
		Roster:    result.Roster,
	})
	r.notifier.Broadcast(req.SessionID, &types.Event{
		Type:      types.EventRosterUpdated,
		SessionID: req.SessionID,
		Roster:    result.Roster,
	})
}

// chatMessage is a stateless pass-through: the message is broadcast verbatim
// and nothing is retained.
func (r *Router) chatMessage(req *types.Request) {
	r.notifier.Broadcast(req.SessionID, &types.Event{
		Type:      types.EventChatMessage,
		SessionID: req.SessionID,
		Sender:    req.Sender,
		Message:   req.Message,
	})
}

func (r *Router) pollClosed(sessionID string, _ *types.PollRecord) {
	r.notifier.Broadcast(sessionID, &types.Event{
		Type:      types.EventPollEnded,
		SessionID: sessionID,
	})
}

func (r *Router) sendError(connID string, err error) {
	r.notifier.Send(connID, &types.Event{
		Type:   types.EventError,
		Reason: err.Error(),
	})
}

func failureAck(eventType string, err error) *types.Event {
	return &types.Event{
		Type:    eventType,
		Success: boolPtr(false),
		Reason:  err.Error(),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
