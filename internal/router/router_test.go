package router

import (
	"sync"
	"testing"
	"time"

	"pollroom/internal/poll"
	"pollroom/internal/registry"
	"pollroom/internal/session"
	"pollroom/internal/store"
	"pollroom/pkg/types"
)

// fakeNotifier records deliveries instead of writing to sockets.
type fakeNotifier struct {
	mu         sync.Mutex
	sends      []sentEvent
	broadcasts []broadcastEvent
	joins      []string
	drops      []string
}

type sentEvent struct {
	connID string
	event  *types.Event
}

type broadcastEvent struct {
	sessionID string
	event     *types.Event
}

func (f *fakeNotifier) Send(connID string, event *types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentEvent{connID, event})
}

func (f *fakeNotifier) Broadcast(sessionID string, event *types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, broadcastEvent{sessionID, event})
}

func (f *fakeNotifier) JoinSession(sessionID, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, sessionID+"/"+connID)
}

func (f *fakeNotifier) LeaveSession(sessionID, connID string) {}

func (f *fakeNotifier) DropSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops = append(f.drops, sessionID)
}

func (f *fakeNotifier) sentTo(connID string) []*types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var events []*types.Event
	for _, s := range f.sends {
		if s.connID == connID {
			events = append(events, s.event)
		}
	}
	return events
}

func (f *fakeNotifier) broadcastTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var typeNames []string
	for _, b := range f.broadcasts {
		typeNames = append(typeNames, b.event.Type)
	}
	return typeNames
}

func newTestRouter(t *testing.T) (*fakeNotifier, *store.Store, *Router) {
	t.Helper()

	st := store.NewStore()
	reg := registry.NewRegistry(st)
	submit := func(task func()) error {
		task()
		return nil
	}
	coordinator := poll.NewCoordinator(st, reg, nil, submit)
	lifecycle := session.NewManager(st, reg, coordinator)
	notifier := &fakeNotifier{}
	return notifier, st, NewRouter(lifecycle, coordinator, notifier)
}

// createSession drives the create_session event and returns the new ID.
func createSession(t *testing.T, r *Router, notifier *fakeNotifier, connID string) string {
	t.Helper()
	r.HandleRequest(connID, &types.Request{Type: types.EventCreateSession})

	events := notifier.sentTo(connID)
	last := events[len(events)-1]
	if last.Type != types.EventSessionCreated || last.SessionID == "" {
		t.Fatalf("Expected session_created ack, got %+v", last)
	}
	return last.SessionID
}

func TestCreateSessionEvent(t *testing.T) {
	notifier, st, r := newTestRouter(t)

	sessionID := createSession(t, r, notifier, "conn-t")
	if _, exists := st.Get(sessionID); !exists {
		t.Error("create_session should create a live session")
	}
	if len(notifier.joins) != 1 {
		t.Errorf("Presenter should join the broadcast set, got %v", notifier.joins)
	}
}

func TestJoinSessionEvent(t *testing.T) {
	notifier, _, r := newTestRouter(t)
	sessionID := createSession(t, r, notifier, "conn-t")

	r.HandleRequest("conn-p", &types.Request{
		Type:      types.EventJoinSession,
		SessionID: sessionID,
		Name:      "Ana",
	})

	acks := notifier.sentTo("conn-p")
	if len(acks) != 1 || acks[0].Type != types.EventJoinAck {
		t.Fatalf("Expected join_ack, got %+v", acks)
	}
	if acks[0].Success == nil || !*acks[0].Success {
		t.Error("Expected successful join_ack")
	}
	if len(acks[0].Roster) != 1 || acks[0].Roster[0] != "Ana" {
		t.Errorf("Expected roster [Ana], got %v", acks[0].Roster)
	}

	broadcastNames := notifier.broadcastTypes()
	if len(broadcastNames) != 1 || broadcastNames[0] != types.EventRosterUpdated {
		t.Errorf("Expected roster_updated broadcast, got %v", broadcastNames)
	}
}

func TestJoinSessionFailureAck(t *testing.T) {
	notifier, _, r := newTestRouter(t)

	r.HandleRequest("conn-p", &types.Request{
		Type:      types.EventJoinSession,
		SessionID: "NOSUCH",
		Name:      "Ana",
	})

	acks := notifier.sentTo("conn-p")
	if len(acks) != 1 || acks[0].Type != types.EventJoinAck {
		t.Fatalf("Expected join_ack, got %+v", acks)
	}
	if acks[0].Success == nil || *acks[0].Success || acks[0].Reason == "" {
		t.Errorf("Expected failure ack with reason, got %+v", acks[0])
	}
	if len(notifier.broadcastTypes()) != 0 {
		t.Error("Failed join must not broadcast")
	}
}

func TestCreatePollEvent(t *testing.T) {
	notifier, _, r := newTestRouter(t)
	sessionID := createSession(t, r, notifier, "conn-t")

	r.HandleRequest("conn-t", &types.Request{
		Type:      types.EventCreatePoll,
		SessionID: sessionID,
		Question:  "Q?",
		Options:   []string{"A", "B"},
		Duration:  60,
	})

	events := notifier.sentTo("conn-t")
	ack := events[len(events)-1]
	if ack.Type != types.EventCreatePollAck || ack.Success == nil || !*ack.Success {
		t.Fatalf("Expected successful create_poll_ack, got %+v", ack)
	}
	if ack.Poll == nil || ack.Poll.Question != "Q?" {
		t.Errorf("Ack should carry the poll snapshot, got %+v", ack.Poll)
	}

	broadcastNames := notifier.broadcastTypes()
	if len(broadcastNames) != 1 || broadcastNames[0] != types.EventPollStarted {
		t.Errorf("Expected poll_started broadcast, got %v", broadcastNames)
	}
}

func TestCreatePollValidationAck(t *testing.T) {
	notifier, _, r := newTestRouter(t)
	sessionID := createSession(t, r, notifier, "conn-t")

	r.HandleRequest("conn-t", &types.Request{
		Type:      types.EventCreatePoll,
		SessionID: sessionID,
		Question:  "",
		Options:   []string{"A", "B"},
		Duration:  60,
	})

	events := notifier.sentTo("conn-t")
	ack := events[len(events)-1]
	if ack.Type != types.EventCreatePollAck || ack.Success == nil || *ack.Success {
		t.Fatalf("Expected failure ack, got %+v", ack)
	}
	if len(notifier.broadcastTypes()) != 0 {
		t.Error("Failed poll creation must not broadcast")
	}
}

func TestSubmitAnswerBroadcastsTally(t *testing.T) {
	notifier, _, r := newTestRouter(t)
	sessionID := createSession(t, r, notifier, "conn-t")
	r.HandleRequest("conn-p", &types.Request{Type: types.EventJoinSession, SessionID: sessionID, Name: "Ana"})
	r.HandleRequest("conn-t", &types.Request{
		Type: types.EventCreatePoll, SessionID: sessionID,
		Question: "Q?", Options: []string{"A", "B"}, Duration: 60,
	})

	r.HandleRequest("conn-p", &types.Request{
		Type:      types.EventSubmitAnswer,
		SessionID: sessionID,
		Choice:    "A",
	})

	notifier.mu.Lock()
	last := notifier.broadcasts[len(notifier.broadcasts)-1]
	notifier.mu.Unlock()
	if last.event.Type != types.EventTallyUpdated || last.event.Counts["A"] != 1 {
		t.Errorf("Expected tally_updated {A:1}, got %+v", last.event)
	}
}

func TestSubmitAnswerFailureGoesOnlyToSender(t *testing.T) {
	notifier, _, r := newTestRouter(t)
	sessionID := createSession(t, r, notifier, "conn-t")
	r.HandleRequest("conn-p", &types.Request{Type: types.EventJoinSession, SessionID: sessionID, Name: "Ana"})

	broadcastsBefore := len(notifier.broadcastTypes())

	// No active poll: the submitter gets an error, nobody else hears it
	r.HandleRequest("conn-p", &types.Request{
		Type:      types.EventSubmitAnswer,
		SessionID: sessionID,
		Choice:    "A",
	})

	events := notifier.sentTo("conn-p")
	last := events[len(events)-1]
	if last.Type != types.EventError || last.Reason == "" {
		t.Errorf("Expected point-to-point error, got %+v", last)
	}
	if len(notifier.broadcastTypes()) != broadcastsBefore {
		t.Error("Submit failure must not broadcast")
	}
}

func TestRemoveParticipantFlow(t *testing.T) {
	notifier, _, r := newTestRouter(t)
	sessionID := createSession(t, r, notifier, "conn-t")
	r.HandleRequest("conn-sam", &types.Request{Type: types.EventJoinSession, SessionID: sessionID, Name: "Sam"})

	r.HandleRequest("conn-t", &types.Request{
		Type:      types.EventRemoveParticipant,
		SessionID: sessionID,
		Name:      "Sam",
	})

	samEvents := notifier.sentTo("conn-sam")
	kicked := samEvents[len(samEvents)-1]
	if kicked.Type != types.EventKicked {
		t.Errorf("Removed connection should receive kicked, got %+v", kicked)
	}

	broadcastNames := notifier.broadcastTypes()
	if broadcastNames[len(broadcastNames)-1] != types.EventRosterUpdated {
		t.Errorf("Expected roster_updated broadcast after removal, got %v", broadcastNames)
	}

	// Sam cannot rejoin
	r.HandleRequest("conn-sam2", &types.Request{Type: types.EventJoinSession, SessionID: sessionID, Name: "Sam"})
	rejoin := notifier.sentTo("conn-sam2")
	if rejoin[0].Success == nil || *rejoin[0].Success {
		t.Errorf("Expected rejoin to fail, got %+v", rejoin[0])
	}
}

func TestPresenterDisconnectBroadcastsSessionEnded(t *testing.T) {
	notifier, st, r := newTestRouter(t)
	sessionID := createSession(t, r, notifier, "conn-t")
	r.HandleRequest("conn-p1", &types.Request{Type: types.EventJoinSession, SessionID: sessionID, Name: "Ana"})
	r.HandleRequest("conn-p2", &types.Request{Type: types.EventJoinSession, SessionID: sessionID, Name: "Ben"})

	r.HandleDisconnect("conn-t")

	broadcastNames := notifier.broadcastTypes()
	if broadcastNames[len(broadcastNames)-1] != types.EventSessionEnded {
		t.Errorf("Expected session_ended broadcast, got %v", broadcastNames)
	}
	if len(notifier.drops) != 1 || notifier.drops[0] != sessionID {
		t.Errorf("Expected broadcast set dropped for %s, got %v", sessionID, notifier.drops)
	}
	if _, exists := st.Get(sessionID); exists {
		t.Error("Session should be gone after presenter disconnect")
	}
}

func TestParticipantDisconnectBroadcastsRoster(t *testing.T) {
	notifier, _, r := newTestRouter(t)
	sessionID := createSession(t, r, notifier, "conn-t")
	r.HandleRequest("conn-p1", &types.Request{Type: types.EventJoinSession, SessionID: sessionID, Name: "Ana"})
	r.HandleRequest("conn-p2", &types.Request{Type: types.EventJoinSession, SessionID: sessionID, Name: "Ben"})

	r.HandleDisconnect("conn-p1")

	notifier.mu.Lock()
	last := notifier.broadcasts[len(notifier.broadcasts)-1]
	notifier.mu.Unlock()
	if last.event.Type != types.EventRosterUpdated {
		t.Fatalf("Expected roster_updated, got %+v", last.event)
	}
	if len(last.event.Roster) != 1 || last.event.Roster[0] != "Ben" {
		t.Errorf("Expected roster [Ben], got %v", last.event.Roster)
	}
}

func TestChatMessageRelay(t *testing.T) {
	notifier, _, r := newTestRouter(t)
	sessionID := createSession(t, r, notifier, "conn-t")

	r.HandleRequest("conn-t", &types.Request{
		Type:      types.EventChatMessage,
		SessionID: sessionID,
		Sender:    "Ana",
		Message:   "hello",
	})

	notifier.mu.Lock()
	last := notifier.broadcasts[len(notifier.broadcasts)-1]
	notifier.mu.Unlock()
	if last.event.Type != types.EventChatMessage || last.event.Sender != "Ana" || last.event.Message != "hello" {
		t.Errorf("Expected verbatim chat relay, got %+v", last.event)
	}
}

func TestUnknownEventType(t *testing.T) {
	notifier, _, r := newTestRouter(t)

	r.HandleRequest("conn-x", &types.Request{Type: "bogus"})

	events := notifier.sentTo("conn-x")
	if len(events) != 1 || events[0].Type != types.EventError {
		t.Errorf("Expected error for unknown event type, got %+v", events)
	}
}

func TestPollEndedBroadcastOnTimerExpiry(t *testing.T) {
	notifier, _, r := newTestRouter(t)
	sessionID := createSession(t, r, notifier, "conn-t")
	r.HandleRequest("conn-p", &types.Request{Type: types.EventJoinSession, SessionID: sessionID, Name: "Ana"})
	r.HandleRequest("conn-t", &types.Request{
		Type: types.EventCreatePoll, SessionID: sessionID,
		Question: "Q?", Options: []string{"A", "B"}, Duration: 1,
	})

	deadline := time.After(3 * time.Second)
	for {
		broadcastNames := notifier.broadcastTypes()
		if len(broadcastNames) > 0 && broadcastNames[len(broadcastNames)-1] == types.EventPollEnded {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("Timed out waiting for poll_ended, broadcasts: %v", broadcastNames)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < eventsPerMinute; i++ {
		if !rl.Allow("conn-x") {
			t.Fatalf("Event %d should be allowed", i+1)
		}
	}
	if rl.Allow("conn-x") {
		t.Error("Event beyond the limit should be rejected")
	}
	if !rl.Allow("conn-y") {
		t.Error("Other connections are limited independently")
	}

	rl.Forget("conn-x")
	if !rl.Allow("conn-x") {
		t.Error("Forget should reset the window")
	}

	rl.Cleanup()
	if !rl.Allow("conn-y") {
		t.Error("Rate limiter should keep working after cleanup")
	}
}
