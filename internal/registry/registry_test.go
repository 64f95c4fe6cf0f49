package registry

import (
	"testing"

	"pollroom/internal/store"
	"pollroom/pkg/types"
)

func newTestRegistry(t *testing.T) (*store.Store, *Registry) {
	t.Helper()
	st := store.NewStore()
	return st, NewRegistry(st)
}

func TestRegisterPresenter(t *testing.T) {
	st, reg := newTestRegistry(t)

	sessionID, err := reg.RegisterPresenter("conn-t")
	if err != nil {
		t.Fatalf("RegisterPresenter failed: %v", err)
	}

	if _, exists := st.Get(sessionID); !exists {
		t.Error("Presenter registration should create the session")
	}

	binding, ok := reg.Resolve("conn-t")
	if !ok {
		t.Fatal("Presenter connection should resolve")
	}
	if binding.SessionID != sessionID || binding.Role != types.RolePresenter || binding.Name != "" {
		t.Errorf("Unexpected presenter binding: %+v", binding)
	}
}

func TestRegisterParticipant(t *testing.T) {
	st, reg := newTestRegistry(t)
	sessionID, _ := reg.RegisterPresenter("conn-t")

	if err := reg.RegisterParticipant("conn-p", sessionID, "Ana"); err != nil {
		t.Fatalf("RegisterParticipant failed: %v", err)
	}

	session, _ := st.Get(sessionID)
	if session.Roster["conn-p"] != "Ana" {
		t.Error("Participant should appear in roster")
	}

	binding, ok := reg.Resolve("conn-p")
	if !ok || binding.Role != types.RoleParticipant || binding.Name != "Ana" {
		t.Errorf("Unexpected participant binding: %+v (ok=%v)", binding, ok)
	}
}

func TestRegisterParticipantSessionNotFound(t *testing.T) {
	_, reg := newTestRegistry(t)

	err := reg.RegisterParticipant("conn-p", "NOSUCH", "Ana")
	if err != types.ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegisterParticipantRemovedName(t *testing.T) {
	st, reg := newTestRegistry(t)
	sessionID, _ := reg.RegisterPresenter("conn-t")

	session, _ := st.Get(sessionID)
	session.Removed["Sam"] = struct{}{}

	err := reg.RegisterParticipant("conn-p", sessionID, "Sam")
	if err != types.ErrParticipantRemoved {
		t.Errorf("Expected ErrParticipantRemoved, got %v", err)
	}
	if len(session.Roster) != 0 {
		t.Error("Removed name must not enter the roster")
	}
}

func TestUnregisterParticipant(t *testing.T) {
	st, reg := newTestRegistry(t)
	sessionID, _ := reg.RegisterPresenter("conn-t")
	reg.RegisterParticipant("conn-p", sessionID, "Ana")

	reg.Unregister("conn-p")

	if _, ok := reg.Resolve("conn-p"); ok {
		t.Error("Unregistered connection should not resolve")
	}
	session, _ := st.Get(sessionID)
	if len(session.Roster) != 0 {
		t.Error("Unregister should remove the roster entry")
	}

	// Idempotent
	reg.Unregister("conn-p")
}

func TestUnregisterSession(t *testing.T) {
	_, reg := newTestRegistry(t)
	sessionID, _ := reg.RegisterPresenter("conn-t")
	reg.RegisterParticipant("conn-p1", sessionID, "Ana")
	reg.RegisterParticipant("conn-p2", sessionID, "Ben")

	reg.UnregisterSession(sessionID)

	for _, connID := range []string{"conn-t", "conn-p1", "conn-p2"} {
		if _, ok := reg.Resolve(connID); ok {
			t.Errorf("Connection %s should not resolve after session teardown", connID)
		}
	}
	if stats := reg.Stats(); stats["bindings"] != 0 || stats["indexed_sessions"] != 0 {
		t.Errorf("Expected empty registry, got %v", stats)
	}
}

func TestFindParticipant(t *testing.T) {
	_, reg := newTestRegistry(t)
	sessionID, _ := reg.RegisterPresenter("conn-t")
	reg.RegisterParticipant("conn-p", sessionID, "Ana")

	connID, found := reg.FindParticipant(sessionID, "Ana")
	if !found || connID != "conn-p" {
		t.Errorf("Expected conn-p, got %q (found=%v)", connID, found)
	}

	if _, found := reg.FindParticipant(sessionID, "Ghost"); found {
		t.Error("Unknown name should not be found")
	}
	if _, found := reg.FindParticipant("NOSUCH", "Ana"); found {
		t.Error("Unknown session should not be found")
	}
}
