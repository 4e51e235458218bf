package session

import (
	"testing"
	"time"
)

func TestManagerCreateAndGet(t *testing.T) {
	m := NewManager(time.Minute, 10)
	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != s.ID {
		t.Fatalf("got different session")
	}
}

func TestManagerMaxSessions(t *testing.T) {
	m := NewManager(time.Minute, 1)
	if _, err := m.Create(); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := m.Create(); err != ErrSessionsFull {
		t.Fatalf("expected ErrSessionsFull, got %v", err)
	}
}

func TestManagerExpiry(t *testing.T) {
	m := NewManager(time.Millisecond, 10)
	s, _ := m.Create()
	time.Sleep(5 * time.Millisecond)
	if _, err := m.Get(s.ID); err != ErrNoSuchSession {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	m := NewManager(time.Millisecond, 10)
	s, _ := m.Create()
	m.Start(2 * time.Millisecond)
	defer m.Stop()
	time.Sleep(20 * time.Millisecond)
	m.mu.RLock()
	_, ok := m.sessions[s.ID]
	m.mu.RUnlock()
	if ok {
		t.Fatalf("expected sweep to have removed expired session")
	}
}

func TestLoginLogoutAndAuthorize(t *testing.T) {
	roles := NewRoleTable([]string{"guest", "user", "admin"})
	m := NewManager(time.Minute, 10)
	s, _ := m.Create()
	m.Login(s, "alice", "user")

	auth := NewAuthenticator(roles)
	if !auth.Authenticate(s) {
		t.Fatalf("expected authenticated")
	}
	if !auth.Can("guest") || !auth.Can("user") {
		t.Errorf("user should satisfy guest and user requirements")
	}
	if auth.Can("admin") {
		t.Errorf("user should not satisfy admin requirement")
	}
	if auth.Username() != "alice" {
		t.Errorf("Username() = %q", auth.Username())
	}

	m.Logout(s)
	if _, err := m.Get(s.ID); err != ErrNoSuchSession {
		t.Fatalf("expected session destroyed after logout, got %v", err)
	}
}

func TestAuthenticateShortCircuits(t *testing.T) {
	roles := NewRoleTable([]string{"guest", "user"})
	m := NewManager(time.Minute, 10)
	s, _ := m.Create()
	m.Login(s, "bob", "user")

	auth := NewAuthenticator(roles)
	auth.Authenticate(s)
	m.Logout(s) // mutate underlying session after first check
	if !auth.Authenticate(s) {
		t.Fatalf("expected cached authenticated result on second call")
	}
}

func TestUnauthenticatedCannotAuthorize(t *testing.T) {
	roles := NewRoleTable([]string{"guest", "user"})
	auth := NewAuthenticator(roles)
	if auth.Can("guest") {
		t.Fatalf("unauthenticated caller must never pass Can")
	}
}
