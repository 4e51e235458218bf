package session

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionsFull is returned by Manager.Create when maxSessions has been
// reached: the store enforces a ceiling and refuses new sessions past it.
var ErrSessionsFull = errors.New("session: maxSessions reached")

// ErrNoSuchSession is returned by lookups for an id the table doesn't hold
// (never created, expired and swept, or explicitly destroyed).
var ErrNoSuchSession = errors.New("session: no such session")

// RoleTable resolves a role name to its privilege id using the host's
// ordered role list, ordered by increasing privilege.
type RoleTable struct {
	order []string
}

// NewRoleTable builds a RoleTable from roles ordered by ascending privilege,
// e.g. []string{"guest", "user", "admin"}.
func NewRoleTable(roles []string) *RoleTable {
	rt := &RoleTable{order: make([]string, len(roles))}
	copy(rt.order, roles)
	return rt
}

// ID returns role's privilege id and true, or (0, false) if role is unknown.
func (rt *RoleTable) ID(role string) (int, bool) {
	for i, r := range rt.order {
		if r == role {
			return i, true
		}
	}
	return 0, false
}

// Manager is the Host's session table: a map keyed by session id, with a
// periodic sweep goroutine that removes expired entries.
type Manager struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	maxSessions  int
	lifespan     time.Duration
	sweepStop    chan struct{}
	sweepStopped chan struct{}
}

// NewManager constructs a Manager with the given session lifespan and a
// ceiling on concurrently-live sessions. Call Start to begin the sweep
// timer and Stop to shut it down cleanly.
func NewManager(lifespan time.Duration, maxSessions int) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		lifespan:    lifespan,
	}
}

// Start launches the sweep goroutine, which removes expired sessions every
// interval. It must be called at most once per Manager.
func (m *Manager) Start(interval time.Duration) {
	m.sweepStop = make(chan struct{})
	m.sweepStopped = make(chan struct{})
	go func() {
		defer close(m.sweepStopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.sweepStop:
				return
			}
		}
	}()
}

// Stop halts the sweep goroutine and waits for it to exit.
func (m *Manager) Stop() {
	if m.sweepStop == nil {
		return
	}
	close(m.sweepStop)
	<-m.sweepStopped
}

func (m *Manager) sweep() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.expired(now) {
			delete(m.sessions, id)
		}
	}
}

// Create allocates a new session and registers it in the table, refusing if
// maxSessions has been reached.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, ErrSessionsFull
	}
	s, err := newSession(m.lifespan)
	if err != nil {
		return nil, err
	}
	m.sessions[s.ID] = s
	return s, nil
}

// Get resolves id to its live session, touching its expiry, or returns
// ErrNoSuchSession if id is unknown or has already expired.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNoSuchSession
	}
	if s.expired(time.Now()) {
		m.Destroy(id)
		return nil, ErrNoSuchSession
	}
	s.touch()
	return s, nil
}

// Destroy removes id from the table immediately, used by Logout (spec:
// "Logout removes the username key and destroys the session").
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns the number of currently registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Login authenticates a session, recording username/role.
func (m *Manager) Login(s *Session, username, role string) {
	s.login(username, role)
}

// Logout clears the session's identity and destroys it.
func (m *Manager) Logout(s *Session) {
	s.logout()
	m.Destroy(s.ID)
}

// Authenticator resolves the caller's identity/authorization for a single
// request with an authChecked short-circuit: the first call computes and
// caches the result, further calls within the same request are free.
type Authenticator struct {
	roles         *RoleTable
	checked       bool
	authenticated bool
	username      string
	role          string
	roleID        int
}

// NewAuthenticator returns an Authenticator bound to roles, fresh for one
// request/connection-task.
func NewAuthenticator(roles *RoleTable) *Authenticator {
	return &Authenticator{roles: roles}
}

// Authenticate resolves s's identity, caching the result for subsequent
// calls on the same Authenticator (one per request).
func (a *Authenticator) Authenticate(s *Session) (authenticated bool) {
	if a.checked {
		return a.authenticated
	}
	a.checked = true
	if s == nil {
		return false
	}
	username, role, ok := s.identity()
	if !ok {
		return false
	}
	roleID, ok := a.roles.ID(role)
	if !ok {
		return false
	}
	a.authenticated = true
	a.username = username
	a.role = role
	a.roleID = roleID
	return true
}

// Can reports whether the authenticated caller's role id is at least
// requiredRole's id. An unknown requiredRole never passes.
func (a *Authenticator) Can(requiredRole string) bool {
	if !a.authenticated {
		return false
	}
	requiredID, ok := a.roles.ID(requiredRole)
	if !ok {
		return false
	}
	return a.roleID >= requiredID
}

// Username returns the authenticated username, or "" if unauthenticated.
func (a *Authenticator) Username() string { return a.username }

// Role returns the authenticated role name, or "" if unauthenticated.
func (a *Authenticator) Role() string { return a.role }
