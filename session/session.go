// Package session implements the Host's session store: a cookie-keyed
// key/value cache with a sweep timer, plus the login/logout/authenticate/can
// authorization primitives built on top of it.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Reserved session keys used to stash the authenticated identity, matching
// the original implementation's sentinel key names so a Session's data map
// can be inspected directly without a separate auth struct.
const (
	keyUsername = "_:username:_"
	keyRole     = "_:role:_"
)

// DefaultCookieName is the session cookie name used when the host config
// does not override it.
const DefaultCookieName = "-web-session-"

// Session is one entry in the Host's session table: a unique id, its
// expiry bookkeeping, and a string->string data map available to route
// handlers via Login/Get/Set.
//
// A Session is owned by the Host's table and may also be referenced by
// whichever connection goroutine is currently serving a request that
// resolved to it; normally only that goroutine touches its fields, but the
// mutex guards against the sweep goroutine racing a concurrent handler.
type Session struct {
	ID       string
	data     map[string]string
	expireAt time.Time
	lifespan time.Duration
	mu       sync.Mutex
}

// newID derives a SHA-256 hex session id from a random nonce combined with
// the current time, substituting for the original's pointer-address-plus-
// monotonic-counter recipe (there are no stable per-connection pointers in
// Go worth hashing; a crypto-random nonce is the idiomatic replacement).
func newID() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	h := sha256.New()
	h.Write(nonce[:])
	fmt.Fprintf(h, "%d", time.Now().UnixNano())
	return hex.EncodeToString(h.Sum(nil)), nil
}

func newSession(lifespan time.Duration) (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:       id,
		data:     make(map[string]string),
		expireAt: time.Now().Add(lifespan),
		lifespan: lifespan,
	}, nil
}

// Get returns the value stored under key, or ("", false) if absent.
func (s *Session) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Del removes key.
func (s *Session) Del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// touch extends the session's expiry by its lifespan from now, called on
// every request that resolves to this session.
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireAt = time.Now().Add(s.lifespan)
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.After(s.expireAt)
}

// login records username and role against the session.
func (s *Session) login(username, role string) {
	s.Set(keyUsername, username)
	s.Set(keyRole, role)
}

// logout removes the username key; the caller is still responsible for
// destroying the session in the manager (spec: "Logout removes the username
// key and destroys the session").
func (s *Session) logout() {
	s.Del(keyUsername)
	s.Del(keyRole)
}

// identity returns the username/role pair stashed by login, or ("", "",
// false) if the session was never authenticated.
func (s *Session) identity() (username, role string, ok bool) {
	username, ok = s.Get(keyUsername)
	if !ok {
		return "", "", false
	}
	role, _ = s.Get(keyRole)
	return username, role, true
}
