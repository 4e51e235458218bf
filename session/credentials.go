package session

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Credential is one configured login identity: a username, its bcrypt
// password hash, and the role granted on successful verification.
type Credential struct {
	Username     string
	PasswordHash string
	Role         string
}

// CredentialStore resolves a username/password pair to a role, backing
// the built-in login action with password verification against a bcrypt
// hash rather than trusting a caller-supplied role outright.
type CredentialStore struct {
	byUsername map[string]Credential
}

// NewCredentialStore indexes creds by username. A later duplicate username
// overrides an earlier one.
func NewCredentialStore(creds []Credential) *CredentialStore {
	cs := &CredentialStore{byUsername: make(map[string]Credential, len(creds))}
	for _, c := range creds {
		cs.byUsername[c.Username] = c
	}
	return cs
}

// HashPassword bcrypt-hashes password at the default cost, for use when
// provisioning a Credential (e.g. from a device setup wizard).
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("session: hash password: %w", err)
	}
	return string(hash), nil
}

// Verify checks username/password against the store, returning the
// credential's role on success. It does not distinguish "unknown username"
// from "wrong password" in its return value, avoiding a username-enumeration
// oracle; bcrypt.CompareHashAndPassword's own timing already resists a
// constant-time side channel for the hash comparison itself, but a missing
// username would otherwise skip the hash compare entirely and respond
// faster, so a fixed dummy hash is compared in that case too.
func (cs *CredentialStore) Verify(username, password string) (role string, ok bool) {
	cred, found := cs.byUsername[username]
	hash := cred.PasswordHash
	if !found {
		hash = dummyHash
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if !found || err != nil {
		return "", false
	}
	return cred.Role, true
}

// dummyHash is a valid bcrypt hash of an unreachable password, compared
// against on an unknown username so Verify takes roughly the same time
// whether or not the username exists.
const dummyHash = "$2a$10$CwTycUXWue0Thq9StjUM0uJ8Z3r0vA2i9A3a1cFZ9n/P2IQeVm.3C"
