package session

import "testing"

func TestCredentialStoreVerify(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	cs := NewCredentialStore([]Credential{
		{Username: "alice", PasswordHash: hash, Role: "admin"},
	})

	role, ok := cs.Verify("alice", "correct horse")
	if !ok || role != "admin" {
		t.Fatalf("Verify(correct) = (%q, %v), want (admin, true)", role, ok)
	}

	if _, ok := cs.Verify("alice", "wrong password"); ok {
		t.Fatalf("Verify should reject a wrong password")
	}

	if _, ok := cs.Verify("nobody", "correct horse"); ok {
		t.Fatalf("Verify should reject an unknown username")
	}
}

func TestCredentialStoreEmpty(t *testing.T) {
	cs := NewCredentialStore(nil)
	if _, ok := cs.Verify("anyone", "anything"); ok {
		t.Fatalf("empty store must reject every credential")
	}
}
