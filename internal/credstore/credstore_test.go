package credstore

import (
	"path/filepath"
	"testing"
	"time"
)

func TestPutAndGetRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minigit-credentials")
	store := Open(path, "passphrase-123", time.Hour)

	cred := Credential{Username: "alice", Password: "token-abc", CachedAt: time.Now()}
	if err := store.Put("https://example.com/repo.git", cred); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := store.Get("https://example.com/repo.git")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected credential to be found")
	}
	if got.Username != "alice" || got.Password != "token-abc" {
		t.Errorf("got %+v", got)
	}
}

func TestGetMissingReturnsNotOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minigit-credentials")
	store := Open(path, "passphrase-123", time.Hour)

	_, ok, err := store.Get("https://nope.example.com/repo.git")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected no credential for unknown remote")
	}
}

func TestExpiredCredentialIsNotReturned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minigit-credentials")
	store := Open(path, "passphrase-123", time.Millisecond)

	cred := Credential{Username: "alice", Password: "token-abc", CachedAt: time.Now().Add(-time.Hour)}
	if err := store.Put("https://example.com/repo.git", cred); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, ok, err := store.Get("https://example.com/repo.git")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected expired credential to be treated as absent")
	}
}

func TestWrongPassphraseFailsToDecrypt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minigit-credentials")
	store := Open(path, "passphrase-123", time.Hour)
	if err := store.Put("https://example.com/repo.git", Credential{Username: "alice", Password: "x", CachedAt: time.Now()}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	wrong := Open(path, "different-passphrase", time.Hour)
	if _, _, err := wrong.Get("https://example.com/repo.git"); err == nil {
		t.Fatal("expected decryption error with wrong passphrase")
	}
}

func TestForgetRemovesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minigit-credentials")
	store := Open(path, "passphrase-123", time.Hour)
	if err := store.Put("https://example.com/repo.git", Credential{Username: "alice", Password: "x", CachedAt: time.Now()}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Forget("https://example.com/repo.git"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	_, ok, err := store.Get("https://example.com/repo.git")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected credential to be gone after Forget")
	}
}
