package provenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "provenance.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestAppendAndLast(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := Record{
		RemoteURL: "https://example.com/repo.git", RefName: "refs/heads/main",
		Hash: "aaaa", FetchedAt: time.Now().Add(-time.Hour), ObjectCount: 10, DeltaCount: 2,
	}
	second := Record{
		RemoteURL: "https://example.com/repo.git", RefName: "refs/heads/main",
		Hash: "bbbb", FetchedAt: time.Now(), ObjectCount: 12, DeltaCount: 3,
	}
	if err := db.Append(ctx, first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := db.Append(ctx, second); err != nil {
		t.Fatalf("Append: %v", err)
	}

	last, ok, err := db.Last(ctx, "https://example.com/repo.git", "refs/heads/main")
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !ok {
		t.Fatal("expected a last record")
	}
	if last.Hash != "bbbb" {
		t.Errorf("Last hash = %q, want bbbb", last.Hash)
	}
}

func TestLastMissingReturnsNotOK(t *testing.T) {
	db := openTestDB(t)
	_, ok, err := db.Last(context.Background(), "https://nope.example.com/repo.git", "HEAD")
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if ok {
		t.Fatal("expected no record for unknown remote")
	}
}

func TestHistoryOrdersMostRecentFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	remote := "https://example.com/repo.git"

	for i, hash := range []string{"h1", "h2", "h3"} {
		rec := Record{
			RemoteURL: remote, RefName: "refs/heads/main", Hash: hash,
			FetchedAt: time.Now().Add(time.Duration(i) * time.Minute), ObjectCount: i, DeltaCount: 0,
		}
		if err := db.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	history, err := db.History(ctx, remote)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
	if history[0].Hash != "h3" {
		t.Errorf("history[0].Hash = %q, want h3", history[0].Hash)
	}
}
