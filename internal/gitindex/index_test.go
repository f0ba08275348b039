package gitindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mustafaquraish/minigit/internal/githash"
)

func sampleIndex() *Index {
	h, _ := githash.FromHexString("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	return &Index{
		Version: 2,
		Entries: []Entry{
			{Mode: 0o100644, Size: 0, Hash: h, Path: "a.txt"},
			{Mode: 0o100755, Size: 12, Hash: h, Path: "dir/b.sh"},
		},
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index")
	want := sampleIndex()

	if err := Write(want, path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Entries) != len(want.Entries) {
		t.Fatalf("got %d entries, want %d", len(got.Entries), len(want.Entries))
	}
	for i, e := range got.Entries {
		if e.Path != want.Entries[i].Path || e.Mode != want.Entries[i].Mode || e.Hash != want.Entries[i].Hash {
			t.Errorf("entry %d = %+v, want %+v", i, e, want.Entries[i])
		}
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index")
	if err := os.WriteFile(path, []byte("NOPE0000000000000000000000000000000"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("expected error for bad magic, got nil")
	}
}

func TestReadRejectsBadChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index")
	if err := Write(sampleIndex(), path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("expected checksum mismatch error, got nil")
	}
}
