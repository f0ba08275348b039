package worktree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mustafaquraish/minigit/internal/gitobject"
	"github.com/mustafaquraish/minigit/internal/objstore"
)

func newStore(t *testing.T) *objstore.Store {
	t.Helper()
	dir := t.TempDir()
	return objstore.Open(dir)
}

func TestCheckoutWritesFilesAndSubdirectories(t *testing.T) {
	store := newStore(t)

	blobHash, err := store.Write(gitobject.KindBlob, []byte("hello\n"))
	if err != nil {
		t.Fatal(err)
	}
	execHash, err := store.Write(gitobject.KindBlob, []byte("#!/bin/sh\necho hi\n"))
	if err != nil {
		t.Fatal(err)
	}

	subTree := &gitobject.Tree{Entries: []gitobject.TreeEntry{
		{Mode: modeRegular, Name: "file.txt", Hash: blobHash},
	}}
	subTreeHash, err := store.WriteObject(gitobject.NewTree(subTree))
	if err != nil {
		t.Fatal(err)
	}

	rootTree := &gitobject.Tree{Entries: []gitobject.TreeEntry{
		{Mode: modeRegular, Name: "root.txt", Hash: blobHash},
		{Mode: modeExecutable, Name: "run.sh", Hash: execHash},
		{Mode: gitobject.ModeDir, Name: "sub", Hash: subTreeHash},
	}}
	rootHash, err := store.WriteObject(gitobject.NewTree(rootTree))
	if err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	n, err := Checkout(store, rootHash, dest)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if n != 3 {
		t.Fatalf("wrote %d blobs, want 3", n)
	}

	data, err := os.ReadFile(filepath.Join(dest, "root.txt"))
	if err != nil || string(data) != "hello\n" {
		t.Fatalf("root.txt = %q, %v", data, err)
	}
	info, err := os.Stat(filepath.Join(dest, "run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Error("run.sh should be executable")
	}
	if _, err := os.Stat(filepath.Join(dest, "sub", "file.txt")); err != nil {
		t.Errorf("sub/file.txt missing: %v", err)
	}
}

func TestCheckoutWritesSymlink(t *testing.T) {
	store := newStore(t)
	targetHash, err := store.Write(gitobject.KindBlob, []byte("root.txt"))
	if err != nil {
		t.Fatal(err)
	}
	rootTree := &gitobject.Tree{Entries: []gitobject.TreeEntry{
		{Mode: modeSymlink, Name: "link", Hash: targetHash},
	}}
	rootHash, err := store.WriteObject(gitobject.NewTree(rootTree))
	if err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if _, err := Checkout(store, rootHash, dest); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	target, err := os.Readlink(filepath.Join(dest, "link"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "root.txt" {
		t.Errorf("symlink target = %q, want root.txt", target)
	}
}
