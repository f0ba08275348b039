package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mustafaquraish/minigit/internal/gitobject"
	"github.com/mustafaquraish/minigit/internal/objstore"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })
}

func TestInitGitSkeletonCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	if err := initGitSkeleton(gitDir); err != nil {
		t.Fatalf("initGitSkeleton: %v", err)
	}
	for _, want := range []string{"objects", filepath.Join("refs", "heads")} {
		if info, err := os.Stat(filepath.Join(gitDir, want)); err != nil || !info.IsDir() {
			t.Errorf("missing directory %s", want)
		}
	}
	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if string(head) != "ref: refs/heads/master\n" {
		t.Errorf("HEAD = %q", head)
	}
}

func TestInitGitSkeletonIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	if err := initGitSkeleton(gitDir); err != nil {
		t.Fatal(err)
	}
	custom := []byte("ref: refs/heads/custom\n")
	if err := os.WriteFile(filepath.Join(gitDir, "HEAD"), custom, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := initGitSkeleton(gitDir); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(custom) {
		t.Errorf("initGitSkeleton overwrote an existing HEAD: got %q", got)
	}
}

func TestCmdInitThenHashObjectThenCatFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	if err := cmdInit(nil); err != nil {
		t.Fatalf("cmdInit: %v", err)
	}

	filePath := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(filePath, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := cmdHashObject([]string{"-w", "hello.txt"}); err != nil {
		t.Fatalf("cmdHashObject: %v", err)
	}

	store, err := openStoreFromCWD()
	if err != nil {
		t.Fatalf("openStoreFromCWD: %v", err)
	}
	wantHash := objstore.Hash(gitobject.KindBlob, []byte("hello\n"))
	if !store.Exists(wantHash) {
		t.Fatalf("hash-object did not write blob %s", wantHash)
	}

	if err := cmdCatFile([]string{"-p", wantHash.String()}); err != nil {
		t.Fatalf("cmdCatFile: %v", err)
	}
}

func TestCmdLsTreeAndCommitTree(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	if err := cmdInit(nil); err != nil {
		t.Fatal(err)
	}

	store, err := openStoreFromCWD()
	if err != nil {
		t.Fatal(err)
	}
	blobHash, err := store.Write(gitobject.KindBlob, []byte("content\n"))
	if err != nil {
		t.Fatal(err)
	}
	tree := &gitobject.Tree{Entries: []gitobject.TreeEntry{
		{Mode: 0o100644, Name: "file.txt", Hash: blobHash},
	}}
	treeHash, err := store.WriteObject(gitobject.NewTree(tree))
	if err != nil {
		t.Fatal(err)
	}

	if err := cmdLsTree([]string{treeHash.String()}); err != nil {
		t.Fatalf("cmdLsTree: %v", err)
	}

	if err := cmdCommitTree([]string{treeHash.String(), "-m", "initial commit"}); err != nil {
		t.Fatalf("cmdCommitTree: %v", err)
	}
}

func TestResolveHashAcceptsAbbreviatedPrefix(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := cmdInit(nil); err != nil {
		t.Fatal(err)
	}
	store, err := openStoreFromCWD()
	if err != nil {
		t.Fatal(err)
	}
	h, err := store.Write(gitobject.KindBlob, []byte("abbreviated\n"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := resolveHash(store, h.String()[:8])
	if err != nil {
		t.Fatalf("resolveHash: %v", err)
	}
	if got != h {
		t.Errorf("resolveHash = %s, want %s", got, h)
	}
}
