package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mustafaquraish/minigit/internal/githash"
	"github.com/mustafaquraish/minigit/internal/gitobject"
	"github.com/mustafaquraish/minigit/internal/objstore"
)

// initGitSkeleton creates the minimal ".git" directory layout a fresh
// repository needs: objects/ and refs/heads/, plus a HEAD pointing at an
// unborn master branch.
func initGitSkeleton(gitDir string) error {
	if err := os.MkdirAll(filepath.Join(gitDir, "objects"), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0o755); err != nil {
		return err
	}
	headPath := filepath.Join(gitDir, "HEAD")
	if _, err := os.Stat(headPath); os.IsNotExist(err) {
		if err := os.WriteFile(headPath, []byte("ref: refs/heads/master\n"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	fs.Parse(args)
	rest := fs.Args()
	dir := "."
	if len(rest) == 1 {
		dir = rest[0]
	} else if len(rest) > 1 {
		return fmt.Errorf("usage: minigit init [dir]")
	}
	gitDir := filepath.Join(dir, ".git")
	if err := initGitSkeleton(gitDir); err != nil {
		return err
	}
	fmt.Printf("Initialized empty minigit repository in %s\n", gitDir)
	return nil
}

func openStoreFromCWD() (*objstore.Store, error) {
	gitDir, err := findGitDir(".")
	if err != nil {
		return nil, err
	}
	return objstore.Open(filepath.Join(gitDir, "objects")), nil
}

func findGitDir(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, ".git")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a minigit repository (no .git directory found)")
		}
		dir = parent
	}
}

func cmdCatFile(args []string) error {
	fs := flag.NewFlagSet("cat-file", flag.ExitOnError)
	print := fs.Bool("p", false, "pretty-print the object's payload")
	fs.Parse(args)
	rest := fs.Args()
	if !*print || len(rest) != 1 {
		return fmt.Errorf("usage: minigit cat-file -p <hash>")
	}

	store, err := openStoreFromCWD()
	if err != nil {
		return err
	}
	h, err := resolveHash(store, rest[0])
	if err != nil {
		return err
	}
	obj, err := store.Read(h)
	if err != nil {
		return err
	}
	payload, err := obj.Payload()
	if err != nil {
		return err
	}
	os.Stdout.Write(payload)
	return nil
}

func resolveHash(store *objstore.Store, prefix string) (githash.Hash, error) {
	if len(prefix) == githash.HexSize {
		return githash.FromHexString(prefix)
	}
	return store.ExpandPrefix(prefix)
}

func cmdHashObject(args []string) error {
	fs := flag.NewFlagSet("hash-object", flag.ExitOnError)
	write := fs.Bool("w", false, "write the object to the store")
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: minigit hash-object [-w] <file>")
	}

	data, err := os.ReadFile(rest[0])
	if err != nil {
		return err
	}

	if !*write {
		fmt.Println(objstore.Hash(gitobject.KindBlob, data).String())
		return nil
	}

	store, err := openStoreFromCWD()
	if err != nil {
		return err
	}
	h, err := store.Write(gitobject.KindBlob, data)
	if err != nil {
		return err
	}
	fmt.Println(h.String())
	return nil
}

func cmdLsTree(args []string) error {
	fs := flag.NewFlagSet("ls-tree", flag.ExitOnError)
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: minigit ls-tree <hash>")
	}

	store, err := openStoreFromCWD()
	if err != nil {
		return err
	}
	h, err := resolveHash(store, rest[0])
	if err != nil {
		return err
	}
	obj, err := store.Read(h)
	if err != nil {
		return err
	}
	if obj.Kind != gitobject.KindTree {
		return fmt.Errorf("%s is not a tree", rest[0])
	}
	for _, entry := range obj.Tree.Entries {
		kind := "blob"
		if entry.IsDir() {
			kind = "tree"
		}
		fmt.Printf("%06o %s %s\t%s\n", entry.Mode, kind, entry.Hash, entry.Name)
	}
	return nil
}

func cmdCommitTree(args []string) error {
	fs := flag.NewFlagSet("commit-tree", flag.ExitOnError)
	parent := fs.String("p", "", "parent commit hash")
	message := fs.String("m", "", "commit message")
	// The tree hash comes first ("<tree> -p ... -m ..."), but flag parsing
	// stops at the first non-flag argument, so parse it after the flags.
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		args = append(append([]string{}, args[1:]...), args[0])
	}
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) != 1 || *message == "" {
		return fmt.Errorf("usage: minigit commit-tree <tree> [-p parent] -m <msg>")
	}

	store, err := openStoreFromCWD()
	if err != nil {
		return err
	}
	treeHash, err := resolveHash(store, rest[0])
	if err != nil {
		return err
	}

	now := uint64(time.Now().Unix())
	commit := &gitobject.Commit{
		TreeHash:    treeHash,
		Author:      "minigit <minigit@localhost>",
		AuthorTime:  now,
		AuthorTZ:    "+0000",
		Committer:   "minigit <minigit@localhost>",
		CommitTime:  now,
		CommitterTZ: "+0000",
		Message:     []byte(*message + "\n"),
	}
	if *parent != "" {
		parentHash, err := resolveHash(store, *parent)
		if err != nil {
			return err
		}
		commit.Parents = append(commit.Parents, parentHash)
	}

	h, err := store.WriteObject(gitobject.NewCommit(commit))
	if err != nil {
		return err
	}
	fmt.Println(h.String())
	return nil
}
