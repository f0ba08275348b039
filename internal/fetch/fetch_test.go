package fetch

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mustafaquraish/minigit/internal/config"
	"github.com/mustafaquraish/minigit/internal/giterrors"
	"github.com/mustafaquraish/minigit/internal/gitobject"
	"github.com/mustafaquraish/minigit/internal/objstore"
	"github.com/mustafaquraish/minigit/internal/pktline"
)

// rawType mirrors gitpack's 3-bit pack object type tags; duplicated here so
// the test fixture builder has no dependency on gitpack's unexported pieces.
const (
	rawCommit = 1
	rawTree   = 2
	rawBlob   = 3
)

func encodePackHeader(kind int, size uint64) []byte {
	first := byte(kind<<4) | byte(size&0x0f)
	size >>= 4
	var out []byte
	if size > 0 {
		first |= 0x80
	}
	out = append(out, first)
	for size > 0 {
		b := byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// buildTestPack constructs a minimal undeltified packfile containing a
// blob, a tree referencing it, and a commit referencing the tree.
func buildTestPack(t *testing.T) (packBytes []byte, commitHash string) {
	t.Helper()
	store := objstore.Open(t.TempDir())

	blobHash, err := store.Write(gitobject.KindBlob, []byte("hello\n"))
	if err != nil {
		t.Fatal(err)
	}
	tree := &gitobject.Tree{Entries: []gitobject.TreeEntry{
		{Mode: 0o100644, Name: "hello.txt", Hash: blobHash},
	}}
	treeObj := gitobject.NewTree(tree)
	treePayload, err := treeObj.Payload()
	if err != nil {
		t.Fatal(err)
	}
	treeHash, err := store.Write(gitobject.KindTree, treePayload)
	if err != nil {
		t.Fatal(err)
	}

	commit := &gitobject.Commit{
		TreeHash:    treeHash,
		Author:      "Test <test@example.com>",
		AuthorTime:  1700000000,
		AuthorTZ:    "+0000",
		Committer:   "Test <test@example.com>",
		CommitTime:  1700000000,
		CommitterTZ: "+0000",
		Message:     []byte("initial commit\n"),
	}
	commitObj := gitobject.NewCommit(commit)
	commitPayload, err := commitObj.Payload()
	if err != nil {
		t.Fatal(err)
	}
	commitHashVal, err := store.Write(gitobject.KindCommit, commitPayload)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	buf.WriteString("PACK")
	var versionCount [8]byte
	binary.BigEndian.PutUint32(versionCount[0:4], 2)
	binary.BigEndian.PutUint32(versionCount[4:8], 3)
	buf.Write(versionCount[:])

	blobData, err := store.Read(blobHash)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range []struct {
		kind    int
		payload []byte
	}{
		{rawBlob, blobData.Blob.Data},
		{rawTree, treePayload},
		{rawCommit, commitPayload},
	} {
		buf.Write(encodePackHeader(entry.kind, uint64(len(entry.payload))))
		buf.Write(compress(t, entry.payload))
	}

	return buf.Bytes(), commitHashVal.String()
}

func newTestServer(t *testing.T, packBody []byte, commitHash string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/info/refs", func(w http.ResponseWriter, r *http.Request) {
		w.Write(pktline.EncodeString("# service=git-upload-pack\n"))
		w.Write(pktline.Flush())
		w.Write(pktline.EncodeString(fmt.Sprintf("%s refs/heads/master\n", commitHash)))
		w.Write(pktline.Flush())
	})
	mux.HandleFunc("/git-upload-pack", func(w http.ResponseWriter, r *http.Request) {
		w.Write(pktline.EncodeString("NAK\n"))
		w.Write(packBody)
	})
	return httptest.NewServer(mux)
}

func TestCloneEndToEnd(t *testing.T) {
	packBody, commitHash := buildTestPack(t)
	server := newTestServer(t, packBody, commitHash)
	defer server.Close()

	gitDir := filepath.Join(t.TempDir(), ".git")
	if err := os.MkdirAll(filepath.Join(gitDir, "objects"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0o755); err != nil {
		t.Fatal(err)
	}
	workDir := t.TempDir()

	driver := NewDriver(config.Default(), WithMetrics(NewMetrics(nil)))
	result, err := driver.Clone(context.Background(), server.URL, gitDir, workDir, Credentials{Username: "x", Password: "y"})
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if result.Hash.String() != commitHash {
		t.Errorf("result.Hash = %s, want %s", result.Hash, commitHash)
	}
	if result.ObjectCount != 3 {
		t.Errorf("result.ObjectCount = %d, want 3", result.ObjectCount)
	}
	if result.CheckoutFiles != 1 {
		t.Errorf("result.CheckoutFiles = %d, want 1", result.CheckoutFiles)
	}

	data, err := os.ReadFile(filepath.Join(workDir, "hello.txt"))
	if err != nil {
		t.Fatalf("read checked-out file: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("hello.txt = %q, want %q", data, "hello\n")
	}

	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if string(head) != "ref: refs/heads/master\n" {
		t.Errorf("HEAD = %q", head)
	}
}

func TestCloneWithoutMasterBranchFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/info/refs", func(w http.ResponseWriter, r *http.Request) {
		w.Write(pktline.EncodeString("# service=git-upload-pack\n"))
		w.Write(pktline.Flush())
		w.Write(pktline.EncodeString(fmt.Sprintf("%s refs/heads/develop\n", "0000000000000000000000000000000000000000")))
		w.Write(pktline.Flush())
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	gitDir := filepath.Join(t.TempDir(), ".git")
	os.MkdirAll(filepath.Join(gitDir, "objects"), 0o755)
	os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0o755)

	driver := NewDriver(config.Default(), WithMetrics(NewMetrics(nil)))
	_, err := driver.Clone(context.Background(), server.URL, gitDir, t.TempDir(), Credentials{Username: "x", Password: "y"})
	if !giterrors.Is(err, giterrors.NoMasterBranch) {
		t.Fatalf("expected NoMasterBranch error when remote lacks refs/heads/master, got %v", err)
	}
}

func TestCloneWithoutCredentialsFailsWithAuthMissing(t *testing.T) {
	driver := NewDriver(config.Default(), WithMetrics(NewMetrics(nil)))
	_, err := driver.Clone(context.Background(), "http://example.invalid", t.TempDir(), t.TempDir(), Credentials{})
	if !giterrors.Is(err, giterrors.AuthMissing) {
		t.Fatalf("expected AuthMissing error, got %v", err)
	}
}
