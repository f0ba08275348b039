package gitobject

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/mustafaquraish/minigit/internal/githash"
	"github.com/mustafaquraish/minigit/internal/giterrors"
)

// ModeDir is the mode git gives a sub-tree entry; it has no "file type"
// bits set in the low digits the way blob modes do.
const ModeDir uint32 = 0o40000

// TreeEntry is one (mode, name, hash) triple in a directory listing.
type TreeEntry struct {
	Mode uint32
	Name string
	Hash githash.Hash
}

// IsDir reports whether the entry names a sub-tree.
func (e TreeEntry) IsDir() bool { return e.Mode == ModeDir }

// Tree is an ordered sequence of directory entries.
type Tree struct {
	Entries []TreeEntry
}

// sortKey orders entries the way git does: byte-lexicographic on the name,
// except that a directory's name is compared as if suffixed with "/" so
// that e.g. a directory "foo" (compared as "foo/") sorts after a file
// "foo.txt", since '.' sorts before '/'.
func sortKey(e TreeEntry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

func (t *Tree) sorted() []TreeEntry {
	out := make([]TreeEntry, len(t.Entries))
	copy(out, t.Entries)
	sort.SliceStable(out, func(i, j int) bool {
		return sortKey(out[i]) < sortKey(out[j])
	})
	return out
}

func marshalTree(t *Tree) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range t.sorted() {
		fmt.Fprintf(&buf, "%s %s", strconv.FormatUint(uint64(e.Mode), 8), e.Name)
		buf.WriteByte(0)
		buf.Write(e.Hash.Bytes())
	}
	return buf.Bytes(), nil
}

func unmarshalTree(payload []byte) (*Tree, error) {
	t := &Tree{}
	for len(payload) > 0 {
		sp := bytes.IndexByte(payload, ' ')
		if sp < 0 {
			return nil, giterrors.New(giterrors.MalformedObject, "tree entry missing mode separator")
		}
		mode, err := strconv.ParseUint(string(payload[:sp]), 8, 32)
		if err != nil {
			return nil, giterrors.Wrap(giterrors.MalformedObject, "tree entry has invalid mode", err)
		}
		rest := payload[sp+1:]
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, giterrors.New(giterrors.MalformedObject, "tree entry missing name terminator")
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]
		if len(rest) < githash.Size {
			return nil, giterrors.New(giterrors.MalformedObject, "tree entry truncated hash")
		}
		h, err := githash.FromBytes(rest[:githash.Size])
		if err != nil {
			return nil, err
		}
		t.Entries = append(t.Entries, TreeEntry{Mode: uint32(mode), Name: name, Hash: h})
		payload = rest[githash.Size:]
	}
	return t, nil
}
