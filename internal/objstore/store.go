// Package objstore is the content-addressed loose-object database rooted at
// a ".git/objects" directory: compute an envelope's SHA-1, place it at
// objects/<xx>/<yyyy...>, and read it back by name.
package objstore

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mustafaquraish/minigit/internal/githash"
	"github.com/mustafaquraish/minigit/internal/gitobject"
	"github.com/mustafaquraish/minigit/internal/giterrors"
	"github.com/mustafaquraish/minigit/internal/gitzlib"
)

// Store is a loose-object database rooted at a single objects directory.
type Store struct {
	dir string
}

// Open returns a Store rooted at objectsDir. It does not create the
// directory; Write does that lazily per fan-out subdirectory.
func Open(objectsDir string) *Store {
	return &Store{dir: objectsDir}
}

// Dir returns the root objects directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(h githash.Hash) string {
	hex := h.String()
	return filepath.Join(s.dir, hex[:2], hex[2:])
}

// Hash computes the envelope hash for a (kind, payload) pair without
// touching disk. The pack parser uses this to name undeltified and
// resolved-delta objects before inserting them into the in-memory Store.
func Hash(kind gitobject.Kind, payload []byte) githash.Hash {
	header := fmt.Sprintf("%s %d\x00", kind, len(payload))
	h := sha1.New()
	h.Write([]byte(header))
	h.Write(payload)
	var out githash.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Exists reports whether a loose object is present on disk for hash.
func (s *Store) Exists(h githash.Hash) bool {
	_, err := os.Stat(s.path(h))
	return err == nil
}

// Read loads and parses the loose object named by hash.
func (s *Store) Read(h githash.Hash) (*gitobject.Object, error) {
	p := s.path(h)
	compressed, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			kind := giterrors.NotFound
			if _, derr := os.Stat(filepath.Dir(p)); os.IsNotExist(derr) {
				return nil, giterrors.Wrap(kind, fmt.Sprintf("object directory missing for %s", h), err)
			}
			return nil, giterrors.Wrap(kind, fmt.Sprintf("object file missing for %s", h), err)
		}
		return nil, giterrors.Wrap(giterrors.IOError, "read loose object "+h.String(), err)
	}
	envelope, _, err := gitzlib.DecompressFrom(compressed, 0)
	if err != nil {
		return nil, err
	}
	return gitobject.ParseEnvelope(envelope)
}

// Write serializes (kind, payload) into its canonical envelope, computes
// its hash, and stores the zlib-compressed envelope at objects/<xx>/<yyyy...>.
// Writing the same content twice is allowed: the compressed bytes are
// identical, so an overwrite cannot corrupt the file.
func (s *Store) Write(kind gitobject.Kind, payload []byte) (githash.Hash, error) {
	header := fmt.Sprintf("%s %d\x00", kind, len(payload))
	envelope := make([]byte, 0, len(header)+len(payload))
	envelope = append(envelope, header...)
	envelope = append(envelope, payload...)

	h := Hash(kind, payload)
	p := s.path(h)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return h, giterrors.Wrap(giterrors.IOError, "create object fan-out directory", err)
	}

	compressed, err := gitzlib.Compress(envelope)
	if err != nil {
		return h, err
	}

	// Write through a temp file and rename so a crash mid-write leaves no
	// file at the final hash-named path rather than a truncated one;
	// either way re-running the fetch is self-healing.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return h, giterrors.Wrap(giterrors.IOError, "create temp object file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return h, giterrors.Wrap(giterrors.IOError, "write temp object file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return h, giterrors.Wrap(giterrors.IOError, "close temp object file", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return h, giterrors.Wrap(giterrors.IOError, "rename temp object file into place", err)
	}
	return h, nil
}

// WriteObject serializes and writes a typed Object, returning its hash.
func (s *Store) WriteObject(o *gitobject.Object) (githash.Hash, error) {
	payload, err := o.Payload()
	if err != nil {
		return githash.Hash{}, err
	}
	return s.Write(o.Kind, payload)
}

// ExpandPrefix resolves a (possibly abbreviated) hex prefix to the single
// matching hash on disk.
func (s *Store) ExpandPrefix(prefix string) (githash.Hash, error) {
	return githash.ExpandPrefix(s.dir, prefix)
}

// VerifyIntegrity re-reads the loose object at h from disk and confirms its
// envelope hashes back to h; it is the "hash integrity" testable property
// exercised against a real file rather than an in-memory buffer.
func (s *Store) VerifyIntegrity(h githash.Hash) error {
	obj, err := s.Read(h)
	if err != nil {
		return err
	}
	payload, err := obj.Payload()
	if err != nil {
		return err
	}
	if Hash(obj.Kind, payload) != h {
		return giterrors.New(giterrors.MalformedObject, fmt.Sprintf("stored object at %s re-hashes to a different name", h))
	}
	return nil
}
