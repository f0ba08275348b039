// Package githash is the binary/hex SHA-1 codec shared by the object store
// and the pack parser. A Hash is hashable and comparable, so it can be used
// directly as a map key for the in-memory pack staging area.
package githash

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mustafaquraish/minigit/internal/giterrors"
)

// Size is the length in bytes of a raw SHA-1 digest.
const Size = 20

// HexSize is the length of the lowercase-hex string form.
const HexSize = 2 * Size

// Hash is a 20-byte SHA-1 digest.
type Hash [Size]byte

// Zero is the all-zero hash git uses to mean "no object" on the wire.
var Zero Hash

// FromBytes copies a 20-byte digest into a Hash.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, giterrors.New(giterrors.MalformedObject, fmt.Sprintf("hash must be %d bytes, got %d", Size, len(b)))
	}
	copy(h[:], b)
	return h, nil
}

// Bytes returns the raw 20-byte digest.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// String renders the hash as 40 lowercase hex characters.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool { return h == Zero }

// FromHexString parses exactly 40 lowercase-or-uppercase hex characters.
func FromHexString(s string) (Hash, error) {
	var h Hash
	if len(s) != HexSize {
		return h, giterrors.New(giterrors.MalformedObject, fmt.Sprintf("hash string must be %d hex chars, got %d", HexSize, len(s)))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, giterrors.Wrap(giterrors.MalformedObject, "invalid hex in hash", err)
	}
	copy(h[:], b)
	return h, nil
}

// ExpandPrefix looks up a unique loose object under objectsDir sharing the
// given hex prefix (2-40 chars). It fails with AmbiguousHash if more than
// one loose object matches, and NotFound if none do.
func ExpandPrefix(objectsDir, prefix string) (Hash, error) {
	if len(prefix) < 2 || len(prefix) > HexSize {
		return Hash{}, giterrors.New(giterrors.NotFound, fmt.Sprintf("invalid hash prefix %q", prefix))
	}
	dirPart, restPart := prefix[:2], prefix[2:]
	dir := filepath.Join(objectsDir, dirPart)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Hash{}, giterrors.Wrap(giterrors.NotFound, fmt.Sprintf("no objects under prefix %s", prefix), err)
		}
		return Hash{}, giterrors.Wrap(giterrors.IOError, "read objects directory", err)
	}

	var match string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if len(name) < len(restPart) || name[:len(restPart)] != restPart {
			continue
		}
		if match != "" && match != name {
			return Hash{}, giterrors.New(giterrors.AmbiguousHash, fmt.Sprintf("prefix %s matches multiple objects", prefix))
		}
		match = name
	}
	if match == "" {
		return Hash{}, giterrors.New(giterrors.NotFound, fmt.Sprintf("no object matches prefix %s", prefix))
	}
	return FromHexString(dirPart + match)
}
