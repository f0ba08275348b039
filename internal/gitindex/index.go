// Package gitindex reads and writes the ".git/index" staging file: a
// binary format consumed by an external collaborator (the working-tree
// walker and "status" diff), included here only because the object store
// must produce blob hashes that agree with what the index stores.
package gitindex

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/mustafaquraish/minigit/internal/githash"
	"github.com/mustafaquraish/minigit/internal/giterrors"
)

const (
	magic          = "DIRC"
	supportedVer   = 2
	entryHeaderLen = 62 // everything before the NUL-terminated path
)

// Entry is one staged file. Only the fields the object store and a
// checkout need to agree on are modeled; git's extended flags (stage
// number, assume-valid, skip-worktree) are preserved as raw Flags.
type Entry struct {
	CTimeSec, CTimeNano uint32
	MTimeSec, MTimeNano uint32
	Dev, Ino            uint32
	Mode                uint32
	UID, GID            uint32
	Size                uint32
	Hash                githash.Hash
	Flags               uint16
	Path                string
}

// Index is the full staging area: a count-prefixed, sorted list of Entry.
type Index struct {
	Version uint32
	Entries []Entry
}

// Read parses the on-disk index at path.
func Read(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, giterrors.Wrap(giterrors.IOError, "read index", err)
	}
	return parse(data)
}

func parse(data []byte) (*Index, error) {
	if len(data) < 12+20 || string(data[:4]) != magic {
		return nil, giterrors.New(giterrors.MalformedObject, "index missing DIRC magic")
	}
	trailer := data[len(data)-20:]
	body := data[:len(data)-20]
	sum := sha1.Sum(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, giterrors.New(giterrors.MalformedObject, "index checksum mismatch")
	}

	version := binary.BigEndian.Uint32(data[4:8])
	if version != supportedVer {
		return nil, giterrors.New(giterrors.MalformedObject, fmt.Sprintf("unsupported index version %d", version))
	}
	count := binary.BigEndian.Uint32(data[8:12])

	idx := &Index{Version: version}
	pos := 12
	for i := uint32(0); i < count; i++ {
		e, consumed, err := parseEntry(body, pos)
		if err != nil {
			return nil, giterrors.Wrap(giterrors.MalformedObject, fmt.Sprintf("index entry %d", i), err)
		}
		idx.Entries = append(idx.Entries, e)
		pos += consumed
	}
	return idx, nil
}

func parseEntry(body []byte, pos int) (Entry, int, error) {
	if pos+entryHeaderLen > len(body) {
		return Entry{}, 0, giterrors.New(giterrors.MalformedObject, "truncated entry header")
	}
	f := body[pos : pos+entryHeaderLen]
	var e Entry
	e.CTimeSec = binary.BigEndian.Uint32(f[0:4])
	e.CTimeNano = binary.BigEndian.Uint32(f[4:8])
	e.MTimeSec = binary.BigEndian.Uint32(f[8:12])
	e.MTimeNano = binary.BigEndian.Uint32(f[12:16])
	e.Dev = binary.BigEndian.Uint32(f[16:20])
	e.Ino = binary.BigEndian.Uint32(f[20:24])
	e.Mode = binary.BigEndian.Uint32(f[24:28])
	e.UID = binary.BigEndian.Uint32(f[28:32])
	e.GID = binary.BigEndian.Uint32(f[32:36])
	e.Size = binary.BigEndian.Uint32(f[36:40])
	h, err := githash.FromBytes(f[40:60])
	if err != nil {
		return Entry{}, 0, err
	}
	e.Hash = h
	e.Flags = binary.BigEndian.Uint16(f[60:62])

	nameLen := int(e.Flags & 0x0fff)
	nameStart := pos + entryHeaderLen
	var name []byte
	if nameLen < 0x0fff {
		if nameStart+nameLen > len(body) {
			return Entry{}, 0, giterrors.New(giterrors.MalformedObject, "truncated entry path")
		}
		name = body[nameStart : nameStart+nameLen]
	} else {
		nul := bytes.IndexByte(body[nameStart:], 0)
		if nul < 0 {
			return Entry{}, 0, giterrors.New(giterrors.MalformedObject, "entry path missing NUL terminator")
		}
		name = body[nameStart : nameStart+nul]
	}
	e.Path = string(name)

	total := entryHeaderLen + len(name)
	padded := total + (8 - total%8)
	if total%8 == 0 {
		padded = total + 8
	}
	// Git requires at least one NUL and pads the whole entry to a multiple
	// of 8 measured from the start of the entry.
	return e, padded, nil
}

// Write serializes idx and writes it to path, recomputing the trailing
// SHA-1 checksum over the preceding bytes.
func Write(idx *Index, path string) error {
	var buf bytes.Buffer
	buf.WriteString(magic)
	writeU32(&buf, idx.Version)
	writeU32(&buf, uint32(len(idx.Entries)))

	for _, e := range idx.Entries {
		writeU32(&buf, e.CTimeSec)
		writeU32(&buf, e.CTimeNano)
		writeU32(&buf, e.MTimeSec)
		writeU32(&buf, e.MTimeNano)
		writeU32(&buf, e.Dev)
		writeU32(&buf, e.Ino)
		writeU32(&buf, e.Mode)
		writeU32(&buf, e.UID)
		writeU32(&buf, e.GID)
		writeU32(&buf, e.Size)
		buf.Write(e.Hash.Bytes())
		flags := (e.Flags &^ 0x0fff) | uint16(min(len(e.Path), 0x0fff))
		writeU16(&buf, flags)
		buf.WriteString(e.Path)
		total := entryHeaderLen + len(e.Path)
		pad := 8 - total%8
		buf.Write(make([]byte, pad))
	}

	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return giterrors.Wrap(giterrors.IOError, "write index", err)
	}
	return nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}
