// Package gitpack decodes the binary packfile format: the "PACK" header,
// per-object headers with their variable-length size encoding, and the two
// delta representations (ref-delta and ofs-delta). Undeltified objects are
// inserted directly into a Stage; delta records are queued for the resolver
// in package deltaresolve.
package gitpack

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/mustafaquraish/minigit/internal/githash"
	"github.com/mustafaquraish/minigit/internal/gitobject"
	"github.com/mustafaquraish/minigit/internal/giterrors"
	"github.com/mustafaquraish/minigit/internal/gitzlib"
	"github.com/mustafaquraish/minigit/internal/objstore"
)

// RawType is the 3-bit type tag a pack object header carries on the wire.
type RawType int

const (
	RawCommit   RawType = 1
	RawTree     RawType = 2
	RawBlob     RawType = 3
	RawTag      RawType = 4
	rawReserved RawType = 5
	RawOfsDelta RawType = 6
	RawRefDelta RawType = 7
)

func (t RawType) kind() (gitobject.Kind, bool) {
	switch t {
	case RawCommit:
		return gitobject.KindCommit, true
	case RawTree:
		return gitobject.KindTree, true
	case RawBlob:
		return gitobject.KindBlob, true
	case RawTag:
		return gitobject.KindTag, true
	default:
		return 0, false
	}
}

// StagedObject is a fully decoded (kind, payload) pair awaiting a write
// through to disk. It is what both undeltified pack entries and resolved
// deltas become.
type StagedObject struct {
	Kind    gitobject.Kind
	Payload []byte
}

// Delta is one undecoded delta record pulled from the pack: the
// instructions needed to rebuild an object from a base that may not yet be
// resolved. Exactly one of BaseRef/BaseOffset is valid, selected by
// FromOfs.
type Delta struct {
	FromOfs      bool
	BaseRef      githash.Hash // valid when !FromOfs
	BaseOffset   int64        // absolute pack offset of the base, valid when FromOfs
	BaseSize     uint64
	ResultSize   uint64
	Instructions []Instruction

	selfOffset int64 // this delta's own starting offset in the pack
}

// SelfOffset returns the pack offset this delta's header started at, so the
// resolver can register it once the delta resolves (letting a later
// ofs-delta elsewhere in the pack reference it).
func (d Delta) SelfOffset() int64 { return d.selfOffset }

// Stage is the in-memory staging area the pack parser fills and the
// resolver drains: resolved objects keyed by hash, queued deltas in pack
// arrival order, and a record of which pack offset produced which hash so
// ofs-delta bases can be found once they resolve.
type Stage struct {
	Objects      map[githash.Hash]StagedObject
	Deltas       []Delta
	offsetToHash map[int64]githash.Hash
}

func newStage() *Stage {
	return &Stage{
		Objects:      make(map[githash.Hash]StagedObject),
		offsetToHash: make(map[int64]githash.Hash),
	}
}

// HashForOffset returns the hash an object starting at the given absolute
// pack offset eventually resolved to, if known yet.
func (s *Stage) HashForOffset(offset int64) (githash.Hash, bool) {
	h, ok := s.offsetToHash[offset]
	return h, ok
}

func (s *Stage) recordOffset(offset int64, h githash.Hash) {
	s.offsetToHash[offset] = h
}

// Parse decodes the "PACK" header, the object count, and every object
// record. It returns a Stage containing every undeltified object (already
// hashed) and every delta record (queued, not yet resolved).
func Parse(body []byte) (*Stage, error) {
	if len(body) < 12 || string(body[:4]) != "PACK" {
		return nil, giterrors.New(giterrors.MalformedPack, "missing PACK magic")
	}
	version := binary.BigEndian.Uint32(body[4:8])
	if version != 2 && version != 3 {
		return nil, giterrors.New(giterrors.MalformedPack, fmt.Sprintf("unsupported pack version %d", version))
	}
	count := binary.BigEndian.Uint32(body[8:12])

	stage := newStage()
	pos := 12
	for i := uint32(0); i < count; i++ {
		objOffset := int64(pos)
		rawType, size, headerLen, err := readObjectHeader(body, pos)
		if err != nil {
			return nil, giterrors.Wrap(giterrors.MalformedPack, fmt.Sprintf("object %d header", i), err)
		}
		pos += headerLen

		switch rawType {
		case RawCommit, RawTree, RawBlob, RawTag:
			kind, _ := rawType.kind()
			payload, consumed, err := gitzlib.DecompressFrom(body, pos)
			if err != nil {
				return nil, giterrors.Wrap(giterrors.MalformedPack, fmt.Sprintf("object %d payload", i), err)
			}
			if uint64(len(payload)) != size {
				return nil, giterrors.New(giterrors.MalformedPack, fmt.Sprintf("object %d declared size %d, got %d", i, size, len(payload)))
			}
			pos += consumed
			h := hashStaged(kind, payload)
			stage.Objects[h] = StagedObject{Kind: kind, Payload: payload}
			stage.recordOffset(objOffset, h)

		case RawRefDelta:
			if pos+githash.Size > len(body) {
				return nil, giterrors.New(giterrors.MalformedPack, fmt.Sprintf("object %d truncated ref-delta base", i))
			}
			base, err := githash.FromBytes(body[pos : pos+githash.Size])
			if err != nil {
				return nil, err
			}
			pos += githash.Size
			deltaPayload, consumed, err := gitzlib.DecompressFrom(body, pos)
			if err != nil {
				return nil, giterrors.Wrap(giterrors.MalformedPack, fmt.Sprintf("object %d delta payload", i), err)
			}
			pos += consumed
			d, err := parseDeltaPayload(deltaPayload)
			if err != nil {
				return nil, giterrors.Wrap(giterrors.MalformedPack, fmt.Sprintf("object %d delta instructions", i), err)
			}
			d.BaseRef = base
			d.selfOffset = objOffset
			stage.Deltas = append(stage.Deltas, d)

		case RawOfsDelta:
			negOffset, ofsLen, err := readOfsDeltaOffset(body, pos)
			if err != nil {
				return nil, giterrors.Wrap(giterrors.MalformedPack, fmt.Sprintf("object %d ofs-delta offset", i), err)
			}
			baseOffset := objOffset - negOffset
			if baseOffset < 0 || baseOffset >= objOffset {
				return nil, giterrors.New(giterrors.MalformedPack, fmt.Sprintf("object %d ofs-delta points outside the pack", i))
			}
			pos += ofsLen
			deltaPayload, consumed, err := gitzlib.DecompressFrom(body, pos)
			if err != nil {
				return nil, giterrors.Wrap(giterrors.MalformedPack, fmt.Sprintf("object %d delta payload", i), err)
			}
			pos += consumed
			d, err := parseDeltaPayload(deltaPayload)
			if err != nil {
				return nil, giterrors.Wrap(giterrors.MalformedPack, fmt.Sprintf("object %d delta instructions", i), err)
			}
			d.FromOfs = true
			d.BaseOffset = baseOffset
			d.selfOffset = objOffset
			stage.Deltas = append(stage.Deltas, d)

		default:
			return nil, giterrors.New(giterrors.UnknownObjectType, fmt.Sprintf("object %d has reserved/unknown type tag %d", i, rawType))
		}
	}
	verifyTrailer(body, pos)
	return stage, nil
}

// verifyTrailer checks the pack's trailing 20-byte SHA-1 against the body
// that precedes it, per spec.md §9.2: a mismatch is logged as a warning,
// not a fatal error, since the objects themselves were already individually
// content-addressed while being staged.
func verifyTrailer(body []byte, pos int) {
	if pos+githash.Size > len(body) {
		slog.Warn("pack trailer missing or truncated", "pos", pos, "len", len(body))
		return
	}
	want := body[pos : pos+githash.Size]
	sum := sha1.Sum(body[:pos])
	if !bytes.Equal(sum[:], want) {
		slog.Warn("pack trailer checksum mismatch", "computed", fmt.Sprintf("%x", sum), "trailer", fmt.Sprintf("%x", want))
	}
}

// RecordResolvedOffset lets the resolver register the offset a resolved
// ofs-delta started at, once its hash becomes known, so a later ofs-delta
// pointing at the same offset can find it.
func (s *Stage) RecordResolvedOffset(offset int64, h githash.Hash) {
	s.recordOffset(offset, h)
}

func hashStaged(kind gitobject.Kind, payload []byte) githash.Hash {
	return objstore.Hash(kind, payload)
}

// readObjectHeader decodes the first-byte type/size tag and its
// continuation bytes. The low 4 bits of the first byte seed the size; each
// continuation byte contributes 7 more bits, little-endian, starting at
// shift 4 (not 0), since the first byte already donated 4 bits.
func readObjectHeader(body []byte, pos int) (RawType, uint64, int, error) {
	if pos >= len(body) {
		return 0, 0, 0, giterrors.New(giterrors.MalformedPack, "truncated object header")
	}
	b0 := body[pos]
	rawType := RawType((b0 >> 4) & 0x07)
	size := uint64(b0 & 0x0f)
	n := 1
	shift := uint(4)
	for b0&0x80 != 0 {
		if pos+n >= len(body) {
			return 0, 0, 0, giterrors.New(giterrors.MalformedPack, "truncated object header continuation")
		}
		b0 = body[pos+n]
		size |= uint64(b0&0x7f) << shift
		shift += 7
		n++
	}
	return rawType, size, n, nil
}

// readOfsDeltaOffset decodes the negative byte-offset encoding git uses for
// ofs-delta: base-128 varint, most significant group first, with the "add
// one before shifting" bias git uses so each group's value space doesn't
// overlap the previous one's.
func readOfsDeltaOffset(body []byte, pos int) (int64, int, error) {
	if pos >= len(body) {
		return 0, 0, giterrors.New(giterrors.MalformedPack, "truncated ofs-delta offset")
	}
	b := body[pos]
	offset := int64(b & 0x7f)
	n := 1
	for b&0x80 != 0 {
		if pos+n >= len(body) {
			return 0, 0, giterrors.New(giterrors.MalformedPack, "truncated ofs-delta offset continuation")
		}
		b = body[pos+n]
		offset = ((offset + 1) << 7) | int64(b&0x7f)
		n++
	}
	return offset, n, nil
}
