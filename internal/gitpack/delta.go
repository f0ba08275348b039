package gitpack

import (
	"github.com/mustafaquraish/minigit/internal/giterrors"
)

// Instruction is either a Copy over the base payload or an Insert of an
// inline literal. Exactly one of the two is meaningful per instruction,
// selected by IsCopy.
type Instruction struct {
	IsCopy bool
	Offset uint32 // valid when IsCopy
	Size   uint32 // valid when IsCopy
	Insert []byte // valid when !IsCopy
}

// parseDeltaPayload decodes a delta's decompressed bytes: the two
// variable-length sizes, then a sequence of copy/insert instructions until
// the bytes are exhausted.
func parseDeltaPayload(data []byte) (Delta, error) {
	baseSize, n, err := readDeltaSize(data)
	if err != nil {
		return Delta{}, giterrors.Wrap(giterrors.MalformedPack, "delta base size", err)
	}
	data = data[n:]
	resultSize, n, err := readDeltaSize(data)
	if err != nil {
		return Delta{}, giterrors.Wrap(giterrors.MalformedPack, "delta result size", err)
	}
	data = data[n:]

	var instructions []Instruction
	for len(data) > 0 {
		c := data[0]
		data = data[1:]
		if c&0x80 != 0 {
			inst, consumed, err := parseCopy(c, data)
			if err != nil {
				return Delta{}, err
			}
			data = data[consumed:]
			instructions = append(instructions, inst)
		} else {
			n := int(c & 0x7f)
			if n == 0 {
				return Delta{}, giterrors.New(giterrors.MalformedPack, "delta insert with zero-length literal count")
			}
			if len(data) < n {
				return Delta{}, giterrors.New(giterrors.MalformedPack, "delta insert literal truncated")
			}
			instructions = append(instructions, Instruction{IsCopy: false, Insert: append([]byte(nil), data[:n]...)})
			data = data[n:]
		}
	}

	return Delta{
		BaseSize:     baseSize,
		ResultSize:   resultSize,
		Instructions: instructions,
	}, nil
}

// readDeltaSize decodes a little-endian base-128 varint: bit 7 is
// continuation, bits 6..0 are data, shift starts at 0.
func readDeltaSize(data []byte) (uint64, int, error) {
	var size uint64
	var shift uint
	for i, b := range data {
		size |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return size, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, giterrors.New(giterrors.MalformedPack, "truncated delta size varint")
}

// parseCopy decodes a Copy instruction's flag byte c: bits 0..3 select up
// to four offset fragments at shifts 0/8/16/24, bits 4..6 select up to
// three size fragments at shifts 0/8/16. A decoded size of zero means
// 0x10000, since a literal zero-size copy would be pointless to encode.
func parseCopy(c byte, data []byte) (Instruction, int, error) {
	var offset, size uint32
	pos := 0
	read := func() (byte, error) {
		if pos >= len(data) {
			return 0, giterrors.New(giterrors.MalformedPack, "delta copy instruction truncated")
		}
		b := data[pos]
		pos++
		return b, nil
	}
	for i, bitShift := range []uint{0, 8, 16, 24} {
		if c&(1<<uint(i)) != 0 {
			b, err := read()
			if err != nil {
				return Instruction{}, 0, err
			}
			offset |= uint32(b) << bitShift
		}
	}
	for i, bitShift := range []uint{0, 8, 16} {
		if c&(1<<uint(4+i)) != 0 {
			b, err := read()
			if err != nil {
				return Instruction{}, 0, err
			}
			size |= uint32(b) << bitShift
		}
	}
	if size == 0 {
		size = 0x10000
	}
	return Instruction{IsCopy: true, Offset: offset, Size: size}, pos, nil
}

// ApplyDelta reconstructs an object's bytes by walking instructions against
// base, verifying the result matches resultSize exactly.
func ApplyDelta(base []byte, d Delta) ([]byte, error) {
	result := make([]byte, 0, d.ResultSize)
	for _, inst := range d.Instructions {
		if inst.IsCopy {
			end := uint64(inst.Offset) + uint64(inst.Size)
			if end > uint64(len(base)) {
				return nil, giterrors.New(giterrors.MalformedPack, "delta copy instruction out of bounds")
			}
			result = append(result, base[inst.Offset:inst.Offset+inst.Size]...)
		} else {
			result = append(result, inst.Insert...)
		}
	}
	if uint64(len(result)) != d.ResultSize {
		return nil, giterrors.New(giterrors.MalformedPack, "delta result length does not match declared result size")
	}
	return result, nil
}
