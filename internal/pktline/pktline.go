// Package pktline frames and unframes the 4-hex-digit-length-prefixed
// records used by the git smart HTTP protocol, including the special case
// where the raw packfile magic switches the stream to unframed bytes.
package pktline

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/mustafaquraish/minigit/internal/giterrors"
)

// packMagic is the byte sequence that, once seen where a frame's 4-byte
// length prefix would be, ends pkt-line framing for the remainder of the
// stream: it is not a length at all, but the start of the packfile itself.
var packMagic = []byte("PACK")

// Encode wraps payload in a single pkt-line frame: "%04x" + payload.
func Encode(payload []byte) []byte {
	length := len(payload) + 4
	out := make([]byte, 0, length)
	out = append(out, []byte(fmt.Sprintf("%04x", length))...)
	out = append(out, payload...)
	return out
}

// EncodeString is Encode for a string payload.
func EncodeString(s string) []byte {
	return Encode([]byte(s))
}

// Flush returns the "0000" flush-packet bytes.
func Flush() []byte {
	return []byte("0000")
}

// Frame is one decoded pkt-line record. A flush packet decodes to a Frame
// with Flush set true and an empty Payload.
type Frame struct {
	Flush   bool
	Payload []byte
}

// ReadFrames decodes every frame from r until EOF. If a frame's would-be
// length prefix is instead the literal bytes "PACK", framing stops there:
// that frame's Payload is "PACK" followed by the rest of r, read verbatim,
// and it is the last frame returned.
func ReadFrames(r io.Reader) ([]Frame, error) {
	br := bufio.NewReader(r)
	var frames []Frame
	for {
		frame, isPack, err := readOneFrame(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
		if isPack {
			break
		}
	}
	return frames, nil
}

func readOneFrame(br *bufio.Reader) (frame Frame, isPack bool, err error) {
	var prefix [4]byte
	n, err := io.ReadFull(br, prefix[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return Frame{}, false, io.EOF
		}
		return Frame{}, false, giterrors.Wrap(giterrors.ProtocolError, "read pkt-line length prefix", err)
	}

	if bytes.Equal(prefix[:], packMagic) {
		rest, err := io.ReadAll(br)
		if err != nil {
			return Frame{}, false, giterrors.Wrap(giterrors.ProtocolError, "read trailing pack bytes", err)
		}
		payload := make([]byte, 0, len(prefix)+len(rest))
		payload = append(payload, prefix[:]...)
		payload = append(payload, rest...)
		return Frame{Payload: payload}, true, nil
	}

	length, err := strconv.ParseInt(string(prefix[:]), 16, 32)
	if err != nil {
		return Frame{}, false, giterrors.Wrap(giterrors.ProtocolError, "invalid pkt-line length "+string(prefix[:]), err)
	}
	if length == 0 {
		return Frame{Flush: true}, false, nil
	}
	if length < 4 {
		return Frame{}, false, giterrors.New(giterrors.ProtocolError, fmt.Sprintf("pkt-line length %d is shorter than its own prefix", length))
	}
	payload := make([]byte, length-4)
	if _, err := io.ReadFull(br, payload); err != nil {
		return Frame{}, false, giterrors.Wrap(giterrors.ProtocolError, "read pkt-line payload", err)
	}
	payload = bytes.TrimSuffix(payload, []byte("\n"))
	return Frame{Payload: payload}, false, nil
}
