// Package gitzlib wraps klauspost/compress's drop-in zlib implementation,
// adding the exact-bytes-consumed accounting the pack parser depends on:
// pack objects are framed only by the zlib stream's own end marker, so the
// caller must know precisely where the compressed stream ended.
package gitzlib

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/mustafaquraish/minigit/internal/giterrors"
)

// DecompressFrom decodes a zlib stream starting at buf[offset:], returning
// the inflated bytes and the exact number of compressed input bytes
// consumed (needed by the pack parser to advance its cursor). We
// specifically read through a bytes.Reader because it implements
// io.ByteReader; flate otherwise wraps the source in its own bufio.Reader
// and over-reads past the end of the compressed span, which would make the
// consumed count include bytes that belong to the next pack object.
func DecompressFrom(buf []byte, offset int) (data []byte, consumed int, err error) {
	if offset < 0 || offset > len(buf) {
		return nil, 0, giterrors.New(giterrors.MalformedPack, "zlib offset out of range")
	}
	reader := bytes.NewReader(buf[offset:])
	zr, err := zlib.NewReader(reader)
	if err != nil {
		return nil, 0, giterrors.Wrap(giterrors.MalformedPack, "open zlib stream", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, 0, giterrors.Wrap(giterrors.MalformedPack, "inflate zlib stream", err)
	}
	used := int(reader.Size()) - reader.Len()
	return out, used, nil
}

// Compress produces a complete zlib stream at the default compression
// level, as used for every loose object written to the store.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, giterrors.Wrap(giterrors.IOError, "write zlib stream", err)
	}
	if err := w.Close(); err != nil {
		return nil, giterrors.Wrap(giterrors.IOError, "close zlib stream", err)
	}
	return buf.Bytes(), nil
}
