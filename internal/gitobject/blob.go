package gitobject

// Blob is an opaque byte sequence; git attaches no further structure to it.
type Blob struct {
	Data []byte
}
