// Package giterrors defines the typed error kinds shared by every layer of
// the fetch pipeline, so callers can errors.Is/errors.As across package
// boundaries instead of matching on message text.
package giterrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the fatal error categories the core can raise.
type Kind int

const (
	// MalformedObject: envelope header does not parse, size mismatch, or an
	// unknown commit header was encountered.
	MalformedObject Kind = iota
	// UnknownObjectType: an object-type byte outside 1-7, or equal to 5.
	UnknownObjectType
	// NotFound: an object lookup failed to find the requested hash.
	NotFound
	// AmbiguousHash: a hash prefix matched more than one loose object.
	AmbiguousHash
	// MalformedPack: bad magic, a truncated record, or an unsupported
	// combination inside the pack stream.
	MalformedPack
	// UnresolvableDelta: at least one delta remained after a resolver pass
	// made no progress.
	UnresolvableDelta
	// ProtocolError: wrong framing, missing service announcement, missing
	// NAK, or a missing ref during the fetch handshake.
	ProtocolError
	// AuthMissing: the caller did not supply credentials.
	AuthMissing
	// IOError: an underlying filesystem or transport failure.
	IOError
	// NoMasterBranch: the remote's advertised refs did not include
	// refs/heads/master.
	NoMasterBranch
)

func (k Kind) String() string {
	switch k {
	case MalformedObject:
		return "MalformedObject"
	case UnknownObjectType:
		return "UnknownObjectType"
	case NotFound:
		return "NotFound"
	case AmbiguousHash:
		return "AmbiguousHash"
	case MalformedPack:
		return "MalformedPack"
	case UnresolvableDelta:
		return "UnresolvableDelta"
	case ProtocolError:
		return "ProtocolError"
	case AuthMissing:
		return "AuthMissing"
	case IOError:
		return "IOError"
	case NoMasterBranch:
		return "NoMasterBranch"
	default:
		return "Unknown"
	}
}

// Error is the single typed error used across the core. Context is a
// human-readable string describing where the failure happened; Err, when
// non-nil, is the underlying cause and participates in errors.Is/As via
// Unwrap.
type Error struct {
	Kind    Kind
	Context string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(kind Kind, context string) *Error {
	return &Error{Kind: kind, Context: context}
}

// Wrap builds an *Error around an existing cause. If err is already an
// *Error of a different kind, it is preserved as the cause chain rather
// than collapsed, so the original kind is still discoverable via errors.As.
func Wrap(kind Kind, context string, err error) *Error {
	return &Error{Kind: kind, Context: context, Err: err}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
}
