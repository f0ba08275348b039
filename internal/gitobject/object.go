// Package gitobject implements the canonical envelope and the typed
// blob/tree/commit/tag object model described by the store: every object,
// when stored or hashed, is serialized as "type SP size NUL payload", and
// the SHA-1 of that envelope is the object's name.
package gitobject

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/mustafaquraish/minigit/internal/giterrors"
)

// Object is a tagged value holding exactly one of the four object shapes.
type Object struct {
	Kind   Kind
	Blob   *Blob
	Tree   *Tree
	Commit *Commit
	Tag    *Tag
}

func NewBlob(data []byte) *Object   { return &Object{Kind: KindBlob, Blob: &Blob{Data: data}} }
func NewTree(t *Tree) *Object       { return &Object{Kind: KindTree, Tree: t} }
func NewCommit(c *Commit) *Object   { return &Object{Kind: KindCommit, Commit: c} }
func NewTag(data []byte) *Object    { return &Object{Kind: KindTag, Tag: &Tag{Raw: data}} }

// Payload returns the type-specific body (without the envelope header).
func (o *Object) Payload() ([]byte, error) {
	switch o.Kind {
	case KindBlob:
		return o.Blob.Data, nil
	case KindTree:
		return marshalTree(o.Tree)
	case KindCommit:
		return marshalCommit(o.Commit)
	case KindTag:
		return o.Tag.Raw, nil
	default:
		return nil, giterrors.New(giterrors.UnknownObjectType, fmt.Sprintf("object kind %d", o.Kind))
	}
}

// Serialize returns the canonical envelope: "type SP size NUL payload".
func Serialize(o *Object) ([]byte, error) {
	payload, err := o.Payload()
	if err != nil {
		return nil, err
	}
	header := fmt.Sprintf("%s %d\x00", o.Kind, len(payload))
	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	out = append(out, payload...)
	return out, nil
}

// ParseEnvelope reads "type SP size NUL", validates that size equals the
// remaining byte-length, and dispatches on type to produce a typed Object.
func ParseEnvelope(data []byte) (*Object, error) {
	sp := bytes.IndexByte(data, ' ')
	if sp < 0 {
		return nil, giterrors.New(giterrors.MalformedObject, "envelope missing type separator")
	}
	typeWord := string(data[:sp])
	rest := data[sp+1:]
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return nil, giterrors.New(giterrors.MalformedObject, "envelope missing size terminator")
	}
	sizeStr := string(rest[:nul])
	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		return nil, giterrors.Wrap(giterrors.MalformedObject, "envelope size is not a number", err)
	}
	payload := rest[nul+1:]
	if size != len(payload) {
		return nil, giterrors.New(giterrors.MalformedObject,
			fmt.Sprintf("envelope declares size %d, payload is %d bytes", size, len(payload)))
	}

	kind, err := ParseKind(typeWord)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindBlob:
		return NewBlob(append([]byte(nil), payload...)), nil
	case KindTree:
		t, err := unmarshalTree(payload)
		if err != nil {
			return nil, err
		}
		return NewTree(t), nil
	case KindCommit:
		c, err := unmarshalCommit(payload)
		if err != nil {
			return nil, err
		}
		return NewCommit(c), nil
	case KindTag:
		return NewTag(append([]byte(nil), payload...)), nil
	default:
		return nil, giterrors.New(giterrors.UnknownObjectType, "object kind "+typeWord)
	}
}
