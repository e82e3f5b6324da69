// Package itemid defines the identity of a tracked item.
//
// An ID is either Temporary (minted locally for an item that does not exist
// remotely yet) or Permanent (assigned by the remote store). The zero ID is
// invalid and never handed out.
package itemid

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags which variant an ID holds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindTemporary
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTemporary:
		return "temporary"
	case KindPermanent:
		return "permanent"
	default:
		return "invalid"
	}
}

// TemporaryPrefix marks the path segment of a temporary item URL.
const TemporaryPrefix = "tmp-"

// ID is comparable and safe to use as a map key.
type ID struct {
	kind  Kind
	value int64
}

// Temporary wraps a registry token. Tokens start at 1.
func Temporary(token uint64) ID {
	return ID{kind: KindTemporary, value: int64(token)}
}

// Permanent wraps a store-assigned id.
func Permanent(v int64) ID {
	return ID{kind: KindPermanent, value: v}
}

func (id ID) Kind() Kind        { return id.kind }
func (id ID) IsZero() bool      { return id.kind == KindInvalid }
func (id ID) IsTemporary() bool { return id.kind == KindTemporary }
func (id ID) IsPermanent() bool { return id.kind == KindPermanent }

// Token returns the registry token of a temporary id, or 0.
func (id ID) Token() uint64 {
	if id.kind != KindTemporary {
		return 0
	}
	return uint64(id.value)
}

// Value returns the store id of a permanent id, or 0.
func (id ID) Value() int64 {
	if id.kind != KindPermanent {
		return 0
	}
	return id.value
}

// String renders "42" for permanent ids and "tmp-7" for temporary ones.
func (id ID) String() string {
	switch id.kind {
	case KindPermanent:
		return strconv.FormatInt(id.value, 10)
	case KindTemporary:
		return TemporaryPrefix + strconv.FormatInt(id.value, 10)
	default:
		return "<invalid>"
	}
}

// Parse is the inverse of String.
func Parse(s string) (ID, error) {
	if rest, ok := strings.CutPrefix(s, TemporaryPrefix); ok {
		token, err := strconv.ParseUint(rest, 10, 63)
		if err != nil || token == 0 {
			return ID{}, fmt.Errorf("invalid temporary id %q", s)
		}
		return Temporary(token), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("invalid item id %q", s)
	}
	return Permanent(v), nil
}

// FromURL parses the id from the last path segment of an item URL.
func FromURL(u string) (ID, error) {
	u = strings.TrimRight(u, "/")
	return Parse(u[strings.LastIndexByte(u, '/')+1:])
}

// URL builds the item URL below base. An empty base yields the bare id.
func URL(base string, id ID) string {
	if base == "" {
		return id.String()
	}
	return strings.TrimRight(base, "/") + "/" + id.String()
}
