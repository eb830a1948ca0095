package storage

import (
	"strconv"

	"github.com/rvlan/duskstore/internal/zset"
)

// Kind tags which variant a Value currently holds.
type Kind int

const (
	// KindNone is the zero-value sentinel; it is never observable once an
	// Entry has been constructed.
	KindNone Kind = iota
	KindString
	KindInteger
	KindSortedSet
)

// Value is the tagged union of everything a key can hold. A key's variant
// is fixed at creation — writing a sorted-set command against a
// non-sorted-set key is a WrongType error, never an implicit conversion.
type Value struct {
	kind    Kind
	str     string
	integer int64
	zset    *zset.Set
}

// StringValue wraps an opaque byte payload.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// IntegerValue wraps an int64 payload, present as its own variant so
// numeric commands can be added later without re-parsing a string.
func IntegerValue(n int64) Value {
	return Value{kind: KindInteger, integer: n}
}

// sortedSetValue wraps an existing sorted set handle.
func sortedSetValue(s *zset.Set) Value {
	return Value{kind: KindSortedSet, zset: s}
}

// Kind reports which variant is stored.
func (v Value) Kind() Kind { return v.kind }

// AsString coerces the value to its decimal/text form. Coercion is
// explicit: a SortedSet has no string form, so AsString reports false
// for it.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindInteger:
		return strconv.FormatInt(v.integer, 10), true
	default:
		return "", false
	}
}

// AsSortedSet returns the backing sorted set, if this value holds one.
func (v Value) AsSortedSet() (*zset.Set, bool) {
	if v.kind != KindSortedSet {
		return nil, false
	}
	return v.zset, true
}
