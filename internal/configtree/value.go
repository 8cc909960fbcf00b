// Package configtree defines the canonical in-memory representation of a
// configuration document: a tagged-union value tree that every other
// component (adapters, merge, validation, vault, history) operates on.
//
// Mappings preserve key insertion order so that serialization and diffing
// are stable across runs regardless of which format a document came from.
package configtree

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the type of a Value.
type Kind int

// Value kinds, covering every type representable across the supported
// serialization formats.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

// String returns the lowercase name of the kind, as used in schema
// definitions and error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single node in a configuration tree. It is a tagged union:
// exactly one of the payload fields is meaningful, selected by the kind.
//
// Values are not safe for concurrent mutation; the pipeline treats loaded
// trees as immutable and produces new trees for every transformation.
type Value struct {
	kind Kind

	boolVal bool
	numVal  float64
	strVal  string
	seq     []*Value

	// Mapping payload: keys holds insertion order, entries holds values.
	keys    []string
	entries map[string]*Value
}

// Null returns the null value.
func Null() *Value { return &Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) *Value { return &Value{kind: KindBool, boolVal: b} }

// Number returns a numeric value. All numbers are stored as float64;
// integral values serialize without a fractional part.
func Number(n float64) *Value { return &Value{kind: KindNumber, numVal: n} }

// String returns a string value.
func String(s string) *Value { return &Value{kind: KindString, strVal: s} }

// Sequence returns a sequence value holding the given items in order.
func Sequence(items ...*Value) *Value {
	return &Value{kind: KindSequence, seq: items}
}

// Mapping returns an empty mapping. Keys are added with Set and retain
// insertion order.
func Mapping() *Value {
	return &Value{kind: KindMapping, entries: make(map[string]*Value)}
}

// Kind returns the kind tag of the value.
func (v *Value) Kind() Kind { return v.kind }

// BoolVal returns the boolean payload. Valid only for KindBool.
func (v *Value) BoolVal() bool { return v.boolVal }

// NumberVal returns the numeric payload. Valid only for KindNumber.
func (v *Value) NumberVal() float64 { return v.numVal }

// StringVal returns the string payload. Valid only for KindString.
func (v *Value) StringVal() string { return v.strVal }

// Items returns the sequence payload. Valid only for KindSequence.
// The returned slice is the value's own backing storage; callers must not
// mutate it.
func (v *Value) Items() []*Value { return v.seq }

// Len returns the number of elements in a sequence or entries in a
// mapping, and 0 for scalars.
func (v *Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindMapping:
		return len(v.keys)
	default:
		return 0
	}
}

// Set inserts or replaces a mapping entry. New keys are appended to the
// insertion order; existing keys keep their position. Panics if the value
// is not a mapping, which is always a programming error.
func (v *Value) Set(key string, val *Value) {
	v.mustBe(KindMapping, "Set")
	if _, ok := v.entries[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.entries[key] = val
}

// Get returns the mapping entry for key, if present.
func (v *Value) Get(key string) (*Value, bool) {
	if v.kind != KindMapping {
		return nil, false
	}
	val, ok := v.entries[key]
	return val, ok
}

// Delete removes a mapping entry if present, preserving the order of the
// remaining keys.
func (v *Value) Delete(key string) {
	v.mustBe(KindMapping, "Delete")
	if _, ok := v.entries[key]; !ok {
		return
	}
	delete(v.entries, key)
	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the mapping keys in insertion order. The returned slice is
// a copy and safe to retain.
func (v *Value) Keys() []string {
	v.mustBe(KindMapping, "Keys")
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

func (v *Value) mustBe(k Kind, op string) {
	if v.kind != k {
		panic(fmt.Sprintf("configtree: %s on %s value", op, v.kind))
	}
}

// Clone returns a deep copy of the value. Scalars share no mutable state,
// so the copy can be mutated freely without affecting the original.
func (v *Value) Clone() *Value {
	switch v.kind {
	case KindSequence:
		items := make([]*Value, len(v.seq))
		for i, item := range v.seq {
			items[i] = item.Clone()
		}
		return Sequence(items...)
	case KindMapping:
		m := Mapping()
		for _, k := range v.keys {
			m.Set(k, v.entries[k].Clone())
		}
		return m
	default:
		c := *v
		return &c
	}
}

// Equal reports structural equality between two trees.
//
// Mapping comparison ignores key order (two documents with the same
// entries are the same configuration); sequence comparison is positional.
// This matches the canonicalization used by Hash.
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == other.boolVal
	case KindNumber:
		return v.numVal == other.numVal
	case KindString:
		return v.strVal == other.strVal
	case KindSequence:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.keys) != len(other.keys) {
			return false
		}
		for k, val := range v.entries {
			oval, ok := other.entries[k]
			if !ok || !val.Equal(oval) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// FormatNumber renders a float64 the way every adapter serializes numbers:
// shortest representation that round-trips, with no fractional part for
// integral values. Shared so serialization stays byte-identical across
// formats and repeated calls.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// SortedKeys returns the mapping keys in lexical order. Used by adapters
// whose underlying format library cannot preserve insertion order and
// therefore document lexical ordering as their deterministic output order.
func (v *Value) SortedKeys() []string {
	keys := v.Keys()
	sort.Strings(keys)
	return keys
}
