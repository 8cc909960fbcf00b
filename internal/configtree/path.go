package configtree

import (
	"fmt"
	"strings"
)

// Dotted field paths identify mapping fields across the whole system:
// schema rules, sensitive-field markers, merge conflicts and history
// diffs all address fields as "db.credentials.password". Sequences are
// addressed as whole values at their mapping path; elements are not
// individually addressable.

// SplitPath splits a dotted field path into its segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// ChildPath extends a dotted path with one more segment.
func ChildPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Lookup descends through nested mappings following a dotted path and
// returns the value at the end, if every intermediate step exists and is
// a mapping.
func (v *Value) Lookup(path string) (*Value, bool) {
	cur := v
	for _, seg := range SplitPath(path) {
		if cur.Kind() != KindMapping {
			return nil, false
		}
		next, ok := cur.Get(seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// SetPath sets the value at a dotted path, creating intermediate mappings
// as needed. It fails if an intermediate step exists with a non-mapping
// value, rather than silently destroying data.
func (v *Value) SetPath(path string, val *Value) error {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("empty field path")
	}
	cur := v
	for i, seg := range segs[:len(segs)-1] {
		if cur.Kind() != KindMapping {
			return fmt.Errorf("field %q is not a mapping", strings.Join(segs[:i], "."))
		}
		next, ok := cur.Get(seg)
		if !ok {
			next = Mapping()
			cur.Set(seg, next)
		}
		cur = next
	}
	if cur.Kind() != KindMapping {
		return fmt.Errorf("field %q is not a mapping", strings.Join(segs[:len(segs)-1], "."))
	}
	cur.Set(segs[len(segs)-1], val)
	return nil
}
