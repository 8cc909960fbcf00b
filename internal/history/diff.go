package history

import (
	"context"
	"fmt"

	"github.com/confman-io/confman/internal/configtree"
	"github.com/confman-io/confman/internal/vault"
)

// Change classifies one entry of a snapshot diff.
type Change string

// Diff change classifications.
const (
	ChangeAdded   Change = "added"
	ChangeRemoved Change = "removed"
	ChangeChanged Change = "changed"
)

// redacted replaces secret values in diff output. Secrets are compared
// by value, never displayed.
const redacted = "(sensitive)"

// Delta describes one structural difference between two snapshots.
// Old and New hold canonical serialized values, or "(sensitive)" for
// fields matched by the secret markers.
type Delta struct {
	Path      string `json:"path"`
	Change    Change `json:"change"`
	Old       string `json:"old,omitempty"`
	New       string `json:"new,omitempty"`
	Sensitive bool   `json:"sensitive,omitempty"`
}

// Diff computes the structural difference between two snapshots,
// identified by sequence number. Both snapshots are hash-verified
// before comparison.
//
// Mappings are compared field by field and recursed into; sequences
// and scalars are compared as whole values. For sensitive fields the
// comparison still detects change, but both sides are redacted in the
// result.
func (s *Store) Diff(ctx context.Context, seqA, seqB int64) ([]Delta, error) {
	a, err := s.Get(ctx, seqA)
	if err != nil {
		return nil, fmt.Errorf("diff base: %w", err)
	}
	b, err := s.Get(ctx, seqB)
	if err != nil {
		return nil, fmt.Errorf("diff target: %w", err)
	}

	var deltas []Delta
	s.diffMappings("", a.Tree, b.Tree, &deltas)
	return deltas, nil
}

// diffMappings walks two mappings in parallel. Keys keep the order of
// the base snapshot, with keys new in the target appended after.
func (s *Store) diffMappings(prefix string, a, b *configtree.Value, out *[]Delta) {
	for _, key := range a.Keys() {
		path := configtree.ChildPath(prefix, key)
		av, _ := a.Get(key)
		bv, ok := b.Get(key)
		if !ok {
			*out = append(*out, s.delta(path, key, ChangeRemoved, av, nil))
			continue
		}
		s.diffValues(path, key, av, bv, out)
	}
	for _, key := range b.Keys() {
		if _, ok := a.Get(key); ok {
			continue
		}
		path := configtree.ChildPath(prefix, key)
		bv, _ := b.Get(key)
		*out = append(*out, s.delta(path, key, ChangeAdded, nil, bv))
	}
}

// diffValues compares two values at the same path.
func (s *Store) diffValues(path, key string, a, b *configtree.Value, out *[]Delta) {
	if a.Kind() == configtree.KindMapping && b.Kind() == configtree.KindMapping {
		s.diffMappings(path, a, b, out)
		return
	}
	if a.Equal(b) {
		return
	}
	*out = append(*out, s.delta(path, key, ChangeChanged, a, b))
}

// delta builds one diff entry, redacting sensitive values.
func (s *Store) delta(path, key string, change Change, old, updated *configtree.Value) Delta {
	d := Delta{Path: path, Change: change}
	if s.sensitive(path, key, old) || s.sensitive(path, key, updated) {
		d.Sensitive = true
		if old != nil {
			d.Old = redacted
		}
		if updated != nil {
			d.New = redacted
		}
		return d
	}
	if old != nil {
		d.Old = renderValue(old)
	}
	if updated != nil {
		d.New = renderValue(updated)
	}
	return d
}

// sensitive reports whether a field must be redacted: either the secret
// markers match it, or its value is already in encrypted envelope form.
func (s *Store) sensitive(path, key string, v *configtree.Value) bool {
	if s.markers != nil && s.markers.Matches(path, key) {
		return true
	}
	if v != nil && v.Kind() == configtree.KindString && vault.IsEncrypted(v.StringVal()) {
		return true
	}
	return false
}

// renderValue serializes a value for diff display. Strings are shown
// bare; everything else uses the canonical serialized form.
func renderValue(v *configtree.Value) string {
	if v.Kind() == configtree.KindString {
		return v.StringVal()
	}
	return string(configtree.MarshalCanonical(v))
}
