// Package merge combines layered configuration trees into one resolved
// tree under precedence rules, recording a conflict for every field
// where precedence had to choose between differing values.
//
// Rules:
//   - Mappings merge deeply.
//   - Sequences replace wholesale; there is no positional merging.
//   - Scalars: the highest-precedence source wins.
//   - Type divergence at a path (mapping in one source, scalar or
//     sequence in another): the highest-precedence source's type wins
//     and a type conflict is recorded.
package merge

import (
	"fmt"

	"github.com/confman-io/confman/internal/configtree"
)

// Source is one configuration layer. Sources are passed to Merge ordered
// from lowest to highest precedence (defaults first, user overrides
// last).
type Source struct {
	Name string
	Tree *configtree.Value
}

// Resolution describes how a merge conflict was settled.
type Resolution string

// Conflict resolutions. Both mean "highest precedence wins"; they differ
// in whether the contributing values disagreed on type or only on value.
const (
	ResolutionOverride     Resolution = "override"
	ResolutionTypeConflict Resolution = "type-conflict"
)

// Conflict records a field that more than one source defined with
// differing values, which sources contributed, and which one won.
type Conflict struct {
	Path       string
	Sources    []string
	Winner     string
	Resolution Resolution
}

// Result is a resolved tree plus every conflict encountered while
// building it. Conflicts are informational, not errors: the tree is
// fully resolved by precedence.
type Result struct {
	Tree      *configtree.Value
	Conflicts []Conflict
}

// contribution is one source's value for a field, tagged with the source
// name for conflict records.
type contribution struct {
	source string
	value  *configtree.Value
}

// Merge combines the ordered sources into a single resolved tree.
// Merging is deterministic: the same ordered source list always yields
// an identical tree and an identical conflict list.
func Merge(sources []Source) (*Result, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("merge requires at least one source")
	}
	contribs := make([]contribution, 0, len(sources))
	for _, s := range sources {
		if s.Tree == nil || s.Tree.Kind() != configtree.KindMapping {
			return nil, fmt.Errorf("source %q: root must be a mapping", s.Name)
		}
		contribs = append(contribs, contribution{source: s.Name, value: s.Tree})
	}

	res := &Result{}
	res.Tree = res.mergeMappings("", contribs)
	return res, nil
}

// mergeMappings deep-merges mapping contributions. Key order in the
// result is first-seen order across sources in precedence order.
func (r *Result) mergeMappings(path string, contribs []contribution) *configtree.Value {
	out := configtree.Mapping()

	var keys []string
	seen := make(map[string]bool)
	for _, c := range contribs {
		for _, k := range c.value.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	for _, key := range keys {
		var fieldContribs []contribution
		for _, c := range contribs {
			if v, ok := c.value.Get(key); ok {
				fieldContribs = append(fieldContribs, contribution{source: c.source, value: v})
			}
		}
		out.Set(key, r.mergeField(configtree.ChildPath(path, key), fieldContribs))
	}
	return out
}

// mergeField resolves a single field from the sources that define it,
// in precedence order.
func (r *Result) mergeField(path string, contribs []contribution) *configtree.Value {
	winner := contribs[len(contribs)-1]

	if winner.value.Kind() == configtree.KindMapping {
		// Deep-merge the trailing run of mapping-typed contributions.
		// Anything before a non-mapping contribution is discarded: the
		// type divergence means those layers described a different shape.
		start := 0
		diverged := false
		for i, c := range contribs {
			if c.value.Kind() != configtree.KindMapping {
				start = i + 1
				diverged = true
			}
		}
		if diverged {
			r.record(path, contribs, winner.source, ResolutionTypeConflict)
		}
		return r.mergeMappings(path, contribs[start:])
	}

	// Scalar or sequence winner: whole-value replacement.
	diverged := false
	differs := false
	for _, c := range contribs[:len(contribs)-1] {
		if c.value.Kind() == configtree.KindMapping {
			diverged = true
		} else if !c.value.Equal(winner.value) {
			differs = true
		}
	}
	switch {
	case diverged:
		r.record(path, contribs, winner.source, ResolutionTypeConflict)
	case differs:
		r.record(path, contribs, winner.source, ResolutionOverride)
	}
	return winner.value.Clone()
}

func (r *Result) record(path string, contribs []contribution, winner string, res Resolution) {
	names := make([]string, 0, len(contribs))
	for _, c := range contribs {
		names = append(names, c.source)
	}
	r.Conflicts = append(r.Conflicts, Conflict{
		Path:       path,
		Sources:    names,
		Winner:     winner,
		Resolution: res,
	})
}
