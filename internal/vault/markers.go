package vault

import "strings"

// DefaultSuffix is the naming convention that marks a field sensitive
// even without an explicit path marker: any field whose key ends in
// "_secret" is treated as sensitive.
const DefaultSuffix = "_secret"

// Markers identifies the sensitive fields of a configuration tree, by
// explicit dotted path and by key-name suffix convention.
//
// Paths address mapping fields; fields nested inside sequence elements
// are matched by the path of the enclosing field without an element
// index. A Markers value is read-only after construction and safe for
// concurrent use.
type Markers struct {
	paths  map[string]bool
	suffix string
}

// NewMarkers builds a marker set from explicit dotted paths plus the
// default suffix convention.
func NewMarkers(paths []string) *Markers {
	return NewMarkersWithSuffix(paths, DefaultSuffix)
}

// NewMarkersWithSuffix builds a marker set with a custom key suffix.
// An empty suffix disables the convention entirely.
func NewMarkersWithSuffix(paths []string, suffix string) *Markers {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return &Markers{paths: set, suffix: suffix}
}

// Matches reports whether the field at the given dotted path, whose
// final segment is key, is marked sensitive.
func (m *Markers) Matches(path, key string) bool {
	if m == nil {
		return false
	}
	if m.suffix != "" && strings.HasSuffix(key, m.suffix) {
		return true
	}
	return m.paths[path]
}

// Paths returns the explicitly marked paths. The result is a copy.
func (m *Markers) Paths() []string {
	out := make([]string, 0, len(m.paths))
	for p := range m.paths {
		out = append(out, p)
	}
	return out
}
