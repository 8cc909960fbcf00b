// Package envresolver substitutes environment variable placeholders in
// string values of a configuration tree.
//
// Placeholder syntax follows the shell convention: ${NAME} requires the
// variable to be set, ${NAME:-default} falls back to the default when it
// is not. Substitution runs per source document before merging, so each
// layer resolves against the environment independently.
package envresolver

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/confman-io/confman/internal/configtree"
)

// LookupFunc reports the value of an environment variable and whether it
// is set. os.LookupEnv satisfies it; tests substitute their own.
type LookupFunc func(name string) (string, bool)

// OS returns a LookupFunc backed by the process environment.
func OS() LookupFunc { return os.LookupEnv }

// UnresolvedReferenceError reports a ${NAME} placeholder with no set
// variable and no default.
type UnresolvedReferenceError struct {
	Path     string
	Variable string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("field %q references unset environment variable %q with no default", e.Path, e.Variable)
}

// placeholderRE matches ${NAME} and ${NAME:-default}. Group 1 is the
// variable name, group 2 the default (present only with the :- form).
var placeholderRE = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Resolve returns a copy of the tree with every placeholder in every
// string value substituted. Non-string values pass through unchanged.
// The input tree is not modified.
func Resolve(v *configtree.Value, lookup LookupFunc) (*configtree.Value, error) {
	return resolve(v, lookup, "")
}

func resolve(v *configtree.Value, lookup LookupFunc, path string) (*configtree.Value, error) {
	switch v.Kind() {
	case configtree.KindString:
		s, err := substitute(v.StringVal(), lookup, path)
		if err != nil {
			return nil, err
		}
		return configtree.String(s), nil
	case configtree.KindSequence:
		items := make([]*configtree.Value, 0, v.Len())
		for i, item := range v.Items() {
			r, err := resolve(item, lookup, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			items = append(items, r)
		}
		return configtree.Sequence(items...), nil
	case configtree.KindMapping:
		m := configtree.Mapping()
		for _, key := range v.Keys() {
			val, _ := v.Get(key)
			r, err := resolve(val, lookup, configtree.ChildPath(path, key))
			if err != nil {
				return nil, err
			}
			m.Set(key, r)
		}
		return m, nil
	default:
		return v.Clone(), nil
	}
}

// substitute replaces every placeholder in s, failing on the first
// unresolvable reference so the error names a single offending variable.
func substitute(s string, lookup LookupFunc, path string) (string, error) {
	matches := placeholderRE.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s, nil
	}

	var out []byte
	last := 0
	for _, m := range matches {
		out = append(out, s[last:m[0]]...)
		name := s[m[2]:m[3]]
		hasDefault := m[4] >= 0

		if val, ok := lookup(name); ok {
			out = append(out, val...)
		} else if hasDefault {
			out = append(out, s[m[6]:m[7]]...)
		} else {
			return "", &UnresolvedReferenceError{Path: path, Variable: name}
		}
		last = m[1]
	}
	out = append(out, s[last:]...)
	return string(out), nil
}
