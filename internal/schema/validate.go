package schema

import (
	"fmt"
	"strings"

	"github.com/confman-io/confman/internal/configtree"
)

// ErrorKind classifies a validation failure.
type ErrorKind string

// Validation failure kinds.
const (
	ErrMissingField        ErrorKind = "missing-field"
	ErrTypeMismatch        ErrorKind = "type-mismatch"
	ErrConstraintViolation ErrorKind = "constraint-violation"
	ErrUnknownField        ErrorKind = "unknown-field"
)

// FieldError is a single validation failure, naming the offending field
// path and the constraint violated.
type FieldError struct {
	Path     string
	Kind     ErrorKind
	Expected string
	Actual   string
}

func (e FieldError) Error() string {
	switch e.Kind {
	case ErrMissingField:
		return fmt.Sprintf("%s: required field is missing", e.Path)
	case ErrTypeMismatch:
		return fmt.Sprintf("%s: expected %s, got %s", e.Path, e.Expected, e.Actual)
	case ErrConstraintViolation:
		return fmt.Sprintf("%s: value %s is not one of [%s]", e.Path, e.Actual, e.Expected)
	case ErrUnknownField:
		return fmt.Sprintf("%s: field is not declared in the schema", e.Path)
	default:
		return fmt.Sprintf("%s: invalid", e.Path)
	}
}

// Result is the outcome of a validation pass: the complete list of
// failures, not just the first.
type Result struct {
	Errors []FieldError
}

// OK reports whether the tree satisfied every schema constraint.
func (r *Result) OK() bool { return len(r.Errors) == 0 }

// Error renders the full failure list as one message. Result is not an
// error itself; callers wrap it when validation gates an operation.
func (r *Result) Error() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks a configuration tree against the schema and returns
// every violation found. The tree is never mutated.
//
// Fields present in the tree but absent from the schema pass by default;
// with strict set they produce unknown-field errors wherever the schema
// declares the enclosing mapping's fields.
func Validate(tree *configtree.Value, s *Schema, strict bool) *Result {
	res := &Result{}
	if tree == nil || tree.Kind() != configtree.KindMapping {
		actual := "null"
		if tree != nil {
			actual = tree.Kind().String()
		}
		res.Errors = append(res.Errors, FieldError{
			Path: "(root)", Kind: ErrTypeMismatch,
			Expected: configtree.KindMapping.String(), Actual: actual,
		})
		return res
	}
	validateMapping(tree, s, "", strict, res)
	return res
}

func validateMapping(m *configtree.Value, s *Schema, prefix string, strict bool, res *Result) {
	for _, rule := range s.Rules() {
		val, ok := m.Get(rule.Name)
		if !ok {
			if rule.Required {
				res.Errors = append(res.Errors, FieldError{Path: rule.Path, Kind: ErrMissingField})
			}
			continue
		}
		validateValue(val, rule, rule.Path, strict, res)
	}

	if strict {
		for _, key := range m.Keys() {
			if _, declared := s.Rule(key); !declared {
				res.Errors = append(res.Errors, FieldError{
					Path: configtree.ChildPath(prefix, key), Kind: ErrUnknownField,
				})
			}
		}
	}
}

func validateValue(val *configtree.Value, rule *Rule, path string, strict bool, res *Result) {
	if !rule.Any && val.Kind() != rule.Kind {
		res.Errors = append(res.Errors, FieldError{
			Path: path, Kind: ErrTypeMismatch,
			Expected: rule.Kind.String(), Actual: val.Kind().String(),
		})
		return
	}

	if len(rule.Allowed) > 0 && !allowedContains(rule.Allowed, val) {
		res.Errors = append(res.Errors, FieldError{
			Path: path, Kind: ErrConstraintViolation,
			Expected: renderAllowed(rule.Allowed),
			Actual:   string(configtree.MarshalCanonical(val)),
		})
		return
	}

	switch {
	case rule.Fields != nil && val.Kind() == configtree.KindMapping:
		validateMapping(val, rule.Fields, path, strict, res)
	case rule.Elem != nil && val.Kind() == configtree.KindSequence:
		for i, item := range val.Items() {
			validateValue(item, rule.Elem, fmt.Sprintf("%s[%d]", path, i), strict, res)
		}
	}
}

func allowedContains(allowed []*configtree.Value, val *configtree.Value) bool {
	for _, a := range allowed {
		if a.Equal(val) {
			return true
		}
	}
	return false
}

func renderAllowed(allowed []*configtree.Value) string {
	parts := make([]string, 0, len(allowed))
	for _, a := range allowed {
		parts = append(parts, string(configtree.MarshalCanonical(a)))
	}
	return strings.Join(parts, ", ")
}
