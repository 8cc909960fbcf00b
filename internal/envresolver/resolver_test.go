package envresolver

import (
	"errors"
	"testing"

	"github.com/confman-io/confman/internal/configtree"
)

// mapLookup builds a LookupFunc from a fixed map.
func mapLookup(env map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestResolve_Substitution(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"DB_HOST": "db.internal",
		"DB_PORT": "5432",
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"whole value", "${DB_HOST}", "db.internal"},
		{"embedded", "postgres://${DB_HOST}:${DB_PORT}/app", "postgres://db.internal:5432/app"},
		{"default used", "${MISSING:-fallback}", "fallback"},
		{"default ignored when set", "${DB_HOST:-fallback}", "db.internal"},
		{"empty default", "${MISSING:-}", ""},
		{"no placeholder", "plain text", "plain text"},
		{"dollar without brace", "cost is $5", "cost is $5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := configtree.Mapping()
			m.Set("field", configtree.String(tt.in))

			out, err := Resolve(m, lookup)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			got, _ := out.Get("field")
			if got.StringVal() != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, got.StringVal(), tt.want)
			}
		})
	}
}

func TestResolve_UnresolvedReference(t *testing.T) {
	m := configtree.Mapping()
	db := configtree.Mapping()
	db.Set("host", configtree.String("${UNSET_VAR}"))
	m.Set("db", db)

	_, err := Resolve(m, mapLookup(nil))

	var ure *UnresolvedReferenceError
	if !errors.As(err, &ure) {
		t.Fatalf("Resolve() error = %v, want UnresolvedReferenceError", err)
	}
	if ure.Path != "db.host" {
		t.Errorf("error path = %q, want db.host", ure.Path)
	}
	if ure.Variable != "UNSET_VAR" {
		t.Errorf("error variable = %q, want UNSET_VAR", ure.Variable)
	}
}

func TestResolve_SequenceElementPath(t *testing.T) {
	m := configtree.Mapping()
	m.Set("hosts", configtree.Sequence(
		configtree.String("ok"),
		configtree.String("${GONE}"),
	))

	_, err := Resolve(m, mapLookup(nil))

	var ure *UnresolvedReferenceError
	if !errors.As(err, &ure) {
		t.Fatalf("Resolve() error = %v, want UnresolvedReferenceError", err)
	}
	if ure.Path != "hosts[1]" {
		t.Errorf("error path = %q, want hosts[1]", ure.Path)
	}
}

func TestResolve_NonStringPassthrough(t *testing.T) {
	m := configtree.Mapping()
	m.Set("port", configtree.Number(8080))
	m.Set("debug", configtree.Bool(true))
	m.Set("extra", configtree.Null())

	out, err := Resolve(m, mapLookup(nil))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !m.Equal(out) {
		t.Error("non-string values should pass through unchanged")
	}
}

func TestResolve_InputUnchanged(t *testing.T) {
	m := configtree.Mapping()
	m.Set("field", configtree.String("${X}"))

	out, err := Resolve(m, mapLookup(map[string]string{"X": "resolved"}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	orig, _ := m.Get("field")
	if orig.StringVal() != "${X}" {
		t.Error("Resolve() must not mutate its input")
	}
	resolved, _ := out.Get("field")
	if resolved.StringVal() != "resolved" {
		t.Errorf("resolved = %q, want resolved", resolved.StringVal())
	}
}

func TestResolve_EmptyValueCounts(t *testing.T) {
	// A variable set to the empty string is set: no default, no error.
	m := configtree.Mapping()
	m.Set("field", configtree.String("${EMPTY:-default}"))

	out, err := Resolve(m, mapLookup(map[string]string{"EMPTY": ""}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	got, _ := out.Get("field")
	if got.StringVal() != "" {
		t.Errorf("empty-but-set variable should win over default, got %q", got.StringVal())
	}
}
