package merge

import (
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/confman-io/confman/internal/configtree"
)

// mustParse builds a tree from canonical JSON, for compact test fixtures.
func mustParse(t testing.TB, data string) *configtree.Value {
	t.Helper()
	v, err := configtree.UnmarshalCanonical([]byte(data))
	if err != nil {
		t.Fatalf("parsing fixture %s: %v", data, err)
	}
	return v
}

func TestMerge_DeepMappingMerge(t *testing.T) {
	base := mustParse(t, `{"db":{"host":"localhost","port":5432},"log":"info"}`)
	prod := mustParse(t, `{"db":{"host":"db.prod"},"extra":true}`)

	result, err := Merge([]Source{
		{Name: "base.yaml", Tree: base},
		{Name: "prod.yaml", Tree: prod},
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := mustParse(t, `{"db":{"host":"db.prod","port":5432},"log":"info","extra":true}`)
	if !result.Tree.Equal(want) {
		t.Errorf("merged tree = %s, want %s",
			configtree.MarshalCanonical(result.Tree), configtree.MarshalCanonical(want))
	}

	if len(result.Conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(result.Conflicts))
	}
	c := result.Conflicts[0]
	if c.Path != "db.host" {
		t.Errorf("conflict path = %q, want db.host", c.Path)
	}
	if c.Winner != "prod.yaml" {
		t.Errorf("conflict winner = %q, want prod.yaml", c.Winner)
	}
	if c.Resolution != ResolutionOverride {
		t.Errorf("conflict resolution = %q, want override", c.Resolution)
	}
	if !reflect.DeepEqual(c.Sources, []string{"base.yaml", "prod.yaml"}) {
		t.Errorf("conflict sources = %v", c.Sources)
	}
}

func TestMerge_SequenceReplacedWholesale(t *testing.T) {
	base := mustParse(t, `{"tags":["a","b","c"]}`)
	over := mustParse(t, `{"tags":["x"]}`)

	result, err := Merge([]Source{
		{Name: "base", Tree: base},
		{Name: "over", Tree: over},
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	tags, _ := result.Tree.Get("tags")
	if tags.Len() != 1 || !tags.Items()[0].Equal(configtree.String("x")) {
		t.Errorf("sequences must replace wholesale, got %s", configtree.MarshalCanonical(tags))
	}
}

func TestMerge_TypeConflict(t *testing.T) {
	base := mustParse(t, `{"db":{"host":"localhost"}}`)
	over := mustParse(t, `{"db":"sqlite:///tmp/x.db"}`)

	result, err := Merge([]Source{
		{Name: "base", Tree: base},
		{Name: "over", Tree: over},
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	db, _ := result.Tree.Get("db")
	if db.Kind() != configtree.KindString {
		t.Errorf("db kind = %v, highest-precedence type should win", db.Kind())
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Resolution != ResolutionTypeConflict {
		t.Errorf("conflicts = %+v, want one type-conflict", result.Conflicts)
	}
}

func TestMerge_MappingWinsOverScalar(t *testing.T) {
	// Earlier scalar, later mapping: mapping wins, earlier layer's shape
	// is discarded and a type conflict recorded.
	base := mustParse(t, `{"db":"legacy"}`)
	over := mustParse(t, `{"db":{"host":"localhost"}}`)

	result, err := Merge([]Source{
		{Name: "base", Tree: base},
		{Name: "over", Tree: over},
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	host, ok := result.Tree.Lookup("db.host")
	if !ok || host.StringVal() != "localhost" {
		t.Errorf("db.host = %v, want localhost", host)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Resolution != ResolutionTypeConflict {
		t.Errorf("conflicts = %+v, want one type-conflict", result.Conflicts)
	}
}

func TestMerge_EqualValuesNoConflict(t *testing.T) {
	a := mustParse(t, `{"log":"info"}`)
	b := mustParse(t, `{"log":"info"}`)

	result, err := Merge([]Source{{Name: "a", Tree: a}, {Name: "b", Tree: b}})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("identical values should not record a conflict: %+v", result.Conflicts)
	}
}

func TestMerge_KeyOrderFirstSeen(t *testing.T) {
	a := mustParse(t, `{"alpha":1,"beta":2}`)
	b := mustParse(t, `{"gamma":3,"alpha":10}`)

	result, err := Merge([]Source{{Name: "a", Tree: a}, {Name: "b", Tree: b}})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := []string{"alpha", "beta", "gamma"}
	if got := result.Tree.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("merged key order = %v, want %v", got, want)
	}
}

func TestMerge_SingleSource(t *testing.T) {
	a := mustParse(t, `{"x":1}`)
	result, err := Merge([]Source{{Name: "only", Tree: a}})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if !result.Tree.Equal(a) {
		t.Error("single-source merge should reproduce the source")
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("single-source merge should have no conflicts: %+v", result.Conflicts)
	}
}

func TestMerge_Errors(t *testing.T) {
	if _, err := Merge(nil); err == nil {
		t.Error("Merge() with no sources should fail")
	}
	if _, err := Merge([]Source{{Name: "bad", Tree: configtree.String("x")}}); err == nil {
		t.Error("Merge() with non-mapping root should fail")
	}
	if _, err := Merge([]Source{{Name: "nil", Tree: nil}}); err == nil {
		t.Error("Merge() with nil tree should fail")
	}
}

func TestMerge_InputsUnchanged(t *testing.T) {
	base := mustParse(t, `{"db":{"host":"localhost"}}`)
	over := mustParse(t, `{"db":{"host":"prod"}}`)
	baseCopy := base.Clone()
	overCopy := over.Clone()

	result, err := Merge([]Source{{Name: "a", Tree: base}, {Name: "b", Tree: over}})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if !base.Equal(baseCopy) || !over.Equal(overCopy) {
		t.Error("Merge() must not mutate its inputs")
	}

	// Mutating the result must not leak into the sources either.
	db, _ := result.Tree.Get("db")
	db.Set("host", configtree.String("mutated"))
	if !over.Equal(overCopy) {
		t.Error("result shares state with an input tree")
	}
}

// genFlatMapping generates small mappings with scalar values, keyed from
// a tiny alphabet so overlap between sources is common.
func genFlatMapping() *rapid.Generator[*configtree.Value] {
	return rapid.Custom(func(t *rapid.T) *configtree.Value {
		m := configtree.Mapping()
		keys := rapid.SliceOfNDistinct(
			rapid.SampledFrom([]string{"a", "b", "c", "d", "e"}), 0, 5,
			rapid.ID[string]).Draw(t, "keys")
		for _, k := range keys {
			m.Set(k, configtree.Number(float64(rapid.IntRange(0, 9).Draw(t, "v"))))
		}
		return m
	})
}

func TestMerge_DeterministicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genFlatMapping().Draw(t, "a")
		b := genFlatMapping().Draw(t, "b")
		sources := []Source{{Name: "a", Tree: a}, {Name: "b", Tree: b}}

		r1, err := Merge(sources)
		if err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
		r2, err := Merge(sources)
		if err != nil {
			t.Fatalf("Merge() error = %v", err)
		}

		if !r1.Tree.Equal(r2.Tree) {
			t.Fatal("merge is not deterministic")
		}
		if len(r1.Conflicts) != len(r2.Conflicts) {
			t.Fatal("conflict lists differ between identical merges")
		}

		// Every conflict names the last source as winner under two-source
		// last-wins precedence.
		for _, c := range r1.Conflicts {
			if c.Winner != "b" {
				t.Fatalf("conflict winner = %q, want b", c.Winner)
			}
		}
	})
}

func TestMerge_DisjointOrderIndependent(t *testing.T) {
	a := mustParse(t, `{"alpha":1}`)
	b := mustParse(t, `{"beta":2}`)

	r1, err := Merge([]Source{{Name: "a", Tree: a}, {Name: "b", Tree: b}})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	r2, err := Merge([]Source{{Name: "b", Tree: b}, {Name: "a", Tree: a}})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	// Key order differs but the configurations are equal, and so are
	// their content hashes.
	if !r1.Tree.Equal(r2.Tree) {
		t.Error("disjoint sources should merge order-independently")
	}
	if configtree.Hash(r1.Tree) != configtree.Hash(r2.Tree) {
		t.Error("disjoint merges should hash identically")
	}
}
