package configtree

import (
	"math"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestMarshalCanonical_Compact(t *testing.T) {
	m := Mapping()
	m.Set("name", String("api"))
	m.Set("port", Number(8080))
	m.Set("debug", Bool(false))
	m.Set("tags", Sequence(String("a"), String("b")))
	m.Set("extra", Null())

	want := `{"name":"api","port":8080,"debug":false,"tags":["a","b"],"extra":null}`
	if got := string(MarshalCanonical(m)); got != want {
		t.Errorf("MarshalCanonical() = %s, want %s", got, want)
	}
}

func TestMarshalCanonical_IntegralNumbers(t *testing.T) {
	m := Mapping()
	m.Set("count", Number(3))
	m.Set("ratio", Number(0.25))

	got := string(MarshalCanonical(m))
	if strings.Contains(got, "3.0") {
		t.Errorf("integral number should serialize without fraction: %s", got)
	}
	if !strings.Contains(got, "0.25") {
		t.Errorf("fractional number missing: %s", got)
	}
}

func TestUnmarshalCanonical_PreservesOrder(t *testing.T) {
	data := []byte(`{"zebra":1,"apple":2,"mango":3}`)
	v, err := UnmarshalCanonical(data)
	if err != nil {
		t.Fatalf("UnmarshalCanonical() error = %v", err)
	}

	keys := v.Keys()
	want := []string{"zebra", "apple", "mango"}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}
}

func TestUnmarshalCanonical_TrailingContent(t *testing.T) {
	if _, err := UnmarshalCanonical([]byte(`{"a":1} garbage`)); err == nil {
		t.Error("trailing content should be rejected")
	}
}

func TestUnmarshalCanonical_Malformed(t *testing.T) {
	tests := []string{
		``,
		`{`,
		`{"a":}`,
		`[1,]`,
	}
	for _, in := range tests {
		if _, err := UnmarshalCanonical([]byte(in)); err == nil {
			t.Errorf("UnmarshalCanonical(%q) should fail", in)
		}
	}
}

func TestHash_MappingOrderIndependent(t *testing.T) {
	a := Mapping()
	a.Set("x", Number(1))
	a.Set("y", Number(2))

	b := Mapping()
	b.Set("y", Number(2))
	b.Set("x", Number(1))

	if Hash(a) != Hash(b) {
		t.Error("mappings with same entries in different order should hash identically")
	}
}

func TestHash_SequenceOrderDependent(t *testing.T) {
	a := Sequence(Number(1), Number(2))
	b := Sequence(Number(2), Number(1))

	if Hash(a) == Hash(b) {
		t.Error("reordered sequences should hash differently")
	}
}

func TestHash_TypeTags(t *testing.T) {
	// Same payload bytes, different kinds: must not collide.
	if Hash(String("true")) == Hash(Bool(true)) {
		t.Error(`Hash("true") should differ from Hash(true)`)
	}
	if Hash(String("1")) == Hash(Number(1)) {
		t.Error(`Hash("1") should differ from Hash(1)`)
	}
	if Hash(Null()) == Hash(String("")) {
		t.Error("Hash(null) should differ from Hash(empty string)")
	}
}

func TestHash_ValueSensitive(t *testing.T) {
	a := Mapping()
	a.Set("port", Number(8080))
	b := Mapping()
	b.Set("port", Number(8081))

	if Hash(a) == Hash(b) {
		t.Error("differing values should hash differently")
	}
}

// genTree generates arbitrary trees: scalars at any depth, containers up
// to a shallow limit so cases stay readable.
func genTree(depth int) *rapid.Generator[*Value] {
	scalar := rapid.OneOf(
		rapid.Just(Null()),
		rapid.Map(rapid.Bool(), Bool),
		rapid.Map(rapid.Int32(), func(n int32) *Value { return Number(float64(n)) }),
		rapid.Map(rapid.String(), String),
	)
	if depth <= 0 {
		return scalar
	}
	return rapid.OneOf(
		scalar,
		rapid.Custom(func(t *rapid.T) *Value {
			items := rapid.SliceOfN(genTree(depth-1), 0, 4).Draw(t, "items")
			return Sequence(items...)
		}),
		rapid.Custom(func(t *rapid.T) *Value {
			m := Mapping()
			keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,8}`), 0, 4,
				rapid.ID[string]).Draw(t, "keys")
			for _, k := range keys {
				m.Set(k, genTree(depth-1).Draw(t, "val"))
			}
			return m
		}),
	)
}

func TestCanonical_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := genTree(3).Draw(t, "tree")

		data := MarshalCanonical(tree)
		back, err := UnmarshalCanonical(data)
		if err != nil {
			t.Fatalf("UnmarshalCanonical() error = %v on %s", err, data)
		}

		if !tree.Equal(back) {
			t.Fatalf("round-trip changed tree: %s vs %s", data, MarshalCanonical(back))
		}
		if Hash(tree) != Hash(back) {
			t.Fatalf("round-trip changed hash for %s", data)
		}
		// Canonical form is a fixed point.
		if again := MarshalCanonical(back); string(again) != string(data) {
			t.Fatalf("canonical form not stable: %s vs %s", data, again)
		}
	})
}

func TestToAny_FromAny_RoundTrip(t *testing.T) {
	m := Mapping()
	m.Set("name", String("api"))
	m.Set("port", Number(8080))
	m.Set("ratio", Number(0.5))
	m.Set("on", Bool(true))
	m.Set("tags", Sequence(String("a"), String("b")))

	back, err := FromAny(ToAny(m))
	if err != nil {
		t.Fatalf("FromAny() error = %v", err)
	}
	if !m.Equal(back) {
		t.Errorf("ToAny/FromAny round-trip changed tree: %s vs %s",
			MarshalCanonical(m), MarshalCanonical(back))
	}
}

func TestNonFinite(t *testing.T) {
	finite := Mapping()
	finite.Set("ratio", Number(0.5))
	finite.Set("items", Sequence(Number(1), Number(2)))
	if p := NonFinite(finite); p != "" {
		t.Errorf("NonFinite(finite tree) = %q, want empty", p)
	}

	nested := Mapping()
	inner := Mapping()
	inner.Set("ratio", Number(math.NaN()))
	nested.Set("stats", inner)
	if p := NonFinite(nested); p != "stats.ratio" {
		t.Errorf("NonFinite(NaN tree) = %q, want stats.ratio", p)
	}

	seq := Mapping()
	seq.Set("samples", Sequence(Number(1), Number(math.Inf(-1))))
	if p := NonFinite(seq); p != "samples[1]" {
		t.Errorf("NonFinite(inf in sequence) = %q, want samples[1]", p)
	}

	if p := NonFinite(Number(math.Inf(1))); p != "(root)" {
		t.Errorf("NonFinite(bare inf) = %q, want (root)", p)
	}
}
