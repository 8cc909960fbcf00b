package format

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/confman-io/confman/internal/configtree"
)

func TestParseJSON_PreservesKeyOrder(t *testing.T) {
	raw := []byte(`{"zebra": 1, "apple": {"beta": true, "alpha": false}}`)
	doc, err := Parse(raw, JSON, "test")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := doc.Root.Keys(); !reflect.DeepEqual(got, []string{"zebra", "apple"}) {
		t.Errorf("root keys = %v, want [zebra apple]", got)
	}
	apple, _ := doc.Root.Get("apple")
	if got := apple.Keys(); !reflect.DeepEqual(got, []string{"beta", "alpha"}) {
		t.Errorf("nested keys = %v, want [beta alpha]", got)
	}
}

func TestParseJSON_ErrorPosition(t *testing.T) {
	raw := []byte("{\n  \"a\": 1,\n  \"b\": oops\n}")
	_, err := Parse(raw, JSON, "test")

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Parse() error = %v, want ParseError", err)
	}
	if pe.Line != 3 {
		t.Errorf("error line = %d, want 3", pe.Line)
	}
	if pe.Column == 0 {
		t.Error("error column should be set")
	}
}

func TestSerializeJSON_Pretty(t *testing.T) {
	m := configtree.Mapping()
	m.Set("name", configtree.String("api"))
	inner := configtree.Mapping()
	inner.Set("port", configtree.Number(8080))
	m.Set("server", inner)

	out, err := Serialize(m, JSON)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	want := `{
  "name": "api",
  "server": {
    "port": 8080
  }
}
`
	if string(out) != want {
		t.Errorf("Serialize() =\n%s\nwant:\n%s", out, want)
	}
}

func TestSerializeJSON_Deterministic(t *testing.T) {
	m := configtree.Mapping()
	m.Set("b", configtree.Number(2))
	m.Set("a", configtree.Number(1))

	first, _ := Serialize(m, JSON)
	second, _ := Serialize(m, JSON)
	if string(first) != string(second) {
		t.Error("repeated serialization should be byte-identical")
	}
	// Insertion order, not lexical.
	if !strings.Contains(string(first), "\"b\": 2,\n  \"a\": 1") {
		t.Errorf("insertion order not preserved:\n%s", first)
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	raw := []byte(`{"s":"text","n":3.5,"i":42,"b":true,"z":null,"seq":[1,"two"],"m":{"k":"v"}}`)
	doc, err := Parse(raw, JSON, "test")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	out, err := Serialize(doc.Root, JSON)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	back, err := Parse(out, JSON, "test")
	if err != nil {
		t.Fatalf("re-Parse() error = %v", err)
	}
	if !doc.Root.Equal(back.Root) {
		t.Errorf("round-trip changed tree:\n%s", out)
	}
}
