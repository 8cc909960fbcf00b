package format

import (
	"errors"

	"github.com/pelletier/go-toml/v2"

	"github.com/confman-io/confman/internal/configtree"
)

// TOML adapter, using pelletier/go-toml/v2.
//
// Narrowings:
//   - TOML has no null: null values serialize as the empty string.
//   - Mapping key order is lost through the library's map representation;
//     serialization orders keys lexically (still deterministic).
//   - Date/time values narrow to their RFC 3339 / literal string form.
//   - TOML's integer/float distinction folds into the single canonical
//     Number kind.
//   - Non-finite floats (nan, inf, -inf) are rejected at parse; the
//     canonical data model holds finite numbers only.

func parseTOML(raw []byte) (*configtree.Value, error) {
	var m map[string]any
	if err := toml.Unmarshal(raw, &m); err != nil {
		return nil, tomlParseError(err)
	}
	v, err := configtree.FromAny(m)
	if err != nil {
		return nil, &ParseError{Format: TOML, Msg: err.Error()}
	}
	return v, nil
}

// tomlParseError converts a go-toml error into a ParseError with the
// row/column the library reports.
func tomlParseError(err error) error {
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return &ParseError{Format: TOML, Line: row, Column: col, Msg: decodeErr.Error()}
	}
	return &ParseError{Format: TOML, Msg: err.Error()}
}

func serializeTOML(v *configtree.Value) ([]byte, error) {
	prepared, err := tomlReady(v, "")
	if err != nil {
		return nil, err
	}
	out, err := toml.Marshal(configtree.ToAny(prepared))
	if err != nil {
		return nil, &SerializeError{Format: TOML, Msg: err.Error()}
	}
	return out, nil
}

// tomlReady clones the tree with nulls narrowed to empty strings, since
// TOML cannot represent a null value.
func tomlReady(v *configtree.Value, path string) (*configtree.Value, error) {
	switch v.Kind() {
	case configtree.KindNull:
		return configtree.String(""), nil
	case configtree.KindSequence:
		items := make([]*configtree.Value, 0, v.Len())
		for _, item := range v.Items() {
			p, err := tomlReady(item, path)
			if err != nil {
				return nil, err
			}
			items = append(items, p)
		}
		return configtree.Sequence(items...), nil
	case configtree.KindMapping:
		m := configtree.Mapping()
		for _, key := range v.Keys() {
			val, _ := v.Get(key)
			p, err := tomlReady(val, configtree.ChildPath(path, key))
			if err != nil {
				return nil, err
			}
			m.Set(key, p)
		}
		return m, nil
	default:
		return v, nil
	}
}
