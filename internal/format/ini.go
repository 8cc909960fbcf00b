package format

import (
	"bytes"
	"fmt"

	"gopkg.in/ini.v1"

	"github.com/confman-io/confman/internal/configtree"
)

// INI adapter, using gopkg.in/ini.v1.
//
// INI is the narrowest supported format:
//   - Structure is limited to two levels: top-level scalars (stored in
//     the default section) and one level of sections holding scalar keys.
//     Deeper nesting and sequences fail serialization with a
//     SerializeError.
//   - Every parsed value is a String; INI has no type system.
//   - Null serializes as the empty string.
//   - Serialization orders keys lexically (matching the TOML adapter).

func parseINI(raw []byte) (*configtree.Value, error) {
	f, err := ini.Load(raw)
	if err != nil {
		return nil, &ParseError{Format: INI, Msg: err.Error()}
	}

	root := configtree.Mapping()
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			for _, key := range sec.Keys() {
				root.Set(key.Name(), configtree.String(key.Value()))
			}
			continue
		}
		m := configtree.Mapping()
		for _, key := range sec.Keys() {
			m.Set(key.Name(), configtree.String(key.Value()))
		}
		root.Set(sec.Name(), m)
	}
	return root, nil
}

func serializeINI(v *configtree.Value) ([]byte, error) {
	if v.Kind() != configtree.KindMapping {
		return nil, &SerializeError{Format: INI, Msg: "root must be a mapping"}
	}

	f := ini.Empty()
	for _, name := range v.SortedKeys() {
		val, _ := v.Get(name)
		if val.Kind() == configtree.KindMapping {
			sec, err := f.NewSection(name)
			if err != nil {
				return nil, &SerializeError{Format: INI, Path: name, Msg: err.Error()}
			}
			for _, key := range val.SortedKeys() {
				leaf, _ := val.Get(key)
				s, err := iniScalar(leaf, configtree.ChildPath(name, key))
				if err != nil {
					return nil, err
				}
				if _, err := sec.NewKey(key, s); err != nil {
					return nil, &SerializeError{Format: INI, Path: configtree.ChildPath(name, key), Msg: err.Error()}
				}
			}
			continue
		}
		s, err := iniScalar(val, name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Section(ini.DefaultSection).NewKey(name, s); err != nil {
			return nil, &SerializeError{Format: INI, Path: name, Msg: err.Error()}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, &SerializeError{Format: INI, Msg: err.Error()}
	}
	return buf.Bytes(), nil
}

// iniScalar renders a scalar leaf as INI text.
func iniScalar(v *configtree.Value, path string) (string, error) {
	switch v.Kind() {
	case configtree.KindNull:
		return "", nil
	case configtree.KindBool:
		if v.BoolVal() {
			return "true", nil
		}
		return "false", nil
	case configtree.KindNumber:
		return configtree.FormatNumber(v.NumberVal()), nil
	case configtree.KindString:
		return v.StringVal(), nil
	default:
		return "", &SerializeError{
			Format: INI,
			Path:   path,
			Msg:    fmt.Sprintf("%s values cannot be represented in INI", v.Kind()),
		}
	}
}
