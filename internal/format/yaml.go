package format

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/confman-io/confman/internal/configtree"
)

// YAML adapter.
//
// Parsing walks the yaml.Node tree directly so mapping key order is
// preserved and node positions are available for error reports.
//
// Narrowings:
//   - Non-string mapping keys (YAML allows integers, booleans) narrow to
//     their literal text; complex keys are rejected.
//   - Timestamps and !!binary scalars narrow to strings.
//   - Duplicate mapping keys are rejected rather than last-wins, since
//     canonical mapping keys are unique.
//   - YAML's non-finite floats (.nan, .inf, -.inf) are rejected; the
//     canonical data model holds finite numbers only.

func parseYAML(raw []byte) (*configtree.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, yamlParseError(err)
	}
	if len(doc.Content) == 0 {
		// Empty document: treat as an empty configuration.
		return configtree.Mapping(), nil
	}
	return yamlNodeToValue(doc.Content[0])
}

func yamlNodeToValue(n *yaml.Node) (*configtree.Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return yamlNodeToValue(n.Alias)
	case yaml.ScalarNode:
		return yamlScalarToValue(n)
	case yaml.SequenceNode:
		items := make([]*configtree.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlNodeToValue(c)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return configtree.Sequence(items...), nil
	case yaml.MappingNode:
		m := configtree.Mapping()
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, &ParseError{
					Format: YAML,
					Line:   keyNode.Line,
					Column: keyNode.Column,
					Msg:    "mapping keys must be scalars",
				}
			}
			key := keyNode.Value
			if _, exists := m.Get(key); exists {
				return nil, &ParseError{
					Format: YAML,
					Line:   keyNode.Line,
					Column: keyNode.Column,
					Msg:    fmt.Sprintf("duplicate mapping key %q", key),
				}
			}
			v, err := yamlNodeToValue(valNode)
			if err != nil {
				return nil, err
			}
			m.Set(key, v)
		}
		return m, nil
	default:
		return nil, &ParseError{
			Format: YAML,
			Line:   n.Line,
			Column: n.Column,
			Msg:    fmt.Sprintf("unsupported node kind %d", n.Kind),
		}
	}
}

func yamlScalarToValue(n *yaml.Node) (*configtree.Value, error) {
	switch n.Tag {
	case "!!null":
		return configtree.Null(), nil
	case "!!bool":
		b, err := strconv.ParseBool(strings.ToLower(n.Value))
		if err != nil {
			return nil, &ParseError{Format: YAML, Line: n.Line, Column: n.Column,
				Msg: fmt.Sprintf("invalid boolean %q", n.Value)}
		}
		return configtree.Bool(b), nil
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err == nil {
			return configtree.Number(float64(i)), nil
		}
		// Integers beyond int64 fall back to float parsing.
		f, ferr := strconv.ParseFloat(n.Value, 64)
		if ferr != nil {
			return nil, &ParseError{Format: YAML, Line: n.Line, Column: n.Column,
				Msg: fmt.Sprintf("invalid integer %q", n.Value)}
		}
		return configtree.Number(f), nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, &ParseError{Format: YAML, Line: n.Line, Column: n.Column,
				Msg: fmt.Sprintf("invalid float %q", n.Value)}
		}
		return configtree.Number(f), nil
	default:
		// Strings, timestamps, binary and custom tags all narrow to the
		// scalar's literal text.
		return configtree.String(n.Value), nil
	}
}

var yamlLineRE = regexp.MustCompile(`line (\d+):`)

// yamlParseError converts a yaml.v3 error into a ParseError, recovering
// the line number the library embeds in its message.
func yamlParseError(err error) error {
	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	pe := &ParseError{Format: YAML, Msg: msg}
	if m := yamlLineRE.FindStringSubmatch(msg); m != nil {
		pe.Line, _ = strconv.Atoi(m[1]) //nolint:errcheck // regexp guarantees digits
	}
	return pe
}

// serializeYAML renders the tree as YAML with two-space indentation,
// preserving mapping insertion order.
func serializeYAML(v *configtree.Value) ([]byte, error) {
	node, err := valueToYAMLNode(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, &SerializeError{Format: YAML, Msg: err.Error()}
	}
	if err := enc.Close(); err != nil {
		return nil, &SerializeError{Format: YAML, Msg: err.Error()}
	}
	return buf.Bytes(), nil
}

func valueToYAMLNode(v *configtree.Value) (*yaml.Node, error) {
	switch v.Kind() {
	case configtree.KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case configtree.KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.BoolVal())}, nil
	case configtree.KindNumber:
		n := v.NumberVal()
		tag := "!!float"
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: configtree.FormatNumber(n)}, nil
	case configtree.KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.StringVal()}, nil
	case configtree.KindSequence:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.Items() {
			c, err := valueToYAMLNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, c)
		}
		return node, nil
	case configtree.KindMapping:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, key := range v.Keys() {
			val, _ := v.Get(key)
			c, err := valueToYAMLNode(val)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, c)
		}
		return node, nil
	default:
		return nil, &SerializeError{Format: YAML, Msg: fmt.Sprintf("unsupported kind %s", v.Kind())}
	}
}
