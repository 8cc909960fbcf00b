// Package schema declares expected configuration structure and validates
// canonical trees against it.
//
// A schema is itself loaded from a configuration tree in any supported
// format. Each field is declared either in shorthand (the field name
// mapped to a type name) or as a rule mapping:
//
//	db:
//	  type: mapping
//	  required: true
//	  fields:
//	    host: string
//	    port: {type: number, required: true}
//	    mode: {type: string, allowed: [ro, rw]}
//	tags:
//	  type: sequence
//	  elem: string
//
// A mapping without a "type" key is shorthand for a mapping rule whose
// entries are the nested field rules. Schemas are loaded once and are
// read-only thereafter; validation never mutates them or the tree.
package schema

import (
	"fmt"

	"github.com/confman-io/confman/internal/configtree"
)

// Rule is the constraint for a single field.
type Rule struct {
	// Name is the field's key in its enclosing mapping; Path is the full
	// dotted path from the document root.
	Name string
	Path string

	// Kind is the expected value kind. Any disables the kind check.
	Kind configtree.Kind
	Any  bool

	// Required marks the field as mandatory.
	Required bool

	// Allowed, when non-empty, restricts the value to this set.
	Allowed []*configtree.Value

	// Fields holds nested rules for mapping fields; Elem holds the rule
	// applied to every element of a sequence field. Either may be nil.
	Fields *Schema
	Elem   *Rule
}

// Schema is an ordered set of field rules for one mapping level.
type Schema struct {
	rules  []*Rule
	byName map[string]*Rule
}

// Rules returns the rules in declaration order.
func (s *Schema) Rules() []*Rule { return s.rules }

// Rule returns the rule for a field name, if declared.
func (s *Schema) Rule(name string) (*Rule, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// Load builds a Schema from a schema definition tree.
func Load(doc *configtree.Value) (*Schema, error) {
	if doc == nil || doc.Kind() != configtree.KindMapping {
		return nil, fmt.Errorf("schema definition root must be a mapping")
	}
	return loadFields(doc, "")
}

func loadFields(m *configtree.Value, prefix string) (*Schema, error) {
	s := &Schema{byName: make(map[string]*Rule)}
	for _, name := range m.Keys() {
		def, _ := m.Get(name)
		rule, err := loadRule(name, configtree.ChildPath(prefix, name), def)
		if err != nil {
			return nil, err
		}
		s.rules = append(s.rules, rule)
		s.byName[name] = rule
	}
	return s, nil
}

func loadRule(name, path string, def *configtree.Value) (*Rule, error) {
	rule := &Rule{Name: name, Path: path}

	switch def.Kind() {
	case configtree.KindString:
		// Shorthand: field name mapped to a type name.
		return rule, applyKindName(rule, def.StringVal())

	case configtree.KindMapping:
		typeVal, hasType := def.Get("type")
		if !hasType {
			// Shorthand: nested mapping of field rules.
			fields, err := loadFields(def, path)
			if err != nil {
				return nil, err
			}
			rule.Kind = configtree.KindMapping
			rule.Fields = fields
			return rule, nil
		}
		if typeVal.Kind() != configtree.KindString {
			return nil, fmt.Errorf("schema field %q: type must be a string", path)
		}
		if err := applyKindName(rule, typeVal.StringVal()); err != nil {
			return nil, err
		}

		for _, key := range def.Keys() {
			val, _ := def.Get(key)
			switch key {
			case "type":
				// handled above
			case "required":
				if val.Kind() != configtree.KindBool {
					return nil, fmt.Errorf("schema field %q: required must be a boolean", path)
				}
				rule.Required = val.BoolVal()
			case "allowed":
				if val.Kind() != configtree.KindSequence {
					return nil, fmt.Errorf("schema field %q: allowed must be a sequence", path)
				}
				rule.Allowed = val.Items()
			case "fields":
				if rule.Kind != configtree.KindMapping {
					return nil, fmt.Errorf("schema field %q: fields requires type mapping", path)
				}
				fields, err := loadFields(val, path)
				if err != nil {
					return nil, err
				}
				rule.Fields = fields
			case "elem":
				if rule.Kind != configtree.KindSequence {
					return nil, fmt.Errorf("schema field %q: elem requires type sequence", path)
				}
				elem, err := loadRule(name, path+"[]", val)
				if err != nil {
					return nil, err
				}
				rule.Elem = elem
			default:
				return nil, fmt.Errorf("schema field %q: unknown rule key %q", path, key)
			}
		}
		return rule, nil

	default:
		return nil, fmt.Errorf("schema field %q: definition must be a type name or rule mapping", path)
	}
}

func applyKindName(rule *Rule, name string) error {
	switch name {
	case "null":
		rule.Kind = configtree.KindNull
	case "bool", "boolean":
		rule.Kind = configtree.KindBool
	case "number", "int", "float":
		rule.Kind = configtree.KindNumber
	case "string", "str":
		rule.Kind = configtree.KindString
	case "sequence", "list", "array":
		rule.Kind = configtree.KindSequence
	case "mapping", "map", "object":
		rule.Kind = configtree.KindMapping
	case "any":
		rule.Any = true
	default:
		return fmt.Errorf("schema field %q: unknown type %q", rule.Path, name)
	}
	return nil
}

// Template generates a skeleton configuration tree from the schema:
// nested mappings for declared structure and zero values for scalar
// fields. Useful as a starting point for a new configuration file.
func Template(s *Schema) *configtree.Value {
	out := configtree.Mapping()
	for _, rule := range s.rules {
		out.Set(rule.Name, templateValue(rule))
	}
	return out
}

func templateValue(rule *Rule) *configtree.Value {
	if rule.Any {
		return configtree.Null()
	}
	switch rule.Kind {
	case configtree.KindBool:
		return configtree.Bool(false)
	case configtree.KindNumber:
		return configtree.Number(0)
	case configtree.KindString:
		if len(rule.Allowed) > 0 && rule.Allowed[0].Kind() == configtree.KindString {
			return rule.Allowed[0].Clone()
		}
		return configtree.String("")
	case configtree.KindSequence:
		return configtree.Sequence()
	case configtree.KindMapping:
		if rule.Fields != nil {
			return Template(rule.Fields)
		}
		return configtree.Mapping()
	default:
		return configtree.Null()
	}
}
