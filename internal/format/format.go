// Package format converts between raw serialized text and canonical
// configuration trees.
//
// Four formats are supported: JSON, YAML, TOML and INI. Each adapter
// isolates its format's quirks completely; everything outside this
// package sees only configtree values. Serialization is deterministic:
// the same tree always produces byte-identical output.
//
// Format narrowings (behaviour where a format's type system is narrower
// than the canonical tree) are documented on each adapter file.
package format

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/confman-io/confman/internal/configtree"
)

// Format identifies a supported serialization format.
type Format string

// Supported formats.
const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
	INI  Format = "ini"
)

// Document is one loaded configuration source: a canonical tree, the
// format it was parsed from, and an origin identifier (usually a file
// path) used in error reports and merge conflict records.
//
// Documents are treated as immutable once loaded; transformations
// produce new trees.
type Document struct {
	Root   *configtree.Value
	Format Format
	Origin string
}

// UnsupportedFormatError reports a format tag this package does not
// handle.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported configuration format %q", e.Format)
}

// RootTypeError reports a parsed document whose root is not a mapping.
// Every configuration document must be a mapping at the top level.
type RootTypeError struct {
	Format Format
	Actual configtree.Kind
}

func (e *RootTypeError) Error() string {
	return fmt.Sprintf("%s document root must be a mapping, got %s", e.Format, e.Actual)
}

// ParseError reports malformed source text, with line/column position
// where the underlying parser provides one (0 when unknown) and a
// key-path context where it does not.
type ParseError struct {
	Format Format
	Line   int
	Column int
	Path   string
	Msg    string
}

func (e *ParseError) Error() string {
	var loc string
	switch {
	case e.Line > 0 && e.Column > 0:
		loc = fmt.Sprintf(" at line %d, column %d", e.Line, e.Column)
	case e.Line > 0:
		loc = fmt.Sprintf(" at line %d", e.Line)
	case e.Path != "":
		loc = fmt.Sprintf(" at %q", e.Path)
	}
	return fmt.Sprintf("parsing %s%s: %s", e.Format, loc, e.Msg)
}

// SerializeError reports a tree that cannot be represented in the target
// format, naming the offending field path.
type SerializeError struct {
	Format Format
	Path   string
	Msg    string
}

func (e *SerializeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("serializing %s: %s", e.Format, e.Msg)
	}
	return fmt.Sprintf("serializing %s: field %q: %s", e.Format, e.Path, e.Msg)
}

// Parse converts raw serialized text into a Document. The document root
// must be a mapping; anything else fails with RootTypeError.
func Parse(raw []byte, f Format, origin string) (*Document, error) {
	var (
		root *configtree.Value
		err  error
	)
	switch f {
	case JSON:
		root, err = parseJSON(raw)
	case YAML:
		root, err = parseYAML(raw)
	case TOML:
		root, err = parseTOML(raw)
	case INI:
		root, err = parseINI(raw)
	default:
		return nil, &UnsupportedFormatError{Format: string(f)}
	}
	if err != nil {
		return nil, err
	}
	if root.Kind() != configtree.KindMapping {
		return nil, &RootTypeError{Format: f, Actual: root.Kind()}
	}
	return &Document{Root: root, Format: f, Origin: origin}, nil
}

// Serialize renders a tree in the given format. Output is deterministic:
// repeated calls with an equal tree produce byte-identical text.
func Serialize(v *configtree.Value, f Format) ([]byte, error) {
	switch f {
	case JSON:
		return serializeJSON(v), nil
	case YAML:
		return serializeYAML(v)
	case TOML:
		return serializeTOML(v)
	case INI:
		return serializeINI(v)
	default:
		return nil, &UnsupportedFormatError{Format: string(f)}
	}
}

// Detect infers the format from a file path's extension. Unknown
// extensions fail fast with UnsupportedFormatError.
func Detect(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "toml":
		return TOML, nil
	case "ini":
		return INI, nil
	default:
		return "", &UnsupportedFormatError{Format: ext}
	}
}

// ParseFormat converts a user-supplied format name (e.g. a CLI flag)
// into a Format tag.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "toml":
		return TOML, nil
	case "ini":
		return INI, nil
	default:
		return "", &UnsupportedFormatError{Format: name}
	}
}
