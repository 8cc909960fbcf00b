package format

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/confman-io/confman/internal/configtree"
)

// JSON adapter.
//
// Narrowings: none. JSON represents every canonical kind natively and
// object key order is preserved both ways (parsing walks the token
// stream rather than unmarshalling into an unordered map).

func parseJSON(raw []byte) (*configtree.Value, error) {
	v, err := configtree.UnmarshalCanonical(raw)
	if err != nil {
		return nil, jsonParseError(raw, err)
	}
	return v, nil
}

// jsonParseError converts an encoding/json error into a ParseError with
// line/column derived from the reported byte offset.
func jsonParseError(raw []byte, err error) error {
	var offset int64 = -1
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}

	pe := &ParseError{Format: JSON, Msg: err.Error()}
	if offset >= 0 {
		pe.Line, pe.Column = offsetToPosition(raw, offset)
	}
	return pe
}

// offsetToPosition converts a byte offset into a 1-based line and column.
func offsetToPosition(raw []byte, offset int64) (line, column int) {
	if offset > int64(len(raw)) {
		offset = int64(len(raw))
	}
	head := raw[:offset]
	line = bytes.Count(head, []byte{'\n'}) + 1
	lastNL := bytes.LastIndexByte(head, '\n')
	column = int(offset) - lastNL
	return line, column
}

// serializeJSON renders the tree as pretty-printed JSON with two-space
// indentation, preserving mapping insertion order, with a trailing
// newline.
func serializeJSON(v *configtree.Value) []byte {
	var buf bytes.Buffer
	configtree.EncodeJSON(&buf, v, "  ")
	buf.WriteByte('\n')
	return buf.Bytes()
}
