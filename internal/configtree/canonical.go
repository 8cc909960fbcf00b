package configtree

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"time"
)

// The canonical encoding is compact JSON with mapping keys in insertion
// order and numbers rendered by FormatNumber. It is the representation
// persisted by the history store and the input to content hashing, so it
// must stay byte-deterministic for a given tree.

// MarshalCanonical returns the canonical serialized form of the tree.
func MarshalCanonical(v *Value) []byte {
	var buf bytes.Buffer
	encodeJSON(&buf, v, "", 0)
	return buf.Bytes()
}

// EncodeJSON writes the tree as JSON to buf. An empty indent produces the
// compact canonical form; a non-empty indent produces pretty output with
// one field per line. Both preserve mapping insertion order.
func EncodeJSON(buf *bytes.Buffer, v *Value, indent string) {
	encodeJSON(buf, v, indent, 0)
}

func encodeJSON(buf *bytes.Buffer, v *Value, indent string, depth int) {
	switch v.Kind() {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.BoolVal() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(FormatNumber(v.NumberVal()))
	case KindString:
		b, _ := json.Marshal(v.StringVal()) //nolint:errcheck // string marshalling cannot fail
		buf.Write(b)
	case KindSequence:
		if v.Len() == 0 {
			buf.WriteString("[]")
			return
		}
		buf.WriteByte('[')
		for i, item := range v.Items() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeNewlineIndent(buf, indent, depth+1)
			encodeJSON(buf, item, indent, depth+1)
		}
		writeNewlineIndent(buf, indent, depth)
		buf.WriteByte(']')
	case KindMapping:
		if v.Len() == 0 {
			buf.WriteString("{}")
			return
		}
		buf.WriteByte('{')
		for i, key := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeNewlineIndent(buf, indent, depth+1)
			kb, _ := json.Marshal(key) //nolint:errcheck // string marshalling cannot fail
			buf.Write(kb)
			buf.WriteByte(':')
			if indent != "" {
				buf.WriteByte(' ')
			}
			val, _ := v.Get(key)
			encodeJSON(buf, val, indent, depth+1)
		}
		writeNewlineIndent(buf, indent, depth)
		buf.WriteByte('}')
	}
}

func writeNewlineIndent(buf *bytes.Buffer, indent string, depth int) {
	if indent == "" {
		return
	}
	buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		buf.WriteString(indent)
	}
}

// UnmarshalCanonical parses a canonical (or any JSON) document into a
// tree, preserving object key order. Errors are the raw encoding/json
// errors; callers that need line/column context derive it from the
// reported byte offset.
func UnmarshalCanonical(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	// Reject trailing content after the document.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected content after document at offset %d", dec.InputOffset())
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := Mapping()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string at offset %d", dec.InputOffset())
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				m.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return m, nil
		case '[':
			seq := Sequence()
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				seq.seq = append(seq.seq, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return seq, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case bool:
		return Bool(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("parsing number %q: %w", t.String(), err)
		}
		return Number(n), nil
	case string:
		return String(t), nil
	case nil:
		return Null(), nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// NonFinite returns the dotted path of the first NaN or infinite number
// in the tree, or "" when every number is finite. The canonical encoding,
// and with it the content hash and the history store, is defined over
// finite numbers only.
func NonFinite(v *Value) string {
	return nonFinite(v, "")
}

func nonFinite(v *Value, path string) string {
	switch v.Kind() {
	case KindNumber:
		if math.IsNaN(v.NumberVal()) || math.IsInf(v.NumberVal(), 0) {
			if path == "" {
				return "(root)"
			}
			return path
		}
	case KindSequence:
		for i, item := range v.Items() {
			if p := nonFinite(item, fmt.Sprintf("%s[%d]", path, i)); p != "" {
				return p
			}
		}
	case KindMapping:
		for _, key := range v.Keys() {
			val, _ := v.Get(key)
			if p := nonFinite(val, ChildPath(path, key)); p != "" {
				return p
			}
		}
	}
	return ""
}

// Hash type tags keep different shapes with identical payloads from
// colliding (e.g. the string "true" vs the boolean true).
const (
	hashTagNull    = 0x00
	hashTagBool    = 0x01
	hashTagNumber  = 0x02
	hashTagString  = 0x03
	hashTagSeq     = 0x04
	hashTagMapping = 0x05
	hashTagPair    = 0x06
)

// Hash returns the hex-encoded SHA-256 content hash of the tree.
//
// The hash is order-independent over mapping entries and order-dependent
// over sequence elements, so two documents that differ only in key order
// hash identically. It is reproducible from any snapshot of the tree.
func Hash(v *Value) string {
	sum := hashValue(v)
	return hex.EncodeToString(sum[:])
}

func hashValue(v *Value) [sha256.Size]byte {
	h := sha256.New()
	switch v.Kind() {
	case KindNull:
		h.Write([]byte{hashTagNull})
	case KindBool:
		b := byte(0)
		if v.BoolVal() {
			b = 1
		}
		h.Write([]byte{hashTagBool, b})
	case KindNumber:
		h.Write([]byte{hashTagNumber})
		h.Write([]byte(FormatNumber(v.NumberVal())))
	case KindString:
		h.Write([]byte{hashTagString})
		h.Write([]byte(v.StringVal()))
	case KindSequence:
		h.Write([]byte{hashTagSeq})
		for _, item := range v.Items() {
			sum := hashValue(item)
			h.Write(sum[:])
		}
	case KindMapping:
		// Hash each key/value pair independently, then combine in sorted
		// order so insertion order does not affect the digest.
		pairs := make([][sha256.Size]byte, 0, v.Len())
		for _, key := range v.Keys() {
			ph := sha256.New()
			ph.Write([]byte{hashTagPair})
			ph.Write([]byte(key))
			val, _ := v.Get(key)
			sum := hashValue(val)
			ph.Write(sum[:])
			var pair [sha256.Size]byte
			copy(pair[:], ph.Sum(nil))
			pairs = append(pairs, pair)
		}
		sort.Slice(pairs, func(i, j int) bool {
			return bytes.Compare(pairs[i][:], pairs[j][:]) < 0
		})
		h.Write([]byte{hashTagMapping})
		for _, pair := range pairs {
			h.Write(pair[:])
		}
	}
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ToAny converts a tree to plain Go values (map[string]any, []any,
// scalars) for format libraries that marshal from native types. Mapping
// key order is lost; adapters relying on ToAny document lexical output
// ordering instead.
func ToAny(v *Value) any {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindBool:
		return v.BoolVal()
	case KindNumber:
		n := v.NumberVal()
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
		return n
	case KindString:
		return v.StringVal()
	case KindSequence:
		items := make([]any, 0, v.Len())
		for _, item := range v.Items() {
			items = append(items, ToAny(item))
		}
		return items
	case KindMapping:
		m := make(map[string]any, v.Len())
		for _, key := range v.Keys() {
			val, _ := v.Get(key)
			m[key] = ToAny(val)
		}
		return m
	default:
		return nil
	}
}

// FromAny converts plain Go values produced by a format library into a
// tree. Map iteration order is not deterministic, so mapping keys are
// inserted in lexical order. Timestamps and other rich scalar types
// narrow to their string form.
func FromAny(x any) (*Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("non-finite number %v is not representable", t)
		}
		return Number(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("parsing number %q: %w", t.String(), err)
		}
		return Number(n), nil
	case string:
		return String(t), nil
	case time.Time:
		return String(t.Format(time.RFC3339)), nil
	case []any:
		seq := Sequence()
		for _, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			seq.seq = append(seq.seq, v)
		}
		return seq, nil
	case []map[string]any:
		// Some format libraries type arrays of tables concretely.
		seq := Sequence()
		for _, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			seq.seq = append(seq.seq, v)
		}
		return seq, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := Mapping()
		for _, k := range keys {
			v, err := FromAny(t[k])
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			m.Set(k, v)
		}
		return m, nil
	case fmt.Stringer:
		return String(t.String()), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", x)
	}
}
