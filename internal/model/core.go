package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Path is a flattened field location inside a record, e.g. "address.city" or "tags[0]"
type Path string

// ValueKind enumerates the scalar variants a record can hold
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a closed scalar variant. Numbers keep their literal text.
type Value struct {
	kind ValueKind
	str  string
	b    bool
}

func String(s string) Value { return Value{kind: KindString, str: s} }
// Number wraps a number literal and panics if it is not valid JSON number
// text. Use ParseNumber for untrusted input.
func Number(n json.Number) Value {
	v, err := ParseNumber(n.String())
	if err != nil {
		panic(err)
	}
	return v
}

// ParseNumber validates s against the JSON number grammar and keeps its text
func ParseNumber(s string) (Value, error) {
	if !validNumber(s) {
		return Value{}, fmt.Errorf("invalid number literal %q", s)
	}
	return Value{kind: KindNumber, str: s}, nil
}

// validNumber reports whether s is -?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?
func validNumber(s string) bool {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	switch {
	case i < len(s) && s[i] == '0':
		i++
	case i < len(s) && s[i] >= '1' && s[i] <= '9':
		i = skipDigits(s, i)
	default:
		return false
	}
	if i < len(s) && s[i] == '.' {
		j := skipDigits(s, i+1)
		if j == i+1 {
			return false
		}
		i = j
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		j := skipDigits(s, i)
		if j == i {
			return false
		}
		i = j
	}
	return i == len(s)
}

func skipDigits(s string, i int) int {
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Null() Value { return Value{kind: KindNull} }
func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Str() string { return v.str }
func (v Value) BoolValue() bool { return v.b }
func (v Value) Num() json.Number { return json.Number(v.str) }

// Interface returns the value as a plain Go value (string, json.Number, bool or nil)
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return json.Number(v.str)
	case KindBool:
		return v.b
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "null"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return marshalNoEscape(v.str)
	case KindNumber:
		return []byte(v.str), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	val, err := valueFromToken(tok)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func valueFromToken(tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	}
	return Value{}, fmt.Errorf("record values must be scalars, got %v", tok)
}

// Field is one path/value pair of a record
type Field struct {
	Path  Path
	Value Value
}

// Record is a flat, insertion-ordered mapping from path to scalar value.
// The zero value is an empty record ready to use.
type Record struct {
	fields []Field
	index  map[Path]int
}

// Set stores value at path. An existing path keeps its position.
func (r *Record) Set(path Path, value Value) {
	if r.index == nil {
		r.index = make(map[Path]int)
	}
	if i, ok := r.index[path]; ok {
		r.fields[i].Value = value
		return
	}
	r.index[path] = len(r.fields)
	r.fields = append(r.fields, Field{Path: path, Value: value})
}

func (r Record) Get(path Path) (Value, bool) {
	i, ok := r.index[path]
	if !ok {
		return Value{}, false
	}
	return r.fields[i].Value, true
}

func (r Record) Len() int { return len(r.fields) }

// Fields returns the fields in insertion order
func (r Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Map flattens the record into a plain map, mostly for comparisons
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		m[string(f.Path)] = f.Value.Interface()
	}
	return m
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(string(f.Path))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("record must be a JSON object")
	}

	var rec Record
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		val, err := valueFromToken(valTok)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		rec.Set(Path(key), val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = rec
	return nil
}

// marshalNoEscape encodes a string without HTML escaping, keeping non-ASCII as is
func marshalNoEscape(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SuccessLine is the JSONL encoding of a successful outcome
type SuccessLine struct {
	URL     string   `json:"url"`
	Content []Record `json:"content"`
}
