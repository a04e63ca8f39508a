// Package value defines the single runtime value type of the app logic
// engine: a tagged union over null, bool, number, string, list, and map.
// Every expression result, every action parameter, and every state field is
// a Value. Equality is structural, copies are deep, and the JSON bridge is
// lossless for the JSON data model (numbers are float64).
package value

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// String returns the declaration-facing name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is the tagged runtime value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	l    []Value
	m    map[string]Value
}

// Null is the null value.
var Null = Value{}

// Bool constructs a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Num constructs a number value.
func Num(n float64) Value { return Value{kind: KindNumber, n: n} }

// Str constructs a string value.
func Str(s string) Value { return Value{kind: KindString, s: s} }

// List constructs a list value from its elements. The slice is owned by the
// returned value.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, l: items}
}

// Map constructs a map value. The map is owned by the returned value.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload. ok is false for non-bool values.
func (v Value) AsBool() (b bool, ok bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload. ok is false for non-number values.
func (v Value) AsNumber() (n float64, ok bool) { return v.n, v.kind == KindNumber }

// AsString returns the string payload. ok is false for non-string values.
func (v Value) AsString() (s string, ok bool) { return v.s, v.kind == KindString }

// AsList returns the list payload. ok is false for non-list values.
// The returned slice aliases the value's storage; callers that mutate it
// must Clone first.
func (v Value) AsList() (items []Value, ok bool) { return v.l, v.kind == KindList }

// AsMap returns the map payload. ok is false for non-map values.
// The returned map aliases the value's storage; callers that mutate it must
// Clone first.
func (v Value) AsMap() (m map[string]Value, ok bool) { return v.m, v.kind == KindMap }

// Equal reports structural equality: deep for lists and maps, exact for
// scalars. Values of different kinds are unequal, never an error.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, ve := range v.m {
			oe, ok := o.m[k]
			if !ok || !ve.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy. Scalars share no mutable storage, so only
// lists and maps allocate.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		cp := make([]Value, len(v.l))
		for i := range v.l {
			cp[i] = v.l[i].Clone()
		}
		return Value{kind: KindList, l: cp}
	case KindMap:
		cp := make(map[string]Value, len(v.m))
		for k, e := range v.m {
			cp[k] = e.Clone()
		}
		return Value{kind: KindMap, m: cp}
	default:
		return v
	}
}

// String returns the display form used by string concatenation and
// interpolation: bare scalars without quotes, JSON for containers.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return FormatNumber(v.n)
	case KindString:
		return v.s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%s>", v.kind)
		}
		return string(b)
	}
}

// FormatNumber renders a number without a trailing ".0" for integral
// values, matching the JSON source representation.
func FormatNumber(n float64) string {
	s := strconv.FormatFloat(n, 'f', -1, 64)
	// Exponent form for magnitudes FormatFloat 'f' would spell out in full.
	if len(s) > 21 {
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return s
}

// TypeName returns the kind name used in error messages.
func (v Value) TypeName() string { return v.kind.String() }

// FromAny converts a JSON-decoded Go value (or common programmatic
// equivalents) into a Value. Unsupported Go types are an error.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null, nil
	case bool:
		return Bool(t), nil
	case float64:
		return Num(t), nil
	case float32:
		return Num(float64(t)), nil
	case int:
		return Num(float64(t)), nil
	case int64:
		return Num(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null, fmt.Errorf("number %q out of range: %w", t.String(), err)
		}
		return Num(f), nil
	case string:
		return Str(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Null, err
			}
			items[i] = v
		}
		return List(items...), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Null, err
			}
			m[k] = v
		}
		return Map(m), nil
	case Value:
		return t, nil
	default:
		return Null, fmt.Errorf("unsupported value type %T", x)
	}
}

// MustFromAny is FromAny for literals known valid at compile time.
// It panics on unsupported types; reserved for tests and fixtures.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// ToAny converts the value back into JSON-decoded Go form
// (nil / bool / float64 / string / []any / map[string]any).
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.l))
		for i, e := range v.l {
			out[i] = e.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.ToAny()
		}
		return out
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Map keys serialize in sorted
// order (encoding/json's map behavior), giving a stable byte form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// SerializedSize returns the length in bytes of the value's JSON form.
func (v Value) SerializedSize() int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
