package animation

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Value is a typed parameter value.
type Value struct {
	typ ValueType
	f   float64
	i   int64
	b   bool
	s   string
	c   Color
}

func Float(f float64) Value    { return Value{typ: TypeFloat, f: f} }
func Int(i int64) Value        { return Value{typ: TypeInt, i: i} }
func Bool(b bool) Value        { return Value{typ: TypeBool, b: b} }
func String(s string) Value    { return Value{typ: TypeString, s: s} }
func Enum(s string) Value      { return Value{typ: TypeEnum, s: s} }
func ColorValue(c Color) Value { return Value{typ: TypeColor, c: c} }

// Type returns the value's type, or "" for the zero Value.
func (v Value) Type() ValueType { return v.typ }

// Float returns the numeric value; ints are converted.
func (v Value) Float() float64 {
	if v.typ == TypeInt {
		return float64(v.i)
	}
	return v.f
}

// Int returns the integer value; floats are truncated.
func (v Value) Int() int64 {
	if v.typ == TypeFloat {
		return int64(v.f)
	}
	return v.i
}

func (v Value) Bool() bool   { return v.b }
func (v Value) Color() Color { return v.c }

// String returns the string or enum value, or a printable form otherwise.
func (v Value) String() string {
	switch v.typ {
	case TypeString, TypeEnum:
		return v.s
	case TypeFloat:
		return fmt.Sprintf("%g", v.f)
	case TypeInt:
		return fmt.Sprintf("%d", v.i)
	case TypeBool:
		return fmt.Sprintf("%t", v.b)
	case TypeColor:
		return v.c.Hex()
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case TypeFloat:
		return json.Marshal(v.f)
	case TypeInt:
		return json.Marshal(v.i)
	case TypeBool:
		return json.Marshal(v.b)
	case TypeString, TypeEnum:
		return json.Marshal(v.s)
	case TypeColor:
		return v.c.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}

// Values maps parameter ids to values.
type Values map[string]Value

// RawValues is the wire form of Values. Decoding it needs a schema.
type RawValues map[string]json.RawMessage

// Clone returns a shallow copy.
func (vs Values) Clone() Values {
	return maps.Clone(vs)
}

// Keys returns the ids in sorted order.
func (vs Values) Keys() []string {
	return slices.Sorted(maps.Keys(vs))
}

// Raw encodes every value.
func (vs Values) Raw() (RawValues, error) {
	raw := make(RawValues, len(vs))
	for k, v := range vs {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		raw[k] = b
	}
	return raw, nil
}

// Lookup finds a parameter by id.
func Lookup(schema []ParameterSchema, id string) (ParameterSchema, bool) {
	for _, s := range schema {
		if s.ID == id {
			return s, true
		}
	}
	return ParameterSchema{}, false
}

// Defaults returns the default value of every parameter.
func Defaults(schema []ParameterSchema) Values {
	vs := make(Values, len(schema))
	for _, s := range schema {
		vs[s.ID] = s.DefaultValue()
	}
	return vs
}

// DecodeValues decodes raw against schema. Unknown ids are rejected.
func DecodeValues(schema []ParameterSchema, raw RawValues) (Values, error) {
	vs := make(Values, len(raw))
	for _, id := range slices.Sorted(maps.Keys(raw)) {
		s, ok := Lookup(schema, id)
		if !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, id)
		}
		v, err := s.Decode(raw[id])
		if err != nil {
			return nil, err
		}
		vs[id] = v
	}
	return vs, nil
}

// CheckValues validates typed values against schema.
func CheckValues(schema []ParameterSchema, vs Values) error {
	for _, id := range vs.Keys() {
		s, ok := Lookup(schema, id)
		if !ok {
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, id)
		}
		if err := s.Check(vs[id]); err != nil {
			return err
		}
	}
	return nil
}
