package animation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidParameter is wrapped by every parameter decoding or validation
// failure.
var ErrInvalidParameter = errors.New("invalid parameter")

// ValueType names the type of a parameter.
type ValueType string

const (
	TypeFloat  ValueType = "float"
	TypeInt    ValueType = "int"
	TypeBool   ValueType = "bool"
	TypeString ValueType = "string"
	TypeColor  ValueType = "color"
	TypeEnum   ValueType = "enum"
)

// ParameterSchema describes one tunable parameter.
type ParameterSchema struct {
	ID          string          `json:"id" validate:"required,max=64"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	Type        ValueType       `json:"type" validate:"required,oneof=float int bool string color enum"`
	Min         *float64        `json:"min,omitempty"`
	Max         *float64        `json:"max,omitempty"`
	MaxLength   int             `json:"max_length,omitempty" validate:"gte=0"`
	Options     []string        `json:"options,omitempty" validate:"required_if=Type enum"`
	Default     json.RawMessage `json:"default,omitempty"`
}

var validate = validator.New()

// Bound is a helper for building Min/Max.
func Bound(v float64) *float64 {
	return &v
}

// ValidateSchema checks a schema list for structural errors, duplicate ids
// and defaults that do not satisfy their own constraints.
func ValidateSchema(schema []ParameterSchema) error {
	seen := make(map[string]bool, len(schema))
	for _, s := range schema {
		if err := validate.Struct(s); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return fmt.Errorf("parameter %q: %s", s.ID, formatValidationMessage(verrs[0]))
			}
			return fmt.Errorf("parameter %q: %w", s.ID, err)
		}
		if seen[s.ID] {
			return fmt.Errorf("parameter %q declared twice", s.ID)
		}
		seen[s.ID] = true
		if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
			return fmt.Errorf("parameter %q: min %g exceeds max %g", s.ID, *s.Min, *s.Max)
		}
		if len(s.Default) > 0 {
			if _, err := s.Decode(s.Default); err != nil {
				return fmt.Errorf("parameter %q default: %w", s.ID, err)
			}
		}
	}
	return nil
}

// DefaultValue returns the decoded default, or the zero value of the type.
func (s ParameterSchema) DefaultValue() Value {
	if len(s.Default) > 0 {
		if v, err := s.Decode(s.Default); err == nil {
			return v
		}
	}
	switch s.Type {
	case TypeFloat:
		if s.Min != nil {
			return Float(*s.Min)
		}
		return Float(0)
	case TypeInt:
		if s.Min != nil {
			return Int(int64(*s.Min))
		}
		return Int(0)
	case TypeBool:
		return Bool(false)
	case TypeColor:
		return ColorValue(Black)
	case TypeEnum:
		if len(s.Options) > 0 {
			return Enum(s.Options[0])
		}
		return Enum("")
	default:
		return String("")
	}
}

// Decode parses raw JSON as a value of this parameter and checks it.
func (s ParameterSchema) Decode(raw json.RawMessage) (Value, error) {
	var v Value
	switch s.Type {
	case TypeFloat, TypeInt:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return Value{}, s.invalid("want a number")
		}
		if s.Type == TypeFloat {
			f, err := strconv.ParseFloat(n.String(), 64)
			if err != nil {
				return Value{}, s.invalid("want a number")
			}
			v = Float(f)
		} else {
			i, err := strconv.ParseInt(n.String(), 10, 64)
			if err != nil {
				return Value{}, s.invalid("want an integer")
			}
			v = Int(i)
		}
	case TypeBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, s.invalid("want a boolean")
		}
		v = Bool(b)
	case TypeString, TypeEnum:
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return Value{}, s.invalid("want a string")
		}
		v = Value{typ: s.Type, s: str}
	case TypeColor:
		var c Color
		if err := json.Unmarshal(raw, &c); err != nil {
			return Value{}, s.invalid(err.Error())
		}
		v = ColorValue(c)
	default:
		return Value{}, s.invalid(fmt.Sprintf("unsupported type %q", s.Type))
	}
	if err := s.Check(v); err != nil {
		return Value{}, err
	}
	return v, nil
}

// Check validates an already typed value against this parameter.
func (s ParameterSchema) Check(v Value) error {
	if v.typ != s.Type {
		return s.invalid(fmt.Sprintf("want %s, got %s", s.Type, v.typ))
	}
	var tags []string
	switch s.Type {
	case TypeFloat, TypeInt:
		if f := v.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return s.invalid("must be a finite number")
		}
		if s.Min != nil {
			tags = append(tags, "gte="+strconv.FormatFloat(*s.Min, 'g', -1, 64))
		}
		if s.Max != nil {
			tags = append(tags, "lte="+strconv.FormatFloat(*s.Max, 'g', -1, 64))
		}
		if len(tags) > 0 {
			if err := validate.Var(v.Float(), strings.Join(tags, ",")); err != nil {
				return s.invalid(rangeMessage(s))
			}
		}
	case TypeString:
		if s.MaxLength > 0 {
			if err := validate.Var(v.s, "max="+strconv.Itoa(s.MaxLength)); err != nil {
				return s.invalid(fmt.Sprintf("must be at most %d characters", s.MaxLength))
			}
		}
	case TypeEnum:
		if !slices.Contains(s.Options, v.s) {
			return s.invalid(fmt.Sprintf("must be one of: %s", strings.Join(s.Options, " ")))
		}
	}
	return nil
}

func (s ParameterSchema) invalid(msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParameter, s.ID, msg)
}

func rangeMessage(s ParameterSchema) string {
	switch {
	case s.Min != nil && s.Max != nil:
		return fmt.Sprintf("must be between %g and %g", *s.Min, *s.Max)
	case s.Min != nil:
		return fmt.Sprintf("must be at least %g", *s.Min)
	default:
		return fmt.Sprintf("must be at most %g", *s.Max)
	}
}

func formatValidationMessage(e validator.FieldError) string {
	field := toSnakeCase(e.Field())
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteByte(byte(r + 'a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
