package schema

import (
	"fmt"
	"reflect"
)

// Type defines the contract for field validation. Implementations determine
// how values are validated against a type.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// StringType validates string values.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

// IntType validates integer values, accepting whole-number floats from JSON
// unmarshaling.
type IntType struct{}

func (t *IntType) Name() string { return "int" }

func (t *IntType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got float (not a whole number)")
	default:
		return fmt.Errorf("expected int, got %T", value)
	}
}

// NumberType validates numeric values with optional inclusive bounds.
// Out-of-range values are rejected, not clamped; clamping is a caller
// concern handled through data transforms.
type NumberType struct {
	Min *float64
	Max *float64
}

func (t *NumberType) Name() string { return "number" }

func (t *NumberType) Validate(value any) error {
	var v float64
	switch n := value.(type) {
	case int:
		v = float64(n)
	case int8:
		v = float64(n)
	case int16:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case float32:
		v = float64(n)
	case float64:
		v = n
	default:
		return fmt.Errorf("expected number, got %T", value)
	}
	if t.Min != nil && v < *t.Min {
		return fmt.Errorf("value %v below minimum %v", v, *t.Min)
	}
	if t.Max != nil && v > *t.Max {
		return fmt.Errorf("value %v above maximum %v", v, *t.Max)
	}
	return nil
}

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

// EnumType validates string membership in a fixed value set.
type EnumType struct {
	Values []string
}

func (t *EnumType) Name() string { return "enum" }

func (t *EnumType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected enum string, got %T", value)
	}
	for _, v := range t.Values {
		if v == s {
			return nil
		}
	}
	return fmt.Errorf("value %q not in enum %v", s, t.Values)
}

// ObjectType validates nested objects. Nested fields are replaced wholesale
// by patches, never deep-merged, so the object is validated as one value.
type ObjectType struct{}

func (t *ObjectType) Name() string { return "object" }

func (t *ObjectType) Validate(value any) error {
	if _, ok := value.(map[string]any); !ok {
		return fmt.Errorf("expected object, got %T", value)
	}
	return nil
}

// SliceType validates slices of a specific element type.
type SliceType struct {
	elemType Type
}

func (t *SliceType) Name() string {
	return fmt.Sprintf("[%s]", t.elemType.Name())
}

func (t *SliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected slice, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elemType.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }

func (t *CustomType) Validate(value any) error {
	return t.validate(value)
}

// --- Factory functions ---

// String creates a string type validator.
func String() Type { return &StringType{} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// Number creates an unbounded number type validator.
func Number() Type { return &NumberType{} }

// NumberRange creates a number type validator with inclusive bounds.
func NumberRange(min, max float64) Type {
	return &NumberType{Min: &min, Max: &max}
}

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Enum creates an enum validator over the given values.
func Enum(values ...string) Type { return &EnumType{Values: values} }

// Object creates a nested-object validator.
func Object() Type { return &ObjectType{} }

// Slice creates a slice type validator for elements of the given type.
func Slice(elemType Type) Type {
	return &SliceType{elemType: elemType}
}

// Custom creates a custom type validator with a user-defined function.
func Custom(name string, validate func(any) error) Type {
	return &CustomType{name: name, validate: validate}
}

// Field couples a type with completion and defaulting metadata.
type Field struct {
	Type Type

	// Required marks the field as driving route completion. A missing
	// required field never rejects the record; it only keeps the route
	// incomplete.
	Required bool

	// Default is applied when a route becomes active and the field is
	// absent. Defaults are validated like any other value.
	Default any
}

// Schema maps field names to their declared fields.
type Schema map[string]Field

// RequiredFields returns the names of required fields in no particular order.
func (s Schema) RequiredFields() []string {
	var out []string
	for name, f := range s {
		if f.Required {
			out = append(out, name)
		}
	}
	return out
}
