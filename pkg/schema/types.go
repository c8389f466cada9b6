package schema

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
)

// Type defines the contract for field validation.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "int").
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

// IntType validates integer values.
type IntType struct{}

func (t *IntType) Name() string { return "int" }

func (t *IntType) Validate(value any) error {
	_, err := asInt(value)
	return err
}

// FloatType validates floating-point values.
type FloatType struct{}

func (t *FloatType) Name() string { return "float" }

func (t *FloatType) Validate(value any) error {
	_, err := asFloat(value)
	return err
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

// SliceType validates slices of a specific element type.
type SliceType struct {
	elemType Type
}

func (t *SliceType) Name() string {
	return fmt.Sprintf("[%s]", t.elemType.Name())
}

func (t *SliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("expected slice, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elemType.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// EnumType accepts one string out of a fixed set.
type EnumType struct {
	values []string
}

func (t *EnumType) Name() string {
	return "enum(" + strings.Join(t.values, "|") + ")"
}

func (t *EnumType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	if !slices.Contains(t.values, s) {
		return fmt.Errorf("must be one of %s", strings.Join(t.values, ", "))
	}
	return nil
}

// Values lists the accepted strings.
func (t *EnumType) Values() []string { return slices.Clone(t.values) }

// IntRangeType accepts integers within [Min, Max].
type IntRangeType struct {
	Min, Max int64
}

func (t *IntRangeType) Name() string { return fmt.Sprintf("int[%d..%d]", t.Min, t.Max) }

func (t *IntRangeType) Validate(value any) error {
	v, err := asInt(value)
	if err != nil {
		return err
	}
	if v < t.Min || v > t.Max {
		return fmt.Errorf("must be between %d and %d", t.Min, t.Max)
	}
	return nil
}

// FloatRangeType accepts numbers within [Min, Max].
type FloatRangeType struct {
	Min, Max float64
}

func (t *FloatRangeType) Name() string { return fmt.Sprintf("float[%g..%g]", t.Min, t.Max) }

func (t *FloatRangeType) Validate(value any) error {
	v, err := asFloat(value)
	if err != nil {
		return err
	}
	if v < t.Min || v > t.Max {
		return fmt.Errorf("must be between %g and %g", t.Min, t.Max)
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

// String creates a string type validator.
func String() Type { return &StringType{} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// Float creates a float type validator.
func Float() Type { return &FloatType{} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Slice creates a slice type validator for elements of the given type.
func Slice(elemType Type) Type {
	return &SliceType{elemType: elemType}
}

// Enum creates a validator accepting one of the given strings.
func Enum(values ...string) Type {
	return &EnumType{values: values}
}

// IntRange creates an inclusive integer range validator.
func IntRange(min, max int64) Type {
	return &IntRangeType{Min: min, Max: max}
}

// FloatRange creates an inclusive float range validator.
func FloatRange(min, max float64) Type {
	return &FloatRangeType{Min: min, Max: max}
}

// Custom creates a custom type validator with a user-defined function.
func Custom(name string, validate func(any) error) Type {
	return &CustomType{name: name, validate: validate}
}

func asInt(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		// JSON numbers decode as float64.
		if v == math.Trunc(v) {
			return int64(v), nil
		}
		return 0, fmt.Errorf("expected int, got float (not a whole number)")
	default:
		return 0, fmt.Errorf("expected int, got %T", value)
	}
}

func asFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected float, got %T", value)
	}
}
