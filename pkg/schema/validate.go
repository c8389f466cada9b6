package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Field describes one parameter of a schema.
type Field struct {
	Type     Type
	Required bool
}

// Schema is a map of field names to their expected types.
// Example: {"genre": {Type: Enum("noir", "fantasy"), Required: true}}
type Schema map[string]Field

// Keys returns the field names in sorted order.
func (s Schema) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

// Validate checks a full parameter set: required fields must be present,
// unknown keys are rejected. Errors are reported in key order.
func Validate(s Schema, data map[string]any) error {
	var errs []error
	for _, key := range s.Keys() {
		field := s[key]
		value, exists := data[key]
		if !exists || value == nil {
			if field.Required {
				errs = append(errs, &ValidationError{Key: key, Reason: "required"})
			}
			continue
		}
		if err := field.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: value})
		}
	}
	errs = append(errs, unknownKeys(s, data)...)
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// ValidatePatch checks only the fields present in a partial update.
// A nil value deletes an optional field and is rejected for required ones.
func ValidatePatch(s Schema, patch map[string]any) error {
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(patch)) {
		field, known := s[key]
		if !known {
			continue
		}
		value := patch[key]
		if value == nil {
			if field.Required {
				errs = append(errs, &ValidationError{Key: key, Reason: "required"})
			}
			continue
		}
		if err := field.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: value})
		}
	}
	errs = append(errs, unknownKeys(s, patch)...)
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

func unknownKeys(s Schema, data map[string]any) []error {
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(data)) {
		if _, ok := s[key]; !ok {
			errs = append(errs, &ValidationError{Key: key, Reason: "not defined in schema"})
		}
	}
	return errs
}

type fieldJSON struct {
	Type     string   `json:"type"`
	Required bool     `json:"required,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// MarshalJSON exposes the schema to clients building parameter forms.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	raw := make(map[string]fieldJSON, len(s))
	for key, f := range s {
		if f.Type == nil {
			return nil, fmt.Errorf("field %s: type is nil", key)
		}
		fj := fieldJSON{Type: f.Type.Name(), Required: f.Required}
		if e, ok := f.Type.(*EnumType); ok {
			fj.Values = e.Values()
		}
		raw[key] = fj
	}
	return json.Marshal(raw)
}
