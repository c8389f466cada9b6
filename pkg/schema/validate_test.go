package schema

import (
	"encoding/json"
	"fmt"
	"testing"
)

func storySchema() Schema {
	return Schema{
		"genre":     {Type: Enum("fantasy", "noir", "scifi"), Required: true},
		"wordCount": {Type: IntRange(100, 20000)},
		"tone":      {Type: String()},
		"tags":      {Type: Slice(String())},
	}
}

func TestValidate_Success(t *testing.T) {
	data := map[string]any{
		"genre":     "noir",
		"wordCount": float64(1500), // as decoded from JSON
		"tags":      []any{"rain", "detective"},
	}
	if err := Validate(storySchema(), data); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	err := Validate(storySchema(), map[string]any{"tone": "grim"})
	if err == nil {
		t.Fatal("Validate() should return error for missing field")
	}

	errs := ValidationErrors(err)
	if len(errs) != 1 {
		t.Fatalf("Validate() = %d errors, want 1", len(errs))
	}
	vErr, ok := errs[0].(*ValidationError)
	if !ok {
		t.Fatalf("error should be *ValidationError, got %T", errs[0])
	}
	if vErr.Key != "genre" || vErr.Reason != "required" {
		t.Errorf("unexpected error %v", vErr)
	}
}

func TestValidate_DeterministicOrder(t *testing.T) {
	data := map[string]any{
		"genre":     "romance",
		"wordCount": 5,
		"unknown":   true,
		"tags":      "not a slice",
	}
	first := Validate(storySchema(), data).Error()
	for i := 0; i < 10; i++ {
		if got := Validate(storySchema(), data).Error(); got != first {
			t.Fatalf("non-deterministic error text:\n%s\nvs\n%s", first, got)
		}
	}

	errs := ValidationErrors(Validate(storySchema(), data))
	keys := make([]string, 0, len(errs))
	for _, e := range errs {
		keys = append(keys, e.(*ValidationError).Key)
	}
	want := []string{"genre", "tags", "wordCount", "unknown"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
}

func TestValidatePatch(t *testing.T) {
	s := storySchema()

	if err := ValidatePatch(s, map[string]any{"wordCount": 300}); err != nil {
		t.Errorf("partial patch rejected: %v", err)
	}
	if err := ValidatePatch(s, map[string]any{"tone": nil}); err != nil {
		t.Errorf("deleting an optional field rejected: %v", err)
	}
	if err := ValidatePatch(s, map[string]any{"genre": nil}); err == nil {
		t.Error("deleting a required field should fail")
	}
	if err := ValidatePatch(s, map[string]any{"color": "red"}); err == nil {
		t.Error("unknown key should fail")
	}
}

func TestTypes(t *testing.T) {
	tests := []struct {
		typ     Type
		value   any
		wantErr bool
	}{
		{String(), "hello", false},
		{String(), 42, true},
		{Int(), 42, false},
		{Int(), int64(42), false},
		{Int(), float64(42), false},
		{Int(), 42.5, true},
		{Int(), "42", true},
		{Float(), 3, false},
		{Float(), 3.14, false},
		{Float(), "3.14", true},
		{Bool(), true, false},
		{Bool(), "true", true},
		{Slice(Int()), []int{1, 2}, false},
		{Slice(Int()), []any{1, "x"}, true},
		{Slice(Int()), nil, true},
		{Enum("a", "b"), "a", false},
		{Enum("a", "b"), "c", true},
		{IntRange(1, 4), 4, false},
		{IntRange(1, 4), 5, true},
		{FloatRange(0, 1), 0.5, false},
		{FloatRange(0, 1), 1.5, true},
	}
	for _, tt := range tests {
		err := tt.typ.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s.Validate(%v) error = %v, wantErr %v", tt.typ.Name(), tt.value, err, tt.wantErr)
		}
	}
}

func TestCustomType(t *testing.T) {
	hex := Custom("hexColor", func(v any) error {
		s, ok := v.(string)
		if !ok || len(s) != 7 || s[0] != '#' {
			return fmt.Errorf("expected #rrggbb")
		}
		return nil
	})
	if hex.Name() != "hexColor" {
		t.Errorf("Name() = %q", hex.Name())
	}
	if err := hex.Validate("#aabbcc"); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	if err := hex.Validate("red"); err == nil {
		t.Error("expected error")
	}
}

func TestSchemaMarshalJSON(t *testing.T) {
	raw, err := json.Marshal(Schema{
		"genre": {Type: Enum("noir", "scifi"), Required: true},
		"tone":  {Type: String()},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"genre":{"type":"enum(noir|scifi)","required":true,"values":["noir","scifi"]},"tone":{"type":"string"}}`
	if string(raw) != want {
		t.Errorf("got %s\nwant %s", raw, want)
	}
}
