package llm

import (
	"fmt"
	"sort"
)

// FieldType is a JSON value type a structured response field must have.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

// Schema describes the flat JSON object a structured completion must return.
type Schema struct {
	Name       string
	Properties map[string]FieldType
	Required   []string
}

// JSONSchema renders s as a JSON Schema document for response_format.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, t := range s.Properties {
		props[name] = map[string]any{"type": string(t)}
	}
	required := append([]string(nil), s.Required...)
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// Validate checks that obj carries every required field with its declared type.
// Optional fields are type-checked when present.
func (s Schema) Validate(obj map[string]any) error {
	for _, name := range s.Required {
		v, ok := obj[name]
		if !ok || v == nil {
			return fmt.Errorf("missing required field %q", name)
		}
	}
	for name, want := range s.Properties {
		v, ok := obj[name]
		if !ok || v == nil {
			continue
		}
		if !matchesType(v, want) {
			return fmt.Errorf("field %q: want %s, got %T", name, want, v)
		}
	}
	return nil
}

// matchesType checks v as produced by encoding/json into an any.
func matchesType(v any, want FieldType) bool {
	switch want {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldNumber:
		_, ok := v.(float64)
		return ok
	case FieldInteger:
		f, ok := v.(float64)
		return ok && f == float64(int64(f))
	case FieldBoolean:
		_, ok := v.(bool)
		return ok
	case FieldArray:
		_, ok := v.([]any)
		return ok
	case FieldObject:
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}
