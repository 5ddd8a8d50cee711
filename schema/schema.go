// Package schema provides a JSON-schema subset used to describe and validate
// entity kinds and plugin parameter sets.
//
// Schemas are plain Go values built with the constructor helpers (String,
// Object, Array, ...) and validated with Validate. The subset covers the
// needs of entity coercion: typed fields, required properties, string
// length/pattern constraints, numeric bounds, and enums.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// JSON is one schema node. The zero value accepts any value.
type JSON struct {
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	Properties  map[string]JSON `json:"properties,omitempty"`
	Required    []string        `json:"required,omitempty"`
	Items       *JSON           `json:"items,omitempty"`
	Enum        []any           `json:"enum,omitempty"`
	Minimum     *float64        `json:"minimum,omitempty"`
	Maximum     *float64        `json:"maximum,omitempty"`
	MinLength   *int            `json:"minLength,omitempty"`
	MaxLength   *int            `json:"maxLength,omitempty"`
	Pattern     string          `json:"pattern,omitempty"`

	// Secret marks a property as externally supplied credential material
	// (API keys, tokens). Secret properties are never logged and never
	// persisted alongside scan results.
	Secret bool `json:"secret,omitempty"`
}

// Any returns a schema that accepts every value, including nil.
func Any() JSON {
	return JSON{}
}

// String returns a string schema.
func String() JSON {
	return JSON{Type: "string"}
}

// Int returns an integer schema. Integral floats pass, since JSON decoding
// yields float64 for every number.
func Int() JSON {
	return JSON{Type: "integer"}
}

// Number returns a schema accepting any numeric value.
func Number() JSON {
	return JSON{Type: "number"}
}

// Bool returns a boolean schema.
func Bool() JSON {
	return JSON{Type: "boolean"}
}

// Array returns an array schema whose elements validate against items.
func Array(items JSON) JSON {
	return JSON{Type: "array", Items: &items}
}

// Object returns an object schema with the given properties, of which the
// named ones are required.
func Object(properties map[string]JSON, required ...string) JSON {
	return JSON{Type: "object", Properties: properties, Required: required}
}

// Enum returns a schema accepting exactly the listed values.
func Enum(values ...any) JSON {
	return JSON{Enum: values}
}

// Secret returns a string schema for an externally supplied credential.
func Secret(desc string) JSON {
	return JSON{Type: "string", Description: desc, Secret: true}
}

// FieldNames returns the property names of an object schema in undefined
// order. Non-object schemas return nil.
func (s JSON) FieldNames() []string {
	if len(s.Properties) == 0 {
		return nil
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	return names
}

// HasField reports whether an object schema declares the given property.
func (s JSON) HasField(name string) bool {
	_, ok := s.Properties[name]
	return ok
}

// Validate checks value against the schema. Properties not declared by an
// object schema are ignored rather than rejected, so enrichment payloads
// may carry extra fields.
func (s JSON) Validate(value any) error {
	if value == nil {
		if s.Type != "" {
			return fmt.Errorf("expected type %s, got nil", s.Type)
		}
		return nil
	}

	if len(s.Enum) > 0 {
		for _, allowed := range s.Enum {
			if value == allowed {
				return nil
			}
		}
		return fmt.Errorf("value %v is not one of the allowed values: %v", value, s.Enum)
	}

	switch s.Type {
	case "":
		return nil
	case "string":
		return s.checkString(value)
	case "integer":
		return s.checkNumeric(value, true)
	case "number":
		return s.checkNumeric(value, false)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
		return nil
	case "array":
		return s.checkArray(value)
	case "object":
		return s.checkObject(value)
	default:
		return fmt.Errorf("unknown schema type %q", s.Type)
	}
}

func (s JSON) checkString(value any) error {
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}

	if s.MinLength != nil && len(str) < *s.MinLength {
		return fmt.Errorf("string length %d is less than minimum %d", len(str), *s.MinLength)
	}
	if s.MaxLength != nil && len(str) > *s.MaxLength {
		return fmt.Errorf("string length %d is greater than maximum %d", len(str), *s.MaxLength)
	}

	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
		if !re.MatchString(str) {
			return fmt.Errorf("string does not match pattern %s", s.Pattern)
		}
	}

	return nil
}

// asFloat widens any Go numeric value to float64. The second return is
// false for non-numeric values.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func (s JSON) checkNumeric(value any, wantIntegral bool) error {
	kind := "number"
	if wantIntegral {
		kind = "integer"
	}

	num, ok := asFloat(value)
	if !ok {
		return fmt.Errorf("expected %s, got %T", kind, value)
	}

	if wantIntegral && num != float64(int64(num)) {
		return fmt.Errorf("expected integer, got float with decimal: %v", value)
	}

	if s.Minimum != nil && num < *s.Minimum {
		return fmt.Errorf("value %v is less than minimum %v", num, *s.Minimum)
	}
	if s.Maximum != nil && num > *s.Maximum {
		return fmt.Errorf("value %v is greater than maximum %v", num, *s.Maximum)
	}

	return nil
}

func (s JSON) checkArray(value any) error {
	items, ok := value.([]any)
	if !ok {
		// Typed slices arrive via JSON round-trip, same as objects below.
		data, err := json.Marshal(value)
		if err != nil || json.Unmarshal(data, &items) != nil {
			return fmt.Errorf("expected array, got %T", value)
		}
	}

	if s.Items == nil {
		return nil
	}

	for i, item := range items {
		if err := s.Items.Validate(item); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}

	return nil
}

func (s JSON) checkObject(value any) error {
	obj, ok := value.(map[string]any)
	if !ok {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("expected object, got %T", value)
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("expected object, got %T", value)
		}
	}

	for _, name := range s.Required {
		if _, present := obj[name]; !present {
			return fmt.Errorf("required field %s is missing", name)
		}
	}

	for name, field := range obj {
		prop, declared := s.Properties[name]
		if !declared {
			continue
		}
		if err := prop.Validate(field); err != nil {
			return fmt.Errorf("property %s: %w", name, err)
		}
	}

	return nil
}
