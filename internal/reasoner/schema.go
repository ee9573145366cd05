package reasoner

import (
	"encoding/json"
	"fmt"
	"math"
)

type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Field describes one property of a schema. Items is the element shape of
// an array; Fields are the properties of an object.
type Field struct {
	Name        string
	Description string
	Type        FieldType
	Required    bool
	Enum        []string
	Items       *Field
	Fields      []Field
}

// Schema is the data-shape contract a reasoner answer must satisfy.
type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

// JSONSchema renders the schema as a JSON-Schema object.
func (s Schema) JSONSchema() map[string]any {
	return objectSchema(s.Description, s.Fields)
}

func objectSchema(description string, fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[f.Name] = f.jsonSchema()
		if f.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
	if description != "" {
		out["description"] = description
	}
	return out
}

func (f Field) jsonSchema() map[string]any {
	if f.Type == TypeObject {
		return objectSchema(f.Description, f.Fields)
	}
	out := map[string]any{"type": string(f.Type)}
	if f.Description != "" {
		out["description"] = f.Description
	}
	if len(f.Enum) > 0 {
		out["enum"] = f.Enum
	}
	if f.Type == TypeArray {
		items := Field{Type: TypeString}
		if f.Items != nil {
			items = *f.Items
		}
		out["items"] = items.jsonSchema()
	}
	return out
}

// Validate checks required fields and value types. Enum constraints are
// advertised to the model but left to the caller to coerce.
func (s Schema) Validate(obj map[string]any) error {
	if obj == nil {
		return fmt.Errorf("%w: %s: empty object", ErrInvalidOutput, s.Name)
	}
	return validateFields(s.Name, s.Fields, obj)
}

func validateFields(path string, fields []Field, obj map[string]any) error {
	for _, f := range fields {
		v, ok := obj[f.Name]
		if !ok || v == nil {
			if f.Required {
				return fmt.Errorf("%w: %s.%s is required", ErrInvalidOutput, path, f.Name)
			}
			continue
		}
		if err := f.validate(path+"."+f.Name, v); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) validate(path string, v any) error {
	mismatch := func() error {
		return fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidOutput, path, f.Type, v)
	}

	switch f.Type {
	case TypeString:
		if _, ok := v.(string); !ok {
			return mismatch()
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return mismatch()
		}
	case TypeNumber:
		if _, ok := toFloat(v); !ok {
			return mismatch()
		}
	case TypeInteger:
		n, ok := toFloat(v)
		if !ok || n != math.Trunc(n) {
			return mismatch()
		}
	case TypeArray:
		items, ok := v.([]any)
		if !ok {
			return mismatch()
		}
		if f.Items == nil {
			return nil
		}
		for i, item := range items {
			if item == nil {
				return fmt.Errorf("%w: %s[%d] is null", ErrInvalidOutput, path, i)
			}
			if err := f.Items.validate(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	case TypeObject:
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch()
		}
		return validateFields(path, f.Fields, m)
	default:
		return fmt.Errorf("%w: %s has unknown type %q", ErrInvalidOutput, path, f.Type)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
