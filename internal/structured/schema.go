package structured

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// SchemaFor derives a JSON schema from T. Field names follow json tags;
// fields without omitempty are required and pointer fields are optional and
// nullable. A `jsonschema` tag adds constraints:
//
//	Severity string `json:"severity" jsonschema:"enum=low|medium|high"`
//	Score    int    `json:"score" jsonschema:"minimum=0,maximum=100"`
func SchemaFor[T any]() (json.RawMessage, error) {
	return schemaForType(reflect.TypeFor[T]())
}

var derived sync.Map // reflect.Type -> json.RawMessage

func schemaForType(t reflect.Type) (json.RawMessage, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := derived.Load(t); ok {
		return cached.(json.RawMessage), nil
	}
	node, err := typeSchema(t, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	raw, err := json.MarshalIndent(node, "", "  ")
	if err != nil {
		return nil, err
	}
	derived.Store(t, json.RawMessage(raw))
	return raw, nil
}

func typeSchema(t reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	switch t.Kind() {
	case reflect.Pointer:
		node, err := typeSchema(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		if typ, ok := node["type"].(string); ok {
			node["type"] = []any{typ, "null"}
		}
		return node, nil
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.Slice, reflect.Array:
		items, err := typeSchema(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("structured: map key %s is not a string", t.Key())
		}
		values, err := typeSchema(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "object", "additionalProperties": values}, nil
	case reflect.Interface:
		return map[string]any{}, nil
	case reflect.Struct:
		return structSchema(t, seen)
	}
	return nil, fmt.Errorf("structured: unsupported kind %s", t.Kind())
}

func structSchema(t reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	if seen[t] {
		return nil, fmt.Errorf("structured: recursive type %s", t)
	}
	seen[t] = true
	defer delete(seen, t)

	props := map[string]any{}
	required := []string{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omitempty, skip := jsonName(f)
		if skip {
			continue
		}
		node, err := typeSchema(f.Type, seen)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
		if err := applyHints(node, f.Tag.Get("jsonschema")); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
		props[name] = node
		if !omitempty && f.Type.Kind() != reflect.Pointer {
			required = append(required, name)
		}
	}
	out := map[string]any{"type": "object", "properties": props}
	if t.Name() != "" {
		out["title"] = t.Name()
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out, nil
}

func jsonName(f reflect.StructField) (name string, omitempty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, p := range parts[1:] {
		if p == "omitempty" || p == "omitzero" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

func applyHints(node map[string]any, tag string) error {
	if tag == "" {
		return nil
	}
	for _, hint := range strings.Split(tag, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(hint), "=")
		switch key {
		case "enum":
			values := strings.Split(value, "|")
			enum := make([]any, len(values))
			for i, v := range values {
				enum[i] = v
			}
			node["enum"] = enum
		case "minimum", "maximum":
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("bad %s hint %q", key, value)
			}
			node[key] = n
		case "minItems", "maxItems", "minLength", "maxLength":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("bad %s hint %q", key, value)
			}
			node[key] = n
		case "description":
			node["description"] = value
		case "":
		default:
			return fmt.Errorf("unknown jsonschema hint %q", key)
		}
	}
	return nil
}
