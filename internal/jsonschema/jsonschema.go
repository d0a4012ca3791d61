// Package jsonschema implements the minimal conforming subset of
// JSON-Schema validation spec.md §9 calls out as sufficient: types,
// required, enum, pattern, items, properties, additionalProperties.
//
// No third-party JSON-Schema library appears anywhere in the example
// pack, so this is a deliberate, narrowly-scoped standard-library
// implementation (see DESIGN.md).
package jsonschema

import (
	"fmt"
	"regexp"

	"github.com/loomwork/loom/internal/registry"
)

// ValidationError describes a single schema violation.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks value against schema, returning all violations found
// (not just the first) so callers can report a complete error set.
func Validate(schema *registry.Schema, value any) []ValidationError {
	if schema == nil {
		return nil
	}
	return validateAt("$", schema, value)
}

func validateAt(path string, schema *registry.Schema, value any) []ValidationError {
	var errs []ValidationError

	if schema.Type != "" {
		if !typeMatches(schema.Type, value) {
			errs = append(errs, ValidationError{Path: path, Message: fmt.Sprintf("expected type %s", schema.Type)})
			return errs // further checks are meaningless against the wrong shape
		}
	}

	if len(schema.Enum) > 0 && !enumContains(schema.Enum, value) {
		errs = append(errs, ValidationError{Path: path, Message: "value not in enum"})
	}

	if schema.Pattern != "" {
		s, ok := value.(string)
		if ok {
			re, err := regexp.Compile(schema.Pattern)
			if err != nil {
				errs = append(errs, ValidationError{Path: path, Message: "invalid pattern in schema: " + err.Error()})
			} else if !re.MatchString(s) {
				errs = append(errs, ValidationError{Path: path, Message: "value does not match pattern"})
			}
		}
	}

	switch schema.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			break
		}
		for _, req := range schema.Required {
			if _, present := obj[req]; !present {
				errs = append(errs, ValidationError{Path: path + "." + req, Message: "required property missing"})
			}
		}
		for key, val := range obj {
			propSchema, known := schema.Properties[key]
			if !known {
				if schema.AdditionalProperties != nil && !*schema.AdditionalProperties {
					errs = append(errs, ValidationError{Path: path + "." + key, Message: "additional property not allowed"})
				}
				continue
			}
			errs = append(errs, validateAt(path+"."+key, propSchema, val)...)
		}
	case "array":
		arr, ok := value.([]any)
		if !ok {
			break
		}
		if schema.Items != nil {
			for i, item := range arr {
				errs = append(errs, validateAt(fmt.Sprintf("%s[%d]", path, i), schema.Items, item)...)
			}
		}
	}

	return errs
}

func typeMatches(schemaType string, value any) bool {
	switch schemaType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if fmt.Sprint(e) == fmt.Sprint(value) {
			return true
		}
	}
	return false
}
