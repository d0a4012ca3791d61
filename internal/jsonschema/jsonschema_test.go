package jsonschema_test

import (
	"testing"

	"github.com/loomwork/loom/internal/jsonschema"
	"github.com/loomwork/loom/internal/registry"
	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestValidate_RequiredMissing(t *testing.T) {
	schema := &registry.Schema{
		Type:     "object",
		Required: []string{"name"},
		Properties: map[string]*registry.Schema{
			"name": {Type: "string"},
		},
	}
	errs := jsonschema.Validate(schema, map[string]any{})
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "required")
}

func TestValidate_TypeMismatch(t *testing.T) {
	schema := &registry.Schema{Type: "string"}
	errs := jsonschema.Validate(schema, 42)
	assert.Len(t, errs, 1)
}

func TestValidate_AdditionalPropertiesRejected(t *testing.T) {
	schema := &registry.Schema{
		Type:                 "object",
		Properties:           map[string]*registry.Schema{"a": {Type: "string"}},
		AdditionalProperties: boolPtr(false),
	}
	errs := jsonschema.Validate(schema, map[string]any{"a": "x", "b": "y"})
	assert.Len(t, errs, 1)
}

func TestValidate_EnumAndPattern(t *testing.T) {
	schema := &registry.Schema{Type: "string", Enum: []any{"a", "b"}}
	assert.Len(t, jsonschema.Validate(schema, "c"), 1)
	assert.Len(t, jsonschema.Validate(schema, "a"), 0)

	patSchema := &registry.Schema{Type: "string", Pattern: "^[a-z]+$"}
	assert.Len(t, jsonschema.Validate(patSchema, "ABC"), 1)
	assert.Len(t, jsonschema.Validate(patSchema, "abc"), 0)
}

func TestValidate_ArrayItems(t *testing.T) {
	schema := &registry.Schema{Type: "array", Items: &registry.Schema{Type: "integer"}}
	errs := jsonschema.Validate(schema, []any{1, 2, "bad"})
	assert.Len(t, errs, 1)
}

func TestValidate_NilSchemaAlwaysValid(t *testing.T) {
	assert.Empty(t, jsonschema.Validate(nil, "anything"))
}
