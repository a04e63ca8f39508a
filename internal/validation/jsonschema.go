// Package validation checks app definitions at load time: a JSON Schema
// pass over the raw document, then a semantic pass (compilation) that
// parses every expression and resolves every state reference. Apps that
// fail either pass never execute.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/applogic/pkg/schema"
)

// appSchemaJSON is the JSON Schema for AppDefinition validation.
// Embedded as a constant to avoid filesystem dependencies.
const appSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://applogic.dev/schemas/app.json",
  "type": "object",
  "required": ["app_id", "name", "actions"],
  "properties": {
    "app_id": { "type": "string", "minLength": 1 },
    "name": { "type": "string", "minLength": 1 },
    "category": { "type": "string" },
    "state_schema": {
      "type": "array",
      "items": { "$ref": "#/$defs/state_field" }
    },
    "actions": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": { "$ref": "#/$defs/action" }
    },
    "config_schema": {
      "type": "array",
      "items": { "$ref": "#/$defs/config_field" }
    },
    "initial_config": { "type": "object" },
    "access_type": { "type": "string", "enum": ["shared", "per_role"] },
    "allowed_roles": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "value_type": {
      "type": "string",
      "enum": ["null", "bool", "number", "string", "list", "map"]
    },
    "state_field": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "name": { "type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$" },
        "type": { "$ref": "#/$defs/value_type" },
        "default": {},
        "per_agent": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "config_field": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "name": { "type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$" },
        "type": { "$ref": "#/$defs/value_type" },
        "required": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "action": {
      "type": "object",
      "required": ["logic"],
      "properties": {
        "name": { "type": "string" },
        "description": { "type": "string" },
        "params": {
          "type": "array",
          "items": { "$ref": "#/$defs/param" }
        },
        "logic": {
          "type": "array",
          "minItems": 1,
          "items": { "$ref": "#/$defs/block" }
        },
        "returns": { "type": "string" }
      },
      "additionalProperties": false
    },
    "param": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "name": { "type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$" },
        "type": { "$ref": "#/$defs/value_type" },
        "required": { "type": "boolean" },
        "default": {},
        "min": { "type": "number" },
        "max": { "type": "number" },
        "choices": { "type": "array" }
      },
      "additionalProperties": false
    },
    "block": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["validate", "update", "notify", "return", "error", "branch", "loop"]
        },
        "condition": { "type": "string" },
        "error_message": { "type": "string" },
        "error_code": { "type": "string" },
        "target_path": { "type": "string" },
        "operation": {
          "type": "string",
          "enum": ["set", "increment", "decrement", "append", "remove", "merge"]
        },
        "value": { "type": "string" },
        "message": { "type": "string" },
        "target": { "type": "string" },
        "code": { "type": "string" },
        "then": { "type": "array", "items": { "$ref": "#/$defs/block" } },
        "else": { "type": "array", "items": { "$ref": "#/$defs/block" } },
        "iterable": { "type": "string" },
        "binding": { "type": "string" },
        "body": { "type": "array", "items": { "$ref": "#/$defs/block" } }
      },
      "additionalProperties": false
    }
  }
}`

// Validator validates raw app definition documents. Safe for concurrent
// use: the schema is compiled once at construction.
type Validator struct {
	appSchema *jsonschema.Schema
}

// NewValidator creates a Validator with the app schema pre-compiled.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(appSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal app schema: %w", err)
	}
	if err := c.AddResource("https://applogic.dev/schemas/app.json", doc); err != nil {
		return nil, fmt.Errorf("add app schema resource: %w", err)
	}
	compiled, err := c.Compile("https://applogic.dev/schemas/app.json")
	if err != nil {
		return nil, fmt.Errorf("compile app schema: %w", err)
	}
	return &Validator{appSchema: compiled}, nil
}

// ValidateRaw applies the JSON Schema to a raw definition document and
// decodes it. Shape violations are DEFINITION_ERRORs carrying the
// offending instance locations.
func (v *Validator) ValidateRaw(raw []byte) (*schema.AppDefinition, *schema.AppError) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDefinition, "definition is not valid JSON").WithCause(err)
	}

	if err := v.appSchema.Validate(doc); err != nil {
		return nil, toAppError(err)
	}

	var def schema.AppDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, schema.NewError(schema.ErrCodeDefinition, "cannot decode definition").WithCause(err)
	}
	return &def, nil
}

// toAppError converts a jsonschema.ValidationError into an AppError with
// instance locations for each violation.
func toAppError(err error) *schema.AppError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeDefinition, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeDefinition, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeDefinition, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeDefinition,
		"definition failed validation with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
