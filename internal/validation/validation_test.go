package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/applogic/pkg/schema"
)

const counterDef = `{
  "app_id": "counter",
  "name": "Counter",
  "category": "demo",
  "state_schema": [
    {"name": "count", "type": "number"},
    {"name": "log", "type": "list"}
  ],
  "actions": {
    "bump": {
      "params": [{"name": "by", "type": "number", "default": 1}],
      "logic": [
        {"type": "validate", "condition": "by > 0", "error_message": "\"by must be positive\""},
        {"type": "update", "target_path": "count", "operation": "increment", "value": "by"},
        {"type": "return", "value": "count"}
      ]
    }
  }
}`

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func TestValidateRaw(t *testing.T) {
	v := newValidator(t)

	t.Run("well-formed definition decodes", func(t *testing.T) {
		def, err := v.ValidateRaw([]byte(counterDef))
		require.Nil(t, err)
		assert.Equal(t, "counter", def.AppID)
		assert.Len(t, def.StateSchema, 2)
		require.Contains(t, def.Actions, "bump")
		assert.Len(t, def.Actions["bump"].Logic, 3)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := v.ValidateRaw([]byte(`{"app_id": `))
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeDefinition, err.Code)
	})

	t.Run("missing required top-level fields", func(t *testing.T) {
		_, err := v.ValidateRaw([]byte(`{"name": "No ID", "actions": {"a": {"logic": [{"type": "return"}]}}}`))
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeDefinition, err.Code)
	})

	t.Run("unknown block type is rejected by the schema", func(t *testing.T) {
		_, err := v.ValidateRaw([]byte(`{
		  "app_id": "x", "name": "X",
		  "actions": {"a": {"logic": [{"type": "teleport"}]}}
		}`))
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeDefinition, err.Code)
	})

	t.Run("unknown properties are rejected", func(t *testing.T) {
		_, err := v.ValidateRaw([]byte(`{
		  "app_id": "x", "name": "X", "bogus": 1,
		  "actions": {"a": {"logic": [{"type": "return"}]}}
		}`))
		require.NotNil(t, err)
	})

	t.Run("empty actions are rejected", func(t *testing.T) {
		_, err := v.ValidateRaw([]byte(`{"app_id": "x", "name": "X", "actions": {}}`))
		require.NotNil(t, err)
	})

	t.Run("violations carry instance locations", func(t *testing.T) {
		_, err := v.ValidateRaw([]byte(`{
		  "app_id": "x", "name": "X",
		  "state_schema": [{"name": "9bad", "type": "number"}],
		  "actions": {"a": {"logic": [{"type": "return"}]}}
		}`))
		require.NotNil(t, err)
		assert.NotEmpty(t, err.Details["violations"])
	})
}

func TestValidateAndCompile(t *testing.T) {
	v := newValidator(t)

	t.Run("full pipeline produces a runnable app", func(t *testing.T) {
		app, err := v.ValidateAndCompile([]byte(counterDef))
		require.Nil(t, err)
		assert.Contains(t, app.Actions, "bump")
		assert.Contains(t, app.SharedDefaults, "count")
	})

	t.Run("schema-valid but semantically broken expression", func(t *testing.T) {
		_, err := v.ValidateAndCompile([]byte(`{
		  "app_id": "x", "name": "X",
		  "actions": {"a": {"logic": [
		    {"type": "validate", "condition": "1 +", "error_message": "\"m\""}
		  ]}}
		}`))
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeParse, err.Code)
	})

	t.Run("update target must be a declared state field", func(t *testing.T) {
		_, err := v.ValidateAndCompile([]byte(`{
		  "app_id": "x", "name": "X",
		  "actions": {"a": {"logic": [
		    {"type": "update", "target_path": "ghost", "operation": "set", "value": "1"}
		  ]}}
		}`))
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeDefinition, err.Code)
	})

	t.Run("per_role requires allowed_roles", func(t *testing.T) {
		_, err := v.ValidateAndCompile([]byte(`{
		  "app_id": "x", "name": "X", "access_type": "per_role",
		  "actions": {"a": {"logic": [{"type": "return"}]}}
		}`))
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeDefinition, err.Code)
	})

	t.Run("required config field needs an initial value", func(t *testing.T) {
		_, err := v.ValidateAndCompile([]byte(`{
		  "app_id": "x", "name": "X",
		  "config_schema": [{"name": "limit", "type": "number", "required": true}],
		  "actions": {"a": {"logic": [{"type": "return"}]}}
		}`))
		require.NotNil(t, err)
	})

	t.Run("undeclared initial_config key is rejected", func(t *testing.T) {
		_, err := v.ValidateAndCompile([]byte(`{
		  "app_id": "x", "name": "X",
		  "config_schema": [{"name": "limit", "type": "number"}],
		  "initial_config": {"other": 1},
		  "actions": {"a": {"logic": [{"type": "return"}]}}
		}`))
		require.NotNil(t, err)
	})
}
