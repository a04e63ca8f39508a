package validation

import (
	"github.com/rendis/applogic/internal/interp"
	"github.com/rendis/applogic/pkg/schema"
)

// ValidateAndCompile runs the full load-time pipeline on a raw definition:
// JSON Schema shape check, decode, cross-field semantic checks, then
// compilation (expression parsing, state reference resolution, static
// nesting depth). The returned App is ready for execution.
func (v *Validator) ValidateAndCompile(raw []byte) (*interp.App, *schema.AppError) {
	def, err := v.ValidateRaw(raw)
	if err != nil {
		return nil, err
	}
	if err := checkSemantics(def); err != nil {
		return nil, err
	}
	return interp.CompileApp(def)
}

// checkSemantics enforces the cross-field rules JSON Schema cannot
// express.
func checkSemantics(def *schema.AppDefinition) *schema.AppError {
	if def.AccessType == schema.AccessPerRole && len(def.AllowedRoles) == 0 {
		return schema.NewError(schema.ErrCodeDefinition,
			"per_role apps must declare at least one allowed role")
	}

	configTypes := map[string]schema.ValueType{}
	for _, cf := range def.ConfigSchema {
		if _, dup := configTypes[cf.Name]; dup {
			return schema.NewErrorf(schema.ErrCodeDefinition,
				"duplicate config field %q", cf.Name)
		}
		configTypes[cf.Name] = cf.Type
	}

	for _, cf := range def.ConfigSchema {
		_, present := def.InitialConfig[cf.Name]
		if cf.Required && !present {
			return schema.NewErrorf(schema.ErrCodeDefinition,
				"required config field %q has no initial value", cf.Name)
		}
	}
	for key := range def.InitialConfig {
		if len(configTypes) > 0 {
			if _, declared := configTypes[key]; !declared {
				return schema.NewErrorf(schema.ErrCodeDefinition,
					"initial_config key %q is not declared in config_schema", key)
			}
		}
	}

	return nil
}
