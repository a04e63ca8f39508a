package schema

// AppDefinition is the JSON-serializable app format. It is the complete
// "program" for one app: its state shape, its configuration, and the named
// actions agents may invoke against it. Definitions are loaded once,
// validated, and treated as immutable for the lifetime of the process.
type AppDefinition struct {
	AppID         string                      `json:"app_id"`
	Name          string                      `json:"name"`
	Category      string                      `json:"category,omitempty"`
	StateSchema   []StateFieldSpec            `json:"state_schema,omitempty"`
	Actions       map[string]ActionDefinition `json:"actions"`
	ConfigSchema  []ConfigFieldSpec           `json:"config_schema,omitempty"`
	InitialConfig map[string]any              `json:"initial_config,omitempty"`
	AccessType    AccessType                  `json:"access_type,omitempty"`
	AllowedRoles  []string                    `json:"allowed_roles,omitempty"`
}

// AccessType controls which agents may invoke an app's actions.
type AccessType string

const (
	// AccessShared apps accept invocations from any agent.
	AccessShared AccessType = "shared"
	// AccessPerRole apps accept invocations only from agents whose role
	// appears in AllowedRoles.
	AccessPerRole AccessType = "per_role"
)

// StateFieldSpec declares one field of an app's state.
type StateFieldSpec struct {
	Name     string    `json:"name"`
	Type     ValueType `json:"type"`
	Default  any       `json:"default,omitempty"`
	PerAgent bool      `json:"per_agent,omitempty"`
}

// ConfigFieldSpec declares one key of an app's configuration.
type ConfigFieldSpec struct {
	Name     string    `json:"name"`
	Type     ValueType `json:"type"`
	Required bool      `json:"required,omitempty"`
}

// ValueType names a runtime value kind in declarations.
type ValueType string

const (
	TypeNull   ValueType = "null"
	TypeBool   ValueType = "bool"
	TypeNumber ValueType = "number"
	TypeString ValueType = "string"
	TypeList   ValueType = "list"
	TypeMap    ValueType = "map"
)

// ActionDefinition describes a single invocable action.
type ActionDefinition struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Params      []ParamSpec  `json:"params,omitempty"`
	Logic       []LogicBlock `json:"logic"`
	Returns     string       `json:"returns,omitempty"` // informational return shape
}

// ParamSpec declares one action parameter.
type ParamSpec struct {
	Name     string    `json:"name"`
	Type     ValueType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Default  any       `json:"default,omitempty"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`
	Choices  []any     `json:"choices,omitempty"`
}

// Action returns the named action definition, or nil when absent.
func (d *AppDefinition) Action(name string) *ActionDefinition {
	if d.Actions == nil {
		return nil
	}
	a, ok := d.Actions[name]
	if !ok {
		return nil
	}
	return &a
}

// StateField returns the declared state field spec by name, or nil.
func (d *AppDefinition) StateField(name string) *StateFieldSpec {
	for i := range d.StateSchema {
		if d.StateSchema[i].Name == name {
			return &d.StateSchema[i]
		}
	}
	return nil
}

// AllowsRole reports whether an agent with the given role may invoke
// actions on this app. Shared apps allow every role.
func (d *AppDefinition) AllowsRole(role string) bool {
	if d.AccessType != AccessPerRole {
		return true
	}
	for _, r := range d.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}
