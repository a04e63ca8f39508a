package interp

import (
	"github.com/rendis/applogic/internal/expr"
	"github.com/rendis/applogic/internal/state"
	"github.com/rendis/applogic/internal/value"
	"github.com/rendis/applogic/pkg/schema"
)

// App is a compiled app definition: every expression parsed, every target
// path resolved against the state schema, defaults and config converted to
// runtime values. Compilation happens once at load; an App is immutable
// and shared across invocations.
type App struct {
	Def            *schema.AppDefinition
	Actions        map[string]*Program
	SharedDefaults map[string]value.Value
	AgentDefaults  map[string]value.Value
	Config         map[string]value.Value
}

// Program is one compiled action.
type Program struct {
	Name   string
	Params []schema.ParamSpec
	Blocks []Block
}

// Block is the compiled form of a schema.LogicBlock.
type Block struct {
	Type schema.BlockType

	Condition    expr.Node
	ErrorMessage expr.Node
	ErrorCode    string

	Target         value.Path
	TargetPerAgent bool
	Operation      schema.UpdateOp
	Value          expr.Node

	Message      expr.Node
	NotifyTarget string
	Code         string

	Then []Block
	Else []Block

	Iterable expr.Node
	Binding  string
	Body     []Block
}

// CompileApp validates and compiles a definition into its executable form.
// Parse and reference errors surface here, at load time, so they can never
// occur mid-invocation.
func CompileApp(def *schema.AppDefinition) (*App, *schema.AppError) {
	app := &App{
		Def:            def,
		Actions:        make(map[string]*Program, len(def.Actions)),
		SharedDefaults: map[string]value.Value{},
		AgentDefaults:  map[string]value.Value{},
		Config:         map[string]value.Value{},
	}

	seen := map[string]bool{}
	for _, field := range def.StateSchema {
		if seen[field.Name] {
			return nil, schema.NewErrorf(schema.ErrCodeDefinition,
				"duplicate state field %q", field.Name)
		}
		seen[field.Name] = true

		dv, err := fieldDefault(field)
		if err != nil {
			return nil, err
		}
		if field.PerAgent {
			app.AgentDefaults[field.Name] = dv
		} else {
			app.SharedDefaults[field.Name] = dv
		}
	}

	for key, raw := range def.InitialConfig {
		v, err := value.FromAny(raw)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeDefinition,
				"invalid initial_config value for %q: %s", key, err.Error()).WithCause(err)
		}
		app.Config[key] = v
	}

	for name, action := range def.Actions {
		if action.Name != "" && action.Name != name {
			return nil, schema.NewErrorf(schema.ErrCodeDefinition,
				"action key %q does not match action name %q", name, action.Name)
		}
		prog, err := compileAction(def, name, &action)
		if err != nil {
			return nil, err.WithAction(name)
		}
		app.Actions[name] = prog
	}

	return app, nil
}

// fieldDefault converts a declared default into a runtime value, falling
// back to the zero value of the declared type.
func fieldDefault(field schema.StateFieldSpec) (value.Value, *schema.AppError) {
	if field.Default != nil {
		v, err := value.FromAny(field.Default)
		if err != nil {
			return value.Null, schema.NewErrorf(schema.ErrCodeDefinition,
				"invalid default for state field %q: %s", field.Name, err.Error()).WithCause(err)
		}
		if !MatchesType(v, field.Type) {
			return value.Null, schema.NewErrorf(schema.ErrCodeDefinition,
				"default for state field %q is %s, declared type is %s",
				field.Name, v.TypeName(), field.Type)
		}
		return v, nil
	}
	return ZeroOf(field.Type), nil
}

// ZeroOf returns the zero value of a declared type.
func ZeroOf(t schema.ValueType) value.Value {
	switch t {
	case schema.TypeBool:
		return value.Bool(false)
	case schema.TypeNumber:
		return value.Num(0)
	case schema.TypeString:
		return value.Str("")
	case schema.TypeList:
		return value.List()
	case schema.TypeMap:
		return value.Map(nil)
	}
	return value.Null
}

// MatchesType reports whether a runtime value conforms to a declared type.
func MatchesType(v value.Value, t schema.ValueType) bool {
	switch t {
	case schema.TypeNull:
		return v.IsNull()
	case schema.TypeBool:
		return v.Kind() == value.KindBool
	case schema.TypeNumber:
		return v.Kind() == value.KindNumber
	case schema.TypeString:
		return v.Kind() == value.KindString
	case schema.TypeList:
		return v.Kind() == value.KindList
	case schema.TypeMap:
		return v.Kind() == value.KindMap
	}
	return false
}

func compileAction(def *schema.AppDefinition, name string, action *schema.ActionDefinition) (*Program, *schema.AppError) {
	paramSeen := map[string]bool{}
	for _, p := range action.Params {
		if paramSeen[p.Name] {
			return nil, schema.NewErrorf(schema.ErrCodeDefinition, "duplicate param %q", p.Name)
		}
		paramSeen[p.Name] = true
		if def.StateField(p.Name) != nil {
			return nil, schema.NewErrorf(schema.ErrCodeDefinition,
				"param %q shadows a state field of the same name", p.Name)
		}
	}

	if len(action.Logic) == 0 {
		return nil, schema.NewError(schema.ErrCodeDefinition, "action has no logic blocks")
	}

	blocks, err := compileBlocks(def, action.Logic, 0)
	if err != nil {
		return nil, err
	}
	return &Program{Name: name, Params: action.Params, Blocks: blocks}, nil
}

func compileBlocks(def *schema.AppDefinition, raw []schema.LogicBlock, depth int) ([]Block, *schema.AppError) {
	limits := DefaultLimits()
	if depth > limits.MaxNestingDepth {
		return nil, schema.NewErrorf(schema.ErrCodeDefinition,
			"logic nesting exceeds the depth limit of %d", limits.MaxNestingDepth)
	}

	out := make([]Block, 0, len(raw))
	for i := range raw {
		b, err := compileBlock(def, &raw[i], depth)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func compileBlock(def *schema.AppDefinition, raw *schema.LogicBlock, depth int) (Block, *schema.AppError) {
	b := Block{Type: raw.Type}
	var err *schema.AppError

	parse := func(src, what string) expr.Node {
		if err != nil {
			return nil
		}
		node, perr := expr.Parse(src)
		if perr != nil {
			err = schema.NewErrorf(perr.Code, "%s block %s: %s", raw.Type, what, perr.Message).
				WithDetails(perr.Details)
		}
		return node
	}
	require := func(cond bool, format string, args ...any) {
		if err == nil && !cond {
			err = schema.NewErrorf(schema.ErrCodeDefinition, format, args...)
		}
	}

	switch raw.Type {
	case schema.BlockValidate:
		require(raw.Condition != "", "validate block requires a condition")
		require(raw.ErrorMessage != "", "validate block requires an error_message")
		b.Condition = parse(raw.Condition, "condition")
		b.ErrorMessage = parse(raw.ErrorMessage, "error_message")
		b.ErrorCode = raw.ErrorCode
		if b.ErrorCode == "" {
			b.ErrorCode = schema.ErrCodeValidationFailed
		}

	case schema.BlockUpdate:
		require(raw.TargetPath != "", "update block requires a target_path")
		require(raw.Operation != "", "update block requires an operation")
		require(raw.Value != "", "update block requires a value")
		if err == nil {
			switch raw.Operation {
			case schema.OpSet, schema.OpIncrement, schema.OpDecrement,
				schema.OpAppend, schema.OpRemove, schema.OpMerge:
			default:
				err = schema.NewErrorf(schema.ErrCodeDefinition,
					"unknown update operation %q", raw.Operation)
			}
		}
		if err == nil {
			path, perr := value.ParsePath(raw.TargetPath)
			if perr != nil {
				err = schema.NewErrorf(schema.ErrCodeDefinition,
					"invalid target_path: %s", perr.Error())
			} else {
				field := def.StateField(path.Root())
				if field == nil {
					err = schema.NewErrorf(schema.ErrCodeDefinition,
						"target_path %q does not resolve to a declared state field", raw.TargetPath)
				} else {
					b.Target = path
					b.TargetPerAgent = field.PerAgent
				}
			}
		}
		b.Operation = raw.Operation
		b.Value = parse(raw.Value, "value")

	case schema.BlockNotify:
		require(raw.Message != "", "notify block requires a message")
		b.Message = parse(raw.Message, "message")
		b.NotifyTarget = raw.Target

	case schema.BlockReturn:
		if raw.Value != "" {
			b.Value = parse(raw.Value, "value")
		}

	case schema.BlockError:
		require(raw.Message != "", "error block requires a message")
		b.Message = parse(raw.Message, "message")
		b.Code = raw.Code
		if b.Code == "" {
			b.Code = schema.ErrCodeValidationFailed
		}

	case schema.BlockBranch:
		require(raw.Condition != "", "branch block requires a condition")
		require(len(raw.Then) > 0 || len(raw.Else) > 0, "branch block requires a then or else body")
		b.Condition = parse(raw.Condition, "condition")
		if err == nil {
			b.Then, err = compileBlocks(def, raw.Then, depth+1)
		}
		if err == nil {
			b.Else, err = compileBlocks(def, raw.Else, depth+1)
		}

	case schema.BlockLoop:
		require(raw.Iterable != "", "loop block requires an iterable")
		require(raw.Binding != "", "loop block requires a binding")
		require(len(raw.Body) > 0, "loop block requires a body")
		if err == nil && !isIdentifier(raw.Binding) {
			err = schema.NewErrorf(schema.ErrCodeDefinition,
				"loop binding %q is not a valid identifier", raw.Binding)
		}
		b.Iterable = parse(raw.Iterable, "iterable")
		b.Binding = raw.Binding
		if err == nil {
			b.Body, err = compileBlocks(def, raw.Body, depth+1)
		}

	default:
		err = schema.NewErrorf(schema.ErrCodeDefinition, "unknown block type %q", raw.Type)
	}

	if err != nil {
		return Block{}, err
	}
	return b, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		ok := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(i > 0 && c >= '0' && c <= '9')
		if !ok {
			return false
		}
	}
	return true
}

// NewInstanceState builds the initial state for a fresh instance: shared
// fields seeded from their defaults. Per-agent partitions are created
// lazily on first touch.
func (a *App) NewInstanceState() *state.AppState {
	s := state.New()
	for name, dv := range a.SharedDefaults {
		s.Shared[name] = dv.Clone()
	}
	return s
}

// SeedAgent ensures an agent's partition exists with all per-agent
// defaults present.
func (a *App) SeedAgent(s *state.AppState, agentID string) map[string]value.Value {
	part := s.AgentPartition(agentID)
	for name, dv := range a.AgentDefaults {
		if _, ok := part[name]; !ok {
			part[name] = dv.Clone()
		}
	}
	return part
}
