// Package engine is the public execution surface of the app logic core.
// It loads and compiles app definitions (once), binds invocation
// parameters, and runs actions through the interpreter against a private
// working copy of instance state. Execute is pure: state in, result out;
// the caller decides what to persist.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rendis/applogic/internal/expr"
	"github.com/rendis/applogic/internal/interp"
	"github.com/rendis/applogic/internal/logging"
	"github.com/rendis/applogic/internal/state"
	"github.com/rendis/applogic/internal/validation"
	"github.com/rendis/applogic/internal/value"
	"github.com/rendis/applogic/pkg/schema"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLimits overrides the safety governor ceilings.
func WithLimits(l interp.Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithBuiltins replaces the built-in function registry. The registry is
// passed through to every evaluator; there is no global function state.
func WithBuiltins(r expr.Registry) Option {
	return func(e *Engine) { e.funcs = r }
}

// Engine validates, compiles, caches, and executes app definitions. Safe
// for concurrent use; each invocation owns a private working copy of its
// instance state.
type Engine struct {
	validator *validation.Validator
	limits    interp.Limits
	funcs     expr.Registry
	logger    *slog.Logger
	interp    *interp.Interpreter

	mu   sync.RWMutex
	apps map[string]*interp.App
}

// New creates an Engine with default limits and the standard built-ins.
func New(opts ...Option) (*Engine, error) {
	v, err := validation.NewValidator()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		validator: v,
		limits:    interp.DefaultLimits(),
		funcs:     expr.Builtins(),
		logger:    slog.Default(),
		apps:      map[string]*interp.App{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.interp = interp.New(e.funcs, e.logger)
	return e, nil
}

// LoadApp validates, compiles, and caches a raw definition document.
// Definition and parse errors surface here and prevent the app from ever
// running.
func (e *Engine) LoadApp(raw []byte) (*schema.AppDefinition, *schema.AppError) {
	app, err := e.validator.ValidateAndCompile(raw)
	if err != nil {
		return nil, err
	}
	e.register(app)
	return app.Def, nil
}

// Register compiles and caches an already-decoded definition. Used by
// callers constructing definitions programmatically; raw documents go
// through LoadApp for the JSON Schema pass.
func (e *Engine) Register(def *schema.AppDefinition) *schema.AppError {
	app, err := interp.CompileApp(def)
	if err != nil {
		return err
	}
	e.register(app)
	return nil
}

func (e *Engine) register(app *interp.App) {
	e.mu.Lock()
	e.apps[app.Def.AppID] = app
	e.mu.Unlock()
	e.logger.Info("app loaded",
		slog.String("app_id", app.Def.AppID),
		slog.Int("actions", len(app.Actions)))
}

// App returns the compiled app, or nil when not loaded.
func (e *Engine) App(appID string) *interp.App {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.apps[appID]
}

// NewInstanceState builds the initial state document for a fresh instance
// of a loaded app.
func (e *Engine) NewInstanceState(appID string) (*schema.StateDoc, *schema.AppError) {
	app := e.App(appID)
	if app == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "app %q is not loaded", appID)
	}
	return app.NewInstanceState().Doc(), nil
}

// InvokeRequest carries one action invocation.
type InvokeRequest struct {
	AppID     string
	AgentID   string
	AgentRole string
	Action    string
	Params    map[string]any
	State     *schema.StateDoc
}

// Execute runs one action invocation to completion. The contract is
// total: it always returns an ActionResult and never mutates req.State.
// NewState on the result is the only way state changes leave the engine,
// and it is present only on success.
func (e *Engine) Execute(ctx context.Context, req InvokeRequest) *schema.ActionResult {
	ctx = logging.WithIDs(ctx, req.AppID, req.Action, req.AgentID, logging.InvocationID(ctx))
	log := logging.LogWith(ctx, e.logger)

	app := e.App(req.AppID)
	if app == nil {
		return failure(schema.NewErrorf(schema.ErrCodeNotFound, "app %q is not loaded", req.AppID))
	}
	if !app.Def.AllowsRole(req.AgentRole) {
		return failure(schema.NewErrorf(schema.ErrCodeAccessDenied,
			"role %q may not invoke app %q", req.AgentRole, req.AppID).WithAction(req.Action))
	}
	prog, ok := app.Actions[req.Action]
	if !ok {
		return failure(schema.NewErrorf(schema.ErrCodeNotFound,
			"app %q has no action %q", req.AppID, req.Action).WithAction(req.Action))
	}

	params, perr := bindParams(prog.Params, req.Params)
	if perr != nil {
		return failure(perr.WithAction(req.Action))
	}

	// FromDoc builds fresh runtime values, so the working copy shares no
	// storage with the caller's document.
	working, serr := state.FromDoc(req.State)
	if serr != nil {
		return failure(serr.(*schema.AppError).WithAction(req.Action))
	}

	ec := interp.NewContext(app, req.AgentID, params, working, e.limits)
	res := e.interp.Run(ctx, ec, prog)

	if !res.Success {
		log.InfoContext(ctx, "action failed", slog.String("code", res.Err.Code))
		return failure(res.Err.WithAction(req.Action))
	}

	log.DebugContext(ctx, "action succeeded",
		slog.Int("notifications", len(res.Notifications)))
	return &schema.ActionResult{
		Success:       true,
		Value:         res.Value.ToAny(),
		Notifications: res.Notifications,
		NewState:      working.Doc(),
	}
}

// failure builds the failed result: no new state, no notifications. A
// failed invocation's side channel is rolled back together with its state
// mutations.
func failure(err *schema.AppError) *schema.ActionResult {
	return &schema.ActionResult{Success: false, Error: err}
}

// bindParams checks supplied params against the declared specs: required
// presence, defaults, declared types, numeric bounds, and choices.
// Undeclared params are rejected.
func bindParams(specs []schema.ParamSpec, supplied map[string]any) (map[string]value.Value, *schema.AppError) {
	declared := make(map[string]bool, len(specs))
	bound := make(map[string]value.Value, len(specs))

	for _, spec := range specs {
		declared[spec.Name] = true

		raw, present := supplied[spec.Name]
		if !present {
			if spec.Required {
				return nil, schema.NewErrorf(schema.ErrCodeParam,
					"missing required param %q", spec.Name)
			}
			if spec.Default == nil {
				continue
			}
			raw = spec.Default
		}

		v, err := value.FromAny(raw)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeParam,
				"param %q: %s", spec.Name, err.Error()).WithCause(err)
		}
		if !v.IsNull() && !interp.MatchesType(v, spec.Type) {
			return nil, schema.NewErrorf(schema.ErrCodeParam,
				"param %q must be %s, got %s", spec.Name, spec.Type, v.TypeName())
		}
		if err := checkBounds(spec, v); err != nil {
			return nil, err
		}
		bound[spec.Name] = v
	}

	for name := range supplied {
		if !declared[name] {
			return nil, schema.NewErrorf(schema.ErrCodeParam, "unknown param %q", name)
		}
	}
	return bound, nil
}

func checkBounds(spec schema.ParamSpec, v value.Value) *schema.AppError {
	if n, ok := v.AsNumber(); ok {
		if spec.Min != nil && n < *spec.Min {
			return schema.NewErrorf(schema.ErrCodeParam,
				"param %q must be >= %s", spec.Name, value.FormatNumber(*spec.Min))
		}
		if spec.Max != nil && n > *spec.Max {
			return schema.NewErrorf(schema.ErrCodeParam,
				"param %q must be <= %s", spec.Name, value.FormatNumber(*spec.Max))
		}
	}
	if len(spec.Choices) > 0 {
		for _, c := range spec.Choices {
			cv, err := value.FromAny(c)
			if err == nil && v.Equal(cv) {
				return nil
			}
		}
		return schema.NewErrorf(schema.ErrCodeParam,
			"param %q is not one of the allowed choices", spec.Name)
	}
	return nil
}
