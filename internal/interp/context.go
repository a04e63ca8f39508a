package interp

import (
	"github.com/rendis/applogic/internal/state"
	"github.com/rendis/applogic/internal/value"
	"github.com/rendis/applogic/pkg/schema"
)

// ExecutionContext owns everything mutable for the duration of one action
// invocation: the working copy of state, the bound params, the invoking
// agent, loop-iteration and nesting counters, and the notifications
// collected so far. It is created fresh per invocation and discarded after
// commit or discard; it never outlives one action call.
type ExecutionContext struct {
	App     *App
	AgentID string
	Params  map[string]value.Value
	State   *state.AppState // working copy, mutated in place

	limits         Limits
	loopIterations int
	depth          int

	notifications []schema.Notification

	// scopes holds loop bindings, innermost last.
	scopes []map[string]value.Value
}

// NewContext creates the invocation-scoped context. working must already
// be a private copy of the instance state; the context mutates it freely.
func NewContext(app *App, agentID string, params map[string]value.Value, working *state.AppState, limits Limits) *ExecutionContext {
	if params == nil {
		params = map[string]value.Value{}
	}
	return &ExecutionContext{
		App:     app,
		AgentID: agentID,
		Params:  params,
		State:   working,
		limits:  limits,
	}
}

// Lookup implements expr.Env. Resolution order: loop bindings (innermost
// first), params, the invoking agent's per-agent fields, shared fields,
// app config. Unbound names read as null via the evaluator's permissive
// read rule.
func (ctx *ExecutionContext) Lookup(name string) (value.Value, bool) {
	for i := len(ctx.scopes) - 1; i >= 0; i-- {
		if v, ok := ctx.scopes[i][name]; ok {
			return v, true
		}
	}
	if v, ok := ctx.Params[name]; ok {
		return v, true
	}
	if dv, declared := ctx.App.AgentDefaults[name]; declared {
		if part, ok := ctx.State.PerAgent[ctx.AgentID]; ok {
			if v, ok := part[name]; ok {
				return v, true
			}
		}
		// Untouched per-agent field reads as its default. Cloned so state
		// writes can never alias the shared default value.
		return dv.Clone(), true
	}
	if v, ok := ctx.State.Shared[name]; ok {
		return v, true
	}
	if dv, ok := ctx.App.SharedDefaults[name]; ok {
		return dv.Clone(), true
	}
	if v, ok := ctx.App.Config[name]; ok {
		return v.Clone(), true
	}
	return value.Null, false
}

// Notifications returns the notifications collected so far, in emission
// order.
func (ctx *ExecutionContext) Notifications() []schema.Notification {
	return ctx.notifications
}

func (ctx *ExecutionContext) notify(target, message string) {
	if target == "" {
		target = schema.BroadcastTarget
	}
	ctx.notifications = append(ctx.notifications, schema.Notification{Target: target, Message: message})
}

func (ctx *ExecutionContext) pushScope(binding string, v value.Value) {
	ctx.scopes = append(ctx.scopes, map[string]value.Value{binding: v})
}

func (ctx *ExecutionContext) popScope() {
	ctx.scopes = ctx.scopes[:len(ctx.scopes)-1]
}

// sharedPartition returns the shared partition, lazily seeding a declared
// field's default when a loaded snapshot predates the field.
func (ctx *ExecutionContext) sharedPartition(root string) map[string]value.Value {
	if _, ok := ctx.State.Shared[root]; !ok {
		if dv, declared := ctx.App.SharedDefaults[root]; declared {
			ctx.State.Shared[root] = dv.Clone()
		}
	}
	return ctx.State.Shared
}
