package interp

import "github.com/rendis/applogic/pkg/schema"

// Limits are the safety governor ceilings for one invocation. They are the
// sole substitute for cancellation: every invocation terminates in bounded
// work regardless of the definition it runs.
type Limits struct {
	// MaxLoopIterations caps body executions summed across all loops of
	// one invocation. Nested loops share the budget.
	MaxLoopIterations int
	// MaxNestingDepth caps block nesting; each branch/loop body counts as
	// one level.
	MaxNestingDepth int
	// MaxStateBytes caps the serialized working-state size, checked after
	// every mutating block.
	MaxStateBytes int
}

// DefaultLimits returns the standard ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxLoopIterations: 1000,
		MaxNestingDepth:   10,
		MaxStateBytes:     1 << 20,
	}
}

// checkIteration charges one loop body execution against the budget. It is
// called before the body runs, so a violation leaves no partial iteration
// behind.
func (ctx *ExecutionContext) checkIteration() *schema.AppError {
	ctx.loopIterations++
	if ctx.loopIterations <= ctx.limits.MaxLoopIterations {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeLoopLimit,
		"loop iteration limit of %d exceeded", ctx.limits.MaxLoopIterations).
		WithDetails(map[string]any{"limit": ctx.limits.MaxLoopIterations})
}

// enterNesting charges one nesting level for a branch/loop body.
func (ctx *ExecutionContext) enterNesting() *schema.AppError {
	ctx.depth++
	if ctx.depth <= ctx.limits.MaxNestingDepth {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeNestingLimit,
		"block nesting limit of %d exceeded", ctx.limits.MaxNestingDepth).
		WithDetails(map[string]any{"limit": ctx.limits.MaxNestingDepth})
}

func (ctx *ExecutionContext) exitNesting() {
	ctx.depth--
}

// checkStateSize verifies the working copy against the size ceiling. It
// runs after every update block, not just at the end of the action.
func (ctx *ExecutionContext) checkStateSize() *schema.AppError {
	return ctx.State.CheckSize(ctx.limits.MaxStateBytes)
}
