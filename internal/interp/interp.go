// Package interp executes compiled action programs: the six logic block
// kinds, run strictly in declared order against an invocation-scoped
// execution context, under the safety governor's ceilings. Its contract is
// total: every run produces a Result, never a panic or a Go error.
package interp

import (
	"context"
	"log/slog"

	"github.com/rendis/applogic/internal/expr"
	"github.com/rendis/applogic/internal/state"
	"github.com/rendis/applogic/internal/value"
	"github.com/rendis/applogic/pkg/schema"
)

// Result is the outcome of running one action program.
type Result struct {
	Success       bool
	Value         value.Value
	Err           *schema.AppError
	Notifications []schema.Notification
}

// Interpreter runs compiled programs. It holds no per-invocation state and
// is safe for concurrent use across independent contexts.
type Interpreter struct {
	ev     *expr.Evaluator
	logger *slog.Logger
}

// New creates an Interpreter with the given function registry.
func New(funcs expr.Registry, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{ev: expr.NewEvaluator(funcs), logger: logger}
}

// outcome is the terminal signal that halts a block list. A nil outcome
// means execution fell through to the next sibling.
type outcome struct {
	value value.Value      // return value when err is nil
	err   *schema.AppError // validation failure, evaluation error, or safety violation
}

// Run executes a program's blocks against the context. Execution halts the
// moment any block returns, errors, or trips a safety limit; completion
// without an explicit return is a success with a null value.
func (it *Interpreter) Run(ctx context.Context, ec *ExecutionContext, prog *Program) *Result {
	out := it.execBlocks(ctx, ec, prog.Blocks)
	res := &Result{Notifications: ec.Notifications()}
	switch {
	case out == nil:
		res.Success = true
		res.Value = value.Null
	case out.err != nil:
		res.Err = out.err
	default:
		res.Success = true
		res.Value = out.value
	}
	if res.Err != nil {
		it.logger.DebugContext(ctx, "action halted",
			slog.String("action", prog.Name),
			slog.String("code", res.Err.Code))
	}
	return res
}

// execBlocks runs a block list in order, propagating the first terminal
// outcome outward. Later siblings do not run.
func (it *Interpreter) execBlocks(ctx context.Context, ec *ExecutionContext, blocks []Block) *outcome {
	for i := range blocks {
		if out := it.execBlock(ctx, ec, &blocks[i]); out != nil {
			return out
		}
	}
	return nil
}

func (it *Interpreter) execBlock(ctx context.Context, ec *ExecutionContext, b *Block) *outcome {
	switch b.Type {
	case schema.BlockValidate:
		return it.execValidate(ec, b)
	case schema.BlockUpdate:
		return it.execUpdate(ec, b)
	case schema.BlockNotify:
		return it.execNotify(ec, b)
	case schema.BlockReturn:
		return it.execReturn(ec, b)
	case schema.BlockError:
		return it.execError(ec, b)
	case schema.BlockBranch:
		return it.execBranch(ctx, ec, b)
	case schema.BlockLoop:
		return it.execLoop(ctx, ec, b)
	}
	return &outcome{err: schema.NewErrorf(schema.ErrCodeDefinition, "unknown block type %q", b.Type)}
}

// execValidate aborts the action when the condition is false, behaving
// exactly like an inline error block with the configured message and code.
func (it *Interpreter) execValidate(ec *ExecutionContext, b *Block) *outcome {
	ok, err := it.evalBool(ec, b.Condition, "validate condition")
	if err != nil {
		return &outcome{err: err}
	}
	if ok {
		return nil
	}
	msg, err := it.evalMessage(ec, b.ErrorMessage)
	if err != nil {
		return &outcome{err: err}
	}
	return &outcome{err: schema.NewError(b.ErrorCode, msg)}
}

func (it *Interpreter) execUpdate(ec *ExecutionContext, b *Block) *outcome {
	v, err := it.ev.Eval(b.Value, ec)
	if err != nil {
		return &outcome{err: err}
	}

	var partition map[string]value.Value
	if b.TargetPerAgent {
		partition = ec.App.SeedAgent(ec.State, ec.AgentID)
	} else {
		partition = ec.sharedPartition(b.Target.Root())
	}

	if aerr := state.Apply(partition, b.Target, b.Operation, v); aerr != nil {
		return &outcome{err: aerr}
	}
	if serr := ec.checkStateSize(); serr != nil {
		return &outcome{err: serr}
	}
	return nil
}

func (it *Interpreter) execNotify(ec *ExecutionContext, b *Block) *outcome {
	msg, err := it.evalMessage(ec, b.Message)
	if err != nil {
		return &outcome{err: err}
	}
	ec.notify(b.NotifyTarget, msg)
	return nil
}

func (it *Interpreter) execReturn(ec *ExecutionContext, b *Block) *outcome {
	if b.Value == nil {
		return &outcome{value: value.Null}
	}
	v, err := it.ev.Eval(b.Value, ec)
	if err != nil {
		return &outcome{err: err}
	}
	return &outcome{value: v}
}

func (it *Interpreter) execError(ec *ExecutionContext, b *Block) *outcome {
	msg, err := it.evalMessage(ec, b.Message)
	if err != nil {
		return &outcome{err: err}
	}
	return &outcome{err: schema.NewError(b.Code, msg)}
}

// execBranch evaluates the condition once and executes exactly one of
// then/else; an absent branch is a no-op.
func (it *Interpreter) execBranch(ctx context.Context, ec *ExecutionContext, b *Block) *outcome {
	cond, err := it.evalBool(ec, b.Condition, "branch condition")
	if err != nil {
		return &outcome{err: err}
	}
	body := b.Then
	if !cond {
		body = b.Else
	}
	if len(body) == 0 {
		return nil
	}
	if err := ec.enterNesting(); err != nil {
		return &outcome{err: err}
	}
	defer ec.exitNesting()
	return it.execBlocks(ctx, ec, body)
}

// execLoop evaluates the iterable once to a list, then runs the body per
// element with the binding in a child scope. Each body execution charges
// one unit of the invocation-wide iteration budget, so nested loops share
// a single ceiling.
func (it *Interpreter) execLoop(ctx context.Context, ec *ExecutionContext, b *Block) *outcome {
	iterable, err := it.ev.Eval(b.Iterable, ec)
	if err != nil {
		return &outcome{err: err}
	}
	items, ok := iterable.AsList()
	if !ok {
		return &outcome{err: schema.NewErrorf(schema.ErrCodeTypeMismatch,
			"loop iterable must be a list, got %s", iterable.TypeName())}
	}

	if err := ec.enterNesting(); err != nil {
		return &outcome{err: err}
	}
	defer ec.exitNesting()

	for _, item := range items {
		if err := ec.checkIteration(); err != nil {
			return &outcome{err: err}
		}
		ec.pushScope(b.Binding, item)
		out := it.execBlocks(ctx, ec, b.Body)
		ec.popScope()
		if out != nil {
			return out
		}
	}
	return nil
}

func (it *Interpreter) evalBool(ec *ExecutionContext, n expr.Node, what string) (bool, *schema.AppError) {
	v, err := it.ev.Eval(n, ec)
	if err != nil {
		return false, err
	}
	b, ok := v.AsBool()
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeTypeMismatch,
			"%s must evaluate to bool, got %s", what, v.TypeName())
	}
	return b, nil
}

// evalMessage evaluates a message expression, stringifying non-string
// results.
func (it *Interpreter) evalMessage(ec *ExecutionContext, n expr.Node) (string, *schema.AppError) {
	v, err := it.ev.Eval(n, ec)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}
