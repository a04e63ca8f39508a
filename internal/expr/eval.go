package expr

import (
	"math"
	"strings"

	"github.com/rendis/applogic/internal/value"
	"github.com/rendis/applogic/pkg/schema"
)

// Env resolves identifiers at evaluation time. Implementations chain the
// invocation scopes: loop bindings, action params, the invoking agent's
// state partition, shared state, app config.
type Env interface {
	// Lookup returns the value bound to name. ok is false when the name is
	// unbound, which reads as null (permissive read).
	Lookup(name string) (v value.Value, ok bool)
}

// MapEnv is an Env over a plain map, used by tests and param scopes.
type MapEnv map[string]value.Value

func (m MapEnv) Lookup(name string) (value.Value, bool) {
	v, ok := m[name]
	return v, ok
}

// ChainEnv resolves against each Env in order, first binding wins.
type ChainEnv []Env

func (c ChainEnv) Lookup(name string) (value.Value, bool) {
	for _, env := range c {
		if v, ok := env.Lookup(name); ok {
			return v, true
		}
	}
	return value.Null, false
}

// Evaluator evaluates parsed expressions against an Env. The function
// registry is supplied explicitly at construction; there is no ambient
// global registry, so evaluators are freely reentrant.
type Evaluator struct {
	funcs Registry
}

// NewEvaluator creates an Evaluator with the given function registry.
// A nil registry means no functions are callable.
func NewEvaluator(funcs Registry) *Evaluator {
	return &Evaluator{funcs: funcs}
}

// Eval evaluates a parsed expression to a Value or an evaluation error.
// It never panics on well-formed trees; every type violation surfaces as a
// structured error.
func (ev *Evaluator) Eval(n Node, env Env) (value.Value, *schema.AppError) {
	switch node := n.(type) {
	case *NumberLit:
		return value.Num(node.Val), nil
	case *BoolLit:
		return value.Bool(node.Val), nil
	case *NullLit:
		return value.Null, nil
	case *StringLit:
		return ev.evalString(node, env)
	case *Ident:
		v, _ := env.Lookup(node.Name)
		return v, nil
	case *Unary:
		return ev.evalUnary(node, env)
	case *Binary:
		return ev.evalBinary(node, env)
	case *Member:
		return ev.evalMember(node, env)
	case *Index:
		return ev.evalIndex(node, env)
	case *Call:
		return ev.evalCall(node, env)
	}
	return value.Null, schema.NewErrorf(schema.ErrCodeTypeMismatch, "unknown expression node %T", n)
}

func (ev *Evaluator) evalString(node *StringLit, env Env) (value.Value, *schema.AppError) {
	if len(node.Segments) == 1 && node.Segments[0].Expr == nil {
		return value.Str(node.Segments[0].Text), nil
	}
	var b strings.Builder
	for _, seg := range node.Segments {
		if seg.Expr == nil {
			b.WriteString(seg.Text)
			continue
		}
		v, err := ev.Eval(seg.Expr, env)
		if err != nil {
			return value.Null, err
		}
		b.WriteString(v.String())
	}
	return value.Str(b.String()), nil
}

func (ev *Evaluator) evalUnary(node *Unary, env Env) (value.Value, *schema.AppError) {
	x, err := ev.Eval(node.X, env)
	if err != nil {
		return value.Null, err
	}
	switch node.Op {
	case TokBang:
		b, ok := x.AsBool()
		if !ok {
			return value.Null, typeErr(node.Pos(), "operator ! requires bool, got %s", x.TypeName())
		}
		return value.Bool(!b), nil
	case TokMinus:
		n, ok := x.AsNumber()
		if !ok {
			return value.Null, typeErr(node.Pos(), "unary - requires number, got %s", x.TypeName())
		}
		return value.Num(-n), nil
	}
	return value.Null, typeErr(node.Pos(), "unknown unary operator %s", node.Op)
}

func (ev *Evaluator) evalBinary(node *Binary, env Env) (value.Value, *schema.AppError) {
	// && and || short-circuit: the right operand is not evaluated when the
	// left already determines the result.
	if node.Op == TokAnd || node.Op == TokOr {
		return ev.evalLogical(node, env)
	}

	l, err := ev.Eval(node.L, env)
	if err != nil {
		return value.Null, err
	}
	r, err := ev.Eval(node.R, env)
	if err != nil {
		return value.Null, err
	}

	switch node.Op {
	case TokPlus:
		return evalPlus(node.Pos(), l, r)
	case TokMinus, TokStar, TokSlash:
		return evalArith(node.Pos(), node.Op, l, r)
	case TokLt, TokGt, TokLe, TokGe:
		return evalCompare(node.Pos(), node.Op, l, r)
	case TokEq:
		return value.Bool(l.Equal(r)), nil
	case TokNe:
		return value.Bool(!l.Equal(r)), nil
	}
	return value.Null, typeErr(node.Pos(), "unknown binary operator %s", node.Op)
}

func (ev *Evaluator) evalLogical(node *Binary, env Env) (value.Value, *schema.AppError) {
	l, err := ev.Eval(node.L, env)
	if err != nil {
		return value.Null, err
	}
	lb, ok := l.AsBool()
	if !ok {
		return value.Null, typeErr(node.Pos(), "operator %s requires bool operands, got %s", node.Op, l.TypeName())
	}
	if node.Op == TokAnd && !lb {
		return value.Bool(false), nil
	}
	if node.Op == TokOr && lb {
		return value.Bool(true), nil
	}
	r, err := ev.Eval(node.R, env)
	if err != nil {
		return value.Null, err
	}
	rb, ok := r.AsBool()
	if !ok {
		return value.Null, typeErr(node.Pos(), "operator %s requires bool operands, got %s", node.Op, r.TypeName())
	}
	return value.Bool(rb), nil
}

// evalPlus: numeric addition for two numbers, string concatenation when
// either operand is a string (the other is stringified), element-wise
// concatenation for two lists. Everything else is a type mismatch.
func evalPlus(pos int, l, r value.Value) (value.Value, *schema.AppError) {
	if ln, ok := l.AsNumber(); ok {
		if rn, ok := r.AsNumber(); ok {
			return value.Num(ln + rn), nil
		}
	}
	if l.Kind() == value.KindString || r.Kind() == value.KindString {
		return value.Str(l.String() + r.String()), nil
	}
	if ll, ok := l.AsList(); ok {
		if rl, ok := r.AsList(); ok {
			out := make([]value.Value, 0, len(ll)+len(rl))
			out = append(out, ll...)
			out = append(out, rl...)
			return value.List(out...), nil
		}
	}
	return value.Null, typeErr(pos, "operator + not defined for %s and %s", l.TypeName(), r.TypeName())
}

func evalArith(pos int, op TokenType, l, r value.Value) (value.Value, *schema.AppError) {
	ln, lok := l.AsNumber()
	rn, rok := r.AsNumber()
	if !lok || !rok {
		return value.Null, typeErr(pos, "operator %s requires numbers, got %s and %s", op, l.TypeName(), r.TypeName())
	}
	switch op {
	case TokMinus:
		return value.Num(ln - rn), nil
	case TokStar:
		return value.Num(ln * rn), nil
	case TokSlash:
		if rn == 0 {
			return value.Null, schema.NewError(schema.ErrCodeDivisionByZero, "division by zero").
				WithDetails(map[string]any{"offset": pos})
		}
		return value.Num(ln / rn), nil
	}
	return value.Null, typeErr(pos, "unknown arithmetic operator %s", op)
}

// evalCompare: both operands numeric, or both strings (lexicographic).
func evalCompare(pos int, op TokenType, l, r value.Value) (value.Value, *schema.AppError) {
	var cmp int
	switch {
	case l.Kind() == value.KindNumber && r.Kind() == value.KindNumber:
		ln, _ := l.AsNumber()
		rn, _ := r.AsNumber()
		switch {
		case ln < rn:
			cmp = -1
		case ln > rn:
			cmp = 1
		}
	case l.Kind() == value.KindString && r.Kind() == value.KindString:
		ls, _ := l.AsString()
		rs, _ := r.AsString()
		cmp = strings.Compare(ls, rs)
	default:
		return value.Null, typeErr(pos, "operator %s requires two numbers or two strings, got %s and %s",
			op, l.TypeName(), r.TypeName())
	}
	switch op {
	case TokLt:
		return value.Bool(cmp < 0), nil
	case TokGt:
		return value.Bool(cmp > 0), nil
	case TokLe:
		return value.Bool(cmp <= 0), nil
	case TokGe:
		return value.Bool(cmp >= 0), nil
	}
	return value.Null, typeErr(pos, "unknown comparison operator %s", op)
}

// evalMember: reads are permissive. A missing key, or access on null,
// yields null; access on a non-container is a type mismatch.
func (ev *Evaluator) evalMember(node *Member, env Env) (value.Value, *schema.AppError) {
	x, err := ev.Eval(node.X, env)
	if err != nil {
		return value.Null, err
	}
	return readKey(node.Pos(), x, node.Key)
}

func (ev *Evaluator) evalIndex(node *Index, env Env) (value.Value, *schema.AppError) {
	x, err := ev.Eval(node.X, env)
	if err != nil {
		return value.Null, err
	}
	idx, err := ev.Eval(node.I, env)
	if err != nil {
		return value.Null, err
	}

	if s, ok := idx.AsString(); ok {
		return readKey(node.Pos(), x, s)
	}
	n, ok := idx.AsNumber()
	if !ok {
		return value.Null, typeErr(node.Pos(), "index must be number or string, got %s", idx.TypeName())
	}
	if x.IsNull() {
		return value.Null, nil
	}
	items, ok := x.AsList()
	if !ok {
		return value.Null, typeErr(node.Pos(), "cannot index %s with a number", x.TypeName())
	}
	if n != math.Trunc(n) {
		return value.Null, typeErr(node.Pos(), "list index must be an integer, got %s", value.FormatNumber(n))
	}
	i := int(n)
	if i < 0 || i >= len(items) {
		// Out-of-range reads are null, not errors.
		return value.Null, nil
	}
	return items[i], nil
}

func readKey(pos int, x value.Value, key string) (value.Value, *schema.AppError) {
	if x.IsNull() {
		return value.Null, nil
	}
	m, ok := x.AsMap()
	if !ok {
		return value.Null, typeErr(pos, "cannot access key %q on %s", key, x.TypeName())
	}
	v, ok := m[key]
	if !ok {
		return value.Null, nil
	}
	return v, nil
}

func (ev *Evaluator) evalCall(node *Call, env Env) (value.Value, *schema.AppError) {
	fn, ok := ev.funcs[node.Name]
	if !ok {
		return value.Null, schema.NewErrorf(schema.ErrCodeUnknownFunction,
			"unknown function %q", node.Name).
			WithDetails(map[string]any{"offset": node.Pos(), "function": node.Name})
	}
	if len(node.Args) < fn.MinArgs || (fn.MaxArgs >= 0 && len(node.Args) > fn.MaxArgs) {
		return value.Null, typeErr(node.Pos(), "%s() expects %s, got %d",
			node.Name, fn.arityString(), len(node.Args))
	}
	args := make([]value.Value, len(node.Args))
	for i, argNode := range node.Args {
		v, err := ev.Eval(argNode, env)
		if err != nil {
			return value.Null, err
		}
		args[i] = v
	}
	return fn.Fn(args)
}

func typeErr(pos int, format string, args ...any) *schema.AppError {
	return schema.NewErrorf(schema.ErrCodeTypeMismatch, format, args...).
		WithDetails(map[string]any{"offset": pos})
}
