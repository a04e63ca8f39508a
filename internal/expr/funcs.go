package expr

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rendis/applogic/internal/value"
	"github.com/rendis/applogic/pkg/schema"
)

// Func is one named built-in function. MaxArgs of -1 means variadic.
type Func struct {
	Name    string
	MinArgs int
	MaxArgs int
	Fn      func(args []value.Value) (value.Value, *schema.AppError)
}

func (f Func) arityString() string {
	switch {
	case f.MaxArgs < 0:
		return "at least " + strconv.Itoa(f.MinArgs) + " argument(s)"
	case f.MinArgs == f.MaxArgs:
		return strconv.Itoa(f.MinArgs) + " argument(s)"
	default:
		return strconv.Itoa(f.MinArgs) + " to " + strconv.Itoa(f.MaxArgs) + " arguments"
	}
}

// Registry maps function names to built-ins. A registry is passed
// explicitly to each Evaluator; callers may copy and extend it.
type Registry map[string]Func

// Register adds a function, overwriting any existing binding of the same
// name.
func (r Registry) Register(f Func) { r[f.Name] = f }

// Clone returns a shallow copy of the registry.
func (r Registry) Clone() Registry {
	cp := make(Registry, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// Names returns the registered function names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Builtins returns a fresh registry with the standard function set. The
// set is deliberately closed and enumerated; there are no user-defined
// functions.
func Builtins() Registry {
	r := Registry{}
	for _, f := range []Func{
		{Name: "length", MinArgs: 1, MaxArgs: 1, Fn: fnLength},
		{Name: "upper", MinArgs: 1, MaxArgs: 1, Fn: stringFn("upper", strings.ToUpper)},
		{Name: "lower", MinArgs: 1, MaxArgs: 1, Fn: stringFn("lower", strings.ToLower)},
		{Name: "trim", MinArgs: 1, MaxArgs: 1, Fn: stringFn("trim", strings.TrimSpace)},
		{Name: "contains", MinArgs: 2, MaxArgs: 2, Fn: fnContains},
		{Name: "starts_with", MinArgs: 2, MaxArgs: 2, Fn: stringPredicate("starts_with", strings.HasPrefix)},
		{Name: "ends_with", MinArgs: 2, MaxArgs: 2, Fn: stringPredicate("ends_with", strings.HasSuffix)},
		{Name: "split", MinArgs: 2, MaxArgs: 2, Fn: fnSplit},
		{Name: "join", MinArgs: 2, MaxArgs: 2, Fn: fnJoin},
		{Name: "str", MinArgs: 1, MaxArgs: 1, Fn: fnStr},
		{Name: "num", MinArgs: 1, MaxArgs: 1, Fn: fnNum},
		{Name: "round", MinArgs: 1, MaxArgs: 1, Fn: mathFn("round", math.Round)},
		{Name: "floor", MinArgs: 1, MaxArgs: 1, Fn: mathFn("floor", math.Floor)},
		{Name: "ceil", MinArgs: 1, MaxArgs: 1, Fn: mathFn("ceil", math.Ceil)},
		{Name: "abs", MinArgs: 1, MaxArgs: 1, Fn: mathFn("abs", math.Abs)},
		{Name: "min", MinArgs: 1, MaxArgs: -1, Fn: foldFn("min", math.Min)},
		{Name: "max", MinArgs: 1, MaxArgs: -1, Fn: foldFn("max", math.Max)},
		{Name: "sum", MinArgs: 1, MaxArgs: 1, Fn: fnSum},
		{Name: "keys", MinArgs: 1, MaxArgs: 1, Fn: fnKeys},
		{Name: "has", MinArgs: 2, MaxArgs: 2, Fn: fnHas},
	} {
		r.Register(f)
	}
	return r
}

func fnTypeErr(format string, args ...any) *schema.AppError {
	return schema.NewErrorf(schema.ErrCodeTypeMismatch, format, args...)
}

func fnLength(args []value.Value) (value.Value, *schema.AppError) {
	switch args[0].Kind() {
	case value.KindString:
		s, _ := args[0].AsString()
		return value.Num(float64(utf8.RuneCountInString(s))), nil
	case value.KindList:
		l, _ := args[0].AsList()
		return value.Num(float64(len(l))), nil
	case value.KindMap:
		m, _ := args[0].AsMap()
		return value.Num(float64(len(m))), nil
	}
	return value.Null, fnTypeErr("length() requires string, list, or map, got %s", args[0].TypeName())
}

func stringFn(name string, f func(string) string) func([]value.Value) (value.Value, *schema.AppError) {
	return func(args []value.Value) (value.Value, *schema.AppError) {
		s, ok := args[0].AsString()
		if !ok {
			return value.Null, fnTypeErr("%s() requires string, got %s", name, args[0].TypeName())
		}
		return value.Str(f(s)), nil
	}
}

func stringPredicate(name string, f func(string, string) bool) func([]value.Value) (value.Value, *schema.AppError) {
	return func(args []value.Value) (value.Value, *schema.AppError) {
		s, ok1 := args[0].AsString()
		p, ok2 := args[1].AsString()
		if !ok1 || !ok2 {
			return value.Null, fnTypeErr("%s() requires two strings, got %s and %s",
				name, args[0].TypeName(), args[1].TypeName())
		}
		return value.Bool(f(s, p)), nil
	}
}

// fnContains: substring test for strings, structural membership for lists.
func fnContains(args []value.Value) (value.Value, *schema.AppError) {
	if s, ok := args[0].AsString(); ok {
		sub, ok := args[1].AsString()
		if !ok {
			return value.Null, fnTypeErr("contains() on a string requires a string needle, got %s", args[1].TypeName())
		}
		return value.Bool(strings.Contains(s, sub)), nil
	}
	if items, ok := args[0].AsList(); ok {
		for _, e := range items {
			if e.Equal(args[1]) {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	}
	return value.Null, fnTypeErr("contains() requires string or list, got %s", args[0].TypeName())
}

func fnSplit(args []value.Value) (value.Value, *schema.AppError) {
	s, ok1 := args[0].AsString()
	sep, ok2 := args[1].AsString()
	if !ok1 || !ok2 {
		return value.Null, fnTypeErr("split() requires two strings, got %s and %s",
			args[0].TypeName(), args[1].TypeName())
	}
	parts := strings.Split(s, sep)
	out := make([]value.Value, len(parts))
	for i, p := range parts {
		out[i] = value.Str(p)
	}
	return value.List(out...), nil
}

func fnJoin(args []value.Value) (value.Value, *schema.AppError) {
	items, ok := args[0].AsList()
	if !ok {
		return value.Null, fnTypeErr("join() requires a list, got %s", args[0].TypeName())
	}
	sep, ok := args[1].AsString()
	if !ok {
		return value.Null, fnTypeErr("join() separator must be string, got %s", args[1].TypeName())
	}
	parts := make([]string, len(items))
	for i, e := range items {
		parts[i] = e.String()
	}
	return value.Str(strings.Join(parts, sep)), nil
}

func fnStr(args []value.Value) (value.Value, *schema.AppError) {
	return value.Str(args[0].String()), nil
}

func fnNum(args []value.Value) (value.Value, *schema.AppError) {
	switch args[0].Kind() {
	case value.KindNumber:
		return args[0], nil
	case value.KindString:
		s, _ := args[0].AsString()
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return value.Null, fnTypeErr("num() cannot parse %q as a number", s)
		}
		return value.Num(n), nil
	}
	return value.Null, fnTypeErr("num() requires number or string, got %s", args[0].TypeName())
}

func mathFn(name string, f func(float64) float64) func([]value.Value) (value.Value, *schema.AppError) {
	return func(args []value.Value) (value.Value, *schema.AppError) {
		n, ok := args[0].AsNumber()
		if !ok {
			return value.Null, fnTypeErr("%s() requires number, got %s", name, args[0].TypeName())
		}
		return value.Num(f(n)), nil
	}
}

// foldFn builds min/max: variadic numbers, or a single non-empty list of
// numbers.
func foldFn(name string, f func(float64, float64) float64) func([]value.Value) (value.Value, *schema.AppError) {
	return func(args []value.Value) (value.Value, *schema.AppError) {
		nums := args
		if len(args) == 1 {
			if items, ok := args[0].AsList(); ok {
				if len(items) == 0 {
					return value.Null, fnTypeErr("%s() of an empty list", name)
				}
				nums = items
			}
		}
		acc, ok := nums[0].AsNumber()
		if !ok {
			return value.Null, fnTypeErr("%s() requires numbers, got %s", name, nums[0].TypeName())
		}
		for _, v := range nums[1:] {
			n, ok := v.AsNumber()
			if !ok {
				return value.Null, fnTypeErr("%s() requires numbers, got %s", name, v.TypeName())
			}
			acc = f(acc, n)
		}
		return value.Num(acc), nil
	}
}

func fnSum(args []value.Value) (value.Value, *schema.AppError) {
	items, ok := args[0].AsList()
	if !ok {
		return value.Null, fnTypeErr("sum() requires a list, got %s", args[0].TypeName())
	}
	total := 0.0
	for _, e := range items {
		n, ok := e.AsNumber()
		if !ok {
			return value.Null, fnTypeErr("sum() requires a list of numbers, found %s", e.TypeName())
		}
		total += n
	}
	return value.Num(total), nil
}

func fnKeys(args []value.Value) (value.Value, *schema.AppError) {
	m, ok := args[0].AsMap()
	if !ok {
		return value.Null, fnTypeErr("keys() requires a map, got %s", args[0].TypeName())
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]value.Value, len(keys))
	for i, k := range keys {
		out[i] = value.Str(k)
	}
	return value.List(out...), nil
}

func fnHas(args []value.Value) (value.Value, *schema.AppError) {
	m, ok := args[0].AsMap()
	if !ok {
		return value.Null, fnTypeErr("has() requires a map, got %s", args[0].TypeName())
	}
	k, ok := args[1].AsString()
	if !ok {
		return value.Null, fnTypeErr("has() key must be string, got %s", args[1].TypeName())
	}
	_, found := m[k]
	return value.Bool(found), nil
}
