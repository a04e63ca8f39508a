package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/applogic/internal/value"
	"github.com/rendis/applogic/pkg/schema"
)

func evalSrc(t *testing.T, src string, env Env) (value.Value, *schema.AppError) {
	t.Helper()
	node, err := Parse(src)
	require.Nil(t, err, src)
	if env == nil {
		env = MapEnv{}
	}
	return NewEvaluator(Builtins()).Eval(node, env)
}

func mustEval(t *testing.T, src string, env Env) value.Value {
	t.Helper()
	v, err := evalSrc(t, src, env)
	require.Nil(t, err, src)
	return v
}

func TestEvalLiteralsAndArithmetic(t *testing.T) {
	cases := []struct {
		src  string
		want value.Value
	}{
		{"42", value.Num(42)},
		{"-3.5", value.Num(-3.5)},
		{"true", value.Bool(true)},
		{"null", value.Null},
		{`"hi"`, value.Str("hi")},
		{"1 + 2 * 3", value.Num(7)},
		{"(1 + 2) * 3", value.Num(9)},
		{"10 - 4 - 3", value.Num(3)},
		{"7 / 2", value.Num(3.5)},
		{"-(2 + 3)", value.Num(-5)},
		{"!true", value.Bool(false)},
		{"!false && true", value.Bool(true)},
	}
	for _, c := range cases {
		got := mustEval(t, c.src, nil)
		assert.True(t, got.Equal(c.want), "%s => %s", c.src, got)
	}
}

func TestEvalPlusOverloads(t *testing.T) {
	env := MapEnv{
		"xs": value.List(value.Num(1)),
		"ys": value.List(value.Num(2), value.Num(3)),
	}

	assert.True(t, mustEval(t, `"a" + "b"`, nil).Equal(value.Str("ab")))
	// A string operand stringifies the other side.
	assert.True(t, mustEval(t, `"n=" + 5`, nil).Equal(value.Str("n=5")))
	assert.True(t, mustEval(t, `1 + "s"`, nil).Equal(value.Str("1s")))
	assert.True(t, mustEval(t, `"v: " + null`, nil).Equal(value.Str("v: null")))
	// Two lists concatenate.
	assert.True(t, mustEval(t, "xs + ys", env).Equal(
		value.List(value.Num(1), value.Num(2), value.Num(3))))

	// Everything else is a type mismatch.
	for _, src := range []string{"true + 1", "null + 1", "xs + 1"} {
		_, err := evalSrc(t, src, env)
		require.NotNil(t, err, src)
		assert.Equal(t, schema.ErrCodeTypeMismatch, err.Code, src)
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	_, err := evalSrc(t, "1 / 0", nil)
	require.NotNil(t, err)
	assert.Equal(t, schema.ErrCodeDivisionByZero, err.Code)

	_, err = evalSrc(t, "1 / (2 - 2)", nil)
	require.NotNil(t, err)
	assert.Equal(t, schema.ErrCodeDivisionByZero, err.Code)
}

func TestEvalComparisons(t *testing.T) {
	assert.True(t, mustEval(t, "1 < 2", nil).Equal(value.Bool(true)))
	assert.True(t, mustEval(t, "2 <= 2", nil).Equal(value.Bool(true)))
	assert.True(t, mustEval(t, "3 > 4", nil).Equal(value.Bool(false)))
	assert.True(t, mustEval(t, `"apple" < "banana"`, nil).Equal(value.Bool(true)))
	assert.True(t, mustEval(t, `"b" >= "b"`, nil).Equal(value.Bool(true)))

	// Mixed operand kinds are an error, not a coercion.
	_, err := evalSrc(t, `1 < "2"`, nil)
	require.NotNil(t, err)
	assert.Equal(t, schema.ErrCodeTypeMismatch, err.Code)

	_, err = evalSrc(t, "true < false", nil)
	require.NotNil(t, err)
	assert.Equal(t, schema.ErrCodeTypeMismatch, err.Code)
}

func TestEvalEquality(t *testing.T) {
	env := MapEnv{
		"a": value.List(value.Num(1), value.Num(2)),
		"b": value.List(value.Num(1), value.Num(2)),
	}
	assert.True(t, mustEval(t, "1 == 1", nil).Equal(value.Bool(true)))
	assert.True(t, mustEval(t, "a == b", env).Equal(value.Bool(true)))
	assert.True(t, mustEval(t, "a != b", env).Equal(value.Bool(false)))
	// Cross-kind equality is false, never an error.
	assert.True(t, mustEval(t, `1 == "1"`, nil).Equal(value.Bool(false)))
	assert.True(t, mustEval(t, "null == false", nil).Equal(value.Bool(false)))
	assert.True(t, mustEval(t, "missing == null", nil).Equal(value.Bool(true)))
}

func TestEvalLogicalShortCircuit(t *testing.T) {
	calls := 0
	funcs := Builtins()
	funcs.Register(Func{
		Name: "probe", MinArgs: 0, MaxArgs: 0,
		Fn: func([]value.Value) (value.Value, *schema.AppError) {
			calls++
			return value.Bool(true), nil
		},
	})
	ev := NewEvaluator(funcs)

	node, err := Parse("false && probe()")
	require.Nil(t, err)
	v, aerr := ev.Eval(node, MapEnv{})
	require.Nil(t, aerr)
	assert.True(t, v.Equal(value.Bool(false)))
	assert.Zero(t, calls, "right operand of && must not run when left is false")

	node, err = Parse("true || probe()")
	require.Nil(t, err)
	v, aerr = ev.Eval(node, MapEnv{})
	require.Nil(t, aerr)
	assert.True(t, v.Equal(value.Bool(true)))
	assert.Zero(t, calls, "right operand of || must not run when left is true")

	node, err = Parse("true && probe()")
	require.Nil(t, err)
	_, aerr = ev.Eval(node, MapEnv{})
	require.Nil(t, aerr)
	assert.Equal(t, 1, calls)

	// Operands must be bool; truthiness is not a thing.
	_, aerr = evalSrc(t, "1 && true", nil)
	require.NotNil(t, aerr)
	assert.Equal(t, schema.ErrCodeTypeMismatch, aerr.Code)
}

func TestEvalPermissiveReads(t *testing.T) {
	env := MapEnv{
		"user": value.Map(map[string]value.Value{
			"name": value.Str("alice"),
		}),
		"xs": value.List(value.Num(10), value.Num(20)),
	}

	t.Run("unbound identifier reads as null", func(t *testing.T) {
		assert.True(t, mustEval(t, "ghost", env).IsNull())
	})

	t.Run("missing key and chained access on null read as null", func(t *testing.T) {
		assert.True(t, mustEval(t, "user.age", env).IsNull())
		assert.True(t, mustEval(t, "ghost.a.b.c", env).IsNull())
		assert.True(t, mustEval(t, "user.age == null", env).Equal(value.Bool(true)))
	})

	t.Run("out of range index reads as null", func(t *testing.T) {
		assert.True(t, mustEval(t, "xs[5]", env).IsNull())
		assert.True(t, mustEval(t, "xs[0]", env).Equal(value.Num(10)))
	})

	t.Run("string index reads a map key", func(t *testing.T) {
		assert.True(t, mustEval(t, `user["name"]`, env).Equal(value.Str("alice")))
	})

	t.Run("access on a non-container is still an error", func(t *testing.T) {
		_, err := evalSrc(t, "user.name.first", env)
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeTypeMismatch, err.Code)

		_, err = evalSrc(t, "xs[0][1]", env)
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeTypeMismatch, err.Code)
	})

	t.Run("non-integer list index is an error", func(t *testing.T) {
		_, err := evalSrc(t, "xs[1.5]", env)
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeTypeMismatch, err.Code)
	})
}

func TestEvalInterpolation(t *testing.T) {
	env := MapEnv{
		"name":    value.Str("alice"),
		"balance": value.Num(42.5),
		"tags":    value.List(value.Str("a"), value.Str("b")),
	}

	v := mustEval(t, `"hello ${{ name }}, you have ${{ balance }} coins"`, env)
	assert.True(t, v.Equal(value.Str("hello alice, you have 42.5 coins")))

	v = mustEval(t, `"sum: ${{ 1 + 2 }}"`, env)
	assert.True(t, v.Equal(value.Str("sum: 3")))

	// Containers interpolate as JSON, null as "null".
	v = mustEval(t, `"tags=${{ tags }} missing=${{ ghost }}"`, env)
	assert.True(t, v.Equal(value.Str(`tags=["a","b"] missing=null`)))

	// Errors inside an embedded expression propagate.
	_, err := evalSrc(t, `"oops ${{ 1 / 0 }}"`, env)
	require.NotNil(t, err)
	assert.Equal(t, schema.ErrCodeDivisionByZero, err.Code)
}

func TestEvalCalls(t *testing.T) {
	t.Run("unknown function", func(t *testing.T) {
		_, err := evalSrc(t, "nope(1)", nil)
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeUnknownFunction, err.Code)
	})

	t.Run("arity is checked before evaluation", func(t *testing.T) {
		_, err := evalSrc(t, "length()", nil)
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeTypeMismatch, err.Code)

		_, err = evalSrc(t, `upper("a", "b")`, nil)
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeTypeMismatch, err.Code)
	})

	t.Run("argument errors propagate", func(t *testing.T) {
		_, err := evalSrc(t, "abs(1 / 0)", nil)
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeDivisionByZero, err.Code)
	})
}

func TestChainEnv(t *testing.T) {
	inner := MapEnv{"x": value.Num(1)}
	outer := MapEnv{"x": value.Num(2), "y": value.Num(3)}
	chain := ChainEnv{inner, outer}

	v, ok := chain.Lookup("x")
	require.True(t, ok)
	assert.True(t, v.Equal(value.Num(1)), "first binding wins")

	v, ok = chain.Lookup("y")
	require.True(t, ok)
	assert.True(t, v.Equal(value.Num(3)))

	_, ok = chain.Lookup("z")
	assert.False(t, ok)
}
