package eval_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/caffeineduck/nixwasm/eval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func add() *eval.Value {
	return eval.Func("add", 2, func(s *eval.State, args []*eval.Value) (*eval.Value, error) {
		a, err := s.ForceInt(args[0])
		if err != nil {
			return nil, err
		}
		b, err := s.ForceInt(args[1])
		if err != nil {
			return nil, err
		}
		return eval.Int(a + b), nil
	})
}

func TestForceThunkOnce(t *testing.T) {
	s := eval.NewState()
	calls := 0
	v := eval.Thunk(func(*eval.State) (*eval.Value, error) {
		calls++
		return eval.Int(7), nil
	})

	require.Equal(t, eval.TypeThunk, v.Type())
	n, err := s.ForceInt(v)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = s.ForceInt(v)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, eval.TypeInt, v.Type())
}

func TestForceNestedThunk(t *testing.T) {
	s := eval.NewState()
	v := eval.Thunk(func(*eval.State) (*eval.Value, error) {
		return eval.Thunk(func(*eval.State) (*eval.Value, error) {
			return eval.String("inner"), nil
		}), nil
	})

	str, _, err := s.ForceString(v)
	require.NoError(t, err)
	assert.Equal(t, "inner", str)
}

func TestForceInfiniteRecursion(t *testing.T) {
	s := eval.NewState()
	var v *eval.Value
	v = eval.Thunk(func(s *eval.State) (*eval.Value, error) {
		if err := s.Force(v); err != nil {
			return nil, err
		}
		return v, nil
	})

	err := s.Force(v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, eval.ErrInfiniteRecursion))
}

func TestForceErrorLeavesThunkRetryable(t *testing.T) {
	s := eval.NewState()
	fail := true
	v := eval.Thunk(func(*eval.State) (*eval.Value, error) {
		if fail {
			return nil, eval.Errorf("not yet")
		}
		return eval.Bool(true), nil
	})

	require.EqualError(t, s.Force(v), "not yet")
	fail = false
	b, err := s.ForceBool(v)
	require.NoError(t, err)
	assert.True(t, b)
}

func TestForceTypeMismatch(t *testing.T) {
	s := eval.NewState()
	_, err := s.ForceInt(eval.String("x"))

	var te *eval.TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, eval.TypeInt, te.Expected)
	assert.Equal(t, eval.TypeString, te.Actual)
	assert.Equal(t, "expected an integer but found a string", err.Error())
}

func TestForceUninitialized(t *testing.T) {
	s := eval.NewState()
	err := s.Force(s.AllocValue())
	assert.ErrorContains(t, err, "uninitialized")
}

func TestForceFloatAcceptsInt(t *testing.T) {
	s := eval.NewState()
	f, err := s.ForceFloat(eval.Int(3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)
}

func TestBoolAndNullSingletons(t *testing.T) {
	assert.Same(t, eval.Bool(true), eval.Bool(true))
	assert.Same(t, eval.Bool(false), eval.Bool(false))
	assert.NotSame(t, eval.Bool(true), eval.Bool(false))
	assert.Same(t, eval.Null(), eval.Null())
}

func TestCallExact(t *testing.T) {
	s := eval.NewState()
	v, err := s.Call(add(), eval.Int(2), eval.Int(3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int())
}

func TestCallPartial(t *testing.T) {
	s := eval.NewState()
	inc, err := s.Call(add(), eval.Int(1))
	require.NoError(t, err)

	fn, err := s.ForceFunction(inc)
	require.NoError(t, err)
	assert.Equal(t, 1, fn.Missing())

	v, err := s.Call(inc, eval.Int(41))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int())
}

func TestCallOverApplication(t *testing.T) {
	s := eval.NewState()
	curried := eval.Func("const-add", 1, func(s *eval.State, args []*eval.Value) (*eval.Value, error) {
		return s.Call(add(), args[0])
	})

	v, err := s.Call(curried, eval.Int(10), eval.Int(5))
	require.NoError(t, err)
	assert.Equal(t, int64(15), v.Int())
}

func TestCallNonFunction(t *testing.T) {
	s := eval.NewState()
	_, err := s.Call(eval.Int(1), eval.Int(2))
	assert.ErrorContains(t, err, "expected a function but found an integer")
}

func TestCallErrorTrace(t *testing.T) {
	s := eval.NewState()
	_, err := s.Call(add(), eval.String("a"), eval.Int(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "while calling the 'add' builtin")
	assert.Contains(t, err.Error(), "expected an integer but found a string")
}

func TestAddTraceLeavesErrorUntouched(t *testing.T) {
	base := eval.Errorf("boom")
	fail := eval.Func("fail", 1, func(*eval.State, []*eval.Value) (*eval.Value, error) {
		return nil, base
	})

	s := eval.NewState()
	for range 2 {
		_, err := s.Call(fail, eval.Null())
		require.Error(t, err)
		assert.Equal(t, 1, strings.Count(err.Error(), "while calling the 'fail' builtin"), err.Error())
		assert.ErrorIs(t, err, base)
	}
	assert.Empty(t, base.Traces)
	assert.Equal(t, "boom", base.Error())

	first := eval.AddTrace(base, "outer")
	second := eval.AddTrace(first, "outermost")
	assert.Equal(t, "outer: boom", first.Error())
	assert.Equal(t, "outermost: outer: boom", second.Error())
}

func TestBuilderLastWriteWins(t *testing.T) {
	s := eval.NewState()
	b := s.BuildAttrs(3)
	b.Insert("b", eval.Int(1))
	b.Insert("a", eval.Int(2))
	b.Insert("b", eval.Int(3))
	attrs := b.Finish()

	require.Equal(t, 2, attrs.Len())
	assert.Equal(t, []string{"a", "b"}, attrs.Names())
	v, ok := attrs.Get("b")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.Int())

	_, ok = attrs.Get("c")
	assert.False(t, ok)
}

func TestCoerceToString(t *testing.T) {
	s := eval.NewState()
	outPath := eval.StringWithContext("/store/abc-foo", eval.NewContext("/store/abc-foo"))
	b := s.BuildAttrs(1)
	b.Insert("outPath", outPath)
	drv := eval.Attrs(b.Finish())

	toStr := s.BuildAttrs(1)
	toStr.Insert("__toString", eval.Func("toString", 1, func(*eval.State, []*eval.Value) (*eval.Value, error) {
		return eval.String("custom"), nil
	}))

	tests := []struct {
		name string
		v    *eval.Value
		want string
		ctx  int
	}{
		{"string", eval.String("hi"), "hi", 0},
		{"path", eval.Path("/a/b"), "/a/b", 0},
		{"int", eval.Int(-4), "-4", 0},
		{"true", eval.Bool(true), "1", 0},
		{"false", eval.Bool(false), "", 0},
		{"null", eval.Null(), "", 0},
		{"list", eval.List(eval.Int(1), eval.String("x")), "1 x", 0},
		{"outPath", drv, "/store/abc-foo", 1},
		{"toString", eval.Attrs(toStr.Finish()), "custom", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			str, ctx, err := s.CoerceToString(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, str)
			assert.Equal(t, tt.ctx, ctx.Len())
		})
	}
}

func TestCoerceToStringRejectsPlainSet(t *testing.T) {
	s := eval.NewState()
	_, _, err := s.CoerceToString(eval.Attrs(nil))
	assert.EqualError(t, err, "cannot coerce a set to a string")
}

func TestCoerceToPath(t *testing.T) {
	s := eval.NewState()

	p, _, err := s.CoerceToPath(eval.String("/x/../y"))
	require.NoError(t, err)
	assert.Equal(t, "/y", p)

	p, _, err = s.CoerceToPath(eval.Path("/z"))
	require.NoError(t, err)
	assert.Equal(t, "/z", p)

	_, _, err = s.CoerceToPath(eval.String("relative"))
	assert.EqualError(t, err, "string 'relative' doesn't represent an absolute path")
}

func TestRootPath(t *testing.T) {
	s := eval.NewState(eval.WithRootDir("/srv/root"))
	assert.Equal(t, "/srv/root/a/b", s.RootPath("a/b"))
	assert.Equal(t, "/srv/root/etc", s.RootPath("../../etc"))
	assert.Equal(t, "/srv/root", s.RootPath(""))
}

func TestForceStringNoContext(t *testing.T) {
	s := eval.NewState()
	_, err := s.ForceStringNoContext(eval.StringWithContext("x", eval.NewContext("/store/p")))
	assert.ErrorContains(t, err, "not allowed to refer to a store path")

	str, err := s.ForceStringNoContext(eval.String("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", str)
}

func TestContextSet(t *testing.T) {
	c := eval.NewContext("b", "a", "b")
	assert.Equal(t, []string{"a", "b"}, c.Elems())
	assert.Equal(t, 3, c.Union(eval.NewContext("c", "a")).Len())
	assert.True(t, eval.Context{}.Empty())
}

func TestSymbolTableInterns(t *testing.T) {
	st := eval.NewSymbolTable()
	a := st.Intern("name")
	b := st.Intern(string([]byte("name")))
	assert.Equal(t, a, b)
	assert.Equal(t, 1, st.Len())
}

func TestFromGoAndPrint(t *testing.T) {
	s := eval.NewState()
	v, err := s.FromGo(map[string]any{
		"b":    []any{1, 2.5, "x"},
		"a":    true,
		"none": nil,
	})
	require.NoError(t, err)

	out, err := s.Sprint(v)
	require.NoError(t, err)
	assert.Equal(t, `{ a = true; b = [ 1 2.5 "x" ]; none = null; }`, out)
}

func TestFromGoRejectsUnknown(t *testing.T) {
	s := eval.NewState()
	_, err := s.FromGo(struct{}{})
	assert.Error(t, err)
}

func TestDefaultSystem(t *testing.T) {
	s := eval.NewState(eval.WithSystem("riscv64-linux"))
	assert.Equal(t, "riscv64-linux", s.System())
	assert.NotEmpty(t, eval.DefaultSystem())
}
