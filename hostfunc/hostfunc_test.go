package hostfunc

import (
	"context"
	"sort"
	"testing"

	"github.com/caffeineduck/nixwasm/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
)

func TestRegistryCatalog(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	for _, name := range []string{
		"panic", "warn", "get_type", "make_int", "get_int", "make_float", "get_float",
		"make_string", "copy_string", "get_string_len", "make_bool", "get_bool", "make_null",
		"make_path", "copy_path", "make_list", "copy_list", "get_list_len", "get_list_elem",
		"make_attrset", "copy_attrset", "copy_attrname", "get_attrs_len", "has_attr", "get_attr",
		"call_function", "fetch_url", "fetch_git", "fetch_github", "add_to_store",
		"resolve_dependency", "get_system", "get_cores", "get_out_path",
		"nix_fetch_url", "nix_resolve_dep",
	} {
		assert.True(t, reg.Has(name), name)
	}

	names := reg.Names()
	assert.True(t, sort.StringsAreSorted(names))

	f, ok := reg.Lookup("copy_attrname")
	require.True(t, ok)
	assert.Len(t, f.Params, 4)
	assert.Empty(t, f.Results)

	f, ok = reg.Lookup("make_int")
	require.True(t, ok)
	assert.Equal(t, []api.ValueType{api.ValueTypeI64}, f.Params)
}

func TestRegistryRejectsCatalogOverride(t *testing.T) {
	_, err := NewRegistry(WithFunc(Func{Name: "make_int", Handler: getCores}))
	assert.ErrorContains(t, err, `duplicate host function name: "make_int"`)

	_, err = NewRegistry(WithFunc(Func{Name: "", Handler: getCores}))
	assert.Error(t, err)

	_, err = NewRegistry(WithFunc(Func{Name: "x"}))
	assert.ErrorContains(t, err, "has no handler")
}

func TestRegistryExtraFunc(t *testing.T) {
	h := newHarness(t, nil, WithFunc(Func{
		Name:    "answer",
		Results: []api.ValueType{api.ValueTypeI32},
		Handler: func(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
			stack[0] = 42
			return nil
		},
	}))
	assert.Equal(t, uint64(42), h.mustCall("answer"))
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(tag string) Middleware {
		return func(name string, next Handler) Handler {
			return func(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
				order = append(order, tag+":"+name)
				return next(ctx, g, mod, stack)
			}
		}
	}

	h := newHarness(t, nil, WithMiddleware(mw("outer"), mw("inner")))
	h.mustCall("make_null")
	assert.Equal(t, []string{"outer:make_null", "inner:make_null"}, order)
}

func TestRecoverConvertsPanics(t *testing.T) {
	h := newHarness(t, nil, WithFunc(Func{
		Name: "explode",
		Handler: func(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
			var m map[string]int
			m["x"] = 1
			return nil
		},
	}))

	_, err := h.call("explode")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindEvaluation))
	assert.Contains(t, err.Error(), "host function panicked")
}

func TestCheckInterrupt(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(h.ctx)
	cancel()
	h.ctx = ctx

	_, err := h.call("make_null")
	assert.True(t, fault.IsKind(err, fault.KindInterrupted))
	assert.ErrorIs(t, err, fault.ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvokeWithoutGuest(t *testing.T) {
	h := newHarness(t, nil)
	err := h.reg.invoke(context.Background(), h.mod, "make_null", make([]uint64, 1))
	assert.True(t, fault.IsKind(err, fault.KindLink))
}

func TestLogCalls(t *testing.T) {
	h := newHarness(t, nil, WithMiddleware(LogCalls()))
	h.mustCall("make_null")

	entries := h.logs.FilterMessage("host call").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "make_null", entries[0].ContextMap()["function"])
}

func TestGuestExportDefault(t *testing.T) {
	g := &Guest{}
	assert.Equal(t, "<unknown>", g.Export())
	g.SetExport("main")
	assert.Equal(t, "main", g.Export())
}
