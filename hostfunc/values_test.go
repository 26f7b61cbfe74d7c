package hostfunc

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/caffeineduck/nixwasm/bridge"
	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
)

func TestHandlesResolveToSameValue(t *testing.T) {
	h := newHarness(t, nil)
	v := eval.String("x")
	raw := h.bind(v)

	for i := 0; i < 10; i++ {
		h.mustCall("make_int", uint64(i))
	}
	assert.Same(t, v, h.value(raw))
	assert.Same(t, v, h.value(raw))
}

func TestScalars(t *testing.T) {
	h := newHarness(t, nil)

	n := h.mustCall("make_int", api.EncodeI64(-5))
	assert.Equal(t, uint64(TagInt), h.mustCall("get_type", n))
	assert.Equal(t, int64(-5), int64(h.mustCall("get_int", n)))

	for _, x := range []float64{1.5, -0.0, math.Inf(1), math.MaxFloat64} {
		f := h.mustCall("make_float", api.EncodeF64(x))
		assert.Equal(t, math.Float64bits(x), h.mustCall("get_float", f))
	}

	// get_float accepts integers
	assert.Equal(t, 7.0, api.DecodeF64(h.mustCall("get_float", h.bind(eval.Int(7)))))

	tr := h.mustCall("make_bool", 5)
	fa := h.mustCall("make_bool", 0)
	assert.Same(t, eval.Bool(true), h.value(tr))
	assert.Equal(t, uint64(1), h.mustCall("get_bool", tr))
	assert.Equal(t, uint64(0), h.mustCall("get_bool", fa))

	null := h.mustCall("make_null")
	assert.Equal(t, uint64(TagNull), h.mustCall("get_type", null))
	assert.Same(t, eval.Null(), h.value(null))
}

func TestGetType(t *testing.T) {
	h := newHarness(t, nil)
	add := eval.Func("add", 2, func(s *eval.State, args []*eval.Value) (*eval.Value, error) { return eval.Null(), nil })

	tests := []struct {
		v    *eval.Value
		want uint32
	}{
		{eval.Int(1), TagInt},
		{eval.Float(1), TagFloat},
		{eval.Bool(false), TagBool},
		{eval.String("s"), TagString},
		{eval.Path("/p"), TagPath},
		{eval.Null(), TagNull},
		{eval.Attrs(nil), TagAttrs},
		{eval.List(), TagList},
		{add, TagFunction},
		{eval.Thunk(func(*eval.State) (*eval.Value, error) { return eval.Int(3), nil }), TagInt},
	}
	for _, tt := range tests {
		assert.Equal(t, uint64(tt.want), h.mustCall("get_type", h.bind(tt.v)))
	}

	_, err := h.call("get_type", h.bind(eval.External(struct{}{})))
	assert.True(t, fault.IsKind(err, fault.KindMarshalling))
}

func TestStringRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	const s = "héllo\x00world"

	ptr, n := h.str(16, s)
	sh := h.mustCall("make_string", ptr, n)
	assert.Equal(t, n, h.mustCall("get_string_len", sh))

	got := h.mustCall("copy_string", sh, 1024, 64)
	assert.Equal(t, n, got)
	assert.Equal(t, s, string(h.read(1024, uint32(n))))
}

func TestCopyStringTwoPhase(t *testing.T) {
	h := newHarness(t, nil)
	sh := h.bind(eval.StringWithContext("/store/abc-x", eval.NewContext("/store/abc-x")))

	size := h.mustCall("copy_string", sh, 2048, 3)
	assert.Equal(t, uint64(12), size)
	assert.Equal(t, make([]byte, 12), h.read(2048, 12), "nothing written on short capacity")

	assert.Equal(t, size, h.mustCall("copy_string", sh, 2048, size))
	assert.Equal(t, "/store/abc-x", string(h.read(2048, 12)))
}

func TestCopyStringOutOfBounds(t *testing.T) {
	h := newHarness(t, nil)
	sh := h.bind(eval.String("abcdef"))

	_, err := h.call("copy_string", sh, 65536-2, 10)
	assert.True(t, fault.IsKind(err, fault.KindMarshalling))
	assert.Contains(t, err.Error(), "out of bounds")
}

func TestMakeStringOutOfBounds(t *testing.T) {
	h := newHarness(t, nil)
	before := h.g.Values.Len()

	_, err := h.call("make_string", 65530, 100)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindMarshalling))
	assert.Equal(t, before, h.g.Values.Len())
}

func TestInvalidHandle(t *testing.T) {
	h := newHarness(t, nil)
	h.bind(eval.Int(1))

	for _, raw := range []uint64{1, 99, uint64(bridge.Absent)} {
		_, err := h.call("get_int", raw)
		require.Error(t, err)
		assert.True(t, fault.IsKind(err, fault.KindMarshalling))
		assert.Contains(t, err.Error(), "get_int")
	}
}

func TestEvaluationErrorTraps(t *testing.T) {
	h := newHarness(t, nil)
	bad := h.bind(eval.Thunk(func(*eval.State) (*eval.Value, error) {
		return nil, eval.Errorf("undefined variable 'x'")
	}))

	_, err := h.call("get_int", bad)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindEvaluation))
	assert.Contains(t, err.Error(), "undefined variable 'x'")

	_, err = h.call("get_int", h.bind(eval.String("no")))
	var typeErr *eval.TypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, eval.TypeInt, typeErr.Expected)
}

func TestPaths(t *testing.T) {
	h := newHarness(t, eval.NewState(eval.WithRootDir("/work")))

	ptr, n := h.str(0, "src/../../etc/passwd")
	p := h.mustCall("make_path", ptr, n)
	assert.Equal(t, uint64(TagPath), h.mustCall("get_type", p))

	size := h.mustCall("copy_path", p, 512, 64)
	assert.Equal(t, "/work/etc/passwd", string(h.read(512, uint32(size))))

	s := h.bind(eval.StringWithContext("/store/abc-dep/bin", eval.NewContext("/store/abc-dep")))
	size = h.mustCall("copy_path", s, 512, 64)
	assert.Equal(t, "/store/abc-dep/bin", string(h.read(512, uint32(size))))

	_, err := h.call("copy_path", h.bind(eval.String("relative")), 512, 64)
	assert.True(t, fault.IsKind(err, fault.KindEvaluation))
}

func TestPanic(t *testing.T) {
	h := newHarness(t, nil)
	ptr, n := h.str(0, "boom")

	_, err := h.call("panic", ptr, n)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindPanic))
	assert.Contains(t, err.Error(), "WASM panic: boom")
}

func TestWarn(t *testing.T) {
	h := newHarness(t, nil)
	ptr, n := h.str(0, "careful")
	h.mustCall("warn", ptr, n)

	entries := h.logs.FilterMessage("careful").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "test.wasm", fields["module"])
	assert.Equal(t, "run", fields["function"])
}

func TestListRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	vals := []*eval.Value{eval.Int(1), eval.String("two"), eval.Float(3), eval.Null()}
	raw := make([]uint64, len(vals))
	for i, v := range vals {
		raw[i] = h.bind(v)
	}
	h.writeHandles(0, raw...)

	l := h.mustCall("make_list", 0, uint64(len(raw)))
	assert.Equal(t, uint64(4), h.mustCall("get_list_len", l))

	n := h.mustCall("copy_list", l, 256, 4)
	require.Equal(t, uint64(4), n)
	for i, hd := range h.readHandles(256, 4) {
		assert.Same(t, vals[i], h.value(uint64(hd)))
	}

	second := h.mustCall("get_list_elem", l, 1)
	assert.Same(t, vals[1], h.value(second))

	_, err := h.call("get_list_elem", l, 4)
	assert.True(t, fault.IsKind(err, fault.KindMarshalling))
}

func TestCopyListShortCapacityIssuesNoHandles(t *testing.T) {
	h := newHarness(t, nil)
	l := h.bind(eval.List(eval.Int(1), eval.Int(2), eval.Int(3)))
	before := h.g.Values.Len()

	assert.Equal(t, uint64(3), h.mustCall("copy_list", l, 0, 2))
	assert.Equal(t, before, h.g.Values.Len())

	_, err := h.call("copy_list", l, 65536-4, 3)
	assert.True(t, fault.IsKind(err, fault.KindMarshalling))
	assert.Equal(t, before, h.g.Values.Len())
}

// attrRecords writes names and 12-byte records and returns the records'
// (ptr, count) pair.
func attrRecords(h *harness, names []string, values []uint64) (uint64, uint64) {
	namePtr := uint32(1024)
	recs := make([]byte, 0, len(names)*attrRecordSize)
	for i, name := range names {
		h.write(namePtr, []byte(name))
		recs = binary.LittleEndian.AppendUint32(recs, namePtr)
		recs = binary.LittleEndian.AppendUint32(recs, uint32(len(name)))
		recs = binary.LittleEndian.AppendUint32(recs, uint32(values[i]))
		namePtr += uint32(len(name))
	}
	h.write(0, recs)
	return 0, uint64(len(names))
}

func TestMakeAttrsetLastWriteWins(t *testing.T) {
	h := newHarness(t, nil)
	one, two, three := eval.Int(1), eval.Int(2), eval.Int(3)

	ptr, n := attrRecords(h, []string{"a", "b", "a"}, []uint64{h.bind(one), h.bind(two), h.bind(three)})
	set := h.mustCall("make_attrset", ptr, n)
	assert.Equal(t, uint64(2), h.mustCall("get_attrs_len", set))

	np, nl := h.str(4096, "a")
	assert.Same(t, three, h.value(h.mustCall("get_attr", set, np, nl)))
}

func TestGetAttrAbsent(t *testing.T) {
	h := newHarness(t, nil)
	b := eval.NewBuilder(nil, 1)
	b.Insert("present", eval.Int(1))
	set := h.bind(eval.Attrs(b.Finish()))

	np, nl := h.str(0, "missing")
	assert.Equal(t, uint64(bridge.Absent), h.mustCall("get_attr", set, np, nl))
	assert.Equal(t, uint64(0), h.mustCall("has_attr", set, np, nl))

	np, nl = h.str(0, "present")
	assert.Equal(t, uint64(1), h.mustCall("has_attr", set, np, nl))
}

func TestCopyAttrsetLexicographic(t *testing.T) {
	h := newHarness(t, nil)
	zeta, alpha, mid := eval.Int(26), eval.Int(1), eval.Int(13)
	b := eval.NewBuilder(nil, 3)
	b.Insert("zeta", zeta)
	b.Insert("alpha", alpha)
	b.Insert("mid", mid)
	set := h.bind(eval.Attrs(b.Finish()))

	before := h.g.Values.Len()
	assert.Equal(t, uint64(3), h.mustCall("copy_attrset", set, 512, 1))
	assert.Equal(t, before, h.g.Values.Len())

	require.Equal(t, uint64(3), h.mustCall("copy_attrset", set, 512, 3))
	recs := h.read(512, 3*attrExportSize)
	want := []struct {
		v    *eval.Value
		name string
	}{{alpha, "alpha"}, {mid, "mid"}, {zeta, "zeta"}}
	for i, w := range want {
		hd := binary.LittleEndian.Uint32(recs[i*attrExportSize:])
		nameLen := binary.LittleEndian.Uint32(recs[i*attrExportSize+4:])
		assert.Same(t, w.v, h.value(uint64(hd)))
		require.Equal(t, uint32(len(w.name)), nameLen)

		h.mustCall("copy_attrname", set, uint64(i), 2048, uint64(nameLen))
		assert.Equal(t, w.name, string(h.read(2048, nameLen)))
	}

	_, err := h.call("copy_attrname", set, 0, 2048, 3)
	assert.True(t, fault.IsKind(err, fault.KindMarshalling))
	_, err = h.call("copy_attrname", set, 3, 2048, 4)
	assert.True(t, fault.IsKind(err, fault.KindMarshalling))
}

func TestCallFunction(t *testing.T) {
	state := eval.NewState()
	h := newHarness(t, state)
	add := eval.Func("add", 2, func(s *eval.State, args []*eval.Value) (*eval.Value, error) {
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

	fn := h.bind(add)
	h.writeHandles(0, h.bind(eval.Int(2)), h.bind(eval.Int(40)))
	res := h.mustCall("call_function", fn, 0, 2)
	assert.Equal(t, int64(42), int64(h.mustCall("get_int", res)))

	direct, err := state.Call(add, eval.Int(2), eval.Int(40))
	require.NoError(t, err)
	assert.Equal(t, direct.Int(), h.value(res).Int())

	// partial application yields a function
	h.writeHandles(0, h.bind(eval.Int(1)))
	partial := h.mustCall("call_function", fn, 0, 1)
	assert.Equal(t, uint64(TagFunction), h.mustCall("get_type", partial))
}

func TestCallFunctionErrors(t *testing.T) {
	h := newHarness(t, nil)
	failing := h.bind(eval.Func("fail", 1, func(s *eval.State, args []*eval.Value) (*eval.Value, error) {
		return nil, eval.Errorf("assertion failed")
	}))

	h.writeHandles(0, h.bind(eval.Null()))
	_, err := h.call("call_function", failing, 0, 1)
	assert.True(t, fault.IsKind(err, fault.KindEvaluation))
	assert.Contains(t, err.Error(), "while calling the 'fail' builtin")

	_, err = h.call("call_function", h.bind(eval.Int(1)), 0, 1)
	assert.True(t, fault.IsKind(err, fault.KindEvaluation))

	h.writeHandles(0, 1234)
	_, err = h.call("call_function", failing, 0, 1)
	assert.True(t, fault.IsKind(err, fault.KindMarshalling))
}
