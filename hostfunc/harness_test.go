package hostfunc

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/caffeineduck/nixwasm/bridge"
	"github.com/caffeineduck/nixwasm/eval"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/wasm-runtime/wat"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// harness calls host functions directly against a memory-only module.
type harness struct {
	t    *testing.T
	ctx  context.Context
	reg  *Registry
	g    *Guest
	mod  api.Module
	logs *observer.ObservedLogs
}

func newHarness(t *testing.T, state *eval.State, opts ...RegistryOption) *harness {
	t.Helper()
	ctx := context.Background()

	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })

	bin, err := wat.Compile(`(module (memory (export "memory") 1))`)
	require.NoError(t, err)
	mod, err := rt.Instantiate(ctx, bin)
	require.NoError(t, err)

	reg, err := NewRegistry(opts...)
	require.NoError(t, err)

	if state == nil {
		state = eval.NewState()
	}
	core, logs := observer.New(zap.DebugLevel)
	g := NewGuest(state, "test.wasm")
	g.Logger = zap.New(core)
	g.SetExport("run")

	return &harness{t: t, ctx: WithGuest(ctx, g), reg: reg, g: g, mod: mod, logs: logs}
}

func (h *harness) call(name string, args ...uint64) ([]uint64, error) {
	h.t.Helper()
	f, ok := h.reg.Lookup(name)
	require.True(h.t, ok, "no host function %q", name)
	stack := make([]uint64, max(len(f.Params), len(f.Results)))
	copy(stack, args)
	err := h.reg.invoke(h.ctx, h.mod, name, stack)
	return stack, err
}

func (h *harness) mustCall(name string, args ...uint64) uint64 {
	h.t.Helper()
	stack, err := h.call(name, args...)
	require.NoError(h.t, err)
	if len(stack) == 0 {
		return 0
	}
	return stack[0]
}

func (h *harness) write(ptr uint32, data []byte) {
	h.t.Helper()
	require.True(h.t, h.mod.Memory().Write(ptr, data))
}

// str writes s at ptr and returns the (ptr, len) pair as stack values.
func (h *harness) str(ptr uint32, s string) (uint64, uint64) {
	h.write(ptr, []byte(s))
	return uint64(ptr), uint64(len(s))
}

func (h *harness) read(ptr, n uint32) []byte {
	h.t.Helper()
	b, ok := h.mod.Memory().Read(ptr, n)
	require.True(h.t, ok)
	return append([]byte(nil), b...)
}

func (h *harness) readHandles(ptr, n uint32) []bridge.Handle {
	b := h.read(ptr, n*4)
	out := make([]bridge.Handle, n)
	for i := range out {
		out[i] = bridge.Handle(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func (h *harness) writeHandles(ptr uint32, handles ...uint64) {
	b := make([]byte, 4*len(handles))
	for i, x := range handles {
		binary.LittleEndian.PutUint32(b[i*4:], uint32(x))
	}
	h.write(ptr, b)
}

func (h *harness) bind(v *eval.Value) uint64 {
	h.t.Helper()
	hd, err := h.g.Bind(v)
	require.NoError(h.t, err)
	return uint64(hd)
}

func (h *harness) value(raw uint64) *eval.Value {
	h.t.Helper()
	v, err := h.g.resolve(raw)
	require.NoError(h.t, err)
	return v
}
