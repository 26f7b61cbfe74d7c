package hostfunc

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// callFunction applies a host function value to argument handles. The
// result is registered unforced.
func callFunction(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	fn, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	handles, err := readHandles(mod, "call_function", argU32(stack, 1), argU32(stack, 2))
	if err != nil {
		return err
	}
	args, err := g.resolveAll(handles)
	if err != nil {
		return err
	}
	res, err := g.State.Call(fn, args...)
	if err != nil {
		return err
	}
	stack[0], err = g.add(res)
	return err
}
