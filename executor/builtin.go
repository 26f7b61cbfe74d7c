package executor

import (
	"context"

	"github.com/caffeineduck/nixwasm/eval"
)

// Builtin returns the `wasm` function value: it takes a module path, an
// export name and an argument, and calls the export. Arguments are forced
// only when the function is fully applied.
//
//	wasm := exec.Builtin(ctx)
//	res, err := state.Call(wasm, eval.Path("./double.wasm"), eval.String("double"), eval.Int(21))
func (e *Executor) Builtin(ctx context.Context, opts ...Option) *eval.Value {
	return eval.Func("wasm", 3, func(s *eval.State, args []*eval.Value) (*eval.Value, error) {
		path, _, err := s.CoerceToPath(args[0])
		if err != nil {
			return nil, eval.AddTrace(err, "while evaluating the first argument passed to builtins.wasm")
		}
		export, err := s.ForceStringNoContext(args[1])
		if err != nil {
			return nil, eval.AddTrace(err, "while evaluating the second argument passed to builtins.wasm")
		}
		return e.Invoke(ctx, File(path), export, args[2], opts...)
	})
}
