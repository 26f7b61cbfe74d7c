// Package nixwasm lets a lazy evaluator call functions exported by
// WebAssembly modules, passing evaluator values back and forth as opaque
// handles.
//
// # Overview
//
// A guest never sees evaluator values directly. It receives a 32-bit handle,
// asks the host to force, inspect or build values through the "env" host
// functions, and returns a handle. Every call gets a fresh instance; compiled
// modules are cached.
//
// # Basic Usage
//
//	state := eval.NewState()
//	exec, _ := executor.New(state)
//	defer exec.Close()
//
//	res, err := exec.Invoke(ctx, executor.File("./double.wasm"), "double", eval.Int(21))
//	out, _ := state.Sprint(res) // 42
//
// # Effects
//
// Fetching and adding paths goes through a [store.Local] and is denied
// unless the host or path matches an allowlist:
//
//	st, _ := store.NewLocal(store.Config{
//	    Dir:          dir,
//	    AllowedHosts: []string{"github.com"},
//	})
//	exec, _ := executor.New(state, executor.WithStore(st))
//
// See the [executor], [hostfunc], [eval], [store] and [sandbox] packages for
// detailed API documentation.
package nixwasm
