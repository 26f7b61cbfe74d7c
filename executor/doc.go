// Package executor runs WebAssembly guests that exchange values with the
// host evaluator.
//
// # Overview
//
// An [Executor] owns a wazero runtime with the host function module
// ("env") and WASI preview1 linked in, plus a [ModuleCache] of compiled
// guests. Each call to [Executor.Invoke] compiles the module on first use,
// then creates a fresh instance that lives for that call only:
//
//	created -> linked -> instantiated -> initialized -> ready <-> running -> disposed
//
// Linking checks the module against the host before any guest code runs:
// every import must resolve, a "memory" export must exist, and the target
// must be exported as (i32) -> i32. Initialization runs the optional hooks
// _initialize, hs_init(0, 0) and nix_wasm_init_v1, in that order.
//
// # Basic Usage
//
//	exec, err := executor.New(eval.NewState(), executor.WithStore(st))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	res, err := exec.Invoke(ctx, executor.File("double.wasm"), "double", eval.Int(21))
//
// Errors are *fault.InvokeError values naming the module and export; use
// fault.KindOf to tell a guest panic from a link or evaluation fault.
//
// # From the evaluator
//
// [Executor.Builtin] returns the three-argument `wasm` function, so
// evaluated code can call guests lazily like any other function.
package executor
