// Package hostfunc implements the host functions a guest module imports
// from "env" to work with host values.
//
// # Overview
//
// A guest never holds a host value directly. It holds integer handles into
// the value table of its [Guest], and every host function takes and
// returns handles, scalars, or (pointer, length) pairs into guest memory.
// The [Guest] for the running call travels in the context; bind it with
// [WithGuest] before instantiating the module.
//
// # Registry
//
// [NewRegistry] always holds the built-in catalog. Embedders may add
// functions under new names and wrap every handler in middleware:
//
//	registry, err := hostfunc.NewRegistry(
//	    hostfunc.WithMiddleware(hostfunc.LogCalls()),
//	    hostfunc.WithFunc(hostfunc.Func{
//	        Name:    "get_time",
//	        Results: []api.ValueType{api.ValueTypeI64},
//	        Handler: getTime,
//	    }),
//	)
//	err = registry.Link(ctx, runtime)
//
// # Faults
//
// A handler that returns an error traps the guest. The error is a
// *fault.Error; its kind tells marshalling faults (bad handles, memory out
// of bounds) apart from evaluation errors and guest panics.
//
// Effectful functions (fetches, store insertion, dependency lookup) are
// the exception: when the operation itself fails they return 0 and log a
// warning, so a guest can fall back. Bad pointers passed to them still
// trap.
//
// # Buffers
//
// Functions that export variable-length data take a destination pointer
// and capacity. If the data does not fit nothing is written; either way
// the required size is returned, so the guest can retry with a larger
// buffer.
package hostfunc
