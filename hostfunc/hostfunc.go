package hostfunc

import (
	"context"
	"fmt"
	"sort"

	"github.com/caffeineduck/nixwasm/fault"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ModuleName is the import module every host function is registered under.
const ModuleName = "env"

// Handler implements one host function. Parameters arrive in stack and
// results are written back to it, as with [api.GoModuleFunc]. A returned
// error traps the guest.
type Handler func(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error

// Func describes a host function and its wasm signature.
type Func struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	Handler Handler
}

// Registry is an immutable set of host functions linked into every guest.
// It always holds the built-in catalog; options may add functions with new
// names and wrap every handler in middleware.
type Registry struct {
	funcs map[string]Func
	names []string
}

type registryBuilder struct {
	funcs      map[string]Func
	middleware []Middleware
	errs       []error
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryBuilder)

// WithFunc adds a host function. Names already taken, including those of
// the built-in catalog, are rejected.
func WithFunc(f Func) RegistryOption {
	return func(b *registryBuilder) {
		if err := b.add(f); err != nil {
			b.errs = append(b.errs, err)
		}
	}
}

// WithMiddleware wraps every handler. The first middleware given is the
// outermost, and all of them run inside the built-in recovery and
// interruption checks.
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}

func (b *registryBuilder) add(f Func) error {
	if f.Name == "" {
		return fmt.Errorf("host function name cannot be empty")
	}
	if f.Handler == nil {
		return fmt.Errorf("host function %q has no handler", f.Name)
	}
	if _, exists := b.funcs[f.Name]; exists {
		return fmt.Errorf("duplicate host function name: %q", f.Name)
	}
	b.funcs[f.Name] = f
	return nil
}

// NewRegistry returns a registry holding the built-in catalog plus
// whatever the options add.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	b := &registryBuilder{funcs: make(map[string]Func)}
	for _, f := range catalog() {
		if err := b.add(f); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	chain := append([]Middleware{Recover(), CheckInterrupt()}, b.middleware...)

	r := &Registry{
		funcs: make(map[string]Func, len(b.funcs)),
		names: make([]string, 0, len(b.funcs)),
	}
	for name, f := range b.funcs {
		h := f.Handler
		for i := len(chain) - 1; i >= 0; i-- {
			h = chain[i](name, h)
		}
		f.Handler = h
		r.funcs[name] = f
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Has reports whether a function with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// Lookup returns the registered function with the given name.
func (r *Registry) Lookup(name string) (Func, bool) {
	f, ok := r.funcs[name]
	return f, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Link instantiates the registry as the host module "env" in rt. It must
// be called once per runtime, before any guest that imports from it is
// instantiated.
func (r *Registry) Link(ctx context.Context, rt wazero.Runtime) error {
	b := rt.NewHostModuleBuilder(ModuleName)
	for _, name := range r.names {
		f := r.funcs[name]
		b.NewFunctionBuilder().
			WithGoModuleFunction(r.adapt(name), f.Params, f.Results).
			WithName(name).
			Export(name)
	}
	if _, err := b.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate host module %q: %w", ModuleName, err)
	}
	return nil
}

// adapt turns a handler error into a wazero trap. wazero recovers the
// panic and returns it, wrapped, from the guest call.
func (r *Registry) adapt(name string) api.GoModuleFunction {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		if err := r.invoke(ctx, mod, name, stack); err != nil {
			panic(err)
		}
	})
}

func (r *Registry) invoke(ctx context.Context, mod api.Module, name string, stack []uint64) error {
	f, ok := r.funcs[name]
	if !ok {
		return fault.Linkf(name, "unknown host function")
	}
	g, ok := GuestFrom(ctx)
	if !ok {
		return fault.Linkf(name, "host function called outside a guest invocation")
	}
	if err := f.Handler(ctx, g, mod, stack); err != nil {
		e := fault.Classify(name, err)
		if e.Op != name {
			e = fault.New(e.Kind, name, e)
		}
		return e
	}
	return nil
}
