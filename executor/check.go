package executor

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/caffeineduck/nixwasm/fault"
	"github.com/caffeineduck/nixwasm/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Initialization hooks, run in this order when exported.
const (
	HookInitialize = "_initialize"
	HookHaskell    = "hs_init"
	HookNix        = "nix_wasm_init_v1"
)

type signature struct {
	params, results []api.ValueType
}

func (s signature) String() string {
	return fmt.Sprintf("(%s) -> (%s)", typeList(s.params), typeList(s.results))
}

func typeList(ts []api.ValueType) string {
	out := ""
	for i, t := range ts {
		if i > 0 {
			out += ", "
		}
		out += api.ValueTypeName(t)
	}
	return out
}

func (s signature) matches(def api.FunctionDefinition) bool {
	return slices.Equal(s.params, def.ParamTypes()) && slices.Equal(s.results, def.ResultTypes())
}

func signatureOf(def api.FunctionDefinition) signature {
	return signature{params: def.ParamTypes(), results: def.ResultTypes()}
}

var (
	hooks = []struct {
		name string
		sig  signature
	}{
		{HookInitialize, signature{}},
		{HookHaskell, signature{params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}}},
		{HookNix, signature{}},
	}

	targetSignature = signature{
		params:  []api.ValueType{api.ValueTypeI32},
		results: []api.ValueType{api.ValueTypeI32},
	}
)

// Import is one function import of a guest module.
type Import struct {
	Module   string
	Name     string
	Resolved bool
}

// Report describes how a compiled module fits the host ABI.
type Report struct {
	Module  string
	Export  string
	Imports []Import
	Memory  bool
	// Target reports whether Export exists with the (i32) -> i32 signature.
	Target bool
	// Hooks lists the initialization hooks the module exports, in run order.
	Hooks    []string
	Problems []string
}

// OK reports whether the module can be invoked.
func (r *Report) OK() bool { return len(r.Problems) == 0 }

// Err returns the first problem as a link fault, or nil.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return fault.Linkf("link", "%s", r.Problems[0])
}

func (r *Report) problem(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// checkModule compares the module's imports and exports with what the
// runtime provides. An empty export skips the target check.
func checkModule(rt wazero.Runtime, m *Module, export string) *Report {
	r := &Report{Module: m.Name, Export: export}
	compiled := m.compiled

	for _, def := range compiled.ImportedFunctions() {
		modName, name, _ := def.Import()
		imp := Import{Module: modName, Name: name}
		r.Imports = append(r.Imports, imp)

		if !importableModule(modName) {
			r.problem("import %s.%s: module %q is not provided by the host", modName, name, modName)
			continue
		}
		host := rt.Module(modName)
		if host == nil {
			r.problem("import %s.%s: module %q is not instantiated", modName, name, modName)
			continue
		}
		// Host modules panic on ExportedFunction; only definitions are readable.
		provided, ok := host.ExportedFunctionDefinitions()[name]
		if !ok {
			r.problem("import %s.%s: no such host function", modName, name)
			continue
		}
		if want := signatureOf(provided); !want.matches(def) {
			r.problem("import %s.%s has signature %s, host provides %s", modName, name, signatureOf(def), want)
			continue
		}
		r.Imports[len(r.Imports)-1].Resolved = true
	}

	for _, def := range compiled.ImportedMemories() {
		modName, name, _ := def.Import()
		r.problem("import %s.%s: the host does not provide memories", modName, name)
	}

	exports := compiled.ExportedFunctions()
	_, r.Memory = compiled.ExportedMemories()["memory"]
	if !r.Memory {
		r.problem("module does not export a memory named 'memory'")
	}

	for _, h := range hooks {
		def, ok := exports[h.name]
		if !ok {
			continue
		}
		r.Hooks = append(r.Hooks, h.name)
		if !h.sig.matches(def) {
			r.problem("hook '%s' has signature %s, expected %s", h.name, signatureOf(def), h.sig)
		}
	}

	if export != "" {
		def, ok := exports[export]
		switch {
		case ok && targetSignature.matches(def):
			r.Target = true
		case ok:
			r.problem("export '%s' has signature %s, expected %s", export, signatureOf(def), targetSignature)
		case !ok && exportsNonFunction(compiled, export):
			r.problem("export '%s' is not a function", export)
		case !ok:
			r.problem("module does not export function '%s'", export)
		}
	}

	sort.SliceStable(r.Imports, func(i, j int) bool {
		if r.Imports[i].Module != r.Imports[j].Module {
			return r.Imports[i].Module < r.Imports[j].Module
		}
		return r.Imports[i].Name < r.Imports[j].Name
	})
	return r
}

func importableModule(name string) bool {
	return name == hostfunc.ModuleName || name == wasi_snapshot_preview1.ModuleName
}

func exportsNonFunction(compiled wazero.CompiledModule, name string) bool {
	_, ok := compiled.ExportedMemories()[name]
	return ok
}

// Check compiles src and reports whether it fits the host ABI, without
// running any guest code. An empty export skips the target check.
func (e *Executor) Check(ctx context.Context, src Source, export string) (*Report, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	m, err := e.modules.Get(ctx, src)
	if err != nil {
		return nil, err
	}
	return checkModule(e.runtime, m, export), nil
}
