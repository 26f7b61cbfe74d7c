package hostfunc

import (
	"context"
	"errors"
	"runtime"

	"github.com/caffeineduck/nixwasm/bridge"
	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/fault"
	"github.com/caffeineduck/nixwasm/store"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

var errNoStore = errors.New("no store configured")

// effectResult is the outcome of an effectful operation. A failed effect
// is reported to the guest as length 0 and logged; it never traps.
type effectResult struct {
	value string
	err   error
}

func succeeded(s string) effectResult { return effectResult{value: s} }

func failed(err error) effectResult { return effectResult{err: err} }

// effect runs fn and converts its result for the guest. String arguments
// are read by fn before it does any I/O, so bad pointers trap; errors fn
// returns directly are faults and trap too. Only failures carried in the
// effectResult are softened.
func effect(op string, outArg int, fn func(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (effectResult, error)) Handler {
	return func(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
		ptr, capacity := argU32(stack, outArg), argU32(stack, outArg+1)
		res, err := fn(ctx, g, mod, stack)
		if err != nil {
			return err
		}
		if res.err != nil {
			f := effectFault(op, res.err)
			if f.Kind != fault.KindEffect {
				return f
			}
			// A cancelled context during I/O still ends the call.
			if ctx.Err() != nil {
				return fault.Classify(op, ctx.Err())
			}
			g.warn(op+" failed", zap.Error(f))
			stack[0] = 0
			return nil
		}
		n, err := writeOut(mod, op, res.value, ptr, capacity)
		stack[0] = api.EncodeU32(n)
		return err
	}
}

// effectFault classifies a soft failure. Faults keep their kind; plain
// errors become KindEffect.
func effectFault(op string, err error) *fault.Error {
	var f *fault.Error
	if errors.As(err, &f) {
		return f
	}
	return fault.Effect(op, err)
}

// readStrings reads consecutive (ptr, len) pairs starting at parameter 0.
func readStrings(mod api.Module, op string, stack []uint64, n int) ([]string, error) {
	out := make([]string, n)
	for i := range out {
		s, err := readString(mod, op, argU32(stack, 2*i), argU32(stack, 2*i+1))
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (g *Guest) storePath(p store.Path, err error) effectResult {
	if err != nil {
		return failed(err)
	}
	return succeeded(g.Store.PrintStorePath(p))
}

func fetchURL(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (effectResult, error) {
	args, err := readStrings(mod, "fetch_url", stack, 2)
	if err != nil {
		return effectResult{}, err
	}
	if g.Store == nil {
		return failed(errNoStore), nil
	}
	g.logger().Debug("fetch_url", zap.String("url", args[0]))
	return g.storePath(g.Store.FetchURL(ctx, args[0], args[1])), nil
}

func fetchGit(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (effectResult, error) {
	args, err := readStrings(mod, "fetch_git", stack, 3)
	if err != nil {
		return effectResult{}, err
	}
	if g.Store == nil {
		return failed(errNoStore), nil
	}
	g.logger().Debug("fetch_git", zap.String("url", args[0]), zap.String("rev", args[1]))
	return g.storePath(g.Store.FetchGit(ctx, store.GitInput{URL: args[0], Rev: args[1], NarHash: args[2]})), nil
}

func fetchGitHub(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (effectResult, error) {
	args, err := readStrings(mod, "fetch_github", stack, 4)
	if err != nil {
		return effectResult{}, err
	}
	if g.Store == nil {
		return failed(errNoStore), nil
	}
	g.logger().Debug("fetch_github",
		zap.String("repo", args[0]+"/"+args[1]), zap.String("rev", args[2]))
	return g.storePath(g.Store.FetchGitHub(ctx, store.GitHubInput{
		Owner: args[0], Repo: args[1], Rev: args[2], NarHash: args[3],
	})), nil
}

// addToStore copies a path, rooted like make_path, into the store.
func addToStore(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (effectResult, error) {
	args, err := readStrings(mod, "add_to_store", stack, 1)
	if err != nil {
		return effectResult{}, err
	}
	if g.Store == nil {
		return failed(errNoStore), nil
	}
	return g.storePath(g.Store.AddToStore(ctx, g.State.RootPath(args[0]))), nil
}

// resolveDependency looks a name up in the dependency registry slot and
// coerces the entry to a string. A missing slot or name fails softly;
// evaluation errors while forcing or coercing trap.
func resolveDependency(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (effectResult, error) {
	args, err := readStrings(mod, "resolve_dependency", stack, 1)
	if err != nil {
		return effectResult{}, err
	}
	name := args[0]
	if g.Dependencies == bridge.Absent {
		return failed(errors.New("no dependency registry available")), nil
	}
	reg, err := g.Values.Resolve(g.Dependencies)
	if err != nil {
		return effectResult{}, err
	}
	attrs, err := g.State.ForceAttrs(reg)
	if err != nil {
		return effectResult{}, eval.AddTrace(err, "while resolving dependency from WASM")
	}
	dep, ok := attrs.Get(name)
	if !ok {
		return failed(errors.New("dependency '" + name + "' not found in registry")), nil
	}
	p, _, err := g.State.CoerceToString(dep)
	if err != nil {
		return effectResult{}, eval.AddTrace(err, "while resolving dependency store path")
	}
	g.logger().Debug("resolved dependency", zap.String("name", name), zap.String("path", p))
	return succeeded(p), nil
}

func getSystem(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (effectResult, error) {
	return succeeded(g.State.System()), nil
}

func getCores(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	stack[0] = api.EncodeU32(uint32(max(runtime.NumCPU(), 1)))
	return nil
}

// getOutPath coerces the output path slot to a string. Without one it
// reports a placeholder inside the store directory.
func getOutPath(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (effectResult, error) {
	args, err := readStrings(mod, "get_out_path", stack, 1)
	if err != nil {
		return effectResult{}, err
	}
	if g.OutPath == bridge.Absent {
		dir := DefaultStoreDir
		if g.Store != nil {
			dir = g.Store.Dir()
		}
		return succeeded(dir + "/placeholder-" + args[0]), nil
	}
	out, err := g.Values.Resolve(g.OutPath)
	if err != nil {
		return effectResult{}, err
	}
	p, _, err := g.State.CoerceToString(out)
	if err != nil {
		return effectResult{}, eval.AddTrace(err, "while getting output path")
	}
	return succeeded(p), nil
}
