package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/caffeineduck/nixwasm/bridge"
	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/fault"
	"github.com/caffeineduck/nixwasm/hostfunc"
	"github.com/gofrs/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

type phase int

const (
	phaseCreated phase = iota
	phaseLinked
	phaseInstantiated
	phaseInitialized
	phaseReady
	phaseRunning
	phaseDisposed
)

func (p phase) String() string {
	switch p {
	case phaseCreated:
		return "created"
	case phaseLinked:
		return "linked"
	case phaseInstantiated:
		return "instantiated"
	case phaseInitialized:
		return "initialized"
	case phaseReady:
		return "ready"
	case phaseRunning:
		return "running"
	case phaseDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// instance is one guest instantiation. It lives for a single invocation
// and runs on the caller's goroutine.
type instance struct {
	exec   *Executor
	module *Module
	guest  *hostfunc.Guest
	mod    api.Module
	phase  phase
	logger *zap.Logger
}

func (e *Executor) newInstance(m *Module) *instance {
	logger := e.logger.With(
		zap.String("module", m.Name),
		zap.String("instance", uuid.Must(uuid.NewV4()).String()),
	)
	g := hostfunc.NewGuest(e.state, m.Name)
	g.Store = e.store
	g.Logger = logger
	return &instance{exec: e, module: m, guest: g, logger: logger}
}

func (in *instance) enter(p phase) {
	in.logger.Debug("instance phase", zap.Stringer("from", in.phase), zap.Stringer("to", p))
	in.phase = p
}

// bind fills the context slots. It must run before any guest code.
func (in *instance) bind(cfg runConfig) error {
	if cfg.dependencies != nil {
		h, err := in.guest.Bind(cfg.dependencies)
		if err != nil {
			return err
		}
		in.guest.Dependencies = h
	}
	if cfg.outPath != nil {
		h, err := in.guest.Bind(cfg.outPath)
		if err != nil {
			return err
		}
		in.guest.OutPath = h
	}
	return nil
}

func (in *instance) link(export string) error {
	if err := checkModule(in.exec.runtime, in.module, export).Err(); err != nil {
		return err
	}
	in.enter(phaseLinked)
	return nil
}

// instantiate runs the module's start section, if any. ctx must already
// carry the guest.
func (in *instance) instantiate(ctx context.Context) error {
	config := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions().
		WithStdout(in.exec.stdout).
		WithStderr(in.exec.stderr)

	in.guest.SetExport("<start>")
	mod, err := in.exec.runtime.InstantiateModule(ctx, in.module.compiled, config)
	if err != nil {
		return guestFault(ctx, "instantiate", err)
	}
	in.mod = mod
	in.enter(phaseInstantiated)
	return nil
}

// initialize runs whichever hooks the module exports, in order.
func (in *instance) initialize(ctx context.Context) error {
	for _, h := range hooks {
		fn := in.mod.ExportedFunction(h.name)
		if fn == nil {
			continue
		}
		in.guest.SetExport(h.name)
		params := make([]uint64, len(h.sig.params))
		if _, err := fn.Call(ctx, params...); err != nil {
			return guestFault(ctx, h.name, err)
		}
		in.logger.Debug("ran initialization hook", zap.String("hook", h.name))
	}
	in.enter(phaseInitialized)
	in.enter(phaseReady)
	return nil
}

// call invokes export with arg and returns the value behind the handle
// it returns.
func (in *instance) call(ctx context.Context, export string, arg *eval.Value) (*eval.Value, error) {
	h, err := in.guest.Bind(arg)
	if err != nil {
		return nil, err
	}

	in.guest.SetExport(export)
	in.enter(phaseRunning)
	results, err := in.mod.ExportedFunction(export).Call(ctx, uint64(h))
	in.enter(phaseReady)
	if err != nil {
		return nil, guestFault(ctx, export, err)
	}

	res, err := in.guest.Values.Resolve(bridge.Handle(api.DecodeU32(results[0])))
	if err != nil {
		return nil, fault.Marshallingf(export, "function returned an invalid value handle: %v", err)
	}
	return res, nil
}

func (in *instance) close(ctx context.Context) error {
	if in.phase == phaseDisposed {
		return nil
	}
	var err error
	if in.mod != nil {
		err = in.mod.Close(ctx)
	}
	in.guest.Values = nil
	in.enter(phaseDisposed)
	return err
}

// guestFault turns an error returned by wazero into a fault. Host faults
// raised inside the guest come back wrapped by wazero and are unwrapped;
// a closed module or cancelled context is an interruption; any other
// runtime error is a trap the guest caused itself.
func guestFault(ctx context.Context, op string, err error) error {
	var f *fault.Error
	if errors.As(err, &f) {
		return f
	}

	var exit *sys.ExitError
	if errors.As(err, &exit) {
		switch exit.ExitCode() {
		case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
			return fault.New(fault.KindInterrupted, op, fmt.Errorf("%w: %w", fault.ErrInterrupted, err))
		}
		return fault.Panicf(op, "guest exited with code %d", exit.ExitCode())
	}
	if ctx.Err() != nil {
		return fault.Classify(op, ctx.Err())
	}
	return fault.New(fault.KindPanic, op, err)
}
