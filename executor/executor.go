package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/fault"
	"github.com/caffeineduck/nixwasm/hostfunc"
	"github.com/caffeineduck/nixwasm/store"
	"github.com/hashicorp/go-multierror"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// ErrClosed is returned by calls on a closed Executor.
var ErrClosed = errors.New("executor is closed")

// Executor owns the wazero runtime, the linked host functions and the
// compiled module cache. It is safe for concurrent use; each Invoke gets
// its own guest instance.
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	modules  *ModuleCache
	registry *hostfunc.Registry
	state    *eval.State
	store    store.Store
	logger   *zap.Logger
	stdout   io.Writer
	stderr   io.Writer

	mu     sync.RWMutex
	closed bool
}

// New creates an Executor evaluating values with state.
func New(state *eval.State, opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if state == nil {
		state = eval.NewState()
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	cleanup := func() {
		rt.Close(ctx)
		if cache != nil {
			cache.Close(ctx)
		}
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		cleanup()
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	registry := cfg.registry
	if registry == nil {
		var ropts []hostfunc.RegistryOption
		if cfg.traceHostCalls {
			ropts = append(ropts, hostfunc.WithMiddleware(hostfunc.LogCalls()))
		}
		if registry, err = hostfunc.NewRegistry(ropts...); err != nil {
			cleanup()
			return nil, err
		}
	}
	if err := registry.Link(ctx, rt); err != nil {
		cleanup()
		return nil, fmt.Errorf("link host functions: %w", err)
	}

	modules, err := newModuleCache(rt, cfg.cacheLimit, cfg.logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	e := &Executor{
		runtime:  rt,
		cache:    cache,
		modules:  modules,
		registry: registry,
		state:    state,
		store:    cfg.store,
		logger:   cfg.logger,
		stdout:   cfg.stdout,
		stderr:   cfg.stderr,
	}

	for _, src := range cfg.precompile {
		if _, err := e.modules.Get(ctx, src); err != nil {
			e.Close()
			return nil, fmt.Errorf("precompile %s: %w", sourceName(src), err)
		}
	}

	return e, nil
}

// State returns the evaluator state values are forced with.
func (e *Executor) State() *eval.State { return e.state }

// Modules returns the compiled module cache.
func (e *Executor) Modules() *ModuleCache { return e.modules }

// Registry returns the linked host functions.
func (e *Executor) Registry() *hostfunc.Registry { return e.registry }

func (e *Executor) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// Invoke calls export in the module from src with arg. The module is
// compiled on first use and instantiated fresh for this call. Any failure
// is returned as a *fault.InvokeError naming the module and export.
func (e *Executor) Invoke(ctx context.Context, src Source, export string, arg *eval.Value, opts ...Option) (*eval.Value, error) {
	res, err := e.invoke(ctx, src, export, arg, opts...)
	if err != nil {
		return nil, &fault.InvokeError{Module: sourceName(src), Export: export, Err: err}
	}
	return res, nil
}

func (e *Executor) invoke(ctx context.Context, src Source, export string, arg *eval.Value, opts ...Option) (*eval.Value, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	m, err := e.modules.Get(ctx, src)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	in := e.newInstance(m)
	defer func() {
		if err := in.close(context.Background()); err != nil {
			in.logger.Warn("close instance", zap.Error(err))
		}
	}()

	if err := in.bind(cfg); err != nil {
		return nil, err
	}
	if err := in.link(export); err != nil {
		return nil, err
	}

	ctx = hostfunc.WithGuest(ctx, in.guest)
	if err := in.instantiate(ctx); err != nil {
		return nil, err
	}
	if err := in.initialize(ctx); err != nil {
		return nil, err
	}

	res, err := in.call(ctx, export, arg)
	if err != nil {
		return nil, err
	}
	in.logger.Debug("invocation finished",
		zap.String("function", export),
		zap.Duration("duration", time.Since(start)),
		zap.Int("handles", in.guest.Values.Len()),
	)
	return res, nil
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	var result error
	if err := e.modules.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := e.runtime.Close(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("close runtime: %w", err))
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("close compilation cache: %w", err))
		}
	}
	return result
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "nixwasm", "wazero")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "nixwasm", "wazero")
	}
	return filepath.Join(os.TempDir(), "nixwasm-cache")
}
