// Package sandbox runs one guest export in a single call, with its own
// executor and, optionally, its own store. It suits scripts and tests;
// long-lived callers should keep an executor.Executor instead.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/executor"
	"github.com/caffeineduck/nixwasm/store"
	"go.uber.org/zap"
)

type Result struct {
	Value *eval.Value
	// Output is the deeply forced value in expression syntax.
	Output   string
	Duration time.Duration
	Error    error
}

type Config struct {
	Timeout time.Duration
	// System overrides the platform reported by get_system.
	System string

	// StoreDir enables the fetch and add host functions. Without it they
	// fail softly.
	StoreDir     string
	AllowedHosts []string
	AllowedPaths []string

	// Dependencies maps names to store paths for resolve_dependency.
	Dependencies map[string]string
	OutPath      string

	Logger *zap.Logger
	Stdout io.Writer
	Stderr io.Writer
}

func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// Run calls export in wasm with arg, converted with eval.State.FromGo.
func Run(wasm []byte, export string, arg any, cfg Config) Result {
	return run(executor.Bytes("module.wasm", wasm), export, arg, cfg)
}

// RunFile is Run for a module on disk.
func RunFile(path, export string, arg any, cfg Config) Result {
	return run(executor.File(path), export, arg, cfg)
}

func run(src executor.Source, export string, arg any, cfg Config) Result {
	start := time.Now()
	res := Result{}
	res.Value, res.Output, res.Error = call(src, export, arg, cfg)
	res.Duration = time.Since(start)
	return res
}

func call(src executor.Source, export string, arg any, cfg Config) (*eval.Value, string, error) {
	var stateOpts []eval.Option
	if cfg.System != "" {
		stateOpts = append(stateOpts, eval.WithSystem(cfg.System))
	}
	state := eval.NewState(stateOpts...)

	opts := []executor.ExecutorOption{executor.WithLogger(cfg.Logger)}
	if cfg.Stdout != nil {
		opts = append(opts, executor.WithStdout(cfg.Stdout))
	}
	if cfg.Stderr != nil {
		opts = append(opts, executor.WithStderr(cfg.Stderr))
	}
	if cfg.StoreDir != "" {
		var storeOpts []store.Option
		if cfg.Logger != nil {
			storeOpts = append(storeOpts, store.WithLogger(cfg.Logger))
		}
		st, err := store.NewLocal(store.Config{
			Dir:          cfg.StoreDir,
			AllowedHosts: cfg.AllowedHosts,
			AllowedPaths: cfg.AllowedPaths,
		}, storeOpts...)
		if err != nil {
			return nil, "", err
		}
		opts = append(opts, executor.WithStore(st))
	}

	exec, err := executor.New(state, opts...)
	if err != nil {
		return nil, "", err
	}
	defer exec.Close()

	argValue, err := state.FromGo(arg)
	if err != nil {
		return nil, "", fmt.Errorf("convert argument: %w", err)
	}

	runOpts := []executor.Option{executor.WithTimeout(cfg.Timeout)}
	if len(cfg.Dependencies) > 0 {
		deps := make(map[string]any, len(cfg.Dependencies))
		for k, v := range cfg.Dependencies {
			deps[k] = v
		}
		v, err := state.FromGo(deps)
		if err != nil {
			return nil, "", err
		}
		runOpts = append(runOpts, executor.WithDependencies(v))
	}
	if cfg.OutPath != "" {
		runOpts = append(runOpts, executor.WithOutPath(eval.String(cfg.OutPath)))
	}

	v, err := exec.Invoke(context.Background(), src, export, argValue, runOpts...)
	if err != nil {
		return nil, "", err
	}
	out, err := state.Sprint(v)
	if err != nil {
		return v, "", err
	}
	return v, out, nil
}
