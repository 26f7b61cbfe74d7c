package main

import (
	"fmt"
	"os"

	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/executor"
	"github.com/caffeineduck/nixwasm/store"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nixwasm",
		Short: "Call WebAssembly guests with structured values",
		Long: `nixwasm - call exported functions of WebAssembly modules with
structured values, the way builtins.wasm does inside an evaluator.

Guests exchange values with the host through handles and may fetch sources
into a local store. Network and local file access are denied unless allowed
explicitly with --allow-host and --allow-path.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (YAML)")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.Bool("no-cache", false, "Disable compilation cache")
	pf.String("store", "", "Store directory (default: user cache dir)")
	pf.StringSlice("allow-host", nil, "Allow fetching from hosts matching pattern (repeatable)")
	pf.StringSlice("allow-path", nil, "Allow adding local paths matching pattern (repeatable)")
	pf.String("system", "", "Platform reported to guests (default: host platform)")
	pf.String("memory", "256mb", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")
	pf.Int("cache-limit", 0, "Max compiled modules kept in memory (0 = unbounded)")

	root.AddCommand(newRunCmd(), newCheckCmd(), newReplCmd(), newStoreCmd(), newConfigCmd())
	return root
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = !verbose
	return cfg.Build()
}

// env is what a command needs to run guests.
type env struct {
	cfg    *cliConfig
	logger *zap.Logger
	state  *eval.State
	store  *store.Local
	exec   *executor.Executor
}

func newEnv(cmd *cobra.Command, withExecutor bool) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	st, err := store.NewLocal(store.Config{
		Dir:          cfg.Store.Dir,
		AllowedHosts: cfg.Store.AllowedHosts,
		AllowedPaths: cfg.Store.AllowedPaths,
		GitHubURL:    cfg.Store.GitHubURL,
	}, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var stateOpts []eval.Option
	if cfg.System != "" {
		stateOpts = append(stateOpts, eval.WithSystem(cfg.System))
	}

	e := &env{cfg: cfg, logger: logger, state: eval.NewState(stateOpts...), store: st}
	if !withExecutor {
		return e, nil
	}

	execOpts := []executor.ExecutorOption{
		executor.WithStore(st),
		executor.WithLogger(logger),
		executor.WithStdout(cmd.OutOrStdout()),
		executor.WithStderr(cmd.ErrOrStderr()),
		executor.WithCacheLimit(cfg.CacheLimit),
	}
	if !cfg.NoCache {
		execOpts = append(execOpts, executor.WithDiskCache())
	}
	if pages := parseMemoryLimit(cfg.Memory); pages > 0 {
		execOpts = append(execOpts, executor.WithMemoryLimit(pages))
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		execOpts = append(execOpts, executor.WithHostCallTracing())
	}

	e.exec, err = executor.New(e.state, execOpts...)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *env) Close() error {
	var result error
	if e.exec != nil {
		if err := e.exec.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	// Sync fails on terminals; nothing useful to report.
	_ = e.logger.Sync()
	return result
}

// parseValue decodes YAML, or JSON, into a value. Empty input is null.
func (e *env) parseValue(data []byte) (*eval.Value, error) {
	var x any
	if err := yaml.Unmarshal(data, &x); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	return e.state.FromGo(x)
}
