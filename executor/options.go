package executor

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/hostfunc"
	"github.com/caffeineduck/nixwasm/store"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Option configures a single invocation.
type Option func(*runConfig)

type runConfig struct {
	timeout      time.Duration
	dependencies *eval.Value
	outPath      *eval.Value
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: 30 * time.Second,
	}
}

// WithTimeout sets the maximum execution time. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithDependencies binds the dependency registry read by
// resolve_dependency: a set mapping names to store paths or to sets with
// an outPath.
func WithDependencies(v *eval.Value) Option {
	return func(c *runConfig) {
		c.dependencies = v
	}
}

// WithOutPath binds the value reported by get_out_path.
func WithOutPath(v *eval.Value) Option {
	return func(c *runConfig) {
		c.outPath = v
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Source
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = wazero default (4GB)
	cacheLimit       int    // Max compiled modules kept, 0 = unbounded
	logger           *zap.Logger
	store            store.Store
	registry         *hostfunc.Registry
	traceHostCalls   bool
	stdout, stderr   io.Writer
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger: zap.NewNop(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

var validate = validator.New()

func (c *executorConfig) validate() error {
	if err := validate.Var(c.memoryLimitPages, "lte=65536"); err != nil {
		return fmt.Errorf("invalid memory limit %d pages: %w", c.memoryLimitPages, err)
	}
	if err := validate.Var(c.cacheLimit, "gte=0"); err != nil {
		return fmt.Errorf("invalid cache limit %d: %w", c.cacheLimit, err)
	}
	if c.registry != nil && c.traceHostCalls {
		return fmt.Errorf("WithHostCallTracing cannot be combined with WithRegistry; add hostfunc.LogCalls to the registry instead")
	}
	return nil
}

// WithDiskCache enables the persistent wazero compilation cache.
// Optionally provide a custom directory; otherwise uses
// ~/.cache/nixwasm/wazero or XDG_CACHE_HOME/nixwasm/wazero.
//
// Examples:
//
//	executor.New(state, executor.WithDiskCache())            // default dir
//	executor.New(state, executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the given modules at Executor creation time.
func WithPrecompile(srcs ...Source) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = srcs
	}
}

// WithMemoryLimit sets the maximum memory available to a guest instance.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

// WithCacheLimit bounds the number of compiled modules kept in memory.
// The least recently used module is evicted first. Zero, the default,
// keeps every module for the life of the Executor.
func WithCacheLimit(n int) ExecutorOption {
	return func(c *executorConfig) {
		c.cacheLimit = n
	}
}

// WithLogger sets the logger for lifecycle events and guest warnings.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(c *executorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStore sets the store used by the fetch and add host functions.
// Without one those functions always fail softly.
func WithStore(s store.Store) ExecutorOption {
	return func(c *executorConfig) {
		c.store = s
	}
}

// WithRegistry replaces the default host function registry.
func WithRegistry(r *hostfunc.Registry) ExecutorOption {
	return func(c *executorConfig) {
		c.registry = r
	}
}

// WithHostCallTracing logs every host call at debug level.
func WithHostCallTracing() ExecutorOption {
	return func(c *executorConfig) {
		c.traceHostCalls = true
	}
}

// WithStdout sets where guest WASI stdout goes. Default is os.Stdout.
func WithStdout(w io.Writer) ExecutorOption {
	return func(c *executorConfig) {
		c.stdout = w
	}
}

// WithStderr sets where guest WASI stderr goes. Default is os.Stderr.
func WithStderr(w io.Writer) ExecutorOption {
	return func(c *executorConfig) {
		c.stderr = w
	}
}
