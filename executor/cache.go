package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/nixwasm/fault"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Module is a compiled guest module. It is immutable and shared by every
// invocation of the same source.
type Module struct {
	ID       string
	Name     string
	compiled wazero.CompiledModule
}

// Compiled returns the underlying wazero module.
func (m *Module) Compiled() wazero.CompiledModule { return m.compiled }

// ModuleCache compiles each source at most once. Concurrent requests for
// a source that is still compiling wait for that compilation.
type ModuleCache struct {
	rt      wazero.Runtime
	logger  *zap.Logger
	flights singleflight.Group

	// Exactly one of entries and bounded is used.
	mu      sync.RWMutex
	entries map[string]*Module
	bounded *lru.Cache[string, *Module]

	compiles atomic.Int64
}

func newModuleCache(rt wazero.Runtime, limit int, logger *zap.Logger) (*ModuleCache, error) {
	c := &ModuleCache{rt: rt, logger: logger}
	if limit <= 0 {
		c.entries = make(map[string]*Module)
		return c, nil
	}
	bounded, err := lru.NewWithEvict(limit, func(id string, m *Module) {
		logger.Debug("evicting compiled module", zap.String("module", m.Name))
		// Instances still running keep working after the compiled module is closed.
		m.compiled.Close(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("create module cache: %w", err)
	}
	c.bounded = bounded
	return c, nil
}

func (c *ModuleCache) lookup(id string) (*Module, bool) {
	if c.bounded != nil {
		return c.bounded.Get(id)
	}
	c.mu.RLock()
	m, ok := c.entries[id]
	c.mu.RUnlock()
	return m, ok
}

func (c *ModuleCache) insert(m *Module) {
	if c.bounded != nil {
		c.bounded.Add(m.ID, m)
		return
	}
	c.mu.Lock()
	c.entries[m.ID] = m
	c.mu.Unlock()
}

// Get returns the compiled module for src, compiling it on first use.
func (c *ModuleCache) Get(ctx context.Context, src Source) (*Module, error) {
	id := src.ID()
	if m, ok := c.lookup(id); ok {
		return m, nil
	}

	v, err, _ := c.flights.Do(id, func() (any, error) {
		if m, ok := c.lookup(id); ok {
			return m, nil
		}

		name := sourceName(src)
		bin, err := src.Load()
		if err != nil {
			return nil, fault.New(fault.KindCompile, "load", fmt.Errorf("load %s: %w", name, err))
		}
		// Shared by every waiter, so no single caller's deadline applies.
		compiled, err := c.rt.CompileModule(context.WithoutCancel(ctx), bin)
		if err != nil {
			return nil, fault.New(fault.KindCompile, "compile", fmt.Errorf("compile %s: %w", name, err))
		}
		c.compiles.Add(1)
		c.logger.Debug("compiled module", zap.String("module", name), zap.Int("bytes", len(bin)))

		m := &Module{ID: id, Name: name, compiled: compiled}
		c.insert(m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Module), nil
}

// Len returns the number of cached modules.
func (c *ModuleCache) Len() int {
	if c.bounded != nil {
		return c.bounded.Len()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Compiles returns how many compilations the cache has performed.
func (c *ModuleCache) Compiles() int64 { return c.compiles.Load() }

// Close releases every cached module.
func (c *ModuleCache) Close(ctx context.Context) error {
	if c.bounded != nil {
		// Purge runs the eviction callback for every entry.
		c.bounded.Purge()
		return nil
	}

	var modules []*Module
	c.mu.Lock()
	for _, m := range c.entries {
		modules = append(modules, m)
	}
	c.entries = make(map[string]*Module)
	c.mu.Unlock()

	var result error
	for _, m := range modules {
		if err := m.compiled.Close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", m.Name, err))
		}
	}
	return result
}
