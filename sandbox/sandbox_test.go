package sandbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caffeineduck/nixwasm/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wippyai/wasm-runtime/wat"
)

// Integration tests - full guest execution.
// Unit tests for individual components are in their respective packages.

func mustCompile(t *testing.T, src string) []byte {
	t.Helper()
	bin, err := wat.Compile(src)
	require.NoError(t, err)
	return bin
}

const identityWAT = `
(module
  (memory (export "memory") 1)
  (func (export "id") (param i32) (result i32) (local.get 0)))
`

func TestRunDouble(t *testing.T) {
	bin := mustCompile(t, `
(module
  (import "env" "get_int" (func $get_int (param i32) (result i64)))
  (import "env" "make_int" (func $make_int (param i64) (result i32)))
  (memory (export "memory") 1)
  (func (export "double") (param $v i32) (result i32)
    (call $make_int (i64.mul (call $get_int (local.get $v)) (i64.const 2)))))
`)

	result := Run(bin, "double", 21, DefaultConfig())
	require.NoError(t, result.Error)
	assert.Equal(t, "42", result.Output)
	assert.Equal(t, int64(42), result.Value.Int())
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestRunConvertsArgument(t *testing.T) {
	bin := mustCompile(t, identityWAT)

	result := Run(bin, "id", map[string]any{"b": []any{1, "two"}, "a": true}, DefaultConfig())
	require.NoError(t, result.Error)
	assert.Equal(t, `{ a = true; b = [ 1 "two" ]; }`, result.Output)

	result = Run(bin, "id", struct{}{}, DefaultConfig())
	assert.ErrorContains(t, result.Error, "convert argument")
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.wasm")
	require.NoError(t, os.WriteFile(path, mustCompile(t, identityWAT), 0o644))

	result := RunFile(path, "id", "hi", DefaultConfig())
	require.NoError(t, result.Error)
	assert.Equal(t, `"hi"`, result.Output)
}

func TestRunTimeout(t *testing.T) {
	bin := mustCompile(t, `
(module
  (memory (export "memory") 1)
  (func (export "spin") (param i32) (result i32)
    (loop $l (br $l))
    (i32.const 0)))
`)

	result := Run(bin, "spin", nil, Config{Timeout: 100 * time.Millisecond})
	require.Error(t, result.Error)
	assert.True(t, fault.IsKind(result.Error, fault.KindInterrupted))
}

func TestRunDependenciesAndSystem(t *testing.T) {
	bin := mustCompile(t, `
(module
  (import "env" "resolve_dependency" (func $resolve (param i32 i32 i32 i32) (result i32)))
  (import "env" "get_system" (func $system (param i32 i32) (result i32)))
  (import "env" "make_string" (func $make_string (param i32 i32) (result i32)))
  (memory (export "memory") 1)
  (data (i32.const 0) "zlib")
  (func (export "dep") (param i32) (result i32)
    (call $make_string (i32.const 1024)
      (call $resolve (i32.const 0) (i32.const 4) (i32.const 1024) (i32.const 256))))
  (func (export "system") (param i32) (result i32)
    (call $make_string (i32.const 1024)
      (call $system (i32.const 1024) (i32.const 256)))))
`)

	cfg := DefaultConfig()
	cfg.Dependencies = map[string]string{"zlib": "/nix/store/abc-zlib"}
	cfg.System = "aarch64-darwin"

	result := Run(bin, "dep", nil, cfg)
	require.NoError(t, result.Error)
	assert.Equal(t, `"/nix/store/abc-zlib"`, result.Output)

	result = Run(bin, "system", nil, cfg)
	require.NoError(t, result.Error)
	assert.Equal(t, `"aarch64-darwin"`, result.Output)
}

func TestRunAddToStore(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	bin := mustCompile(t, `
(module
  (import "env" "add_to_store" (func $add (param i32 i32 i32 i32) (result i32)))
  (import "env" "make_string" (func $make_string (param i32 i32) (result i32)))
  (import "env" "copy_string" (func $copy_string (param i32 i32 i32) (result i32)))
  (memory (export "memory") 1)
  (func (export "add") (param $p i32) (result i32)
    (call $make_string (i32.const 1024)
      (call $add (i32.const 0) (call $copy_string (local.get $p) (i32.const 0) (i32.const 512))
                 (i32.const 1024) (i32.const 256)))))
`)

	cfg := DefaultConfig()
	cfg.StoreDir = filepath.Join(dir, "store")
	cfg.AllowedPaths = []string{dir + "/**"}

	result := Run(bin, "add", src, cfg)
	require.NoError(t, result.Error)
	assert.Contains(t, result.Output, filepath.Join(dir, "store"))
	assert.Contains(t, result.Output, "-input.txt")

	cfg.AllowedPaths = nil
	result = Run(bin, "add", src, cfg)
	require.NoError(t, result.Error)
	assert.Equal(t, `""`, result.Output)
}

func TestRunInvalidModule(t *testing.T) {
	result := Run([]byte("not wasm"), "run", nil, DefaultConfig())
	assert.True(t, fault.IsKind(result.Error, fault.KindCompile))
	assert.Nil(t, result.Value)
}
