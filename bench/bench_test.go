// Package bench measures the cost of crossing the host/guest boundary.
//
// Run with: go test -bench=. -benchtime=3s ./bench/
package bench

import (
	"context"
	"io"
	"strconv"
	"testing"

	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/executor"
	"github.com/wippyai/wasm-runtime/wat"
)

// =============================================================================
// Every invocation instantiates the module fresh, so the warm numbers are
// dominated by instantiation plus one round of hooks, not by compilation.
// =============================================================================

const doubleWAT = `
(module
  (import "env" "get_int" (func $get_int (param i32) (result i64)))
  (import "env" "make_int" (func $make_int (param i64) (result i32)))
  (memory (export "memory") 1)
  (func (export "double") (param $v i32) (result i32)
    (call $make_int (i64.mul (call $get_int (local.get $v)) (i64.const 2)))))
`

// sum adds the integers of a list through copy_list and get_int.
const sumWAT = `
(module
  (import "env" "get_list_len" (func $len (param i32) (result i32)))
  (import "env" "copy_list" (func $copy (param i32 i32 i32) (result i32)))
  (import "env" "get_int" (func $get_int (param i32) (result i64)))
  (import "env" "make_int" (func $make_int (param i64) (result i32)))
  (memory (export "memory") 4)
  (func (export "sum") (param $l i32) (result i32)
    (local $n i32) (local $i i32) (local $acc i64)
    (local.set $n (call $copy (local.get $l) (i32.const 0) (call $len (local.get $l))))
    (block $done
      (loop $next
        (br_if $done (i32.ge_u (local.get $i) (local.get $n)))
        (local.set $acc (i64.add (local.get $acc)
          (call $get_int (i32.load (i32.mul (local.get $i) (i32.const 4))))))
        (local.set $i (i32.add (local.get $i) (i32.const 1)))
        (br $next)))
    (call $make_int (local.get $acc))))
`

func source(b *testing.B, name, src string) executor.Source {
	b.Helper()
	bin, err := wat.Compile(src)
	if err != nil {
		b.Fatal(err)
	}
	return executor.Bytes(name, bin)
}

func newExecutor(b *testing.B) *executor.Executor {
	b.Helper()
	exec, err := executor.New(eval.NewState(), executor.WithStdout(io.Discard), executor.WithStderr(io.Discard))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { exec.Close() })
	return exec
}

// --- Cold start (new executor, compile every time) ---

func BenchmarkColdStart(b *testing.B) {
	src := source(b, "double.wasm", doubleWAT)
	for i := 0; i < b.N; i++ {
		exec, err := executor.New(eval.NewState())
		if err != nil {
			b.Fatal(err)
		}
		if _, err := exec.Invoke(context.Background(), src, "double", eval.Int(21)); err != nil {
			b.Fatal(err)
		}
		exec.Close()
	}
}

// --- Warm start (compiled module reused) ---

func BenchmarkWarmInvoke(b *testing.B) {
	exec := newExecutor(b)
	src := source(b, "double.wasm", doubleWAT)
	ctx := context.Background()

	if _, err := exec.Invoke(ctx, src, "double", eval.Int(1)); err != nil { // warmup
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := exec.Invoke(ctx, src, "double", eval.Int(int64(i))); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkWarmInvokeParallel(b *testing.B) {
	exec := newExecutor(b)
	src := source(b, "double.wasm", doubleWAT)
	ctx := context.Background()

	if _, err := exec.Invoke(ctx, src, "double", eval.Int(1)); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := exec.Invoke(ctx, src, "double", eval.Int(2)); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// --- Marshalling throughput ---

func BenchmarkSumList(b *testing.B) {
	for _, size := range []int{10, 1000, 10000} {
		b.Run(sizeName(size), func(b *testing.B) {
			exec := newExecutor(b)
			src := source(b, "sum.wasm", sumWAT)
			ctx := context.Background()

			items := make([]*eval.Value, size)
			for i := range items {
				items[i] = eval.Int(int64(i))
			}
			list := eval.List(items...)
			want := int64(size * (size - 1) / 2)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				res, err := exec.Invoke(ctx, src, "sum", list)
				if err != nil {
					b.Fatal(err)
				}
				if res.Int() != want {
					b.Fatalf("sum = %d, want %d", res.Int(), want)
				}
			}
		})
	}
}

func sizeName(n int) string {
	if n >= 1000 {
		return strconv.Itoa(n/1000) + "k"
	}
	return strconv.Itoa(n)
}
