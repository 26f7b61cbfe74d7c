package hostfunc

import (
	"context"
	"fmt"
	"time"

	"github.com/caffeineduck/nixwasm/fault"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Middleware wraps the handler of the host function called name.
type Middleware func(name string, next Handler) Handler

// Recover turns a Go panic inside a handler into an evaluation fault so it
// surfaces as a guest trap instead of unwinding through wazero untyped.
func Recover() Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if e, ok := r.(*fault.Error); ok {
						err = e
						return
					}
					err = fault.New(fault.KindEvaluation, name, fmt.Errorf("host function panicked: %v", r))
				}
			}()
			return next(ctx, g, mod, stack)
		}
	}
}

// CheckInterrupt aborts a host call when its context is already done.
func CheckInterrupt() Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
			if err := ctx.Err(); err != nil {
				return fault.Classify(name, err)
			}
			return next(ctx, g, mod, stack)
		}
	}
}

// LogCalls logs every host call at debug level on the guest's logger.
func LogCalls() Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
			start := time.Now()
			err := next(ctx, g, mod, stack)
			if ce := g.logger().Check(zap.DebugLevel, "host call"); ce != nil {
				ce.Write(
					zap.String("function", name),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err),
				)
			}
			return err
		}
	}
}
