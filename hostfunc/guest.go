package hostfunc

import (
	"context"

	"github.com/caffeineduck/nixwasm/bridge"
	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/fault"
	"github.com/caffeineduck/nixwasm/store"
	"go.uber.org/zap"
)

// DefaultStoreDir is reported in output path placeholders when a guest has
// no store.
const DefaultStoreDir = "/nix/store"

// Guest is the host-side state of one guest invocation. Host functions
// reach it through the call context; it is never shared between calls.
type Guest struct {
	State  *eval.State
	Values *bridge.Table
	// Store serves the effectful functions. Nil makes every fetch and add
	// fail softly.
	Store  store.Store
	Logger *zap.Logger
	// Module identifies the guest module in warnings and errors.
	Module string

	// Dependencies and OutPath are the optional context slots read by
	// resolve_dependency and get_out_path. Both default to bridge.Absent.
	Dependencies bridge.Handle
	OutPath      bridge.Handle

	export string
}

// NewGuest returns a Guest with an empty value table and unset slots.
func NewGuest(state *eval.State, module string) *Guest {
	return &Guest{
		State:        state,
		Values:       bridge.New(bridge.WithAllocator(state.AllocValue)),
		Module:       module,
		Dependencies: bridge.Absent,
		OutPath:      bridge.Absent,
	}
}

// SetExport records the export currently running, for attribution.
func (g *Guest) SetExport(name string) { g.export = name }

// Export returns the export currently running, or "<unknown>" before the
// first one starts.
func (g *Guest) Export() string {
	if g.export == "" {
		return "<unknown>"
	}
	return g.export
}

// Bind registers v in the value table and returns its handle. It is used
// to fill the context slots before the guest starts.
func (g *Guest) Bind(v *eval.Value) (bridge.Handle, error) {
	return g.Values.Add(v)
}

func (g *Guest) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

func (g *Guest) warn(msg string, fields ...zap.Field) {
	g.logger().Warn(msg, append([]zap.Field{
		zap.String("module", g.Module),
		zap.String("function", g.Export()),
	}, fields...)...)
}

// resolve returns the value behind a raw handle from the guest stack.
func (g *Guest) resolve(raw uint64) (*eval.Value, error) {
	return g.Values.Resolve(bridge.Handle(uint32(raw)))
}

// force resolves a handle and forces the value behind it.
func (g *Guest) force(raw uint64) (*eval.Value, error) {
	v, err := g.resolve(raw)
	if err != nil {
		return nil, err
	}
	if err := g.State.Force(v); err != nil {
		return nil, err
	}
	return v, nil
}

// add registers v and returns the handle as a stack value.
func (g *Guest) add(v *eval.Value) (uint64, error) {
	h, err := g.Values.Add(v)
	if err != nil {
		return 0, err
	}
	return uint64(h), nil
}

func (g *Guest) resolveAll(handles []bridge.Handle) ([]*eval.Value, error) {
	vals := make([]*eval.Value, len(handles))
	for i, h := range handles {
		v, err := g.Values.Resolve(h)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

type guestKey struct{}

// WithGuest returns a context carrying g. A guest must be bound before it
// is instantiated, since its start function may already call the host.
func WithGuest(ctx context.Context, g *Guest) context.Context {
	return context.WithValue(ctx, guestKey{}, g)
}

// GuestFrom returns the guest bound to ctx.
func GuestFrom(ctx context.Context) (*Guest, bool) {
	g, ok := ctx.Value(guestKey{}).(*Guest)
	return g, ok && g != nil
}

func unsupported(op string, v *eval.Value) error {
	return fault.Marshallingf(op, "unsupported value type: %s", v.Type())
}
