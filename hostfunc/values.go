package hostfunc

import (
	"context"

	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/fault"
	"github.com/tetratelabs/wazero/api"
)

// Type tags returned by get_type.
const (
	TagInt      uint32 = 1
	TagFloat    uint32 = 2
	TagBool     uint32 = 3
	TagString   uint32 = 4
	TagPath     uint32 = 5
	TagNull     uint32 = 6
	TagAttrs    uint32 = 7
	TagList     uint32 = 8
	TagFunction uint32 = 9
)

// TypeTag returns the guest type tag of a forced value.
func TypeTag(t eval.Type) (uint32, bool) {
	switch t {
	case eval.TypeInt:
		return TagInt, true
	case eval.TypeFloat:
		return TagFloat, true
	case eval.TypeBool:
		return TagBool, true
	case eval.TypeString:
		return TagString, true
	case eval.TypePath:
		return TagPath, true
	case eval.TypeNull:
		return TagNull, true
	case eval.TypeAttrs:
		return TagAttrs, true
	case eval.TypeList:
		return TagList, true
	case eval.TypeFunction:
		return TagFunction, true
	}
	return 0, false
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f64 = api.ValueTypeF64
)

func params(n int) []api.ValueType {
	p := make([]api.ValueType, n)
	for i := range p {
		p[i] = i32
	}
	return p
}

func panicFn(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	msg, err := readString(mod, "panic", argU32(stack, 0), argU32(stack, 1))
	if err != nil {
		return err
	}
	return fault.Panicf("panic", "WASM panic: %s", msg)
}

func warnFn(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	msg, err := readString(mod, "warn", argU32(stack, 0), argU32(stack, 1))
	if err != nil {
		return err
	}
	g.warn(msg)
	return nil
}

func getType(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.force(stack[0])
	if err != nil {
		return err
	}
	tag, ok := TypeTag(v.Type())
	if !ok {
		return unsupported("get_type", v)
	}
	stack[0] = api.EncodeU32(tag)
	return nil
}

func makeInt(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (err error) {
	stack[0], err = g.add(eval.Int(int64(stack[0])))
	return err
}

func getInt(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	n, err := g.State.ForceInt(v)
	if err != nil {
		return err
	}
	stack[0] = api.EncodeI64(n)
	return nil
}

func makeFloat(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (err error) {
	stack[0], err = g.add(eval.Float(api.DecodeF64(stack[0])))
	return err
}

func getFloat(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	f, err := g.State.ForceFloat(v)
	if err != nil {
		return err
	}
	stack[0] = api.EncodeF64(f)
	return nil
}

func makeBool(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (err error) {
	stack[0], err = g.add(eval.Bool(argU32(stack, 0) != 0))
	return err
}

func getBool(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	b, err := g.State.ForceBool(v)
	if err != nil {
		return err
	}
	stack[0] = 0
	if b {
		stack[0] = 1
	}
	return nil
}

func makeNull(ctx context.Context, g *Guest, mod api.Module, stack []uint64) (err error) {
	stack[0], err = g.add(eval.Null())
	return err
}

func makeString(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	s, err := readString(mod, "make_string", argU32(stack, 0), argU32(stack, 1))
	if err != nil {
		return err
	}
	stack[0], err = g.add(eval.String(s))
	return err
}

// copyString exports the bytes of a string. Its context is not exported.
func copyString(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	s, _, err := g.State.ForceString(v)
	if err != nil {
		return err
	}
	n, err := writeOut(mod, "copy_string", s, argU32(stack, 1), argU32(stack, 2))
	stack[0] = api.EncodeU32(n)
	return err
}

func getStringLen(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	s, _, err := g.State.ForceString(v)
	if err != nil {
		return err
	}
	stack[0] = api.EncodeU32(uint32(len(s)))
	return nil
}

func makePath(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	p, err := readString(mod, "make_path", argU32(stack, 0), argU32(stack, 1))
	if err != nil {
		return err
	}
	stack[0], err = g.add(eval.Path(g.State.RootPath(p)))
	return err
}

func copyPath(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	p, _, err := g.State.CoerceToPath(v)
	if err != nil {
		return err
	}
	n, err := writeOut(mod, "copy_path", p, argU32(stack, 1), argU32(stack, 2))
	stack[0] = api.EncodeU32(n)
	return err
}
