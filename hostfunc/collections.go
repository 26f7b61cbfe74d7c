package hostfunc

import (
	"context"
	"encoding/binary"

	"github.com/caffeineduck/nixwasm/bridge"
	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/fault"
	"github.com/tetratelabs/wazero/api"
)

const (
	// attrRecordSize is the size of a make_attrset input record:
	// name pointer, name length and value handle.
	attrRecordSize = 12
	// attrExportSize is the size of a copy_attrset output record:
	// value handle and name length.
	attrExportSize = 8
)

func makeList(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	handles, err := readHandles(mod, "make_list", argU32(stack, 0), argU32(stack, 1))
	if err != nil {
		return err
	}
	items, err := g.resolveAll(handles)
	if err != nil {
		return err
	}
	stack[0], err = g.add(g.State.BuildList(items))
	return err
}

// copyList writes a fresh handle for every element. The destination is
// checked before any handle is issued.
func copyList(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	items, err := g.State.ForceList(v)
	if err != nil {
		return err
	}
	ptr, capacity := argU32(stack, 1), argU32(stack, 2)
	n := uint64(len(items))
	stack[0] = n
	if n > uint64(capacity) {
		return nil
	}

	mem, err := guestMemory(mod, "copy_list")
	if err != nil {
		return err
	}
	if err := checkRange(mem, "copy_list", ptr, n*4); err != nil {
		return err
	}
	buf := make([]byte, n*4)
	for i, item := range items {
		h, err := g.Values.Add(item)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(h))
	}
	mem.Write(ptr, buf)
	return nil
}

func getListLen(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	items, err := g.State.ForceList(v)
	if err != nil {
		return err
	}
	stack[0] = uint64(len(items))
	return nil
}

func getListElem(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	items, err := g.State.ForceList(v)
	if err != nil {
		return err
	}
	idx := argU32(stack, 1)
	if uint64(idx) >= uint64(len(items)) {
		return fault.Marshallingf("get_list_elem", "list index %d out of bounds (length %d)", idx, len(items))
	}
	stack[0], err = g.add(items[idx])
	return err
}

// makeAttrset builds a set from 12-byte records. When a name repeats, the
// record that comes last wins.
func makeAttrset(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	ptr, n := argU32(stack, 0), argU32(stack, 1)
	mem, err := guestMemory(mod, "make_attrset")
	if err != nil {
		return err
	}
	if err := checkRange(mem, "make_attrset", ptr, uint64(n)*attrRecordSize); err != nil {
		return err
	}
	recs, _ := mem.Read(ptr, n*attrRecordSize)
	recs = append([]byte(nil), recs...)

	b := g.State.BuildAttrs(int(n))
	for i := uint32(0); i < n; i++ {
		rec := recs[i*attrRecordSize:]
		namePtr := binary.LittleEndian.Uint32(rec[0:])
		nameLen := binary.LittleEndian.Uint32(rec[4:])
		h := bridge.Handle(binary.LittleEndian.Uint32(rec[8:]))

		name, err := readString(mod, "make_attrset", namePtr, nameLen)
		if err != nil {
			return err
		}
		v, err := g.Values.Resolve(h)
		if err != nil {
			return err
		}
		b.Insert(name, v)
	}
	stack[0], err = g.add(eval.Attrs(b.Finish()))
	return err
}

// copyAttrset writes (value handle, name length) records in name order.
// Names are fetched separately with copy_attrname.
func copyAttrset(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	attrs, err := g.State.ForceAttrs(v)
	if err != nil {
		return err
	}
	ptr, capacity := argU32(stack, 1), argU32(stack, 2)
	n := uint64(attrs.Len())
	stack[0] = n
	if n > uint64(capacity) {
		return nil
	}

	mem, err := guestMemory(mod, "copy_attrset")
	if err != nil {
		return err
	}
	if err := checkRange(mem, "copy_attrset", ptr, n*attrExportSize); err != nil {
		return err
	}
	buf := make([]byte, n*attrExportSize)
	for i := 0; i < attrs.Len(); i++ {
		a := attrs.At(i)
		h, err := g.Values.Add(a.Value)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf[i*attrExportSize:], uint32(h))
		binary.LittleEndian.PutUint32(buf[i*attrExportSize+4:], uint32(len(a.Name)))
	}
	mem.Write(ptr, buf)
	return nil
}

// copyAttrname writes the name of attribute idx. The caller learned the
// length from copy_attrset and must pass exactly that.
func copyAttrname(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	attrs, err := g.State.ForceAttrs(v)
	if err != nil {
		return err
	}
	idx, ptr, n := argU32(stack, 1), argU32(stack, 2), argU32(stack, 3)
	if uint64(idx) >= uint64(attrs.Len()) {
		return fault.Marshallingf("copy_attrname", "attribute index %d out of bounds (size %d)", idx, attrs.Len())
	}
	name := attrs.At(int(idx)).Name
	if uint64(n) != uint64(len(name)) {
		return fault.Marshallingf("copy_attrname", "buffer length %d does not match attribute name length %d", n, len(name))
	}
	_, err = writeOut(mod, "copy_attrname", name, ptr, n)
	return err
}

func getAttrsLen(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	v, err := g.resolve(stack[0])
	if err != nil {
		return err
	}
	attrs, err := g.State.ForceAttrs(v)
	if err != nil {
		return err
	}
	stack[0] = uint64(attrs.Len())
	return nil
}

func lookupAttr(g *Guest, mod api.Module, op string, stack []uint64) (*eval.Value, bool, error) {
	v, err := g.resolve(stack[0])
	if err != nil {
		return nil, false, err
	}
	attrs, err := g.State.ForceAttrs(v)
	if err != nil {
		return nil, false, err
	}
	name, err := readString(mod, op, argU32(stack, 1), argU32(stack, 2))
	if err != nil {
		return nil, false, err
	}
	attr, ok := attrs.Get(name)
	return attr, ok, nil
}

func hasAttr(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	_, ok, err := lookupAttr(g, mod, "has_attr", stack)
	if err != nil {
		return err
	}
	stack[0] = 0
	if ok {
		stack[0] = 1
	}
	return nil
}

func getAttr(ctx context.Context, g *Guest, mod api.Module, stack []uint64) error {
	attr, ok, err := lookupAttr(g, mod, "get_attr", stack)
	if err != nil {
		return err
	}
	if !ok {
		stack[0] = uint64(bridge.Absent)
		return nil
	}
	stack[0], err = g.add(attr)
	return err
}
