package hostfunc

import (
	"encoding/binary"

	"github.com/caffeineduck/nixwasm/bridge"
	"github.com/caffeineduck/nixwasm/fault"
	"github.com/tetratelabs/wazero/api"
)

func guestMemory(mod api.Module, op string) (api.Memory, error) {
	mem := mod.Memory()
	if mem == nil {
		return nil, fault.Marshallingf(op, "module has no memory")
	}
	return mem, nil
}

// checkRange verifies that [ptr, ptr+size) lies inside guest memory.
func checkRange(mem api.Memory, op string, ptr uint32, size uint64) error {
	if uint64(ptr)+size > uint64(mem.Size()) {
		return fault.Marshallingf(op, "memory access out of bounds: %d bytes at offset %d (memory size %d)", size, ptr, mem.Size())
	}
	return nil
}

// readBytes copies n bytes at ptr out of guest memory.
func readBytes(mod api.Module, op string, ptr, n uint32) ([]byte, error) {
	mem, err := guestMemory(mod, op)
	if err != nil {
		return nil, err
	}
	if err := checkRange(mem, op, ptr, uint64(n)); err != nil {
		return nil, err
	}
	view, _ := mem.Read(ptr, n)
	return append([]byte(nil), view...), nil
}

func readString(mod api.Module, op string, ptr, n uint32) (string, error) {
	b, err := readBytes(mod, op, ptr, n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readHandles reads n little-endian u32 handles at ptr.
func readHandles(mod api.Module, op string, ptr, n uint32) ([]bridge.Handle, error) {
	mem, err := guestMemory(mod, op)
	if err != nil {
		return nil, err
	}
	if err := checkRange(mem, op, ptr, uint64(n)*4); err != nil {
		return nil, err
	}
	view, _ := mem.Read(ptr, n*4)
	handles := make([]bridge.Handle, n)
	for i := range handles {
		handles[i] = bridge.Handle(binary.LittleEndian.Uint32(view[i*4:]))
	}
	return handles, nil
}

// writeOut implements the two-phase copy for byte strings: when data fits
// in capacity it is written at ptr, otherwise nothing is written. Either
// way the full length is returned.
func writeOut(mod api.Module, op string, data string, ptr, capacity uint32) (uint32, error) {
	size := uint64(len(data))
	if size > uint64(^uint32(0)) {
		return 0, fault.Marshallingf(op, "value of %d bytes does not fit in guest memory", size)
	}
	if size > uint64(capacity) {
		return uint32(size), nil
	}
	mem, err := guestMemory(mod, op)
	if err != nil {
		return 0, err
	}
	if err := checkRange(mem, op, ptr, size); err != nil {
		return 0, err
	}
	mem.Write(ptr, []byte(data))
	return uint32(size), nil
}

// argU32 reads parameter i as an i32.
func argU32(stack []uint64, i int) uint32 {
	return api.DecodeU32(stack[i])
}
