// Package bridge maps the integer handles a guest sees to host values.
//
// A [Table] belongs to exactly one guest instance. Handles are indexes into
// an append-only slice, so a handle stays valid, and keeps resolving to the
// same value, for as long as the table lives. Raw host references never
// reach guest memory.
package bridge

import (
	"fmt"

	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/fault"
)

// Handle is a guest-visible reference to a host value.
type Handle uint32

// Absent is the reserved handle meaning "no value".
const Absent Handle = 0xFFFFFFFF

// MaxHandles is the default and largest table size. It keeps every issued
// handle well below Absent.
const MaxHandles = 1 << 30

// Table is the per-instance value table. It is not safe for concurrent use;
// a guest instance runs on a single goroutine.
type Table struct {
	alloc  func() *eval.Value
	values []*eval.Value
	limit  int
}

// Option configures a Table.
type Option func(*Table)

// WithLimit caps the number of handles a table may issue.
func WithLimit(n int) Option {
	return func(t *Table) {
		if n > 0 && n <= MaxHandles {
			t.limit = n
		}
	}
}

// WithAllocator sets the function used by [Table.Alloc] to create values.
func WithAllocator(fn func() *eval.Value) Option {
	return func(t *Table) {
		t.alloc = fn
	}
}

// New returns an empty table.
func New(opts ...Option) *Table {
	t := &Table{
		alloc: func() *eval.Value { return new(eval.Value) },
		limit: MaxHandles,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add registers v and returns its handle.
func (t *Table) Add(v *eval.Value) (Handle, error) {
	if len(t.values) >= t.limit {
		return Absent, fault.Marshallingf("add_value", "value table is full (%d handles)", t.limit)
	}
	t.values = append(t.values, v)
	return Handle(len(t.values) - 1), nil
}

// Alloc creates an uninitialized value, registers it, and returns both so
// the caller can fill it in place.
func (t *Table) Alloc() (Handle, *eval.Value, error) {
	v := t.alloc()
	h, err := t.Add(v)
	if err != nil {
		return Absent, nil, err
	}
	return h, v, nil
}

// Resolve returns the value behind h.
func (t *Table) Resolve(h Handle) (*eval.Value, error) {
	if uint64(h) >= uint64(len(t.values)) {
		return nil, fault.Marshallingf("resolve", "invalid value handle %d (table has %d entries)", h, len(t.values))
	}
	return t.values[h], nil
}

// Len returns the number of issued handles.
func (t *Table) Len() int { return len(t.values) }

func (h Handle) String() string {
	if h == Absent {
		return "absent"
	}
	return fmt.Sprintf("#%d", uint32(h))
}
