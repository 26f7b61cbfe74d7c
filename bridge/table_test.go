package bridge_test

import (
	"testing"

	"github.com/caffeineduck/nixwasm/bridge"
	"github.com/caffeineduck/nixwasm/eval"
	"github.com/caffeineduck/nixwasm/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddResolveStable(t *testing.T) {
	tbl := bridge.New()
	values := []*eval.Value{eval.Int(1), eval.String("two"), eval.Null()}

	handles := make([]bridge.Handle, len(values))
	for i, v := range values {
		h, err := tbl.Add(v)
		require.NoError(t, err)
		assert.Equal(t, bridge.Handle(i), h)
		handles[i] = h
	}

	for i := 0; i < 100; i++ {
		_, err := tbl.Add(eval.Int(int64(i)))
		require.NoError(t, err)
	}

	for i, h := range handles {
		got, err := tbl.Resolve(h)
		require.NoError(t, err)
		assert.Same(t, values[i], got)
	}
	assert.Equal(t, 103, tbl.Len())
}

func TestResolveOutOfRange(t *testing.T) {
	tbl := bridge.New()
	_, err := tbl.Resolve(0)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindMarshalling))

	_, err = tbl.Resolve(bridge.Absent)
	assert.True(t, fault.IsKind(err, fault.KindMarshalling))
}

func TestAllocFillsInPlace(t *testing.T) {
	s := eval.NewState()
	tbl := bridge.New(bridge.WithAllocator(s.AllocValue))

	h, slot, err := tbl.Alloc()
	require.NoError(t, err)
	slot.Assign(eval.Int(9))

	got, err := tbl.Resolve(h)
	require.NoError(t, err)
	n, err := s.ForceInt(got)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}

func TestLimit(t *testing.T) {
	tbl := bridge.New(bridge.WithLimit(2))
	_, err := tbl.Add(eval.Int(1))
	require.NoError(t, err)
	_, err = tbl.Add(eval.Int(2))
	require.NoError(t, err)

	h, err := tbl.Add(eval.Int(3))
	assert.Equal(t, bridge.Absent, h)
	assert.True(t, fault.IsKind(err, fault.KindMarshalling))
}

func TestHandleString(t *testing.T) {
	assert.Equal(t, "#4", bridge.Handle(4).String())
	assert.Equal(t, "absent", bridge.Absent.String())
}
