package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, capacity int) (*Manager, *map[uint32][]byte) {
	t.Helper()
	backing := map[uint32][]byte{}
	mgr := NewManager(capacity, 4,
		func(key uint32, buf []byte) error {
			if data, ok := backing[key]; ok {
				copy(buf, data)
			}
			return nil
		},
		func(key uint32, buf []byte) error {
			data := make([]byte, len(buf))
			copy(data, buf)
			backing[key] = data
			return nil
		},
	)
	return mgr, &backing
}

func TestManagerHitReusesSlot(t *testing.T) {
	mgr, _ := newTestManager(t, 2)

	h1, err := mgr.Get(1)
	require.NoError(t, err)
	require.NoError(t, h1.Modify(0, 4, func(buf []byte) { copy(buf, "abcd") }))
	h1.Release()

	h2, err := mgr.Get(1)
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), h2.Bytes())
	h2.Release()

	require.Equal(t, 1, mgr.Len())
}

func TestManagerEvictsUnpinnedOnCapacity(t *testing.T) {
	mgr, backing := newTestManager(t, 1)

	h1, err := mgr.Get(1)
	require.NoError(t, err)
	require.NoError(t, h1.Modify(0, 4, func(buf []byte) { copy(buf, "xxxx") }))
	h1.Release()

	_, err = mgr.Get(2)
	require.NoError(t, err)

	require.Equal(t, []byte("xxxx"), (*backing)[1])
	require.Equal(t, 1, mgr.Len())
}

func TestManagerExhaustionPanics(t *testing.T) {
	mgr, _ := newTestManager(t, 1)

	h1, err := mgr.Get(1)
	require.NoError(t, err)
	defer h1.Release()

	require.Panics(t, func() {
		_, _ = mgr.Get(2)
	})
}

func TestManagerFlushAllWritesDirtySlotsWithoutEviction(t *testing.T) {
	mgr, backing := newTestManager(t, 2)

	h1, err := mgr.Get(1)
	require.NoError(t, err)
	require.NoError(t, h1.Modify(0, 4, func(buf []byte) { copy(buf, "hhhh") }))

	require.NoError(t, mgr.FlushAll())
	require.Equal(t, []byte("hhhh"), (*backing)[1])
	require.Equal(t, 1, mgr.Len())

	h1.Release()
}

func TestHandleReadWriteBounds(t *testing.T) {
	mgr, _ := newTestManager(t, 1)
	h, err := mgr.Get(1)
	require.NoError(t, err)
	defer h.Release()

	require.Error(t, h.Read(2, 10, func([]byte) {}))
	require.Error(t, h.Modify(-1, 2, func([]byte) {}))
}
