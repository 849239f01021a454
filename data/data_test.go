package data

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brineflow/fat32vfs/block"
	"github.com/brineflow/fat32vfs/cache"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dev := block.NewMemory(512, 32)
	cc := cache.NewClusterCache(dev, 0, 2, 2)
	return NewManager(cc)
}

func TestWholeClusterReadWrite(t *testing.T) {
	m := newTestManager(t)
	src := make([]byte, m.ClusterSize())
	for i := range src {
		src[i] = 0xAB
	}
	require.NoError(t, m.WriteCluster(2, src))

	dst := make([]byte, m.ClusterSize())
	require.NoError(t, m.ReadCluster(2, dst))
	require.Equal(t, src, dst)
}

func TestClearCluster(t *testing.T) {
	m := newTestManager(t)
	src := make([]byte, m.ClusterSize())
	for i := range src {
		src[i] = 0xFF
	}
	require.NoError(t, m.WriteCluster(2, src))
	require.NoError(t, m.ClearCluster(2))

	dst := make([]byte, m.ClusterSize())
	require.NoError(t, m.ReadCluster(2, dst))
	for _, b := range dst {
		require.Zero(t, b)
	}
}

func TestReadWriteClusterAt(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.WriteClusterAt(2, 10, 4, func(buf []byte) { copy(buf, "abcd") }))

	var got []byte
	require.NoError(t, m.ReadClusterAt(2, 10, 4, func(buf []byte) { got = append(got, buf...) }))
	require.Equal(t, []byte("abcd"), got)
}
