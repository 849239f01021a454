package fat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brineflow/fat32vfs/block"
	"github.com/brineflow/fat32vfs/cache"
	"github.com/brineflow/fat32vfs/fsinfo"
)

const (
	testBytesPerSector = 512
	testSectorsPerFAT  = 2
	testTotalClusters  = testSectorsPerFAT * (testBytesPerSector / 4)
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dev := block.NewMemory(testBytesPerSector, testSectorsPerFAT*2+4)
	sectors := cache.NewSectorCache(dev, 8)
	info := &fsinfo.FSInfo{}
	return NewManager(sectors, info, testBytesPerSector, 0, testSectorsPerFAT, testTotalClusters, 2)
}

func TestEntryRoundTrip(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Set(2, Entry{Kind: KindEnd}))
	e, err := m.Get(2)
	require.NoError(t, err)
	require.Equal(t, KindEnd, e.Kind)

	require.NoError(t, m.Set(2, Entry{Kind: KindNext, Next: 5}))
	e, err = m.Get(2)
	require.NoError(t, err)
	require.Equal(t, KindNext, e.Kind)
	require.EqualValues(t, 5, e.Next)
}

func TestSetPreservesReservedNibble(t *testing.T) {
	m := newTestManager(t)
	sec, off := m.location(2)
	h, err := m.sectors.Get(m.firstFATSector + sec)
	require.NoError(t, err)
	require.NoError(t, h.Modify(off, 4, func(buf []byte) {
		buf[3] |= 0xF0 // set the reserved top nibble directly
	}))
	h.Release()

	require.NoError(t, m.Set(2, Entry{Kind: KindEnd}))

	h2, err := m.sectors.Get(m.firstFATSector + sec)
	require.NoError(t, err)
	var top byte
	require.NoError(t, h2.Read(off, 4, func(buf []byte) { top = buf[3] & 0xF0 }))
	h2.Release()
	require.Equal(t, byte(0xF0), top)
}

func TestDualFATWrite(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Set(3, Entry{Kind: KindEnd}))

	sec, off := m.location(3)
	primary, err := m.sectors.Get(m.firstFATSector + sec)
	require.NoError(t, err)
	backup, err := m.sectors.Get(m.firstBackupSector + sec)
	require.NoError(t, err)
	defer primary.Release()
	defer backup.Release()

	var a, b []byte
	require.NoError(t, primary.Read(off, 4, func(buf []byte) { a = append(a, buf...) }))
	require.NoError(t, backup.Read(off, 4, func(buf []byte) { b = append(b, buf...) }))
	require.Equal(t, a, b)
}

func TestChainTraversal(t *testing.T) {
	m := newTestManager(t)
	first, ok, err := m.AllocClusters(4, nil)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := m.CountClusters(first)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	all, err := m.AllClusters(first)
	require.NoError(t, err)
	require.Len(t, all, 4)

	final, err := m.FinalCluster(first)
	require.NoError(t, err)
	require.Equal(t, all[3], final)

	kth, ok, err := m.SearchCluster(first, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, all[2], kth)
}

func TestAllocAllOrNothing(t *testing.T) {
	m := newTestManager(t)
	free, err := m.CountFreeClusters()
	require.NoError(t, err)

	_, ok, err := m.AllocClusters(int(free)+1, nil)
	require.NoError(t, err)
	require.False(t, ok)

	stillFree, err := m.CountFreeClusters()
	require.NoError(t, err)
	require.Equal(t, free, stillFree)
}

func TestAllocLinksPrevAndDeallocFreesChain(t *testing.T) {
	m := newTestManager(t)
	first, ok, err := m.AllocClusters(3, nil)
	require.NoError(t, err)
	require.True(t, ok)

	last, err := m.FinalCluster(first)
	require.NoError(t, err)

	extra, ok, err := m.AllocClusters(1, &last)
	require.NoError(t, err)
	require.True(t, ok)

	chain, err := m.AllClusters(first)
	require.NoError(t, err)
	require.Len(t, chain, 4)
	require.Equal(t, extra, chain[3])

	freed, err := m.DeallocClusters(first, nil)
	require.NoError(t, err)
	require.Equal(t, 4, freed)

	e, err := m.Get(first)
	require.NoError(t, err)
	require.Equal(t, KindFree, e.Kind)
}

func TestGetReservedIDsAlwaysDecodeAsSpecified(t *testing.T) {
	m := newTestManager(t)

	e, err := m.Get(BadEntry)
	require.NoError(t, err)
	require.Equal(t, KindBad, e.Kind)

	e, err = m.Get(EndMin)
	require.NoError(t, err)
	require.Equal(t, KindEnd, e.Kind)

	e, err = m.Get(EndMax)
	require.NoError(t, err)
	require.Equal(t, KindEnd, e.Kind)
}

func TestDeallocTerminatesPrev(t *testing.T) {
	m := newTestManager(t)
	first, ok, err := m.AllocClusters(2, nil)
	require.NoError(t, err)
	require.True(t, ok)

	all, err := m.AllClusters(first)
	require.NoError(t, err)
	head, tail := all[0], all[1]

	freed, err := m.DeallocClusters(tail, &head)
	require.NoError(t, err)
	require.Equal(t, 1, freed)

	e, err := m.Get(head)
	require.NoError(t, err)
	require.Equal(t, KindEnd, e.Kind)
}
