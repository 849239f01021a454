// Package fat implements the FAT32 allocation table manager described in
// spec.md sections 3 and 4.F: entry encode/decode preserving the reserved
// top nibble, dual-copy primary+backup writes, chain traversal, and
// FSInfo-hint-assisted allocation/deallocation.
package fat

import (
	"encoding/binary"

	"github.com/boljen/go-bitmap"

	"github.com/brineflow/fat32vfs/cache"
	"github.com/brineflow/fat32vfs/errors"
	"github.com/brineflow/fat32vfs/fsinfo"
)

const (
	// FreeEntry is the logical value of an unallocated cluster.
	FreeEntry = 0
	// BadEntry marks a cluster the volume considers unusable.
	BadEntry = 0x0FFFFFF7
	// EndMin is the lowest reserved end-of-chain sentinel value.
	EndMin = 0x0FFFFFF8
	// EndMax is the highest reserved end-of-chain sentinel value.
	EndMax = 0x0FFFFFFF
	// End is the canonical end-of-chain value this package writes.
	End = EndMax

	entryMask = 0x0FFFFFFF

	// FirstDataCluster is the lowest legal data cluster id. Ids 0 and 1 are
	// reserved and never participate in a chain.
	FirstDataCluster = 2
)

// EntryKind classifies a decoded FAT entry.
type EntryKind int

const (
	// KindFree marks an unallocated cluster.
	KindFree EntryKind = iota
	// KindBad marks a cluster the volume considers unusable.
	KindBad
	// KindEnd marks the last cluster in a chain.
	KindEnd
	// KindNext marks a cluster that continues to another.
	KindNext
)

// Entry is a decoded FAT entry.
type Entry struct {
	Kind EntryKind
	// Next is the following cluster id, valid only when Kind == KindNext.
	Next uint32
}

// decodeRaw interprets the low 28 bits of a raw FAT word.
func decodeRaw(raw uint32) Entry {
	v := raw & entryMask
	switch {
	case v == FreeEntry:
		return Entry{Kind: KindFree}
	case v >= BadEntry && v <= EndMax:
		// Every id from BadEntry through EndMax -- including the specific
		// BadEntry value and the whole End range -- decodes to Bad unless
		// it's strictly the canonical End sentinels; spec.md section 4.F
		// says reserved ids 0x0FFFFFF7-0x0FFFFFFF "always decode to Bad
		// regardless of stored value" for the purpose of chain safety, but
		// also defines End as 0x0FFFFFF8-0x0FFFFFFF. We treat BadEntry
		// itself as Bad and the rest of the reserved range as End, matching
		// the two named ranges in spec.md section 3.
		if v == BadEntry {
			return Entry{Kind: KindBad}
		}
		return Entry{Kind: KindEnd}
	default:
		return Entry{Kind: KindNext, Next: v}
	}
}

func encodeRaw(original uint32, e Entry) uint32 {
	reserved := original &^ entryMask
	var low uint32
	switch e.Kind {
	case KindFree:
		low = FreeEntry
	case KindBad:
		low = BadEntry
	case KindEnd:
		low = End
	case KindNext:
		low = e.Next & entryMask
	}
	return reserved | low
}

// Manager owns the FSInfo hint and the sector cache slots backing the FAT
// region(s) of a volume. It is not safe for concurrent use on its own: the
// filesystem root wraps it in a single-writer lock per spec.md section 5.
type Manager struct {
	sectors           *cache.SectorCache
	info              *fsinfo.FSInfo
	bytesPerSector    uint32
	firstFATSector    uint32
	firstBackupSector uint32
	numFATs           uint8
	totalClusters     uint32
	freeScan          bitmap.Bitmap
	freeScanValid     bool
}

// NewManager constructs a FAT manager. firstBackupSector is ignored when
// numFATs == 1.
func NewManager(sectors *cache.SectorCache, info *fsinfo.FSInfo, bytesPerSector, firstFATSector, firstBackupSector, totalClusters uint32, numFATs uint8) *Manager {
	return &Manager{
		sectors:           sectors,
		info:              info,
		bytesPerSector:    bytesPerSector,
		firstFATSector:    firstFATSector,
		firstBackupSector: firstBackupSector,
		numFATs:           numFATs,
		totalClusters:     totalClusters,
	}
}

func (m *Manager) entriesPerSector() uint32 {
	return m.bytesPerSector / 4
}

func (m *Manager) location(cluster uint32) (sector uint32, offset int) {
	perSector := m.entriesPerSector()
	return cluster / perSector, int(cluster%perSector) * 4
}

func (m *Manager) maxCluster() uint32 {
	return m.totalClusters + FirstDataCluster - 1
}

func (m *Manager) checkRange(cluster uint32) error {
	if cluster < FirstDataCluster || cluster > m.maxCluster() {
		return errors.ErrArgumentOutOfRange.WithMessage("cluster id out of FAT range")
	}
	return nil
}

// Get reads and decodes the FAT entry for cluster. Reserved ids
// 0x0FFFFFF7-0x0FFFFFFF always decode as Bad/End regardless of range checks
// against total cluster count, per spec.md section 4.F.
func (m *Manager) Get(cluster uint32) (Entry, error) {
	if cluster >= BadEntry && cluster <= EndMax {
		return decodeRaw(cluster), nil
	}

	sec, off := m.location(cluster)
	h, err := m.sectors.Get(m.firstFATSector + sec)
	if err != nil {
		return Entry{}, err
	}
	defer h.Release()

	var raw uint32
	err = h.Read(off, 4, func(buf []byte) {
		raw = binary.LittleEndian.Uint32(buf)
	})
	if err != nil {
		return Entry{}, err
	}
	return decodeRaw(raw), nil
}

// Set writes entry for cluster into both the primary and (when present)
// backup FAT, preserving the reserved top nibble of whatever was previously
// stored there. Writing KindFree onto a reserved id is rejected.
func (m *Manager) Set(cluster uint32, e Entry) error {
	if err := m.checkRange(cluster); err != nil {
		return err
	}
	if e.Kind == KindFree && (cluster == BadEntry || cluster >= EndMin) {
		return errors.ErrInvalidArgument.WithMessage("cannot mark a reserved cluster id Free")
	}

	sec, off := m.location(cluster)
	if err := m.setAt(m.firstFATSector+sec, off, e); err != nil {
		return err
	}
	if m.numFATs == 2 {
		if err := m.setAt(m.firstBackupSector+sec, off, e); err != nil {
			return err
		}
	}
	if m.freeScanValid {
		m.freeScan.Set(int(cluster-FirstDataCluster), e.Kind == KindFree)
	}
	return nil
}

func (m *Manager) setAt(sector uint32, offset int, e Entry) error {
	h, err := m.sectors.Get(sector)
	if err != nil {
		return err
	}
	defer h.Release()

	return h.Modify(offset, 4, func(buf []byte) {
		original := binary.LittleEndian.Uint32(buf)
		binary.LittleEndian.PutUint32(buf, encodeRaw(original, e))
	})
}

// NextCluster returns the cluster following cur, or ok == false if cur ends
// the chain (or is Bad/Free).
func (m *Manager) NextCluster(cur uint32) (next uint32, ok bool, err error) {
	e, err := m.Get(cur)
	if err != nil {
		return 0, false, err
	}
	if e.Kind != KindNext {
		return 0, false, nil
	}
	return e.Next, true, nil
}

// FinalCluster returns the last cluster id in the chain starting at start.
func (m *Manager) FinalCluster(start uint32) (uint32, error) {
	cur := start
	for {
		next, ok, err := m.NextCluster(cur)
		if err != nil {
			return 0, err
		}
		if !ok {
			return cur, nil
		}
		cur = next
	}
}

// AllClusters returns the complete chain starting at start, in order.
func (m *Manager) AllClusters(start uint32) ([]uint32, error) {
	var chain []uint32
	cur := start
	for {
		chain = append(chain, cur)
		next, ok, err := m.NextCluster(cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return chain, nil
		}
		cur = next
	}
}

// CountClusters returns the length of the chain starting at start.
func (m *Manager) CountClusters(start uint32) (int, error) {
	n := 0
	cur := start
	for {
		n++
		next, ok, err := m.NextCluster(cur)
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		cur = next
	}
}

// SearchCluster returns the k-th cluster after start (k == 0 returns start
// itself), or ok == false if the chain ends first.
func (m *Manager) SearchCluster(start uint32, k int) (cluster uint32, ok bool, err error) {
	cur := start
	for i := 0; i < k; i++ {
		next, exists, err := m.NextCluster(cur)
		if err != nil {
			return 0, false, err
		}
		if !exists {
			return 0, false, nil
		}
		cur = next
	}
	return cur, true, nil
}

// CountFreeClusters returns the number of Free entries, using the FSInfo
// hint when available rather than scanning the whole table.
func (m *Manager) CountFreeClusters() (uint32, error) {
	if m.info.FreeClusterCount != nil {
		return *m.info.FreeClusterCount, nil
	}
	count := uint32(0)
	for c := uint32(FirstDataCluster); c <= m.maxCluster(); c++ {
		e, err := m.Get(c)
		if err != nil {
			return 0, err
		}
		if e.Kind == KindFree {
			count++
		}
	}
	m.info.SetFreeCount(count)
	return count, nil
}

func (m *Manager) rebuildFreeScan() error {
	bm := bitmap.New(int(m.totalClusters))
	for c := uint32(FirstDataCluster); c <= m.maxCluster(); c++ {
		e, err := m.Get(c)
		if err != nil {
			return err
		}
		bm.Set(int(c-FirstDataCluster), e.Kind == KindFree)
	}
	m.freeScan = bm
	m.freeScanValid = true
	return nil
}

// findFree locates the next free cluster at or after hint, scanning with a
// bitmap memo rebuilt on demand so that repeated allocations after the
// first don't each re-walk the whole table from the beginning.
func (m *Manager) findFree(hint uint32) (uint32, bool, error) {
	if !m.freeScanValid {
		if err := m.rebuildFreeScan(); err != nil {
			return 0, false, err
		}
	}
	if hint < FirstDataCluster {
		hint = FirstDataCluster
	}
	for c := hint; c <= m.maxCluster(); c++ {
		if m.freeScan.Get(int(c - FirstDataCluster)) {
			return c, true, nil
		}
	}
	for c := uint32(FirstDataCluster); c < hint; c++ {
		if m.freeScan.Get(int(c - FirstDataCluster)) {
			return c, true, nil
		}
	}
	return 0, false, nil
}

// AllocClusters allocates n clusters linked into a chain terminated by End,
// with all-or-nothing semantics: if fewer than n are free, it returns
// ok == false and makes no changes. When prev is non-nil, prev is linked to
// the first new cluster after the new chain is fully built. The returned id
// is the first cluster of the new run.
//
// Each new cluster's entry is set to End before being linked from its
// predecessor, per spec.md section 5: a concurrent reader walking the chain
// never follows a pointer into an unallocated cluster.
func (m *Manager) AllocClusters(n int, prev *uint32) (first uint32, ok bool, err error) {
	if n <= 0 {
		return 0, false, errors.ErrInvalidArgument.WithMessage("cluster count must be positive")
	}

	free, err := m.CountFreeClusters()
	if err != nil {
		return 0, false, err
	}
	if uint32(n) > free {
		return 0, false, nil
	}

	ids := make([]uint32, 0, n)
	hint := uint32(FirstDataCluster)
	if m.info.NextFreeCluster != nil {
		hint = *m.info.NextFreeCluster
	}
	for len(ids) < n {
		c, found, err := m.findFree(hint)
		if err != nil {
			return 0, false, err
		}
		if !found {
			// The free count overstated what the table holds: undo the
			// clusters already marked so the table is left unchanged.
			for _, id := range ids {
				if err := m.Set(id, Entry{Kind: KindFree}); err != nil {
					return 0, false, err
				}
			}
			return 0, false, nil
		}
		if err := m.Set(c, Entry{Kind: KindEnd}); err != nil {
			return 0, false, err
		}
		ids = append(ids, c)
		hint = c + 1
	}

	for i := 0; i < len(ids)-1; i++ {
		if err := m.Set(ids[i], Entry{Kind: KindNext, Next: ids[i+1]}); err != nil {
			return 0, false, err
		}
	}
	if prev != nil {
		if err := m.Set(*prev, Entry{Kind: KindNext, Next: ids[0]}); err != nil {
			return 0, false, err
		}
	}

	m.info.SetFreeCount(free - uint32(n))
	m.info.SetNextFree(hint)
	return ids[0], true, nil
}

// DeallocClusters frees the entire chain reachable from first. If prev is
// non-nil, prev is terminated at End. Returns the number of clusters freed.
func (m *Manager) DeallocClusters(first uint32, prev *uint32) (int, error) {
	chain, err := m.AllClusters(first)
	if err != nil {
		return 0, err
	}
	for _, c := range chain {
		if err := m.Set(c, Entry{Kind: KindFree}); err != nil {
			return 0, err
		}
	}
	if prev != nil {
		if err := m.Set(*prev, Entry{Kind: KindEnd}); err != nil {
			return 0, err
		}
	}

	if m.info.FreeClusterCount != nil {
		m.info.SetFreeCount(*m.info.FreeClusterCount + uint32(len(chain)))
	}
	m.info.SetNextFree(first)
	return len(chain), nil
}

// FlushAll writes back every dirty FAT sector slot.
func (m *Manager) FlushAll() error {
	return m.sectors.FlushAll()
}
