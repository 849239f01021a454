package cache

import (
	"github.com/brineflow/fat32vfs/block"
)

// DefaultSectorCacheSize is the default slot count for a SectorCache
// (INFOSEC_CACHE_SZ in spec.md section 4.D).
const DefaultSectorCacheSize = 4

// SectorCache caches whole sectors read from a block.Device: the boot
// sector, FSInfo, and FAT regions. Each slot is exactly one device block.
type SectorCache struct {
	mgr *Manager
	dev block.Device
}

// NewSectorCache builds a SectorCache of capacity slots over dev.
func NewSectorCache(dev block.Device, capacity int) *SectorCache {
	c := &SectorCache{dev: dev}
	c.mgr = NewManager(capacity, int(dev.BlockSize()),
		func(key uint32, buf []byte) error {
			return dev.ReadBlock(block.ID(key), buf)
		},
		func(key uint32, buf []byte) error {
			return dev.WriteBlock(block.ID(key), buf)
		},
	)
	return c
}

// Get returns a pinned handle to sector id, loading it on a miss.
func (c *SectorCache) Get(id block.ID) (*Handle, error) {
	return c.mgr.Get(uint32(id))
}

// FlushAll writes back every dirty sector slot.
func (c *SectorCache) FlushAll() error {
	return c.mgr.FlushAll()
}

// Len reports the number of sector slots currently resident.
func (c *SectorCache) Len() int {
	return c.mgr.Len()
}
