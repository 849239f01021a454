package cache

import (
	"github.com/brineflow/fat32vfs/block"
	"github.com/brineflow/fat32vfs/errors"
)

// DefaultClusterCacheSize is the default slot count for a ClusterCache
// (DATACLU_CACHE_SZ in spec.md section 4.E).
const DefaultClusterCacheSize = 2

// ClusterCache caches whole data clusters. A cluster spans sectorsPerCluster
// consecutive device blocks starting at firstDataSector + (id-2) *
// sectorsPerCluster; cluster ids below 2 are not valid data clusters and are
// rejected by Get.
type ClusterCache struct {
	mgr               *Manager
	dev               block.Device
	firstDataSector   uint32
	sectorsPerCluster uint32
}

// NewClusterCache builds a ClusterCache of capacity slots, each
// clusterSize bytes (sectorsPerCluster * dev.BlockSize()), over dev.
func NewClusterCache(dev block.Device, firstDataSector, sectorsPerCluster uint32, capacity int) *ClusterCache {
	clusterSize := int(sectorsPerCluster) * int(dev.BlockSize())
	c := &ClusterCache{
		dev:               dev,
		firstDataSector:   firstDataSector,
		sectorsPerCluster: sectorsPerCluster,
	}
	c.mgr = NewManager(capacity, clusterSize,
		func(key uint32, buf []byte) error { return c.load(key, buf) },
		func(key uint32, buf []byte) error { return c.store(key, buf) },
	)
	return c
}

func (c *ClusterCache) firstSector(id uint32) uint32 {
	return c.firstDataSector + (id-2)*c.sectorsPerCluster
}

func (c *ClusterCache) load(id uint32, buf []byte) error {
	blockSize := int(c.dev.BlockSize())
	first := c.firstSector(id)
	for i := uint32(0); i < c.sectorsPerCluster; i++ {
		sec := buf[int(i)*blockSize : int(i+1)*blockSize]
		if err := c.dev.ReadBlock(block.ID(first+i), sec); err != nil {
			return err
		}
	}
	return nil
}

func (c *ClusterCache) store(id uint32, buf []byte) error {
	blockSize := int(c.dev.BlockSize())
	first := c.firstSector(id)
	for i := uint32(0); i < c.sectorsPerCluster; i++ {
		sec := buf[int(i)*blockSize : int(i+1)*blockSize]
		if err := c.dev.WriteBlock(block.ID(first+i), sec); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a pinned handle to cluster id, loading it on a miss.
func (c *ClusterCache) Get(id uint32) (*Handle, error) {
	if id < 2 {
		return nil, errors.ErrArgumentOutOfRange.WithMessage("cluster ids below 2 are not data clusters")
	}
	return c.mgr.Get(id)
}

// ClusterSize returns the size, in bytes, of one cluster slot.
func (c *ClusterCache) ClusterSize() int {
	return int(c.sectorsPerCluster) * int(c.dev.BlockSize())
}

// FlushAll writes back every dirty cluster slot.
func (c *ClusterCache) FlushAll() error {
	return c.mgr.FlushAll()
}

// Len reports the number of cluster slots currently resident.
func (c *ClusterCache) Len() int {
	return c.mgr.Len()
}
