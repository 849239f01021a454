// Package fs implements the filesystem root and VFS layer from spec.md
// sections 4.I and 4.J: mounting a volume, synthesizing the root directory,
// and the VFile abstraction that backs path resolution, file I/O, and
// directory mutation.
package fs

import (
	"sync"

	"github.com/brineflow/fat32vfs/bpb"
	"github.com/brineflow/fat32vfs/block"
	"github.com/brineflow/fat32vfs/cache"
	"github.com/brineflow/fat32vfs/data"
	"github.com/brineflow/fat32vfs/dirent"
	"github.com/brineflow/fat32vfs/errors"
	"github.com/brineflow/fat32vfs/fat"
	"github.com/brineflow/fat32vfs/fsinfo"
)

// Options configures the compile-time-ish tunables spec.md section 5 calls
// out as fixed cache capacities; defaults match the spec's named constants.
type Options struct {
	SectorCacheSize  int
	ClusterCacheSize int
}

// DefaultOptions returns the spec-mandated default cache capacities.
func DefaultOptions() Options {
	return Options{
		SectorCacheSize:  cache.DefaultSectorCacheSize,
		ClusterCacheSize: cache.DefaultClusterCacheSize,
	}
}

// FileSystem is a mounted FAT32 volume. The zero value is not usable; build
// one with Mount.
type FileSystem struct {
	mu sync.RWMutex

	dev      block.Device
	bpb      *bpb.BPB
	info     *fsinfo.FSInfo
	fsSector uint32

	sectors  *cache.SectorCache
	fatMgr   *fat.Manager
	dataMgr  *data.Manager

	root *VFile
}

// Mount loads the boot sector and FSInfo from dev, validates them, and
// constructs the FAT and data managers, per spec.md section 4.I.
func Mount(dev block.Device, opts Options) (*FileSystem, error) {
	bootSector := make([]byte, dev.BlockSize())
	if err := dev.ReadBlock(0, bootSector); err != nil {
		return nil, err
	}
	parsedBPB, err := bpb.Load(bootSector)
	if err != nil {
		return nil, err
	}

	sectors := cache.NewSectorCache(dev, opts.SectorCacheSize)

	infoSector := make([]byte, dev.BlockSize())
	if err := dev.ReadBlock(block.ID(parsedBPB.FSInfoSector), infoSector); err != nil {
		return nil, err
	}
	info, err := fsinfo.Load(infoSector)
	if err != nil {
		return nil, err
	}
	info.ValidateAndFix(parsedBPB.TotalClusters)

	fatMgr := fat.NewManager(sectors, info, uint32(parsedBPB.BytesPerSector),
		parsedBPB.FirstFATSector, parsedBPB.FirstBackupFATSector,
		parsedBPB.TotalClusters, parsedBPB.NumFATs)

	clusters := cache.NewClusterCache(dev, parsedBPB.FirstDataSector,
		uint32(parsedBPB.SectorsPerCluster), opts.ClusterCacheSize)
	dataMgr := data.NewManager(clusters)

	fsys := &FileSystem{
		dev:      dev,
		bpb:      parsedBPB,
		info:     info,
		fsSector: uint32(parsedBPB.FSInfoSector),
		sectors:  sectors,
		fatMgr:   fatMgr,
		dataMgr:  dataMgr,
	}
	fsys.root = &VFile{
		fs:           fsys,
		name:         "/",
		attr:         dirent.AttrDirectory,
		isRoot:       true,
		firstCluster: parsedBPB.RootDirCluster,
	}
	return fsys, nil
}

// BPB returns the volume's parsed boot sector.
func (f *FileSystem) BPB() *bpb.BPB { return f.bpb }

// FSInfo returns the volume's free-space hint.
func (f *FileSystem) FSInfo() *fsinfo.FSInfo { return f.info }

// VolumeID returns the volume's serial number.
func (f *FileSystem) VolumeID() uint32 { return f.bpb.VolumeID }

// Root returns the synthesized root-directory VFile.
func (f *FileSystem) Root() *VFile { return f.root }

// CountFreeClusters returns the number of free clusters, preferring the
// FSInfo hint when available. It takes the write lock because a count
// computed by scanning is stored back into the FSInfo hint.
func (f *FileSystem) CountFreeClusters() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fatMgr.CountFreeClusters()
}

// AllocCluster allocates a single cluster, zero-filling it before return,
// per the zero-fill invariant in spec.md section 4.I.
func (f *FileSystem) AllocCluster(prev *uint32) (uint32, bool, error) {
	return f.AllocClusters(1, prev)
}

// AllocClusters allocates n clusters linked into a chain, zero-filling all
// of them before return.
func (f *FileSystem) AllocClusters(n int, prev *uint32) (uint32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocClustersLocked(n, prev)
}

// allocClustersLocked is AllocClusters without acquiring f.mu, for callers
// (VFile methods) that already hold it.
func (f *FileSystem) allocClustersLocked(n int, prev *uint32) (uint32, bool, error) {
	first, ok, err := f.fatMgr.AllocClusters(n, prev)
	if err != nil || !ok {
		return 0, ok, err
	}
	if err := zeroFillChain(f, first); err != nil {
		return 0, false, err
	}
	return first, true, nil
}

// DeallocCluster frees the chain starting at first, same as DeallocClusters
// with a nil prev.
func (f *FileSystem) DeallocCluster(first uint32) (int, error) {
	return f.DeallocClusters(first, nil)
}

// DeallocClusters frees the chain starting at first, terminating prev at
// End if given.
func (f *FileSystem) DeallocClusters(first uint32, prev *uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fatMgr.DeallocClusters(first, prev)
}

// Close flushes every dirty cache slot and rewrites the FSInfo sector. It
// does not close the underlying block device.
func (f *FileSystem) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var collector errors.Collector
	collector.Add(f.dataMgr.FlushAll())
	collector.Add(f.fatMgr.FlushAll())

	infoSector := make([]byte, f.dev.BlockSize())
	f.info.Serialize(infoSector)
	collector.Add(f.dev.WriteBlock(block.ID(f.fsSector), infoSector))

	collector.Add(f.sectors.FlushAll())
	return collector.AsError()
}
