// Package fstest builds minimal, valid in-memory FAT32 volumes for use by
// this module's own test suites: a boot sector, FSInfo sector, one or two
// FAT copies, and an empty root directory, all freshly formatted.
package fstest

import (
	"encoding/binary"

	"github.com/brineflow/fat32vfs/block"
	"github.com/brineflow/fat32vfs/geometry"
)

// VolumeConfig describes the geometry of a volume to build.
type VolumeConfig struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	TotalClusters     uint32 // drives SectorsPerFAT, and total volume size
	RootDirCluster    uint32
	FSInfoSector      uint16
	BackupBootSector  uint16
	VolumeID          uint32
}

// SmallConfig returns a small but spec-valid geometry: 512-byte sectors,
// 1 sector per cluster, 2 FATs, enough clusters for multi-cluster file
// tests.
func SmallConfig() VolumeConfig {
	return VolumeConfig{
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ReservedSectors:   8,
		NumFATs:           2,
		TotalClusters:     64,
		RootDirCluster:    2,
		FSInfoSector:      1,
		BackupBootSector:  6,
		VolumeID:          0xDEADBEEF,
	}
}

// FromPreset converts a named geometry preset into a VolumeConfig, fixing
// the root directory at cluster 2, FSInfo at sector 1, and the backup
// boot sector at 6, matching the layout writeBootSector assumes.
func FromPreset(slug string, volumeID uint32) (VolumeConfig, error) {
	p, err := geometry.Get(slug)
	if err != nil {
		return VolumeConfig{}, err
	}
	return VolumeConfig{
		BytesPerSector:    p.BytesPerSector,
		SectorsPerCluster: p.SectorsPerCluster,
		ReservedSectors:   p.ReservedSectors,
		NumFATs:           p.NumFATs,
		TotalClusters:     p.TotalClusters,
		RootDirCluster:    2,
		FSInfoSector:      1,
		BackupBootSector:  6,
		VolumeID:          volumeID,
	}, nil
}

// Build formats a fresh in-memory block device per cfg and returns it.
func Build(cfg VolumeConfig) *block.Memory {
	entriesPerSector := uint32(cfg.BytesPerSector) / 4
	sectorsPerFAT := (cfg.TotalClusters + 2 + entriesPerSector - 1) / entriesPerSector
	if sectorsPerFAT == 0 {
		sectorsPerFAT = 1
	}

	firstDataSector := uint32(cfg.ReservedSectors) + uint32(cfg.NumFATs)*sectorsPerFAT
	// The data region holds exactly TotalClusters clusters; the root
	// directory takes the first of them.
	dataSectors := cfg.TotalClusters * uint32(cfg.SectorsPerCluster)
	totalSectors := firstDataSector + dataSectors

	dev := block.NewMemory(uint(cfg.BytesPerSector), uint(totalSectors))

	writeBootSector(dev, cfg, firstDataSector, sectorsPerFAT)
	writeFSInfo(dev, cfg)
	writeRootDirFATEntry(dev, cfg, entriesPerSector, sectorsPerFAT)

	return dev
}

func writeBootSector(dev *block.Memory, cfg VolumeConfig, firstDataSector, sectorsPerFAT uint32) {
	sector := make([]byte, cfg.BytesPerSector)
	binary.LittleEndian.PutUint16(sector[11:], cfg.BytesPerSector)
	sector[13] = cfg.SectorsPerCluster
	binary.LittleEndian.PutUint16(sector[14:], cfg.ReservedSectors)
	sector[16] = cfg.NumFATs
	// root entry count (16), total sectors 16 and sectors/FAT 16 all stay
	// zero, as required for FAT32; the media byte is 0xF8 (fixed disk).
	sector[21] = 0xF8
	binary.LittleEndian.PutUint32(sector[32:], firstDataSector+cfg.TotalClusters*uint32(cfg.SectorsPerCluster))
	binary.LittleEndian.PutUint32(sector[36:], sectorsPerFAT)
	binary.LittleEndian.PutUint32(sector[44:], cfg.RootDirCluster)
	binary.LittleEndian.PutUint16(sector[48:], cfg.FSInfoSector)
	binary.LittleEndian.PutUint16(sector[50:], cfg.BackupBootSector)
	binary.LittleEndian.PutUint32(sector[67:], cfg.VolumeID)
	copy(sector[82:], []byte("FAT32   "))
	sector[510] = 0x55
	sector[511] = 0xAA

	_ = dev.WriteBlock(0, sector)
}

func writeFSInfo(dev *block.Memory, cfg VolumeConfig) {
	sector := make([]byte, cfg.BytesPerSector)
	binary.LittleEndian.PutUint32(sector[0:], 0x41615252)
	binary.LittleEndian.PutUint32(sector[484:], 0x61417272)
	binary.LittleEndian.PutUint32(sector[488:], cfg.TotalClusters-1) // 1 cluster used by root
	binary.LittleEndian.PutUint32(sector[492:], cfg.RootDirCluster+1)
	binary.LittleEndian.PutUint32(sector[508:], 0xAA550000)
	_ = dev.WriteBlock(block.ID(cfg.FSInfoSector), sector)
}

// writeRootDirFATEntry marks the root directory's first (and only, at
// format time) cluster End-of-chain in both FAT copies.
func writeRootDirFATEntry(dev *block.Memory, cfg VolumeConfig, entriesPerSector, sectorsPerFAT uint32) {
	cluster := cfg.RootDirCluster
	sectorIdx := cluster / entriesPerSector
	offset := (cluster % entriesPerSector) * 4

	buf := make([]byte, cfg.BytesPerSector)
	for i := uint8(0); i < cfg.NumFATs; i++ {
		fatBase := uint32(cfg.ReservedSectors) + uint32(i)*sectorsPerFAT
		_ = dev.ReadBlock(block.ID(fatBase+sectorIdx), buf)
		binary.LittleEndian.PutUint32(buf[offset:], 0x0FFFFFFF)
		_ = dev.WriteBlock(block.ID(fatBase+sectorIdx), buf)
	}
}
