// Package bpb parses and validates the FAT32 boot sector (the BIOS
// Parameter Block) described in spec.md sections 3, 4.B, and 6.
//
// Fields are read directly out of the raw byte slice by offset rather than
// via binary.Read into a Go struct, the same way the teacher's
// NewRawDirentFromBytes works: Go struct field alignment doesn't match the
// packed on-disk layout, so hand-rolled offsets are the only reliable option
// without resorting to struct tags no stdlib decoder understands.
package bpb

import (
	"bytes"
	"encoding/binary"

	"github.com/brineflow/fat32vfs/errors"
)

// Byte offsets into the boot sector, per spec.md section 6.
const (
	offJmpBoot          = 0
	offOEMName          = 3
	offBytesPerSector   = 11
	offSectorsPerClus   = 13
	offReservedSectors  = 14
	offNumFATs          = 16
	offRootEntryCount16 = 17
	offTotalSectors16   = 19
	offMedia            = 21
	offSectorsPerFAT16  = 22
	offSectorsPerTrack  = 24
	offNumHeads         = 26
	offHiddenSectors    = 28
	offTotalSectors32   = 32
	offSectorsPerFAT32  = 36
	offExtFlags         = 40
	offFSVersion        = 42
	offRootDirCluster   = 44
	offFSInfoSector     = 48
	offBackupBootSector = 50
	offReserved         = 52
	offVolumeID         = 67
	offVolumeLabel      = 71
	offFSType           = 82

	// Size is the length, in bytes, of the fixed-layout region this package
	// parses. The remainder of the sector (boot code, 0x55 0xAA signature)
	// is outside this package's scope.
	Size = 90
)

var fatTypeLabel = [8]byte{'F', 'A', 'T', '3', '2', ' ', ' ', ' '}

// BPB is the parsed, validated BIOS Parameter Block for a FAT32 volume,
// immutable after Load returns successfully.
type BPB struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	HiddenSectors     uint32
	TotalSectors      uint32
	SectorsPerFAT     uint32
	RootDirCluster    uint32
	FSInfoSector      uint16
	BackupBootSector  uint16
	VolumeID          uint32

	// Derived fields, computed once at Load time.
	FirstDataSector      uint32
	TotalClusters        uint32
	ClusterSize          uint32
	FirstFATSector       uint32
	FirstBackupFATSector uint32
}

// Load parses and validates a boot sector. sector must be at least Size
// bytes (conventionally a full BytesPerSector-sized buffer). Any validation
// failure per spec.md section 4.B returns a combined
// errors.ErrFileSystemCorrupted describing every violation found, not just
// the first.
func Load(sector []byte) (*BPB, error) {
	if len(sector) < Size {
		return nil, errors.ErrFileSystemCorrupted.WithMessage(
			"boot sector shorter than the fixed BPB region")
	}

	var collector errors.Collector

	bytesPerSector := binary.LittleEndian.Uint16(sector[offBytesPerSector:])
	sectorsPerCluster := sector[offSectorsPerClus]
	reservedSectors := binary.LittleEndian.Uint16(sector[offReservedSectors:])
	numFATs := sector[offNumFATs]
	rootEntryCount16 := binary.LittleEndian.Uint16(sector[offRootEntryCount16:])
	totalSectors16 := binary.LittleEndian.Uint16(sector[offTotalSectors16:])
	sectorsPerFAT16 := binary.LittleEndian.Uint16(sector[offSectorsPerFAT16:])
	hiddenSectors := binary.LittleEndian.Uint32(sector[offHiddenSectors:])
	totalSectors32 := binary.LittleEndian.Uint32(sector[offTotalSectors32:])
	sectorsPerFAT32 := binary.LittleEndian.Uint32(sector[offSectorsPerFAT32:])
	fsVersion := binary.LittleEndian.Uint16(sector[offFSVersion:])
	rootDirCluster := binary.LittleEndian.Uint32(sector[offRootDirCluster:])
	fsInfoSector := binary.LittleEndian.Uint16(sector[offFSInfoSector:])
	backupBootSector := binary.LittleEndian.Uint16(sector[offBackupBootSector:])
	volumeID := binary.LittleEndian.Uint32(sector[offVolumeID:])
	fsType := sector[offFSType : offFSType+8]

	if rootEntryCount16 != 0 {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"root entry count must be 0 on FAT32"))
	}
	if totalSectors16 != 0 {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"16-bit total sector count must be 0 on FAT32"))
	}
	if sectorsPerFAT16 != 0 {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"16-bit sectors-per-FAT must be 0 on FAT32"))
	}
	if fsVersion != 0 {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"unsupported filesystem version"))
	}
	if !bytes.Equal(fsType, fatTypeLabel[:]) {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"filesystem type label is not \"FAT32   \""))
	}
	if !isPowerOfTwoInRange(uint(bytesPerSector), 512, 4096) {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"bytes-per-sector must be a power of two in [512, 4096]"))
	}
	if !isPowerOfTwoInRange(uint(sectorsPerCluster), 1, 128) {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"sectors-per-cluster must be a power of two in [1, 128]"))
	}

	bytesPerCluster := uint32(bytesPerSector) * uint32(sectorsPerCluster)
	if bytesPerCluster > 32*1024 {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"bytes-per-cluster exceeds 32 KiB"))
	}
	if reservedSectors < 1 {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"reserved sector count must be at least 1"))
	} else {
		if uint32(backupBootSector) >= uint32(reservedSectors) {
			collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
				"backup boot sector is outside the reserved region"))
		}
		if uint32(fsInfoSector) >= uint32(reservedSectors) {
			collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
				"FSInfo sector is outside the reserved region"))
		}
	}
	if numFATs != 1 && numFATs != 2 {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"number of FATs must be 1 or 2"))
	}
	if sectorsPerFAT32 == 0 {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"32-bit sectors-per-FAT must be nonzero"))
	}

	totalFATSectors := uint32(numFATs) * sectorsPerFAT32
	firstDataSector := uint32(reservedSectors) + totalFATSectors
	if totalSectors32 <= firstDataSector {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"total sector count does not exceed the first data sector"))
	}

	var totalClusters uint32
	if totalSectors32 > firstDataSector && sectorsPerCluster > 0 {
		dataSectors := totalSectors32 - firstDataSector
		totalClusters = dataSectors / uint32(sectorsPerCluster)
	}
	if totalClusters > 0x0FFFFFF4 {
		collector.Add(errors.ErrFileSystemCorrupted.WithMessage(
			"total cluster count exceeds the FAT32 maximum"))
	}

	if collector.HasErrors() {
		return nil, collector.AsDriverError(errors.ErrFileSystemCorrupted)
	}

	return &BPB{
		BytesPerSector:       bytesPerSector,
		SectorsPerCluster:    sectorsPerCluster,
		ReservedSectors:      reservedSectors,
		NumFATs:              numFATs,
		HiddenSectors:        hiddenSectors,
		TotalSectors:         totalSectors32,
		SectorsPerFAT:        sectorsPerFAT32,
		RootDirCluster:       rootDirCluster,
		FSInfoSector:         fsInfoSector,
		BackupBootSector:     backupBootSector,
		VolumeID:             volumeID,
		FirstDataSector:      firstDataSector,
		TotalClusters:        totalClusters,
		ClusterSize:          bytesPerCluster,
		FirstFATSector:       uint32(reservedSectors),
		FirstBackupFATSector: uint32(reservedSectors) + sectorsPerFAT32,
	}, nil
}

func isPowerOfTwoInRange(n, lo, hi uint) bool {
	if n < lo || n > hi {
		return false
	}
	return n != 0 && (n&(n-1)) == 0
}

// EntriesPerDirentCluster returns the number of 32-byte directory entries
// that fit in one cluster.
func (b *BPB) EntriesPerDirentCluster() int {
	return int(b.ClusterSize) / 32
}
