// Package fsinfo parses, validates, and serializes the FAT32 FSInfo sector
// described in spec.md sections 3 and 4.C. FSInfo is a best-effort hint:
// correctness of the rest of the module never depends on its contents.
package fsinfo

import (
	"encoding/binary"

	"github.com/brineflow/fat32vfs/errors"
)

const (
	leadSignature  = 0x41615252
	strucSignature = 0x61417272
	trailSignature = 0xAA550000

	unknown = 0xFFFFFFFF

	offLeadSignature  = 0
	offStrucSignature = 484
	offFreeCount      = 488
	offNextFree       = 492
	offTrailSignature = 508

	// Size is the length, in bytes, of the FSInfo sector layout.
	Size = 512
)

// FSInfo holds the FAT32 free-space hint. Either field may be "unknown",
// represented here as a nil *uint32 rather than the on-disk 0xFFFFFFFF
// sentinel so callers can't accidentally treat "unknown" as a real count.
type FSInfo struct {
	FreeClusterCount *uint32
	NextFreeCluster  *uint32
}

// Load parses and validates an FSInfo sector. Any signature mismatch returns
// errors.ErrFileSystemCorrupted. Field values are not yet clamped against
// volume geometry; call ValidateAndFix after construction for that.
func Load(sector []byte) (*FSInfo, error) {
	if len(sector) < Size {
		return nil, errors.ErrFileSystemCorrupted.WithMessage(
			"FSInfo sector shorter than 512 bytes")
	}

	lead := binary.LittleEndian.Uint32(sector[offLeadSignature:])
	struc := binary.LittleEndian.Uint32(sector[offStrucSignature:])
	trail := binary.LittleEndian.Uint32(sector[offTrailSignature:])

	if lead != leadSignature || struc != strucSignature || trail != trailSignature {
		return nil, errors.ErrFileSystemCorrupted.WithMessage(
			"FSInfo signature mismatch")
	}

	rawFree := binary.LittleEndian.Uint32(sector[offFreeCount:])
	rawNext := binary.LittleEndian.Uint32(sector[offNextFree:])

	info := &FSInfo{}
	if rawFree != unknown {
		v := rawFree
		info.FreeClusterCount = &v
	}
	if rawNext != unknown {
		v := rawNext
		info.NextFreeCluster = &v
	}
	return info, nil
}

// ValidateAndFix clamps the hint against the volume's total cluster count,
// discarding (setting to unknown) any field that can't possibly be correct.
// This mirrors the original RunFS source's FSInfo::validate_and_fix, which
// additionally rejects NextFreeCluster values of 0 or 1 since those cluster
// ids are reserved and can never legitimately be "the next free cluster" --
// spec.md only says "clamp against total_clusters", but the original is
// explicit about the reserved-id rule and we carry it forward.
func (info *FSInfo) ValidateAndFix(totalClusters uint32) {
	if info.FreeClusterCount != nil && *info.FreeClusterCount > totalClusters {
		info.FreeClusterCount = nil
	}
	if info.NextFreeCluster != nil {
		n := *info.NextFreeCluster
		maxValid := totalClusters + 2
		if n > maxValid || n == 0 || n == 1 {
			info.NextFreeCluster = nil
		}
	}
}

// Serialize rebuilds a full FSInfo sector with fresh signatures and the
// current hint values (or the 0xFFFFFFFF "unknown" sentinel).
func (info *FSInfo) Serialize(sector []byte) {
	if len(sector) < Size {
		panic("fsinfo: destination buffer shorter than 512 bytes")
	}
	for i := range sector[:Size] {
		sector[i] = 0
	}

	binary.LittleEndian.PutUint32(sector[offLeadSignature:], leadSignature)
	binary.LittleEndian.PutUint32(sector[offStrucSignature:], strucSignature)
	binary.LittleEndian.PutUint32(sector[offTrailSignature:], trailSignature)

	free := uint32(unknown)
	if info.FreeClusterCount != nil {
		free = *info.FreeClusterCount
	}
	next := uint32(unknown)
	if info.NextFreeCluster != nil {
		next = *info.NextFreeCluster
	}
	binary.LittleEndian.PutUint32(sector[offFreeCount:], free)
	binary.LittleEndian.PutUint32(sector[offNextFree:], next)
}

// DecrementFreeCount reduces the free-cluster hint by one, if known.
func (info *FSInfo) DecrementFreeCount() {
	if info.FreeClusterCount != nil && *info.FreeClusterCount > 0 {
		v := *info.FreeClusterCount - 1
		info.FreeClusterCount = &v
	}
}

// IncrementFreeCount increases the free-cluster hint by one, if known.
func (info *FSInfo) IncrementFreeCount() {
	if info.FreeClusterCount != nil {
		v := *info.FreeClusterCount + 1
		info.FreeClusterCount = &v
	}
}

// SetFreeCount overwrites the free-cluster hint with a known value.
func (info *FSInfo) SetFreeCount(n uint32) {
	v := n
	info.FreeClusterCount = &v
}

// SetNextFree overwrites the next-free-cluster hint with a known value.
func (info *FSInfo) SetNextFree(n uint32) {
	v := n
	info.NextFreeCluster = &v
}
