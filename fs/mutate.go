package fs

import (
	"github.com/brineflow/fat32vfs/dirent"
	"github.com/brineflow/fat32vfs/errors"
)

// Create adds a new directory entry named name with the given attribute
// byte, per spec.md section 4.J. It refuses if an entry of the same kind
// (file vs. directory, per the DIRECTORY attribute bit) already exists
// under that name -- a deliberate reading of "same-kind entry exists":
// this module does not forbid a file and a directory sharing a name, only
// two entries of the same kind.
func (v *VFile) Create(name string, attr byte) (*VFile, error) {
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()

	if existing, ok, err := v.findByName(name); err != nil {
		return nil, err
	} else if ok && (existing.attr&dirent.AttrDirectory) == (attr&dirent.AttrDirectory) {
		return nil, errors.ErrExists
	}

	groups := dirent.SplitLongName(name)
	n := len(groups)

	off, err := v.findFreeDirents(n + 1)
	if err != nil {
		return nil, err
	}

	firstCluster, ok, err := v.fs.allocClustersLocked(1, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrNoSpace
	}

	name11, _ := dirent.SynthesizeShortName(name)
	sum := dirent.Checksum(name11)

	for i := 0; i < n; i++ {
		order := byte(n - i)
		if i == 0 {
			order |= dirent.LastLongEntryBit
		}
		le := &dirent.LongEntry{Order: order, Checksum: sum, Name: groups[n-1-i]}
		entryOff := off + int64(i)*dirent.Size
		if err := v.writeSlotAt(entryOff, func(slot []byte) { dirent.EncodeLongEntry(slot, le) }); err != nil {
			return nil, err
		}
	}

	shortOff := off + int64(n)*dirent.Size
	short := &dirent.ShortEntry{Attr: attr, FirstCluster: firstCluster, Size: 0}
	if err := v.writeSlotAt(shortOff, func(slot []byte) { dirent.EncodeShortEntry(slot, name11, short) }); err != nil {
		return nil, err
	}

	created, ok, err := v.findByName(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrFileSystemCorrupted.WithMessage("entry not found immediately after creation")
	}

	if attr&dirent.AttrDirectory != 0 {
		if err := v.initDotEntries(created, firstCluster); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// initDotEntries synthesizes "." and ".." as short entries at offsets 0 and
// 32 of a freshly created subdirectory's first cluster.
func (v *VFile) initDotEntries(dir *VFile, firstCluster uint32) error {
	dotName, _ := dirent.SynthesizeShortName(".")
	dot := &dirent.ShortEntry{Attr: dirent.AttrDirectory, FirstCluster: firstCluster}
	if err := dir.writeSlotAt(0, func(slot []byte) { dirent.EncodeShortEntry(slot, dotName, dot) }); err != nil {
		return err
	}

	parentCluster := v.firstCluster
	if v.isRoot {
		parentCluster = 0
	}
	dotdotName, _ := dirent.SynthesizeShortName("..")
	dotdot := &dirent.ShortEntry{Attr: dirent.AttrDirectory, FirstCluster: parentCluster}
	return dir.writeSlotAt(dirent.Size, func(slot []byte) { dirent.EncodeShortEntry(slot, dotdotName, dotdot) })
}

// writeSlotAt writes one 32-byte directory entry slot at a logical offset
// within v's content via fn.
func (v *VFile) writeSlotAt(off int64, fn func(slot []byte)) error {
	buf := make([]byte, dirent.Size)
	fn(buf)
	_, err := v.readWriteAt(off, buf, true)
	return err
}

// Delete removes v's directory entry: every stored long-entry position and
// the short entry are marked deleted, and the entry's data chain is freed.
// Delete does not recurse into subdirectories -- deleting a non-empty
// directory orphans its children, per spec.md section 4.J.
func (v *VFile) Delete() error {
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()

	if v.isRoot {
		return errors.ErrInvalidArgument.WithMessage("cannot delete the root directory")
	}

	for _, pos := range v.longPos {
		if err := v.fs.dataMgr.WriteClusterAt(pos.Cluster, pos.Offset, 1, func(buf []byte) {
			buf[0] = dirent.DeletedMarker
		}); err != nil {
			return err
		}
	}
	if err := v.fs.dataMgr.WriteClusterAt(v.shortPos.Cluster, v.shortPos.Offset, 1, func(buf []byte) {
		buf[0] = dirent.DeletedMarker
	}); err != nil {
		return err
	}

	if v.firstCluster != 0 {
		if _, err := v.fs.fatMgr.DeallocClusters(v.firstCluster, nil); err != nil {
			return err
		}
	}
	return nil
}
