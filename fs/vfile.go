package fs

import (
	"strings"
	"time"

	"github.com/brineflow/fat32vfs/dirent"
	"github.com/brineflow/fat32vfs/errors"
)

// Position identifies one 32-byte directory entry slot by the cluster it
// lives in and its byte offset within that cluster.
type Position struct {
	Cluster uint32
	Offset  int
}

// VFile is a handle to a file or directory, identified by where its paired
// short entry lives (or the synthesized root), per spec.md section 3.
type VFile struct {
	fs     *FileSystem
	name   string
	attr   byte
	isRoot bool

	firstCluster uint32
	size         uint32

	shortPos Position
	longPos  []Position

	parentFirstCluster uint32
}

// Name returns the VFile's logical name.
func (v *VFile) Name() string { return v.name }

// Attr returns the cached attribute byte.
func (v *VFile) Attr() byte { return v.attr }

// FirstCluster returns the first cluster of the entry's data/content chain.
func (v *VFile) FirstCluster() uint32 { return v.firstCluster }

func (v *VFile) IsDir() bool  { return v.attr&dirent.AttrDirectory != 0 }
func (v *VFile) IsFile() bool { return v.attr&dirent.AttrDirectory == 0 }
func (v *VFile) IsRoot() bool { return v.isRoot }

// ReadAt reads len(buf) bytes starting at offset, returning the number of
// bytes actually transferred (which may be less than len(buf) at end of
// content -- a short read is not an error, per spec.md section 7).
func (v *VFile) ReadAt(offset int64, buf []byte) (int, error) {
	v.fs.mu.RLock()
	defer v.fs.mu.RUnlock()
	return v.readWriteAt(offset, buf, false)
}

// WriteAt writes len(buf) bytes starting at offset, first growing the
// cluster chain to cover offset+len(buf) if needed, and updates the short
// entry's size field for regular files on success.
func (v *VFile) WriteAt(offset int64, buf []byte) (int, error) {
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()

	needSize := offset + int64(len(buf))
	if err := v.adjustCapacityLocked(uint32(needSize)); err != nil {
		return 0, err
	}
	// A file's readable/writable capacity is its size field, so the new size
	// has to be in place before the write or the write would be clamped.
	oldSize := v.size
	grow := v.IsFile() && !v.isRoot && uint32(needSize) > v.size
	if grow {
		v.size = uint32(needSize)
	}
	n, err := v.readWriteAt(offset, buf, true)
	if err != nil {
		v.size = oldSize
		return n, err
	}
	if grow {
		if err := v.syncShortEntryField(func(slot []byte) { dirent.SetSize(slot, v.size) }); err != nil {
			return n, err
		}
	}
	return n, nil
}

// AdjustCapacity grows the chain, if needed, to cover newSize bytes.
// Shrinking is a non-goal: if newSize is less than the current capacity,
// AdjustCapacity returns success without freeing anything.
func (v *VFile) AdjustCapacity(newSize uint32) error {
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()
	return v.adjustCapacityLocked(newSize)
}

func (v *VFile) adjustCapacityLocked(newSize uint32) error {
	clusterSize := uint32(v.fs.dataMgr.ClusterSize())
	wantClusters := int((newSize + clusterSize - 1) / clusterSize)
	if wantClusters == 0 {
		wantClusters = 1
	}

	if v.firstCluster == 0 {
		first, ok, err := v.fs.fatMgr.AllocClusters(wantClusters, nil)
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrNoSpace
		}
		if err := zeroFillChain(v.fs, first); err != nil {
			return err
		}
		v.firstCluster = first
		if err := v.syncShortEntryField(func(slot []byte) { dirent.SetFirstCluster(slot, first) }); err != nil {
			return err
		}
		return nil
	}

	have, err := v.fs.fatMgr.CountClusters(v.firstCluster)
	if err != nil {
		return err
	}
	need := wantClusters - have
	if need <= 0 {
		return nil
	}
	last, err := v.fs.fatMgr.FinalCluster(v.firstCluster)
	if err != nil {
		return err
	}
	first, ok, err := v.fs.fatMgr.AllocClusters(need, &last)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrNoSpace
	}
	return zeroFillChain(v.fs, first)
}

func zeroFillChain(fsys *FileSystem, first uint32) error {
	cur := first
	for {
		if err := fsys.dataMgr.ClearCluster(cur); err != nil {
			return err
		}
		next, has, err := fsys.fatMgr.NextCluster(cur)
		if err != nil {
			return err
		}
		if !has {
			return nil
		}
		cur = next
	}
}

// syncShortEntryField rewrites the paired short entry's slot via fn. The
// root's synthesized entry has no on-disk position and is a no-op here.
func (v *VFile) syncShortEntryField(fn func(slot []byte)) error {
	if v.isRoot {
		return nil
	}
	return v.fs.dataMgr.WriteClusterAt(v.shortPos.Cluster, v.shortPos.Offset, dirent.Size, fn)
}

// Stat returns the entry's size, timestamps, and first cluster.
type Stat struct {
	Size         uint32
	AccessDate   time.Time
	ModTime      time.Time
	CrtTime      time.Time
	FirstCluster uint32
}

// Stat reads the VFile's metadata.
func (v *VFile) Stat() (Stat, error) {
	v.fs.mu.RLock()
	defer v.fs.mu.RUnlock()

	size, err := v.capacity()
	if err != nil {
		return Stat{}, err
	}
	if v.isRoot {
		return Stat{Size: size, FirstCluster: v.firstCluster}, nil
	}

	var short *dirent.ShortEntry
	err = v.fs.dataMgr.ReadClusterAt(v.shortPos.Cluster, v.shortPos.Offset, dirent.Size, func(slot []byte) {
		short = dirent.DecodeShortEntry(slot)
	})
	if err != nil {
		return Stat{}, err
	}

	hour, minute, second := dirent.DecodeTime(short.WrtTime)
	modDate := dirent.DecodeDate(short.WrtDate)
	modTime := time.Date(modDate.Year(), modDate.Month(), modDate.Day(), hour, minute, second, 0, time.UTC)

	chour, cminute, csecond := dirent.DecodeTime(short.CrtTime)
	crtDate := dirent.DecodeDate(short.CrtDate)
	crtTime := time.Date(crtDate.Year(), crtDate.Month(), crtDate.Day(), chour, cminute, csecond, 0, time.UTC)

	return Stat{
		Size:         size,
		AccessDate:   dirent.DecodeDate(short.LastAccDate),
		ModTime:      modTime,
		CrtTime:      crtTime,
		FirstCluster: short.FirstCluster,
	}, nil
}

// FindFreeDirents scans the directory's content for n contiguous free
// 32-byte slots, growing the directory if necessary, and returns the
// logical byte offset of the first slot in the run.
func (v *VFile) findFreeDirents(n int) (int64, error) {
	var off int64
	runStart := int64(-1)
	runLen := 0

	for {
		capacity, err := v.capacity()
		if err != nil {
			return 0, err
		}
		if off >= int64(capacity) {
			// runLen < n always holds here: if a run of n had already been
			// found we would have returned from inside the loop below.
			// Grow by exactly the number of slots still needed; the newly
			// zero-filled region continues the in-progress run (or starts
			// one) when the scan resumes at the same offset.
			need := n - runLen
			growTo := uint32(off) + uint32(need)*dirent.Size
			if err := v.adjustCapacityLocked(growTo); err != nil {
				return 0, err
			}
			continue
		}

		slot := make([]byte, dirent.Size)
		if _, err := v.readWriteAt(off, slot, false); err != nil {
			return 0, err
		}
		if dirent.IsFree(slot) {
			if runStart < 0 {
				runStart = off
			}
			runLen++
			if runLen == n {
				return runStart, nil
			}
		} else {
			runStart = -1
			runLen = 0
		}
		off += dirent.Size
	}
}

// FindFreeDirents is the exported, locked form of findFreeDirents.
func (v *VFile) FindFreeDirents(n int) (int64, error) {
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()
	return v.findFreeDirents(n)
}

func (v *VFile) positionAt(off int64) (Position, error) {
	clusterSize := int64(v.fs.dataMgr.ClusterSize())
	idx := int(off / clusterSize)
	cluster, ok, err := v.fs.fatMgr.SearchCluster(v.firstCluster, idx)
	if err != nil {
		return Position{}, err
	}
	if !ok {
		return Position{}, errors.ErrNotFound
	}
	return Position{Cluster: cluster, Offset: int(off % clusterSize)}, nil
}

// FindByName searches the directory's content for an entry named name,
// trying the long-name scheme first and falling back to an exact,
// case-insensitive short-name match, per spec.md section 4.J.
func (v *VFile) FindByName(name string) (*VFile, bool, error) {
	v.fs.mu.RLock()
	defer v.fs.mu.RUnlock()
	return v.findByName(name)
}

func (v *VFile) findByName(name string) (*VFile, bool, error) {
	capacity, err := v.capacity()
	if err != nil {
		return nil, false, err
	}

	wantGroups := dirent.SplitLongName(name)
	shortTarget, _ := dirent.SynthesizeShortName(name)

	off := int64(0)
	for off < int64(capacity) {
		slot := make([]byte, dirent.Size)
		if _, err := v.readWriteAt(off, slot, false); err != nil {
			return nil, false, err
		}
		if dirent.IsFree(slot) {
			off += dirent.Size
			continue
		}
		if dirent.IsLongEntry(slot) && slot[0]&0x40 != 0 {
			if vf, ok, err := v.tryMatchLongRun(off, slot, wantGroups); err != nil {
				return nil, false, err
			} else if ok {
				return vf, true, nil
			}
		}
		if !dirent.IsLongEntry(slot) {
			short := dirent.DecodeShortEntry(slot)
			if short.IsVolume() {
				off += dirent.Size
				continue
			}
			gotName11 := dirent.Name11(slot)
			if strings.EqualFold(string(gotName11[:]), string(shortTarget[:])) {
				pos, err := v.positionAt(off)
				if err != nil {
					return nil, false, err
				}
				return v.buildVFile(short, pos, nil), true, nil
			}
		}
		off += dirent.Size
	}
	return nil, false, nil
}

func (v *VFile) tryMatchLongRun(lastOff int64, lastSlot []byte, wantGroups [][13]uint16) (*VFile, bool, error) {
	n := int(lastSlot[0] &^ dirent.LastLongEntryBit)
	if n <= 0 || n != len(wantGroups) {
		return nil, false, nil
	}

	longPositions := make([]Position, n)
	groups := make([][13]uint16, n)

	le := dirent.DecodeLongEntry(lastSlot)
	groups[n-1] = le.Name
	pos, err := v.positionAt(lastOff)
	if err != nil {
		return nil, false, err
	}
	longPositions[n-1] = pos

	for i := n - 2; i >= 0; i-- {
		entryOff := lastOff + int64(n-1-i)*dirent.Size
		slot := make([]byte, dirent.Size)
		if _, err := v.readWriteAt(entryOff, slot, false); err != nil {
			return nil, false, err
		}
		if !dirent.IsLongEntry(slot) {
			return nil, false, nil
		}
		sle := dirent.DecodeLongEntry(slot)
		groups[i] = sle.Name
		p, err := v.positionAt(entryOff)
		if err != nil {
			return nil, false, err
		}
		longPositions[i] = p
	}

	// Physical slot n-1-i carries logical chunk i, so groups is already in
	// logical order for comparison against wantGroups.
	logical := groups
	for i := range logical {
		if logical[i] != wantGroups[i] {
			return nil, false, nil
		}
	}

	shortOff := lastOff + int64(n)*dirent.Size
	shortSlot := make([]byte, dirent.Size)
	if _, err := v.readWriteAt(shortOff, shortSlot, false); err != nil {
		return nil, false, err
	}
	if dirent.IsLongEntry(shortSlot) || dirent.IsFree(shortSlot) {
		return nil, false, nil
	}
	name11 := dirent.Name11(shortSlot)
	if dirent.Checksum(name11) != le.Checksum {
		return nil, false, nil
	}

	short := dirent.DecodeShortEntry(shortSlot)
	shortPos, err := v.positionAt(shortOff)
	if err != nil {
		return nil, false, err
	}
	vf := v.buildVFile(short, shortPos, longPositions)
	vf.name = dirent.JoinLongName(logical)
	return vf, true, nil
}

func (v *VFile) buildVFile(short *dirent.ShortEntry, shortPos Position, longPos []Position) *VFile {
	return &VFile{
		fs:                 v.fs,
		name:               short.Name,
		attr:               short.Attr,
		firstCluster:       short.FirstCluster,
		size:               short.Size,
		shortPos:           shortPos,
		longPos:            longPos,
		parentFirstCluster: v.firstCluster,
	}
}

// FindByPath resolves a "/"-separated path, starting at the synthesized
// root if path begins with "/" and at v otherwise. Segments "." and ""
// (from repeated slashes) are skipped.
func (v *VFile) FindByPath(path string) (*VFile, bool, error) {
	cur := v
	if strings.HasPrefix(path, "/") {
		cur = v.fs.Root()
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." {
			continue
		}
		next, ok, err := cur.FindByName(seg)
		if err != nil || !ok {
			return nil, ok, err
		}
		cur = next
	}
	return cur, true, nil
}

// List enumerates the directory's non-free, non-long entries as
// (name, attribute) pairs, per spec.md section 4.J's ls().
type DirEntry struct {
	Name string
	Attr byte
}

func (v *VFile) List() ([]DirEntry, error) {
	v.fs.mu.RLock()
	defer v.fs.mu.RUnlock()

	capacity, err := v.capacity()
	if err != nil {
		return nil, err
	}

	var out []DirEntry
	off := int64(0)
	for off < int64(capacity) {
		slot := make([]byte, dirent.Size)
		if _, err := v.readWriteAt(off, slot, false); err != nil {
			return nil, err
		}
		if dirent.IsFree(slot) {
			off += dirent.Size
			continue
		}
		if dirent.IsLongEntry(slot) && slot[0]&0x40 != 0 {
			n := int(slot[0] &^ dirent.LastLongEntryBit)
			name, shortOff, ok, err := v.reconstructLongName(off, n)
			if err != nil {
				return nil, err
			}
			if ok {
				shortSlot := make([]byte, dirent.Size)
				if _, err := v.readWriteAt(shortOff, shortSlot, false); err != nil {
					return nil, err
				}
				short := dirent.DecodeShortEntry(shortSlot)
				out = append(out, DirEntry{Name: name, Attr: short.Attr})
				off = shortOff + dirent.Size
				continue
			}
		}
		if !dirent.IsLongEntry(slot) {
			short := dirent.DecodeShortEntry(slot)
			if !short.IsVolume() {
				out = append(out, DirEntry{Name: short.Name, Attr: short.Attr})
			}
		}
		off += dirent.Size
	}
	return out, nil
}

// reconstructLongName reassembles the UTF-16 name from the n long entries
// ending (physically starting) at lastOff, returning the logical name and
// the byte offset of the paired short entry.
func (v *VFile) reconstructLongName(lastOff int64, n int) (string, int64, bool, error) {
	lastSlot, err := v.readSlotAt(lastOff)
	if err != nil {
		return "", 0, false, err
	}

	groups := make([][13]uint16, n)
	le := dirent.DecodeLongEntry(lastSlot)
	groups[n-1] = le.Name

	for i := n - 2; i >= 0; i-- {
		slot, err := v.readSlotAt(lastOff + int64(n-1-i)*dirent.Size)
		if err != nil {
			return "", 0, false, err
		}
		if !dirent.IsLongEntry(slot) {
			return "", 0, false, nil
		}
		groups[i] = dirent.DecodeLongEntry(slot).Name
	}

	// Physical slot n-1-i carries logical chunk i, so groups is already in
	// logical order.
	logical := groups

	shortOff := lastOff + int64(n)*dirent.Size
	shortSlot, err := v.readSlotAt(shortOff)
	if err != nil {
		return "", 0, false, err
	}
	if dirent.IsLongEntry(shortSlot) || dirent.IsFree(shortSlot) {
		return "", 0, false, nil
	}
	name11 := dirent.Name11(shortSlot)
	if dirent.Checksum(name11) != le.Checksum {
		return "", 0, false, nil
	}
	return dirent.JoinLongName(logical), shortOff, true, nil
}

// readSlotAt reads one 32-byte directory entry slot at a logical offset
// within v's content.
func (v *VFile) readSlotAt(off int64) ([]byte, error) {
	slot := make([]byte, dirent.Size)
	if _, err := v.readWriteAt(off, slot, false); err != nil {
		return nil, err
	}
	return slot, nil
}
