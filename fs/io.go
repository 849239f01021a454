package fs

import "github.com/brineflow/fat32vfs/dirent"

// capacity returns the effective readable/writable capacity of a VFile:
// for directories, cluster_size * chain length; for files, the short
// entry's size field.
func (v *VFile) capacity() (uint32, error) {
	if v.attr&dirent.AttrDirectory != 0 {
		if v.firstCluster == 0 {
			return 0, nil
		}
		n, err := v.fs.fatMgr.CountClusters(v.firstCluster)
		if err != nil {
			return 0, err
		}
		return uint32(n) * uint32(v.fs.dataMgr.ClusterSize()), nil
	}
	return v.size, nil
}

// readWriteAt walks the cluster chain from firstCluster, copying between
// buf and the volume at logical byte offset off, per spec.md section 4.H's
// "File I/O via a short entry" algorithm. write selects write vs. read.
func (v *VFile) readWriteAt(off int64, buf []byte, write bool) (int, error) {
	capacity, err := v.capacity()
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, nil
	}
	end := off + int64(len(buf))
	if end > int64(capacity) {
		end = int64(capacity)
	}
	if off >= end {
		return 0, nil
	}

	clusterSize := v.fs.dataMgr.ClusterSize()
	startIdx := int(off / int64(clusterSize))
	cur, ok, err := v.fs.fatMgr.SearchCluster(v.firstCluster, startIdx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	transferred := 0
	pos := off
	for pos < end {
		withinCluster := int(pos % int64(clusterSize))
		spanEnd := int64(withinCluster) + (end - pos)
		if spanEnd > int64(clusterSize) {
			spanEnd = int64(clusterSize)
		}
		n := int(spanEnd) - withinCluster

		chunk := buf[transferred : transferred+n]
		if write {
			err = v.fs.dataMgr.WriteClusterAt(cur, withinCluster, n, func(dst []byte) {
				copy(dst, chunk)
			})
		} else {
			err = v.fs.dataMgr.ReadClusterAt(cur, withinCluster, n, func(src []byte) {
				copy(chunk, src)
			})
		}
		if err != nil {
			return transferred, err
		}

		transferred += n
		pos += int64(n)
		if pos >= end {
			break
		}

		next, has, err := v.fs.fatMgr.NextCluster(cur)
		if err != nil {
			return transferred, err
		}
		if !has {
			break
		}
		cur = next
	}
	return transferred, nil
}
