// Package data implements the data manager from spec.md section 4.G: a thin
// typed facade over the cluster cache providing whole-cluster and
// byte-range access at cluster+offset.
package data

import (
	"github.com/brineflow/fat32vfs/cache"
	"github.com/brineflow/fat32vfs/errors"
)

// Manager is a thin wrapper around a cluster cache offering byte-range and
// whole-cluster operations addressed by cluster id.
type Manager struct {
	clusters *cache.ClusterCache
}

// NewManager builds a data manager over clusters.
func NewManager(clusters *cache.ClusterCache) *Manager {
	return &Manager{clusters: clusters}
}

// ClusterSize returns the size, in bytes, of one cluster.
func (m *Manager) ClusterSize() int {
	return m.clusters.ClusterSize()
}

// ReadCluster copies the entire contents of cluster into dst, which must be
// exactly ClusterSize() bytes.
func (m *Manager) ReadCluster(cluster uint32, dst []byte) error {
	if len(dst) != m.ClusterSize() {
		return errors.ErrInvalidArgument.WithMessage("buffer length must equal cluster size")
	}
	h, err := m.clusters.Get(cluster)
	if err != nil {
		return err
	}
	defer h.Release()
	return h.Read(0, len(dst), func(buf []byte) { copy(dst, buf) })
}

// WriteCluster overwrites the entire contents of cluster with src, which
// must be exactly ClusterSize() bytes.
func (m *Manager) WriteCluster(cluster uint32, src []byte) error {
	if len(src) != m.ClusterSize() {
		return errors.ErrInvalidArgument.WithMessage("buffer length must equal cluster size")
	}
	h, err := m.clusters.Get(cluster)
	if err != nil {
		return err
	}
	defer h.Release()
	return h.Modify(0, len(src), func(buf []byte) { copy(buf, src) })
}

// ClearCluster zero-fills the entire contents of cluster.
func (m *Manager) ClearCluster(cluster uint32) error {
	h, err := m.clusters.Get(cluster)
	if err != nil {
		return err
	}
	defer h.Release()
	return h.Modify(0, m.ClusterSize(), func(buf []byte) {
		for i := range buf {
			buf[i] = 0
		}
	})
}

// ReadClusterAt calls fn with a read-locked, bounds-checked view of
// length bytes starting at offset within cluster.
func (m *Manager) ReadClusterAt(cluster uint32, offset, length int, fn func(buf []byte)) error {
	h, err := m.clusters.Get(cluster)
	if err != nil {
		return err
	}
	defer h.Release()
	return h.Read(offset, length, fn)
}

// WriteClusterAt calls fn with a write-locked, bounds-checked view of
// length bytes starting at offset within cluster, marking the cluster
// dirty.
func (m *Manager) WriteClusterAt(cluster uint32, offset, length int, fn func(buf []byte)) error {
	h, err := m.clusters.Get(cluster)
	if err != nil {
		return err
	}
	defer h.Release()
	return h.Modify(offset, length, fn)
}

// FlushAll writes back every dirty cluster slot.
func (m *Manager) FlushAll() error {
	return m.clusters.FlushAll()
}
