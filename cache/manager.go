// Package cache implements the bounded, pinned, write-back slot caches
// described in spec.md sections 3, 4.D, and 4.E: a sector cache for BPB/
// FSInfo/FAT regions and a cluster cache for directory/file data. Both share
// the same slot-management policy and differ only in what a slot holds and
// how it's fetched/flushed, so that policy lives here once as a generic
// Manager and each cache type is a thin, typed facade over it.
//
// Eviction policy is grounded on the original RunFS source's
// ClusterCacheManager::get_cache: scan the cache's slots in insertion order
// for the first one with no outstanding external pin, evict it, flushing
// first if dirty. If every slot is pinned, the cache is exhausted -- a
// programmer error, not a recoverable condition, so Get panics rather than
// returning an error.
package cache

import (
	"fmt"
	"sync"

	"github.com/brineflow/fat32vfs/errors"
)

// FetchFunc loads the contents for key into buf, which is exactly slotSize
// bytes long.
type FetchFunc func(key uint32, buf []byte) error

// FlushFunc writes buf back to the backing store for key.
type FlushFunc func(key uint32, buf []byte) error

type entry struct {
	key   uint32
	buf   []byte
	dirty bool
	// refs counts the manager's own pin (always at least 1 while the entry
	// is in the queue) plus one for every Handle currently held by a
	// caller. A slot is evictable exactly when refs == 1.
	refs int
	mu   sync.RWMutex
}

// Manager is the shared slot-cache engine behind SectorCache and
// ClusterCache. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	capacity int
	slotSize int
	fetch    FetchFunc
	flush    FlushFunc
	queue    []*entry
	byKey    map[uint32]*entry
}

// NewManager builds a cache holding at most capacity slots of slotSize bytes
// each.
func NewManager(capacity, slotSize int, fetch FetchFunc, flush FlushFunc) *Manager {
	if capacity < 1 {
		panic("cache: capacity must be at least 1")
	}
	return &Manager{
		capacity: capacity,
		slotSize: slotSize,
		fetch:    fetch,
		flush:    flush,
		byKey:    make(map[uint32]*entry, capacity),
	}
}

// Handle is a pinned reference to one cache slot. The pin prevents eviction
// until Release is called. A Handle must not be used after Release.
type Handle struct {
	mgr *Manager
	e   *entry
}

// Get returns a pinned handle to the slot for key, loading it from the
// backing store on a miss. Callers must call Release on the returned handle
// exactly once.
//
// Get panics if the cache is full, every slot is pinned, and key is not
// already resident: this is PanicCacheExhausted from spec.md section 7.3,
// signaling that a caller is holding more pins than the configured capacity
// allows rather than a user-facing failure.
func (m *Manager) Get(key uint32) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.byKey[key]; ok {
		e.refs++
		return &Handle{mgr: m, e: e}, nil
	}

	if len(m.queue) >= m.capacity {
		idx := -1
		for i, e := range m.queue {
			if e.refs == 1 {
				idx = i
				break
			}
		}
		if idx < 0 {
			panic(errors.ErrCacheExhausted.WithMessage(fmt.Sprintf(
				"all %d slots pinned, cannot load key %d", m.capacity, key)))
		}
		evicted := m.queue[idx]
		m.queue = append(m.queue[:idx:idx], m.queue[idx+1:]...)
		delete(m.byKey, evicted.key)
		if err := m.flushLocked(evicted); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, m.slotSize)
	if err := m.fetch(key, buf); err != nil {
		return nil, err
	}
	e := &entry{key: key, buf: buf, refs: 2}
	m.queue = append(m.queue, e)
	m.byKey[key] = e
	return &Handle{mgr: m, e: e}, nil
}

// Release drops the caller's pin on the handle's slot. The slot remains
// cached (and may be evicted later) once its refcount returns to 1.
func (h *Handle) Release() {
	h.mgr.mu.Lock()
	defer h.mgr.mu.Unlock()
	if h.e.refs > 1 {
		h.e.refs--
	}
}

// Bytes returns the slot's backing buffer. It is exactly the slotSize the
// manager was constructed with.
func (h *Handle) Bytes() []byte {
	return h.e.buf
}

// Read calls fn with a read-locked view of buf[offset:offset+length].
func (h *Handle) Read(offset, length int, fn func(buf []byte)) error {
	if offset < 0 || length < 0 || offset+length > len(h.e.buf) {
		return errors.ErrArgumentOutOfRange.WithMessage("cache slot read out of bounds")
	}
	h.e.mu.RLock()
	defer h.e.mu.RUnlock()
	fn(h.e.buf[offset : offset+length])
	return nil
}

// Modify calls fn with a write-locked view of buf[offset:offset+length] and
// marks the slot dirty. The slot is not flushed until it is evicted or the
// owning cache is flushed explicitly.
func (h *Handle) Modify(offset, length int, fn func(buf []byte)) error {
	if offset < 0 || length < 0 || offset+length > len(h.e.buf) {
		return errors.ErrArgumentOutOfRange.WithMessage("cache slot modify out of bounds")
	}
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	fn(h.e.buf[offset : offset+length])
	h.e.dirty = true
	return nil
}

// MarkDirty flags the handle's slot dirty without going through Modify, for
// callers that already hold the buffer from Bytes().
func (h *Handle) MarkDirty() {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	h.e.dirty = true
}

func (m *Manager) flushLocked(e *entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty {
		return nil
	}
	if err := m.flush(e.key, e.buf); err != nil {
		return err
	}
	e.dirty = false
	return nil
}

// FlushAll writes back every dirty slot without evicting any of them. It's
// the only path, besides eviction, that ever writes a slot to the backing
// store -- called from the filesystem's Close so that dirty slots that were
// never evicted still reach disk.
func (m *Manager) FlushAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var collector errors.Collector
	for _, e := range m.queue {
		collector.Add(m.flushLocked(e))
	}
	return collector.AsError()
}

// Len reports the number of slots currently resident.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
