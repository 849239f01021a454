// Package block defines the fixed-size block device contract the rest of
// this module is layered on top of, plus a reference in-memory
// implementation.
package block

import (
	"github.com/brineflow/fat32vfs/errors"
)

// ID identifies a single fixed-size block (sector) on a Device. Block IDs
// begin at 0.
type ID uint32

// Device is a fixed-size block device: every read and write operates on
// exactly one block of BlockSize() bytes. Implementations must be safe to
// call from a single goroutine at a time; callers are responsible for any
// synchronization (the sector/cluster caches above this layer already
// serialize access with their own locks).
type Device interface {
	// BlockSize returns the size of a single block, in bytes. It is uniform
	// across the lifetime of a mounted device.
	BlockSize() uint

	// TotalBlocks returns the number of blocks available on the device.
	TotalBlocks() uint

	// ReadBlock fills buf with the contents of the block at id. buf must be
	// exactly BlockSize() bytes; shorter buffers are a contract violation on
	// the caller's part, per spec, and implementations may panic rather than
	// silently truncate.
	ReadBlock(id ID, buf []byte) error

	// WriteBlock writes buf to the block at id. buf must be exactly
	// BlockSize() bytes.
	WriteBlock(id ID, buf []byte) error
}

// CheckBounds is a shared helper for Device implementations (and their
// callers) to validate a block ID and buffer length against a device's
// geometry before touching the backing storage.
func CheckBounds(dev Device, id ID, bufLen int) error {
	if uint(id) >= dev.TotalBlocks() {
		return errors.ErrArgumentOutOfRange.WithMessage(
			"block id out of range")
	}
	if bufLen != int(dev.BlockSize()) {
		return errors.ErrInvalidArgument.WithMessage(
			"buffer length must equal the device block size")
	}
	return nil
}
