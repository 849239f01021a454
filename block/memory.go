package block

import (
	"io"

	"github.com/xaionaro-go/bytesextra"

	"github.com/brineflow/fat32vfs/errors"
)

// Memory is a Device backed entirely by an in-memory byte slice. It's the
// reference implementation of the block device contract: useful for tests,
// for building volumes in memory before copying them somewhere durable, and
// as documentation of exactly what a Device implementation is expected to
// guarantee.
type Memory struct {
	stream      io.ReadWriteSeeker
	blockSize   uint
	totalBlocks uint
}

// NewMemory creates a Memory device of totalBlocks blocks, each blockSize
// bytes, backed by a freshly zeroed buffer.
func NewMemory(blockSize, totalBlocks uint) *Memory {
	storage := make([]byte, blockSize*totalBlocks)
	return WrapMemory(storage, blockSize)
}

// WrapMemory adapts an existing byte slice into a Memory device. len(storage)
// must be an exact multiple of blockSize. The slice is used directly, not
// copied: writes to the device are visible through storage and vice versa.
func WrapMemory(storage []byte, blockSize uint) *Memory {
	return &Memory{
		stream:      bytesextra.NewReadWriteSeeker(storage),
		blockSize:   blockSize,
		totalBlocks: uint(len(storage)) / blockSize,
	}
}

func (m *Memory) BlockSize() uint   { return m.blockSize }
func (m *Memory) TotalBlocks() uint { return m.totalBlocks }

func (m *Memory) ReadBlock(id ID, buf []byte) error {
	if err := CheckBounds(m, id, len(buf)); err != nil {
		return err
	}
	if _, err := m.stream.Seek(int64(id)*int64(m.blockSize), io.SeekStart); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	if _, err := io.ReadFull(m.stream, buf); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

func (m *Memory) WriteBlock(id ID, buf []byte) error {
	if err := CheckBounds(m, id, len(buf)); err != nil {
		return err
	}
	if _, err := m.stream.Seek(int64(id)*int64(m.blockSize), io.SeekStart); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	if _, err := m.stream.Write(buf); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}
