// Package bitmap implements a fixed-size, file-backed, memory-mapped bit
// array. It is the leaf component of the bloomd engine: BloomFilter builds
// k-hash set/get semantics on top of it, and nothing below it knows about
// bloom filters at all.
//
// bloomd flips individual bits in place as keys are inserted, so it needs a
// writable mapping rather than a read-only one. This package is built on
// github.com/edsrzf/mmap-go, the read-write mmap library used by
// sourcegraph-zoekt for its shard files.
package bitmap

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/dd0wney/bloomd/pkg/bloomderrors"
)

// Bitmap is a contiguous array of N bits stored as a file of ceil(N/8)
// bytes, memory-mapped for read/write. N is fixed for the lifetime of a
// Bitmap.
type Bitmap struct {
	path   string
	file   *os.File
	data   mmap.MMap
	nBits  int64
	closed bool
}

// Create makes a new zero-filled Bitmap of nBits bits, truncating path to
// the required byte size. It is an error for path to already exist.
func Create(path string, nBits int64) (*Bitmap, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bitmap: create %s: %w", path, err)
	}

	size := byteSize(nBits)
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("bitmap: truncate %s: %w", path, err)
	}

	return mapFile(path, f, nBits)
}

// Open memory-maps an existing file at path, which must already be exactly
// byteSize(nBits) bytes. Opening a file of a different size fails with
// ErrFormatMismatch.
func Open(path string, nBits int64) (*Bitmap, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bitmap: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bitmap: stat %s: %w", path, err)
	}
	if info.Size() != byteSize(nBits) {
		f.Close()
		return nil, fmt.Errorf("bitmap: %s is %d bytes, want %d: %w", path, info.Size(), byteSize(nBits), bloomderrors.ErrFormatMismatch)
	}

	return mapFile(path, f, nBits)
}

// OpenRaw memory-maps an existing file at path, inferring the bit count
// from the file's current size. Used during discovery, where the header
// embedded in the bitmap hasn't been parsed yet.
func OpenRaw(path string) (*Bitmap, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bitmap: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bitmap: stat %s: %w", path, err)
	}

	return mapFile(path, f, info.Size()*8)
}

func mapFile(path string, f *os.File, nBits int64) (*Bitmap, error) {
	size := byteSize(nBits)
	if size == 0 {
		// mmap-go rejects a zero-length mapping; a zero-bit bitmap is
		// degenerate but callers (e.g. discovery of an empty directory)
		// should still get a usable, if useless, value back rather than
		// a syscall error.
		return &Bitmap{path: path, file: f, nBits: nBits}, nil
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bitmap: mmap %s: %w", path, err)
	}

	return &Bitmap{path: path, file: f, data: data, nBits: nBits}, nil
}

// byteSize returns ceil(nBits/8).
func byteSize(nBits int64) int64 {
	return (nBits + 7) / 8
}

// Len returns the number of addressable bits.
func (b *Bitmap) Len() int64 {
	return b.nBits
}

// ByteSize returns the on-disk size in bytes.
func (b *Bitmap) ByteSize() int64 {
	return byteSize(b.nBits)
}

// Path returns the backing file path.
func (b *Bitmap) Path() string {
	return b.path
}

// Get returns the value of the bit at index, which is laid out LSB-first
// within each byte.
func (b *Bitmap) Get(index int64) bool {
	if index < 0 || index >= b.nBits || len(b.data) == 0 {
		return false
	}
	byteIdx := index / 8
	bitIdx := uint(index % 8)
	return b.data[byteIdx]&(1<<bitIdx) != 0
}

// Set sets the bit at index to 1 and reports whether it was previously 0.
// Set is idempotent: concurrent Set calls on the same bit cannot corrupt
// the array, though the "was it previously zero" answer
// may race between concurrent setters of the same bit.
func (b *Bitmap) Set(index int64) (wasZero bool) {
	if index < 0 || index >= b.nBits || len(b.data) == 0 {
		return false
	}
	byteIdx := index / 8
	mask := byte(1) << uint(index%8)
	old := b.data[byteIdx]
	if old&mask != 0 {
		return false
	}
	b.data[byteIdx] = old | mask
	return true
}

// RawBytes exposes the underlying mapped region directly, for the header
// region BloomFilter stores at the tail of the bitmap.
// Callers must stay within bounds; RawBytes does no copying.
func (b *Bitmap) RawBytes() []byte {
	return b.data
}

// Flush synchronizes dirty pages to disk. Callers that are about to unmap
// should follow with Close rather than relying on Flush's msync alone.
func (b *Bitmap) Flush() error {
	if len(b.data) == 0 {
		return nil
	}
	if err := b.data.Flush(); err != nil {
		return fmt.Errorf("bitmap: flush %s: %w", b.path, err)
	}
	return nil
}

// Close synchronizes and unmaps the bitmap, then closes the backing file.
// It issues a synchronous flush (not merely an async msync) before unmap.
func (b *Bitmap) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	var flushErr, unmapErr, closeErr error
	if len(b.data) > 0 {
		flushErr = b.data.Flush()
		unmapErr = b.data.Unmap()
	}
	closeErr = b.file.Close()

	switch {
	case flushErr != nil:
		return fmt.Errorf("bitmap: close %s: flush: %w", b.path, flushErr)
	case unmapErr != nil:
		return fmt.Errorf("bitmap: close %s: unmap: %w", b.path, unmapErr)
	case closeErr != nil:
		return fmt.Errorf("bitmap: close %s: %w", b.path, closeErr)
	}
	return nil
}

// Remove closes the bitmap (if not already closed) and deletes its
// backing file.
func (b *Bitmap) Remove() error {
	if err := b.Close(); err != nil {
		return err
	}
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("bitmap: remove %s: %w", b.path, err)
	}
	return nil
}
