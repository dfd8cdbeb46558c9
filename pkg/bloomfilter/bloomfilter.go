// Package bloomfilter implements a single classical bloom filter: a fixed
// bit array sized for a target capacity and false-positive probability,
// with k independent hash functions derived by double hashing. It is the first layer built on top of pkg/bitmap;
// ScalingFilter (pkg/scaling) chains several of these together to grow
// capacity over time.
package bloomfilter

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/dd0wney/bloomd/pkg/bitmap"
	"github.com/dd0wney/bloomd/pkg/bloomderrors"
	"github.com/dd0wney/bloomd/pkg/pools"
)

// BloomFilter is a fixed-capacity bloom filter backed by a memory-mapped
// Bitmap. Its last HeaderBytes bytes hold persisted metadata (count, k,
// capacity) rather than hashable bits.
type BloomFilter struct {
	bm *bitmap.Bitmap

	hashBits int64 // hashable bit count, excludes the trailing header
	k        int
	capacity int
	count    uint64
	dirty    bool
}

// New creates a fresh BloomFilter at path sized for capacity keys at false
// positive probability p, per the Sizing formula.
func New(path string, capacity int, p float64) (*BloomFilter, error) {
	hashBits, k := Sizing(capacity, p)
	totalBits := hashBits + HeaderBytes*8

	bm, err := bitmap.Create(path, totalBits)
	if err != nil {
		return nil, fmt.Errorf("bloomfilter: new %s: %w", path, err)
	}

	f := &BloomFilter{
		bm:       bm,
		hashBits: hashBits,
		k:        k,
		capacity: capacity,
	}
	if err := f.Flush(); err != nil {
		bm.Close()
		return nil, err
	}
	return f, nil
}

// Open memory-maps an existing bloom filter file and reconstructs its
// parameters from the persisted header. Header values take precedence over
// any caller-supplied expectations, since they are the only record of the k
// and capacity chosen at creation time.
func Open(path string) (*BloomFilter, error) {
	bm, err := bitmap.OpenRaw(path)
	if err != nil {
		return nil, fmt.Errorf("bloomfilter: open %s: %w", path, err)
	}

	raw := bm.RawBytes()
	if int64(len(raw))*8 <= HeaderBytes*8 {
		bm.Close()
		return nil, fmt.Errorf("bloomfilter: open %s: too small for header: %w", path, bloomderrors.ErrFormatMismatch)
	}

	tail := raw[len(raw)-HeaderBytes:]
	h, ok := decodeHeader(tail)
	if !ok {
		bm.Close()
		return nil, fmt.Errorf("bloomfilter: open %s: %w", path, bloomderrors.ErrFormatMismatch)
	}

	f := &BloomFilter{
		bm:       bm,
		hashBits: bm.Len() - HeaderBytes*8,
		k:        int(h.k),
		capacity: int(h.capacity),
		count:    h.count,
	}
	return f, nil
}

// indexes computes the k bit positions for key using double hashing:
// (h1 + i*h2) mod M, the standard Kirsch-Mitzenmacher construction. h1 and h2 are two separate xxhash-64
// digests, h2 taken over the key prefixed with seedPrefix, so i==0 and the
// h2 stride don't collide.
func (f *BloomFilter) indexes(key []byte) []int64 {
	h1 := xxhash.Sum64(key)

	buf := pools.GetBytes(len(seedPrefix) + len(key))
	buf = append(buf, seedPrefix...)
	buf = append(buf, key...)
	h2 := xxhash.Sum64(buf)
	pools.PutBytes(buf)

	if h2 == 0 {
		h2 = 1 // avoid a degenerate all-same-index filter
	}

	idx := make([]int64, f.k)
	m := uint64(f.hashBits)
	for i := 0; i < f.k; i++ {
		combined := h1 + uint64(i)*h2
		idx[i] = int64(combined % m)
	}
	return idx
}

var seedPrefix = []byte{0x62, 0x6c, 0x6d, 0x64} // "blmd", decorrelates h2 from h1

// Insert sets the k bits for key and reports whether the key was novel
// (at least one of its bits was previously zero). A false result does not
// guarantee the key was already present — it may be a false positive of an
// earlier insert.
func (f *BloomFilter) Insert(key []byte) bool {
	novel := false
	for _, i := range f.indexes(key) {
		if f.bm.Set(i) {
			novel = true
		}
	}
	if novel {
		f.count++
		f.dirty = true
	}
	return novel
}

// Contains reports whether all k bits for key are set. A true result may be
// a false positive; a false result is never a false negative.
func (f *BloomFilter) Contains(key []byte) bool {
	for _, i := range f.indexes(key) {
		if !f.bm.Get(i) {
			return false
		}
	}
	return true
}

// Count returns the number of keys inserted (novel Insert calls), not the
// number of set bits.
func (f *BloomFilter) Count() uint64 { return f.count }

// K returns the number of hash functions used per key.
func (f *BloomFilter) K() int { return f.k }

// Capacity returns the target capacity this filter was sized for.
func (f *BloomFilter) Capacity() int { return f.capacity }

// BitLen returns the size of the hashable bit region, excluding the
// trailing persisted header.
func (f *BloomFilter) BitLen() int64 { return f.hashBits }

// IsFull reports whether Count has reached Capacity, the trigger for
// ScalingFilter to append a new tail filter.
func (f *BloomFilter) IsFull() bool {
	return f.capacity > 0 && f.count >= uint64(f.capacity)
}

// Flush persists the header (count, k, capacity) into the bitmap's trailing
// bytes and syncs the mapping to disk.
func (f *BloomFilter) Flush() error {
	raw := f.bm.RawBytes()
	if int64(len(raw))*8 < HeaderBytes*8 {
		return fmt.Errorf("bloomfilter: flush %s: mapping too small for header", f.bm.Path())
	}
	tail := raw[len(raw)-HeaderBytes:]
	encodeHeader(tail, header{
		count:    f.count,
		k:        uint32(f.k),
		capacity: uint64(f.capacity),
	})
	f.dirty = false
	if err := f.bm.Flush(); err != nil {
		return fmt.Errorf("bloomfilter: flush %s: %w", f.bm.Path(), err)
	}
	return nil
}

// Close flushes pending header state and closes the underlying bitmap.
func (f *BloomFilter) Close() error {
	if f.dirty {
		if err := f.Flush(); err != nil {
			return err
		}
	}
	return f.bm.Close()
}

// Path returns the backing file path.
func (f *BloomFilter) Path() string { return f.bm.Path() }

// byteSizeHint is a small helper used by ScalingFilter to report aggregate
// on-disk size without reaching into bitmap internals.
func (f *BloomFilter) byteSizeHint() int64 { return f.bm.ByteSize() }

// ByteSize returns the on-disk size of the backing file in bytes.
func (f *BloomFilter) ByteSize() int64 { return f.byteSizeHint() }
