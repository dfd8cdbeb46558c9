package bloomfilter

import "encoding/binary"

// The trailing header persisted within a Bitmap's final bytes. Layout is fixed, little-endian,
// and never overlaps the hashable bit region:
//
//	offset  size  field
//	0       4     magic
//	4       1     version
//	5       3     reserved
//	8       8     count
//	16      4     k
//	20      4     reserved
//	24      8     capacity
const (
	headerMagic   uint32 = 0x626C4664 // "bLFd"
	headerVersion uint8  = 1

	// HeaderBytes is the fixed size of the trailing header region.
	HeaderBytes = 32

	offMagic    = 0
	offVersion  = 4
	offCount    = 8
	offK        = 16
	offCapacity = 24
)

type header struct {
	count    uint64
	k        uint32
	capacity uint64
}

// decodeHeader parses the trailing HeaderBytes of raw. Returns false if the
// magic or version is unrecognized (a FormatMismatch at the BloomFilter
// level).
func decodeHeader(raw []byte) (header, bool) {
	if len(raw) < HeaderBytes {
		return header{}, false
	}
	if binary.LittleEndian.Uint32(raw[offMagic:]) != headerMagic {
		return header{}, false
	}
	if raw[offVersion] != headerVersion {
		return header{}, false
	}
	return header{
		count:    binary.LittleEndian.Uint64(raw[offCount:]),
		k:        binary.LittleEndian.Uint32(raw[offK:]),
		capacity: binary.LittleEndian.Uint64(raw[offCapacity:]),
	}, true
}

// encodeHeader writes h into the trailing HeaderBytes of raw.
func encodeHeader(raw []byte, h header) {
	binary.LittleEndian.PutUint32(raw[offMagic:], headerMagic)
	raw[offVersion] = headerVersion
	raw[5], raw[6], raw[7] = 0, 0, 0
	binary.LittleEndian.PutUint64(raw[offCount:], h.count)
	binary.LittleEndian.PutUint32(raw[offK:], h.k)
	binary.LittleEndian.PutUint32(raw[20:], 0)
	binary.LittleEndian.PutUint64(raw[offCapacity:], h.capacity)
}
