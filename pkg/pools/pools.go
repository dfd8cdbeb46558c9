// Package pools provides object pooling for reducing GC pressure.
//
// BytePool is a size-class based byte slice pool for the scratch buffer
// bloomd's double-hashing computation allocates on every set/check.
package pools
