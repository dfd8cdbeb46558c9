// Package scaling implements ScalingFilter: an ordered, growing chain of
// bloom filters sharing a target false-positive probability. Capacity is never fixed up front — the chain
// appends a new, larger sub-filter whenever the current tail saturates,
// with each stage's probability tightened by a constant reduction factor
// so the union-bound aggregate error stays bounded by p/(1-reduction)
// however long the chain grows.
package scaling

import (
	"fmt"
	"math"

	"github.com/dd0wney/bloomd/pkg/bloomfilter"
)

// PathProvider returns the filesystem path for the next sub-filter file
// given its zero-based index in the chain. FilterEntry supplies the
// zero-padded "data.NNN.mmap" naming convention.
type PathProvider func(index int) string

// ScalingFilter is an ordered chain of bloom filters [F0, F1, ..., Ft-1]
// plus the parameters governing how new tails are sized.
type ScalingFilter struct {
	filters     []*bloomfilter.BloomFilter
	probability float64
	scaleSize   int
	reduction   float64
	paths       PathProvider
}

// New constructs a fresh ScalingFilter with a single initial sub-filter of
// capacity initialCapacity at probability p.
func New(paths PathProvider, initialCapacity int, p float64, scaleSize int, reduction float64) (*ScalingFilter, error) {
	if scaleSize < 2 {
		scaleSize = 2
	}
	if reduction <= 0 || reduction >= 1 {
		reduction = 0.9
	}

	f0, err := bloomfilter.New(paths(0), initialCapacity, p)
	if err != nil {
		return nil, fmt.Errorf("scaling: new: %w", err)
	}

	return &ScalingFilter{
		filters:     []*bloomfilter.BloomFilter{f0},
		probability: p,
		scaleSize:   scaleSize,
		reduction:   reduction,
		paths:       paths,
	}, nil
}

// FromChain adopts an ordered list of already-opened sub-filters recovered
// from disk. The last filter is the active
// tail that future inserts land in.
func FromChain(filters []*bloomfilter.BloomFilter, paths PathProvider, p float64, scaleSize int, reduction float64) (*ScalingFilter, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("scaling: from chain: empty filter list")
	}
	if scaleSize < 2 {
		scaleSize = 2
	}
	if reduction <= 0 || reduction >= 1 {
		reduction = 0.9
	}
	return &ScalingFilter{
		filters:     filters,
		probability: p,
		scaleSize:   scaleSize,
		reduction:   reduction,
		paths:       paths,
	}, nil
}

func (s *ScalingFilter) tail() *bloomfilter.BloomFilter {
	return s.filters[len(s.filters)-1]
}

// stageProbability returns the target probability for the stage-th
// sub-filter: p * reduction^stage.
func (s *ScalingFilter) stageProbability(stage int) float64 {
	return s.probability * math.Pow(s.reduction, float64(stage))
}

// grow appends a new tail with scaleSize times the current tail's
// capacity and a tightened target probability.
func (s *ScalingFilter) grow() error {
	stage := len(s.filters)
	newCapacity := s.tail().Capacity() * s.scaleSize
	newProbability := s.stageProbability(stage)

	next, err := bloomfilter.New(s.paths(stage), newCapacity, newProbability)
	if err != nil {
		return fmt.Errorf("scaling: grow to stage %d: %w", stage, err)
	}
	s.filters = append(s.filters, next)
	return nil
}

// Insert adds key to the chain. If the tail has reached capacity, a new
// tail is appended first. Before writing, every existing sub-filter is
// checked for prior membership; if key is already present anywhere in the
// chain, Insert returns false without modifying any bits (this is what
// prevents the chain's aggregate count from over-reporting distinct
// insertions).
func (s *ScalingFilter) Insert(key []byte) (bool, error) {
	if s.tail().IsFull() {
		if err := s.grow(); err != nil {
			return false, err
		}
	}

	for _, f := range s.filters {
		if f.Contains(key) {
			return false, nil
		}
	}

	return s.tail().Insert(key), nil
}

// Contains reports whether key is present in any sub-filter of the chain.
func (s *ScalingFilter) Contains(key []byte) bool {
	for _, f := range s.filters {
		if f.Contains(key) {
			return true
		}
	}
	return false
}

// Capacity returns the summed capacity across the chain.
func (s *ScalingFilter) Capacity() int {
	total := 0
	for _, f := range s.filters {
		total += f.Capacity()
	}
	return total
}

// Size returns the summed count across the chain — the number of distinct
// keys that have ever been inserted.
func (s *ScalingFilter) Size() uint64 {
	var total uint64
	for _, f := range s.filters {
		total += f.Count()
	}
	return total
}

// ByteSize returns the summed on-disk size across the chain.
func (s *ScalingFilter) ByteSize() int64 {
	var total int64
	for _, f := range s.filters {
		total += f.ByteSize()
	}
	return total
}

// Depth returns the number of sub-filters currently in the chain.
func (s *ScalingFilter) Depth() int {
	return len(s.filters)
}

// Flush flushes every sub-filter in order, oldest first.
func (s *ScalingFilter) Flush() error {
	for i, f := range s.filters {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("scaling: flush stage %d: %w", i, err)
		}
	}
	return nil
}

// Close flushes and closes every sub-filter in order.
func (s *ScalingFilter) Close() error {
	var firstErr error
	for i, f := range s.filters {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("scaling: close stage %d: %w", i, err)
		}
	}
	return firstErr
}
