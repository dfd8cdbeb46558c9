// Package filterentry implements FilterEntry: the per-named-filter
// wrapper around a ScalingFilter that adds an on-disk directory, a
// persisted config, operation counters, and the Active/Proxy cold-paging
// state machine.
//
// A FilterEntry in Proxy state holds no mapped pages at all; the first
// access after a cold sweep faults the real ScalingFilter back in by
// reopening every "*.mmap" file in the directory, in sorted filename
// order, and reconstructing the chain from the persisted config.
package filterentry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dd0wney/bloomd/pkg/bloomfilter"
	"github.com/dd0wney/bloomd/pkg/scaling"
)

// state tags which of the two modes a FilterEntry is in.
type state int

const (
	stateActive state = iota
	stateProxy
)

// FilterEntry is the per-filter wrapper the Manager keeps in its
// registry. dir is fixed for the entry's lifetime; everything else may be
// replaced across a Proxy<->Active transition.
type FilterEntry struct {
	name string
	dir  string

	st       state
	sf       *scaling.ScalingFilter // non-nil only while Active
	cfg      Config
	counters Counters
	dirty    bool
}

// dataFilePrefix names sub-filter files within a filter's directory.
const dataFilePrefix = "data."
const dataFileSuffix = ".mmap"

func pathProvider(dir string) scaling.PathProvider {
	return func(index int) string {
		return filepath.Join(dir, fmt.Sprintf("%s%03d%s", dataFilePrefix, index, dataFileSuffix))
	}
}

// Create makes a brand-new Active FilterEntry: it creates dir, builds a
// fresh ScalingFilter per cfg, and writes the initial config file.
func Create(name, dir string, cfg Config) (*FilterEntry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filterentry: create %s: %w", name, err)
	}

	sf, err := scaling.New(pathProvider(dir), cfg.InitialCapacity, cfg.DefaultProbability, cfg.ScaleSize, cfg.ProbabilityReduction)
	if err != nil {
		return nil, fmt.Errorf("filterentry: create %s: %w", name, err)
	}

	e := &FilterEntry{
		name:  name,
		dir:   dir,
		st:    stateActive,
		sf:    sf,
		cfg:   cfg,
		dirty: true,
	}
	if err := e.Flush(); err != nil {
		sf.Close()
		return nil, err
	}
	return e, nil
}

// Discover reconstructs a FilterEntry from an existing on-disk directory:
// it reads the persisted config, opens every "*.mmap" file in sorted
// order, and adopts the resulting chain as Active.
func Discover(name, dir string) (*FilterEntry, error) {
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("filterentry: discover %s: %w", name, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("filterentry: discover %s: %w", name, err)
	}

	var mmapNames []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		if strings.Contains(ent.Name(), dataFileSuffix) {
			mmapNames = append(mmapNames, ent.Name())
		}
	}
	sort.Strings(mmapNames)

	if len(mmapNames) == 0 {
		return nil, fmt.Errorf("filterentry: discover %s: no data files in %s", name, dir)
	}

	filters := make([]*bloomfilter.BloomFilter, 0, len(mmapNames))
	for _, fname := range mmapNames {
		f, err := bloomfilter.Open(filepath.Join(dir, fname))
		if err != nil {
			for _, opened := range filters {
				opened.Close()
			}
			return nil, fmt.Errorf("filterentry: discover %s: open %s: %w", name, fname, err)
		}
		filters = append(filters, f)
	}

	sf, err := scaling.FromChain(filters, pathProvider(dir), cfg.DefaultProbability, cfg.ScaleSize, cfg.ProbabilityReduction)
	if err != nil {
		for _, opened := range filters {
			opened.Close()
		}
		return nil, fmt.Errorf("filterentry: discover %s: %w", name, err)
	}

	return &FilterEntry{
		name: name,
		dir:  dir,
		st:   stateActive,
		sf:   sf,
		cfg:  cfg,
	}, nil
}

// NewProxy builds a cold FilterEntry directly from a persisted config,
// without touching any "*.mmap" files; its first Contains or Add faults
// the chain in from dir.
func NewProxy(name, dir string, cfg Config, counters Counters) *FilterEntry {
	return &FilterEntry{
		name:     name,
		dir:      dir,
		st:       stateProxy,
		cfg:      cfg,
		counters: counters,
	}
}

// Name returns the filter's name.
func (e *FilterEntry) Name() string { return e.name }

// Dir returns the filter's on-disk directory.
func (e *FilterEntry) Dir() string { return e.dir }

// IsActive reports whether the entry currently holds mapped pages.
func (e *FilterEntry) IsActive() bool { return e.st == stateActive }

// Counters returns a snapshot of the entry's operation counters.
func (e *FilterEntry) Counters() Counters { return e.counters }

// Config returns a snapshot of the entry's persisted configuration.
func (e *FilterEntry) Config() Config { return e.cfg }

// EnsureActive faults the entry in if it is currently a Proxy. It is a
// no-op if the entry is already Active, so a caller that re-checks state
// after re-acquiring a lock can call it unconditionally.
func (e *FilterEntry) EnsureActive() error {
	if e.st == stateProxy {
		return e.faultIn()
	}
	return nil
}

// faultIn transitions a Proxy to Active by reopening its directory.
func (e *FilterEntry) faultIn() error {
	if e.st == stateActive {
		return nil
	}

	discovered, err := Discover(e.name, e.dir)
	if err != nil {
		return fmt.Errorf("filterentry: fault in %s: %w", e.name, err)
	}

	e.sf = discovered.sf
	e.cfg = discovered.cfg
	e.st = stateActive
	e.counters.PageIns++
	return nil
}

// Contains checks membership, faulting in the chain first if the entry is
// currently a Proxy.
func (e *FilterEntry) Contains(key []byte) (bool, error) {
	if e.st == stateProxy {
		if err := e.faultIn(); err != nil {
			return false, err
		}
	}
	found := e.sf.Contains(key)
	if found {
		e.counters.CheckHits++
	} else {
		e.counters.CheckMisses++
	}
	return found, nil
}

// Add inserts key, faulting in the chain first if necessary, and marks the
// entry dirty on a true (novel) result.
func (e *FilterEntry) Add(key []byte) (bool, error) {
	if e.st == stateProxy {
		if err := e.faultIn(); err != nil {
			return false, err
		}
	}
	novel, err := e.sf.Insert(key)
	if err != nil {
		return false, fmt.Errorf("filterentry: add %s: %w", e.name, err)
	}
	if novel {
		e.counters.SetHits++
		e.dirty = true
	} else {
		e.counters.SetMisses++
	}
	return novel, nil
}

// Flush is a no-op on a Proxy (it holds nothing to flush). On an Active,
// dirty entry it refreshes the advisory size/capacity/byte_size fields,
// serializes the config, flushes the ScalingFilter, and clears dirty.
// Idempotent when already clean.
func (e *FilterEntry) Flush() error {
	if e.st == stateProxy {
		return nil
	}
	if !e.dirty {
		return nil
	}

	e.cfg.Size = e.sf.Size()
	e.cfg.Capacity = e.sf.Capacity()
	e.cfg.ByteSize = e.sf.ByteSize()

	if err := saveConfig(e.dir, e.cfg); err != nil {
		return fmt.Errorf("filterentry: flush %s: %w", e.name, err)
	}
	if err := e.sf.Flush(); err != nil {
		return fmt.Errorf("filterentry: flush %s: %w", e.name, err)
	}
	e.dirty = false
	return nil
}

// Close is a no-op on a Proxy. On an Active entry it flushes then releases
// all mapped pages, leaving the entry in a closed-but-not-proxy state
// unsuitable for further use (the Manager either drops the FilterEntry
// entirely or replaces it with an explicit Proxy via PageOut).
func (e *FilterEntry) Close() error {
	if e.st == stateProxy {
		return nil
	}
	if err := e.Flush(); err != nil {
		return err
	}
	if err := e.sf.Close(); err != nil {
		return fmt.Errorf("filterentry: close %s: %w", e.name, err)
	}
	e.sf = nil
	return nil
}

// PageOut flushes and closes an Active entry's mapped pages and replaces
// its state with Proxy, preserving counters and bumping PageOuts.
func (e *FilterEntry) PageOut() error {
	if e.st == stateProxy {
		return nil
	}
	if err := e.Flush(); err != nil {
		return err
	}
	if err := e.sf.Close(); err != nil {
		return fmt.Errorf("filterentry: page out %s: %w", e.name, err)
	}
	e.sf = nil
	e.st = stateProxy
	e.counters.PageOuts++
	return nil
}

// Capacity returns the current total capacity: delegated to the live
// chain if Active, or the cached config value if Proxy.
func (e *FilterEntry) Capacity() int {
	if e.st == stateActive {
		return e.sf.Capacity()
	}
	return e.cfg.Capacity
}

// Len returns the current total size (distinct key count): delegated to
// the live chain if Active, or the cached config value if Proxy.
func (e *FilterEntry) Len() uint64 {
	if e.st == stateActive {
		return e.sf.Size()
	}
	return e.cfg.Size
}

// ByteSize returns the current total on-disk size: delegated to the live
// chain if Active, or the cached config value if Proxy.
func (e *FilterEntry) ByteSize() int64 {
	if e.st == stateActive {
		return e.sf.ByteSize()
	}
	return e.cfg.ByteSize
}

// Delete removes every "*.mmap" file and the config file, then the
// directory itself. An Active entry is closed (flushed and unmapped) first,
// so no file handles remain open; a caller need not close it beforehand.
func (e *FilterEntry) Delete() error {
	if e.st == stateActive {
		if err := e.Close(); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("filterentry: delete %s: %w", e.name, err)
	}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		if strings.Contains(ent.Name(), dataFileSuffix) || ent.Name() == configFileName {
			if err := os.Remove(filepath.Join(e.dir, ent.Name())); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("filterentry: delete %s: %w", e.name, err)
			}
		}
	}
	if err := os.Remove(e.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filterentry: delete %s: %w", e.name, err)
	}
	return nil
}
