// Package manager implements the process-wide filter registry: discovery
// at startup, create/drop/close, bulk check/set, periodic flush and
// cold-sweep schedulers, and the per-filter reader/writer coordination
// that keeps the network-facing command handler from ever touching a
// ScalingFilter directly.
package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dd0wney/bloomd/pkg/audit"
	"github.com/dd0wney/bloomd/pkg/backup"
	"github.com/dd0wney/bloomd/pkg/bloomderrors"
	"github.com/dd0wney/bloomd/pkg/filterentry"
	"github.com/dd0wney/bloomd/pkg/logging"
	"github.com/dd0wney/bloomd/pkg/metrics"
	"github.com/dd0wney/bloomd/pkg/workerpool"
)

// Defaults mirror FilterEntry's Config field meanings and are applied to
// any Create call that doesn't override them.
type Defaults struct {
	InitialCapacity      int
	DefaultProbability   float64
	ScaleSize            int
	ProbabilityReduction float64
}

// Overrides lets a caller of Create customize any subset of Defaults.
type Overrides struct {
	InitialCapacity      *int
	DefaultProbability   *float64
	ScaleSize            *int
	ProbabilityReduction *float64
}

// Manager is the {name -> FilterEntry} registry plus the locking and
// scheduling machinery for the filter lifecycle. The global
// registry lock (mu) protects the map and the hot set; each entry also has
// its own per-name lock to serialize Active/Proxy transitions and bit
// mutations without blocking unrelated filters.
type Manager struct {
	dataDir  string
	defaults Defaults

	mu      sync.RWMutex
	entries map[string]*entryHandle
	hot     map[string]struct{}

	pool    *workerpool.WorkerPool
	logger  logging.Logger
	metrics *metrics.Registry
	audit   audit.Sink
	backup  *backup.Uploader
}

// entryHandle pairs a FilterEntry with its own reader/writer lock so two
// different filter names never contend on the same mutex.
type entryHandle struct {
	mu    sync.RWMutex
	entry *filterentry.FilterEntry
}

// New constructs a Manager rooted at dataDir. Callers should follow with
// Discover to populate the registry from any filters already on disk.
func New(dataDir string, defaults Defaults, pool *workerpool.WorkerPool, logger logging.Logger, reg *metrics.Registry) *Manager {
	return &Manager{
		dataDir:  dataDir,
		defaults: defaults,
		entries:  make(map[string]*entryHandle),
		hot:      make(map[string]struct{}),
		pool:     pool,
		logger:   logger,
		metrics:  reg,
		audit:    audit.NopSink{},
	}
}

// SetAuditSink swaps the audit sink used for create/drop/flush events.
// Defaults to a no-op sink; callers wire a *audit.PGSink when an audit DSN
// is configured.
func (m *Manager) SetAuditSink(sink audit.Sink) {
	if sink == nil {
		sink = audit.NopSink{}
	}
	m.audit = sink
}

// SetBackupUploader enables an S3 snapshot upload after every successful
// FlushAll sweep. Disabled (nil) by default.
func (m *Manager) SetBackupUploader(u *backup.Uploader) {
	m.backup = u
}

func (m *Manager) recordAudit(name string, action audit.Action, err error) {
	outcome := "ok"
	if err != nil {
		outcome = err.Error()
	}
	_ = m.audit.Record(context.Background(), audit.NewEvent(name, action, outcome, time.Now()))
}

// filterDirPrefix names per-filter subdirectories within dataDir.
const filterDirPrefix = "bloomd."

func (m *Manager) dirFor(name string) string {
	return filepath.Join(m.dataDir, filterDirPrefix+name)
}

// Discover scans dataDir for existing filter directories, opens each one
// to validate its config and data files, then pages it straight back out
// and registers it as a Proxy FilterEntry whose pages stay unmapped until
// first access. A directory that fails discovery is logged and skipped;
// the server continues.
func (m *Manager) Discover() error {
	entries, err := os.ReadDir(m.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("manager: discover: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ent := range entries {
		if !ent.IsDir() || !strings.HasPrefix(ent.Name(), filterDirPrefix) {
			continue
		}
		name := strings.TrimPrefix(ent.Name(), filterDirPrefix)
		dir := filepath.Join(m.dataDir, ent.Name())

		fe, err := filterentry.Discover(name, dir)
		if err != nil {
			m.logger.Warn("discovery failed for filter directory, skipping",
				logging.FilterName(name), logging.Path(dir), logging.Error(err))
			continue
		}
		// Keep discovery light: page it back out immediately so startup
		// doesn't keep every filter's files mapped.
		if err := fe.PageOut(); err != nil {
			m.logger.Warn("failed to page out freshly discovered filter",
				logging.FilterName(name), logging.Error(err))
		}
		m.entries[name] = &entryHandle{entry: fe}
	}
	return nil
}

func (m *Manager) lookup(name string) (*entryHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.entries[name]
	return h, ok
}

func (m *Manager) markHot(name string) {
	m.mu.Lock()
	m.hot[name] = struct{}{}
	m.mu.Unlock()
}

func applyOverrides(d Defaults, o Overrides) filterentry.Config {
	cfg := filterentry.Config{
		InitialCapacity:      d.InitialCapacity,
		DefaultProbability:   d.DefaultProbability,
		ScaleSize:            d.ScaleSize,
		ProbabilityReduction: d.ProbabilityReduction,
	}
	if o.InitialCapacity != nil {
		cfg.InitialCapacity = *o.InitialCapacity
	}
	if o.DefaultProbability != nil {
		cfg.DefaultProbability = *o.DefaultProbability
	}
	if o.ScaleSize != nil {
		cfg.ScaleSize = *o.ScaleSize
	}
	if o.ProbabilityReduction != nil {
		cfg.ProbabilityReduction = *o.ProbabilityReduction
	}
	return cfg
}

// run dispatches fn to the worker pool and blocks until it completes,
// giving callers an ordinary blocking function call while ensuring the
// mmap/disk work never executes on the caller's own goroutine.
func (m *Manager) run(fn func() error) error {
	done := make(chan error, 1)
	submitted := m.pool.Submit(func() {
		done <- fn()
	})
	if !submitted {
		return fmt.Errorf("manager: worker pool closed: %w", bloomderrors.ErrInternal)
	}
	return <-done
}

// Create registers a brand new filter under the global write-lock. It is
// an error if name already exists.
func (m *Manager) Create(name string, overrides Overrides) error {
	m.mu.Lock()
	if _, exists := m.entries[name]; exists {
		m.mu.Unlock()
		return bloomderrors.ErrAlreadyExists
	}
	// Publish a placeholder handle before releasing the lock so a
	// concurrent Create of the same name fails fast instead of racing two
	// directory creations.
	h := &entryHandle{}
	m.entries[name] = h
	m.hot[name] = struct{}{}
	m.mu.Unlock()

	cfg := applyOverrides(m.defaults, overrides)
	dir := m.dirFor(name)

	err := m.run(func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		fe, err := filterentry.Create(name, dir, cfg)
		if err != nil {
			return err
		}
		h.entry = fe
		return nil
	})
	if err != nil {
		m.mu.Lock()
		delete(m.entries, name)
		m.mu.Unlock()
		wrapped := fmt.Errorf("manager: create %s: %w", name, err)
		m.recordAudit(name, audit.ActionCreate, wrapped)
		return wrapped
	}

	m.logger.Info("filter created", logging.FilterName(name))
	m.recordAudit(name, audit.ActionCreate, nil)
	return nil
}

// Drop closes the named entry, deletes its on-disk files, and unregisters
// it, under that entry's own write-lock.
func (m *Manager) Drop(name string) error {
	h, ok := m.lookup(name)
	if !ok {
		return bloomderrors.ErrNotFound
	}

	err := m.run(func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.entry == nil {
			return bloomderrors.ErrNotFound
		}
		if err := h.entry.Delete(); err != nil {
			return err
		}
		h.entry = nil
		return nil
	})
	if err != nil {
		wrapped := fmt.Errorf("manager: drop %s: %w", name, err)
		m.recordAudit(name, audit.ActionDrop, wrapped)
		return wrapped
	}

	m.mu.Lock()
	delete(m.entries, name)
	delete(m.hot, name)
	m.mu.Unlock()

	m.logger.Info("filter dropped", logging.FilterName(name))
	m.recordAudit(name, audit.ActionDrop, nil)
	return nil
}

// CloseFilter unmaps the named entry's pages on demand while preserving
// its on-disk files; the next access reconstructs it by discovery.
func (m *Manager) CloseFilter(name string) error {
	h, ok := m.lookup(name)
	if !ok {
		return bloomderrors.ErrNotFound
	}
	err := m.run(func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.entry == nil {
			return bloomderrors.ErrNotFound
		}
		return h.entry.PageOut()
	})
	if err != nil {
		return fmt.Errorf("manager: close %s: %w", name, err)
	}
	return nil
}

// ensureActive faults a Proxy entry in under the entry's write-lock before
// the caller downgrades to a read-lock for the actual check/set work.
// Fault-in mutates the entry's sf/cfg/counters fields, which makes it a
// writer even though Contains/Add themselves only read bits, so it must
// never run under a shared RLock: two readers discovering the same cold
// entry at once would otherwise both call Discover and race on those
// fields. A reader that finds the entry already Active skips the write
// lock entirely.
func (m *Manager) ensureActive(h *entryHandle) error {
	h.mu.RLock()
	if h.entry == nil {
		h.mu.RUnlock()
		return bloomderrors.ErrNotFound
	}
	alreadyActive := h.entry.IsActive()
	h.mu.RUnlock()
	if alreadyActive {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.entry == nil {
		return bloomderrors.ErrNotFound
	}
	return h.entry.EnsureActive()
}

// CheckKeys faults the entry in under its write-lock if necessary, then
// reports per-key membership under the entry's read-lock. If the entry
// vanished between the initial lookup and lock acquisition, the
// authoritative re-check under the lock raises NotFound.
func (m *Manager) CheckKeys(name string, keys [][]byte) ([]bool, error) {
	h, ok := m.lookup(name)
	if !ok {
		return nil, bloomderrors.ErrNotFound
	}
	m.markHot(name)

	var result []bool
	err := m.run(func() error {
		if err := m.ensureActive(h); err != nil {
			return err
		}
		h.mu.RLock()
		defer h.mu.RUnlock()
		if h.entry == nil {
			return bloomderrors.ErrNotFound
		}
		result = make([]bool, len(keys))
		for i, k := range keys {
			found, err := h.entry.Contains(k)
			if err != nil {
				return err
			}
			result[i] = found
			m.metrics.RecordCheck(found)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("manager: check %s: %w", name, err)
	}
	return result, nil
}

// SetKeys faults the entry in under its write-lock if necessary, then
// inserts each key under the entry's read-lock (set is bit-level
// idempotent, so concurrent readers are safe once the entry is Active)
// and returns per-key novelty.
func (m *Manager) SetKeys(name string, keys [][]byte) ([]bool, error) {
	h, ok := m.lookup(name)
	if !ok {
		return nil, bloomderrors.ErrNotFound
	}
	m.markHot(name)

	var result []bool
	err := m.run(func() error {
		if err := m.ensureActive(h); err != nil {
			return err
		}
		h.mu.RLock()
		defer h.mu.RUnlock()
		if h.entry == nil {
			return bloomderrors.ErrNotFound
		}
		result = make([]bool, len(keys))
		for i, k := range keys {
			novel, err := h.entry.Add(k)
			if err != nil {
				return err
			}
			result[i] = novel
			m.metrics.RecordSet(novel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("manager: set %s: %w", name, err)
	}
	return result, nil
}

// FlushFilter flushes the named entry under its read-lock. A filesystem
// error leaves the entry dirty for retry at the next scheduled tick.
func (m *Manager) FlushFilter(name string) error {
	h, ok := m.lookup(name)
	if !ok {
		return bloomderrors.ErrNotFound
	}
	err := m.run(func() error {
		h.mu.RLock()
		defer h.mu.RUnlock()
		if h.entry == nil {
			return bloomderrors.ErrNotFound
		}
		start := time.Now()
		if err := h.entry.Flush(); err != nil {
			m.metrics.RecordFlush("error", time.Since(start))
			return fmt.Errorf("%w: %v", bloomderrors.ErrFlushFailed, err)
		}
		m.metrics.RecordFlush("ok", time.Since(start))
		return nil
	})
	if err != nil {
		wrapped := fmt.Errorf("manager: flush %s: %w", name, err)
		m.recordAudit(name, audit.ActionFlush, wrapped)
		return wrapped
	}
	m.recordAudit(name, audit.ActionFlush, nil)
	return nil
}

// FlushAll snapshots the current set of names and flushes each in turn;
// names that disappear mid-sweep are silently skipped.
func (m *Manager) FlushAll() {
	m.mu.RLock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	m.mu.RUnlock()

	for _, name := range names {
		if err := m.FlushFilter(name); err != nil {
			if !isNotFound(err) {
				m.logger.Error("flush failed", logging.FilterName(name), logging.Error(err))
			}
			continue
		}
		if m.backup != nil {
			if err := m.backup.Snapshot(context.Background(), name, m.dirFor(name)); err != nil {
				m.logger.Error("backup snapshot failed", logging.FilterName(name), logging.Error(err))
			}
		}
	}
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), bloomderrors.ErrNotFound.Error())
}

// Info describes a single filter for the "info" and "list" commands.
type Info struct {
	Name        string
	Size        uint64
	Capacity    int
	ByteSize    int64
	Probability float64
	Counters    filterentry.Counters
}

// Info reports non-mutating statistics for a single filter without
// faulting in a Proxy.
func (m *Manager) Info(name string) (Info, error) {
	h, ok := m.lookup(name)
	if !ok {
		return Info{}, bloomderrors.ErrNotFound
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.entry == nil {
		return Info{}, bloomderrors.ErrNotFound
	}
	return Info{
		Name:        name,
		Size:        h.entry.Len(),
		Capacity:    h.entry.Capacity(),
		ByteSize:    h.entry.ByteSize(),
		Probability: h.entry.Config().DefaultProbability,
		Counters:    h.entry.Counters(),
	}, nil
}

// List reports Info for every registered filter, sorted by name. Entries
// that error mid-read (they may be paging) are skipped.
func (m *Manager) List() []Info {
	m.mu.RLock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	result := make([]Info, 0, len(names))
	for _, name := range names {
		info, err := m.Info(name)
		if err != nil {
			continue
		}
		result = append(result, info)
	}
	return result
}

// Conf returns the persisted configuration for a single filter, or for
// every filter if name is empty.
func (m *Manager) Conf(name string) (map[string]filterentry.Config, error) {
	if name != "" {
		h, ok := m.lookup(name)
		if !ok {
			return nil, bloomderrors.ErrNotFound
		}
		h.mu.RLock()
		defer h.mu.RUnlock()
		if h.entry == nil {
			return nil, bloomderrors.ErrNotFound
		}
		return map[string]filterentry.Config{name: h.entry.Config()}, nil
	}

	m.mu.RLock()
	names := make([]string, 0, len(m.entries))
	for n := range m.entries {
		names = append(names, n)
	}
	m.mu.RUnlock()

	out := make(map[string]filterentry.Config, len(names))
	for _, n := range names {
		h, ok := m.lookup(n)
		if !ok {
			continue
		}
		h.mu.RLock()
		if h.entry != nil {
			out[n] = h.entry.Config()
		}
		h.mu.RUnlock()
	}
	return out, nil
}

// ClearHot empties the hot set, called at the end of every cold-sweep
// tick.
func (m *Manager) ClearHot() {
	m.mu.Lock()
	m.hot = make(map[string]struct{})
	m.mu.Unlock()
}

// ColdNames returns every registered name not present in the hot set.
func (m *Manager) ColdNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var cold []string
	for name := range m.entries {
		if _, isHot := m.hot[name]; !isHot {
			cold = append(cold, name)
		}
	}
	return cold
}

// PageOutIfActive pages a single entry out to Proxy state if it is
// currently Active, under its own write-lock.
func (m *Manager) PageOutIfActive(name string) error {
	h, ok := m.lookup(name)
	if !ok {
		return nil
	}
	return m.run(func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.entry == nil || !h.entry.IsActive() {
			return nil
		}
		return h.entry.PageOut()
	})
}

// Shutdown flushes and closes every registered entry, used by graceful
// shutdown.
// It implements pkg/server.Shutdownable.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	handles := make([]*entryHandle, 0, len(m.entries))
	for _, h := range m.entries {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, h := range handles {
		h.mu.Lock()
		if h.entry != nil {
			if err := h.entry.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		h.mu.Unlock()
	}
	return firstErr
}
