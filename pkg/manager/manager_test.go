package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dd0wney/bloomd/pkg/audit"
	"github.com/dd0wney/bloomd/pkg/bloomderrors"
	"github.com/dd0wney/bloomd/pkg/logging"
	"github.com/dd0wney/bloomd/pkg/metrics"
	"github.com/dd0wney/bloomd/pkg/workerpool"
)

type fakeAuditSink struct {
	events []audit.Event
}

func (f *fakeAuditSink) Record(ctx context.Context, ev audit.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAuditSink) Close() error { return nil }

func testManager(t *testing.T) *Manager {
	t.Helper()
	pool, err := workerpool.NewWorkerPool(4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	defaults := Defaults{
		InitialCapacity:      4,
		DefaultProbability:   0.1,
		ScaleSize:            2,
		ProbabilityReduction: 0.9,
	}
	return New(t.TempDir(), defaults, pool, logging.NewDefaultLogger(), metrics.NewRegistry())
}

func TestCreateThenCheckAndSetKeys(t *testing.T) {
	m := testManager(t)

	require.NoError(t, m.Create("events", Overrides{}))

	results, err := m.SetKeys("events", [][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	require.Equal(t, []bool{true, true}, results)

	found, err := m.CheckKeys("events", [][]byte{[]byte("a"), []byte("nope")})
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, found)
}

func TestCreateDuplicateNameFails(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Create("dup", Overrides{}))
	err := m.Create("dup", Overrides{})
	require.True(t, errors.Is(err, bloomderrors.ErrAlreadyExists))
}

func TestOperationsOnMissingFilterReturnNotFound(t *testing.T) {
	m := testManager(t)

	_, err := m.CheckKeys("ghost", [][]byte{[]byte("a")})
	require.True(t, errors.Is(err, bloomderrors.ErrNotFound))

	_, err = m.SetKeys("ghost", [][]byte{[]byte("a")})
	require.True(t, errors.Is(err, bloomderrors.ErrNotFound))

	err = m.FlushFilter("ghost")
	require.True(t, errors.Is(err, bloomderrors.ErrNotFound))

	err = m.Drop("ghost")
	require.True(t, errors.Is(err, bloomderrors.ErrNotFound))
}

func TestDropRemovesFromRegistryAndDisk(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Create("temp", Overrides{}))
	_, err := m.SetKeys("temp", [][]byte{[]byte("x")})
	require.NoError(t, err)

	require.NoError(t, m.Drop("temp"))

	_, err = m.CheckKeys("temp", [][]byte{[]byte("x")})
	require.True(t, errors.Is(err, bloomderrors.ErrNotFound))

	_, err = m.Info("temp")
	require.True(t, errors.Is(err, bloomderrors.ErrNotFound))
}

func TestCloseThenReaccessFaultsInTransparently(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Create("paged", Overrides{}))
	_, err := m.SetKeys("paged", [][]byte{[]byte("a")})
	require.NoError(t, err)

	require.NoError(t, m.CloseFilter("paged"))

	found, err := m.CheckKeys("paged", [][]byte{[]byte("a")})
	require.NoError(t, err)
	require.Equal(t, []bool{true}, found)
}

func TestConcurrentAccessFaultsInProxyOnce(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Create("cold", Overrides{}))
	_, err := m.SetKeys("cold", [][]byte{[]byte("a")})
	require.NoError(t, err)
	require.NoError(t, m.CloseFilter("cold"))

	h, ok := m.lookup("cold")
	require.True(t, ok)
	h.mu.RLock()
	require.False(t, h.entry.IsActive(), "entry must start as a Proxy for this test to exercise fault-in")
	h.mu.RUnlock()

	const goroutines = 16
	errs := make(chan error, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = m.CheckKeys("cold", [][]byte{[]byte("a")})
			} else {
				_, err = m.SetKeys("cold", [][]byte{[]byte("b")})
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	require.True(t, h.entry.IsActive())
	require.Equal(t, uint64(1), h.entry.Counters().PageIns,
		"concurrent readers racing to fault in the same Proxy must only run Discover once")
}

func TestListSortedByName(t *testing.T) {
	m := testManager(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, m.Create(name, Overrides{}))
	}

	list := m.List()
	require.Len(t, list, 3)
	require.Equal(t, "alpha", list[0].Name)
	require.Equal(t, "mid", list[1].Name)
	require.Equal(t, "zeta", list[2].Name)
}

func TestOverridesApplyOnCreate(t *testing.T) {
	m := testManager(t)
	capacity := 64
	prob := 0.02
	require.NoError(t, m.Create("custom", Overrides{InitialCapacity: &capacity, DefaultProbability: &prob}))

	conf, err := m.Conf("custom")
	require.NoError(t, err)
	require.Equal(t, capacity, conf["custom"].InitialCapacity)
	require.Equal(t, prob, conf["custom"].DefaultProbability)
}

func TestFlushAllSkipsFilterThatDisappearsMidSweep(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Create("a", Overrides{}))
	require.NoError(t, m.Create("b", Overrides{}))

	// A registered name whose entry is gone stands in for a filter dropped
	// mid-sweep: FlushAll must skip it without panicking.
	m.mu.Lock()
	m.entries["gone"] = &entryHandle{}
	m.mu.Unlock()
	m.FlushAll()
}

func TestAuditSinkRecordsCreateDropFlush(t *testing.T) {
	m := testManager(t)
	sink := &fakeAuditSink{}
	m.SetAuditSink(sink)

	require.NoError(t, m.Create("audited", Overrides{}))
	require.NoError(t, m.FlushFilter("audited"))
	require.NoError(t, m.Drop("audited"))

	require.Len(t, sink.events, 3)
	require.Equal(t, audit.ActionCreate, sink.events[0].Action)
	require.Equal(t, audit.ActionFlush, sink.events[1].Action)
	require.Equal(t, audit.ActionDrop, sink.events[2].Action)
	for _, ev := range sink.events {
		require.Equal(t, "ok", ev.Outcome)
	}
}

func TestDiscoverRepopulatesRegistryAfterRestart(t *testing.T) {
	pool, err := workerpool.NewWorkerPool(4)
	require.NoError(t, err)
	defer pool.Close()

	dir := t.TempDir()
	defaults := Defaults{InitialCapacity: 4, DefaultProbability: 0.1, ScaleSize: 2, ProbabilityReduction: 0.9}

	m1 := New(dir, defaults, pool, logging.NewDefaultLogger(), metrics.NewRegistry())
	require.NoError(t, m1.Create("persisted", Overrides{}))
	for i := 0; i < 3; i++ {
		_, err := m1.SetKeys("persisted", [][]byte{[]byte(fmt.Sprintf("k%d", i))})
		require.NoError(t, err)
	}
	require.NoError(t, m1.Shutdown(context.Background()))

	m2 := New(dir, defaults, pool, logging.NewDefaultLogger(), metrics.NewRegistry())
	require.NoError(t, m2.Discover())

	found, err := m2.CheckKeys("persisted", [][]byte{[]byte("k0")})
	require.NoError(t, err)
	require.Equal(t, []bool{true}, found)
}

