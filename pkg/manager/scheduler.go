package manager

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/bloomd/pkg/logging"
)

// Scheduler runs the Manager's two background ticks — periodic flush and
// periodic cold sweep — cooperatively, off the request path. Either
// interval being zero disables that tick.
type Scheduler struct {
	m             *Manager
	flushInterval time.Duration
	coldInterval  time.Duration
	logger        logging.Logger
}

// NewScheduler builds a Scheduler for m with the given tick intervals.
func NewScheduler(m *Manager, flushInterval, coldInterval time.Duration, logger logging.Logger) *Scheduler {
	return &Scheduler{m: m, flushInterval: flushInterval, coldInterval: coldInterval, logger: logger}
}

// Run blocks, driving both ticks until ctx is cancelled. The flush tick
// flushes filters one after another via FlushAll; the cold-sweep tick fans
// its page-outs out across an errgroup, one goroutine per cold filter.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.flushInterval > 0 {
		g.Go(func() error { return s.runFlushLoop(ctx) })
	}
	if s.coldInterval > 0 {
		g.Go(func() error { return s.runColdSweepLoop(ctx) })
	}

	return g.Wait()
}

func (s *Scheduler) runFlushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.m.FlushAll()
		}
	}
}

func (s *Scheduler) runColdSweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.coldInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep pages out every currently-cold entry, then clears the hot set for
// the next interval.
func (s *Scheduler) sweep(ctx context.Context) {
	cold := s.m.ColdNames()

	g, _ := errgroup.WithContext(ctx)
	for _, name := range cold {
		name := name
		g.Go(func() error {
			if err := s.m.PageOutIfActive(name); err != nil {
				s.logger.Warn("cold sweep failed to page out filter",
					logging.FilterName(name), logging.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.m.ClearHot()
}
