package backlog

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"finch/internal/brain"
	"finch/internal/observability"
)

// Scheduler runs periodic housekeeping: a stale-brain reaper (spec §4.9
// "cleanup_old") and nothing else today, grounded on SPEC_FULL.md §11's
// "Backlog task scheduling / brain housekeeping sweep" wiring of
// github.com/robfig/cron/v3. The backlog document itself needs no
// periodic flush (every mutating call already persists synchronously
// via Store.save), so the only sweep job is brain reaping; it lives
// here rather than in internal/brain to keep that package free of a
// cron dependency for a single callback.
type Scheduler struct {
	cron   *cron.Cron
	brains *brain.Registry
	maxAge time.Duration
	logger *observability.Logger
}

// NewScheduler builds a Scheduler. maxAge is how long a Dead brain
// survives in the registry before being reaped; spec has no fixed
// number for this, 24h is a reasonable default for a local daemon.
func NewScheduler(brains *brain.Registry, maxAge time.Duration, logger *observability.Logger) *Scheduler {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Scheduler{cron: cron.New(), brains: brains, maxAge: maxAge, logger: logger}
}

// Start schedules the reaper to run every 15 minutes and starts the
// cron runner in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@every 15m", func() {
		s.reapDeadBrains(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) reapDeadBrains(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxAge)
	removed := 0
	for _, b := range s.brains.ListAll() {
		if b.State == brain.StateDead && b.CreatedAt.Before(cutoff) && s.brains.Remove(b.ID) {
			removed++
		}
	}
	if removed > 0 && s.logger != nil {
		s.logger.Info(ctx, "backlog: reaped stale brains", "count", removed)
	}
}
