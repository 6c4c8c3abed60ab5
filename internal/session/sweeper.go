package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger removes expired sessions.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Sweeper periodically purges expired sessions on a cron schedule.
// Expired sessions are already invisible to Get; sweeping only reclaims
// storage.
type Sweeper struct {
	purger Purger
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper validates schedule (standard 5-field cron or a descriptor
// such as "@every 10m") and returns a stopped sweeper.
func NewSweeper(p Purger, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		purger: p,
		cron:   cron.New(),
		logger: logger.With("component", "session_sweeper"),
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("session sweeper started", "next", s.cron.Entries()[0].Next)
}

// Stop halts the schedule and waits for a running sweep to finish or
// ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce purges expired sessions immediately.
func (s *Sweeper) RunOnce(ctx context.Context) int64 {
	n, err := s.purger.Purge(ctx)
	if err != nil {
		s.logger.Warn("session purge failed", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("purged expired sessions", "count", n)
	}
	return n
}
