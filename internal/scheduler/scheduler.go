// Package scheduler periodically refreshes weather conditions for the
// current analysis.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/pipeline"
)

// Refresher refreshes conditions for the current analysis.
type Refresher interface {
	RefreshConditions(ctx context.Context) error
}

// Scheduler runs the conditions refresh on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	logger    *slog.Logger
}

// New schedules refresher on spec, a standard five-field cron expression or
// a descriptor such as "@every 15m".
func New(spec string, refresher Refresher, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		refresher: refresher,
		logger:    logger,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("schedule conditions refresh %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("conditions refresh scheduled", "next", s.cron.Entries()[0].Next)
}

// Stop halts the scheduler and waits for a running refresh to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run() {
	err := s.refresher.RefreshConditions(context.Background())
	switch {
	case err == nil:
		s.logger.Debug("scheduled conditions refresh completed")
	case errors.Is(err, domain.ErrNoAnalysis), errors.Is(err, pipeline.ErrNoLocation), errors.Is(err, pipeline.ErrDisabled):
		s.logger.Debug("scheduled conditions refresh skipped", "reason", err)
	default:
		s.logger.Warn("scheduled conditions refresh failed", "error", err)
	}
}
