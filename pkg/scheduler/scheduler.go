// Package scheduler runs periodic reconciliation sweeps. The live watcher
// catches most changes as they happen; the periodic sweep is the backstop
// that settles anything the watcher missed.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ansel/lore/pkg/reconcile"
)

// DefaultSchedule is the sweep cadence when none is configured.
const DefaultSchedule = "@every 1h"

// Scheduler triggers sweeps on a cron schedule.
type Scheduler struct {
	engine *reconcile.Engine
	cron   *cron.Cron
	logger zerolog.Logger
}

// New creates a scheduler that sweeps on the given cron spec. An empty spec
// falls back to DefaultSchedule.
func New(engine *reconcile.Engine, spec string, logger zerolog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}

	s := &Scheduler{
		engine: engine,
		cron:   cron.New(),
		logger: logger,
	}

	_, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	s.logger.Info().Str("schedule", spec).Msg("Sweep scheduler configured")
	return s, nil
}

func (s *Scheduler) run() {
	stats, err := s.engine.Sweep(context.Background())
	if errors.Is(err, reconcile.ErrSweepInProgress) {
		s.logger.Debug().Msg("Skipping scheduled sweep, one is already running")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled sweep failed")
		return
	}
	s.logger.Info().
		Int("indexed", stats.Indexed).
		Int("pruned", stats.Pruned).
		Msg("Scheduled sweep completed")
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
