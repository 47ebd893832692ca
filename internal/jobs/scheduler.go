// Package jobs runs the periodic snapshot and materialization passes.
package jobs

import (
	"context"
	"time"

	"finance/internal/clock"
	"finance/internal/logging"
	"finance/internal/services"
)

type SnapshotRecorder interface {
	RecordMonthlyBalances(ctx context.Context) (int, error)
	RecordMissingMonthlyBalances(ctx context.Context) (int, error)
}

type RecurringMaterializer interface {
	TransactAll(ctx context.Context) ([]services.MaterializeResult, error)
}

// Scheduler records last month's closing balances and materializes due
// recurring definitions on every tick. The first tick of a month's first day
// overwrites the closing snapshot; later ticks only fill gaps.
type Scheduler struct {
	snapshots    SnapshotRecorder
	materializer RecurringMaterializer
	clock        clock.Clock
	logger       *logging.Logger
	interval     time.Duration

	lastClose time.Time
}

func NewScheduler(snapshots SnapshotRecorder, materializer RecurringMaterializer, clk clock.Clock, logger *logging.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		snapshots:    snapshots,
		materializer: materializer,
		clock:        clk,
		logger:       logger,
		interval:     interval,
	}
}

// Run ticks once immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one snapshot pass followed by one materialization pass.
func (s *Scheduler) Tick(ctx context.Context) {
	start := time.Now()
	s.recordBalances(ctx)

	results, err := s.materializer.TransactAll(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("materialize pass had failures")
	}
	created := 0
	for _, r := range results {
		created += r.Created
	}
	s.logger.Debug().Int("created", created).Dur("elapsed", time.Since(start)).Msg("scheduler tick complete")
}

func (s *Scheduler) recordBalances(ctx context.Context) {
	now := s.clock.Now()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if now.Day() == 1 && !s.lastClose.Equal(month) {
		written, err := s.snapshots.RecordMonthlyBalances(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("monthly balance recording had failures")
			return
		}
		s.lastClose = month
		s.logger.Info().Int("accounts", written).Msg("monthly balances recorded")
		return
	}
	written, err := s.snapshots.RecordMissingMonthlyBalances(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("missing balance recording had failures")
		return
	}
	if written > 0 {
		s.logger.Info().Int("accounts", written).Msg("missing monthly balances recorded")
	}
}
