package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// sweepBatchLimit bounds how many records one sweep pass touches.
const sweepBatchLimit = 100

// Settler is the settlement surface the sweeper drives.
type Settler interface {
	RetryFailedPayouts(ctx context.Context, limit int) (int, error)
	ReleaseExpiredEscrows(ctx context.Context, limit int) (int, error)
}

// Sweeper periodically retries failed payouts and releases escrows whose
// auto-release window lapsed without a checkout.
type Sweeper struct {
	settlement Settler
	schedule   string
	logger     *slog.Logger
	cron       *cron.Cron
}

// NewSweeper creates a new Sweeper instance
func NewSweeper(settlement Settler, schedule string, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		settlement: settlement,
		schedule:   schedule,
		logger:     logger,
	}
}

// Start schedules the sweep and blocks until the context is canceled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.logger.Info("Settlement sweeper started",
		slog.String("schedule", s.schedule),
	)

	s.cron.Start()

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	s.logger.Info("Settlement sweeper stopped")
	return nil
}

// Sweep runs one pass. Failures are logged and retried on the next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	retried, err := s.settlement.RetryFailedPayouts(ctx, sweepBatchLimit)
	if err != nil {
		s.logger.Error("Payout retry sweep failed",
			slog.String("error", err.Error()),
		)
	} else if retried > 0 {
		s.logger.Info("Payout retry sweep completed",
			slog.Int("retried", retried),
		)
	}

	released, err := s.settlement.ReleaseExpiredEscrows(ctx, sweepBatchLimit)
	if err != nil {
		s.logger.Error("Escrow release sweep failed",
			slog.String("error", err.Error()),
		)
	} else if released > 0 {
		s.logger.Info("Escrow release sweep completed",
			slog.Int("released", released),
		)
	}
}
