package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bhadresh-123/phicore/internal/repository"
	"github.com/bhadresh-123/phicore/pkg/metrics"
)

// RetentionSweeper periodically removes audit entries whose retention
// window has closed. It is the only code path that deletes audit rows, and
// it can only touch rows past their stored retention_expires_at.
type RetentionSweeper struct {
	repo     repository.AuditRepository
	interval time.Duration
	logger   *zerolog.Logger
	metrics  *metrics.Metrics
}

func NewRetentionSweeper(repo repository.AuditRepository, interval time.Duration, logger *zerolog.Logger, m *metrics.Metrics) *RetentionSweeper {
	return &RetentionSweeper{
		repo:     repo,
		interval: interval,
		logger:   logger,
		metrics:  m,
	}
}

func (w *RetentionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *RetentionSweeper) sweep(ctx context.Context) {
	removed, err := w.repo.ExpungeExpired(ctx, time.Now())
	if err != nil {
		w.logger.Error().Err(err).Msg("retention sweep failed")
		return
	}

	if w.metrics != nil {
		w.metrics.RetentionSweeps.Inc()
		w.metrics.RetentionExpunged.Add(float64(removed))
	}
	if removed > 0 {
		w.logger.Info().Int64("removed", removed).Msg("expunged expired audit entries")
	}
}
