package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/blackbelt-platform/core/internal/metrics"
	"github.com/blackbelt-platform/core/internal/repository"
)

const (
	// TokenRetention keeps expired tokens around this long so a late
	// presentation still reports "expired" rather than "not found".
	TokenRetention = 7 * 24 * time.Hour

	sweepBatchSize = 1000
)

// Sweeper periodically deletes tokens that expired more than TokenRetention ago.
type Sweeper struct {
	tokens   repository.TokenRepository
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(tokens repository.TokenRepository, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		tokens:   tokens,
		logger:   logger.With("component", "sweeper"),
		interval: interval,
		now:      time.Now,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval, "retention", TokenRetention)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper shut down")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep deletes in batches until a short batch signals nothing is left.
func (s *Sweeper) Sweep(ctx context.Context) int {
	start := time.Now()
	defer func() { metrics.SweepCycleDuration.Observe(time.Since(start).Seconds()) }()

	cutoff := s.now().Add(-TokenRetention)
	total := 0
	for {
		n, err := s.tokens.DeleteExpired(ctx, cutoff, sweepBatchSize)
		if err != nil {
			s.logger.Error("delete expired tokens", "error", err)
			break
		}
		total += n
		metrics.TokensSweptTotal.Add(float64(n))
		if n < sweepBatchSize || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		s.logger.Info("expired tokens deleted", "count", total)
	}
	return total
}
