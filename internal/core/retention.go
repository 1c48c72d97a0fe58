package core

// retention.go prunes old import runs on a schedule.
//
// The job runs once at start and then every Interval until the context is
// cancelled. Failures are logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig controls import-run pruning. A zero MaxAge disables it.
type RetentionConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

// StartRetentionScheduler blocks, pruning runs older than cfg.MaxAge.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	if cfg.MaxAge <= 0 || s.runs == nil {
		slog.Info("import run retention disabled")
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}

	slog.Info("import run retention started",
		"max_age", cfg.MaxAge.String(),
		"interval", cfg.Interval.String(),
	)

	s.pruneImportRuns(ctx, cfg.MaxAge)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("import run retention stopped")
			return
		case <-ticker.C:
			s.pruneImportRuns(ctx, cfg.MaxAge)
		}
	}
}

func (s *Service) pruneImportRuns(ctx context.Context, maxAge time.Duration) {
	start := time.Now()
	cutoff := s.now().UTC().Add(-maxAge)

	pruned, err := s.runs.PruneImportRuns(ctx, cutoff)
	if err != nil {
		slog.Error("import run pruning failed", "error", err)
		return
	}
	slog.Info("pruned import runs",
		"runs_pruned", pruned,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
