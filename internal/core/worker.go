package core

// worker.go performs uploaded datasheets in the background.
//
// The worker polls for pending runs (neither processed nor deleted) and
// performs them oldest first, up to the run limiter's capacity at a time. It
// is long-running and stops when its context is cancelled. A failing run
// stays pending with its attempt counted; runs that have failed sort behind
// fresh uploads and are skipped once they reach MaxAttempts.

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// WorkerConfig holds configuration for the run worker.
type WorkerConfig struct {
	PollInterval time.Duration // How often to look for pending runs (default: 30s)
	BatchSize    int           // Runs performed per poll (default: 10)
	MaxAttempts  int           // Failed attempts before a run is skipped (default: 3)
}

// StartRunWorker performs pending runs immediately, then every PollInterval,
// until ctx is cancelled. Call it in its own goroutine.
func (s *Service) StartRunWorker(ctx context.Context, cfg WorkerConfig) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	slog.Info("run worker started",
		"poll_interval", cfg.PollInterval,
		"batch_size", cfg.BatchSize,
		"max_attempts", cfg.MaxAttempts,
	)

	s.runPending(ctx, cfg.BatchSize, cfg.MaxAttempts)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("run worker stopped")
			return
		case <-ticker.C:
			s.runPending(ctx, cfg.BatchSize, cfg.MaxAttempts)
		}
	}
}

// runPending performs one batch of pending runs and returns how many
// completed.
func (s *Service) runPending(ctx context.Context, limit, maxAttempts int) int {
	pending, err := s.runs.PendingRuns(ctx, limit, maxAttempts)
	if err != nil {
		slog.Error("list pending runs failed", "error", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	slog.Debug("worker batch started", "pending", len(pending))
	start := time.Now()
	var done atomic.Int32

	var g errgroup.Group
	g.SetLimit(s.limiter.MaxConcurrent())

	for _, run := range pending {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
			defer cancel()

			_, err := s.PerformRun(runCtx, run.ID)
			switch {
			case err == nil:
				done.Add(1)
			case errors.Is(err, ErrRunBusy), errors.Is(err, ErrRunDeleted), errors.Is(err, ErrRunNotFound):
				// Claimed, deleted or removed since the poll.
			case ctx.Err() != nil:
				// Shutting down; the attempt does not count.
			default:
				s.recordFailure(ctx, run, maxAttempts, err)
			}
			return nil
		})
	}
	g.Wait()

	slog.Info("worker batch completed",
		"runs_performed", done.Load(),
		"runs_pending", len(pending),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return int(done.Load())
}

// recordFailure counts a failed background attempt on run.
func (s *Service) recordFailure(ctx context.Context, run ImportRun, maxAttempts int, err error) {
	attempt := run.Attempts + 1
	log := slog.With(
		"run_id", run.ID,
		"file", run.FileName,
		"attempt", attempt,
		"error", err,
		"user_message", FormatUserError(err),
	)
	if attempt >= maxAttempts {
		log.Error("background run failed, giving up")
	} else {
		log.Warn("background run failed, will retry")
	}

	if rerr := s.runs.RecordRunFailure(ctx, run.ID, err.Error()); rerr != nil {
		slog.Error("record run failure failed", "run_id", run.ID, "error", rerr)
	}
}
