// Package worker runs background jobs for the document service.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// SnapshotGenerator produces one database snapshot per call.
type SnapshotGenerator interface {
	GenerateSnapshot(ctx context.Context) error
}

// SnapshotWorker generates database snapshots on a fixed interval.
type SnapshotWorker struct {
	generator SnapshotGenerator
	interval  time.Duration
	failures  int
}

// NewSnapshotWorker creates a worker that calls generator every interval.
func NewSnapshotWorker(generator SnapshotGenerator, interval time.Duration) *SnapshotWorker {
	return &SnapshotWorker{
		generator: generator,
		interval:  interval,
	}
}

// Run generates a snapshot immediately, then on each tick, until ctx is
// cancelled. A snapshot already in progress runs to completion.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "snapshot",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.generate(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "snapshot",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.generate(ctx)
		}
	}
}

func (w *SnapshotWorker) generate(ctx context.Context) {
	if err := w.generator.GenerateSnapshot(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.failures++
		slog.Warn("snapshot generation failed",
			"component", "worker",
			"worker", "snapshot",
			"consecutive_failures", w.failures,
			"error", err,
		)
		return
	}
	w.failures = 0
}
