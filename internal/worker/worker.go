// Package worker runs background maintenance for the usage ledger.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// UsagePruner deletes ledger rows older than a cutoff date (YYYY-MM-DD).
type UsagePruner interface {
	PruneBefore(ctx context.Context, cutoffDate string) (int64, error)
}

// Worker prunes usage records that have aged out of the history window.
// The ledger only ever needs the last 90 days for history and exports;
// everything older is dead weight in an embedded database.
type Worker struct {
	pruner        UsagePruner
	interval      time.Duration
	retentionDays int
	stop          chan struct{}
	wg            sync.WaitGroup
	logger        *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	Interval      time.Duration // how often to prune (default: 24h)
	RetentionDays int           // ledger rows older than this are deleted (default: 180)
}

// New creates a new retention worker.
func New(pruner UsagePruner, cfg Config, logger *slog.Logger) *Worker {
	if cfg.Interval == 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 180
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		pruner:        pruner,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		stop:          make(chan struct{}),
		logger:        logger.With("component", "worker"),
	}
}

// Start begins the prune loop. An initial prune runs immediately so a
// long-stopped instance catches up on boot.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "interval", w.interval, "retention_days", w.retentionDays)

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.prune(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

func (w *Worker) prune(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -w.retentionDays).Format("2006-01-02")

	deleted, err := w.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error("failed to prune usage records", "cutoff", cutoff, "error", err)
		return
	}
	if deleted > 0 {
		w.logger.Info("pruned usage records", "cutoff", cutoff, "deleted", deleted)
	}
}
