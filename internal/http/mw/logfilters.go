package mw

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	logfilter "github.com/jmylchreest/slog-logfilter"

	"github.com/guidely/guidely-api/internal/config"
)

// LogFiltersConfig configures the S3-backed log filters loader.
type LogFiltersConfig struct {
	config.SettingsLoaderConfig
}

// LogFiltersLoader periodically pulls log filter rules from S3 and applies
// them to slog-logfilter, so per-user or per-request debug logging can be
// turned on in production without a redeploy. A failed fetch keeps the
// filters already in place.
type LogFiltersLoader struct {
	loader *config.SettingsLoader
	logger *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLogFiltersLoader creates a new log filters loader.
func NewLogFiltersLoader(cfg LogFiltersConfig) *LogFiltersLoader {
	if cfg.Key == "" {
		cfg.Key = "config/logfilters.json"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LogFiltersLoader{
		loader: config.NewSettingsLoader(cfg.SettingsLoaderConfig),
		logger: cfg.Logger,
		stopCh: make(chan struct{}),
	}
}

// Start fetches the filters once and then refreshes on a fixed interval
// until Stop or context cancellation.
func (l *LogFiltersLoader) Start(ctx context.Context) {
	if !l.loader.IsEnabled() {
		l.logger.Info("log filters loader disabled, no S3 client")
		return
	}

	l.refresh(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.refresh(context.Background())
			case <-l.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the periodic refresh.
func (l *LogFiltersLoader) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

func (l *LogFiltersLoader) refresh(ctx context.Context) {
	result, err := l.loader.Fetch(ctx)
	if err != nil {
		l.logger.Error("log filters fetch failed", "error", err)
		return
	}
	if result == nil || result.Unchanged {
		return
	}

	var filters []logfilter.LogFilter
	if err := json.Unmarshal(result.Body, &filters); err != nil {
		l.logger.Error("log filters JSON invalid", "error", err)
		return
	}

	logfilter.SetFilters(filters)

	active := 0
	for _, f := range filters {
		if f.IsActive() {
			active++
		}
	}
	l.logger.Info("log filters applied", "total", len(filters), "active", active)
}
