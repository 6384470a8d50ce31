// Package shutdown provides idle monitoring for scale-to-zero deployments.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// IdleMonitor tracks request activity and signals when the server has been
// quiet long enough to stop. Health probes are excluded so platform checks
// never keep an idle machine alive.
type IdleMonitor struct {
	timeout        time.Duration
	logger         *slog.Logger
	activeRequests int64
	mu             sync.RWMutex
	lastActivity   time.Time
	shutdownChan   chan struct{}
	stopChan       chan struct{}
	excludePaths   []string
}

// IdleMonitorConfig holds configuration for the idle monitor.
type IdleMonitorConfig struct {
	Timeout      time.Duration // zero disables the monitor
	Logger       *slog.Logger
	ExcludePaths []string // path prefixes that do not count as activity
}

// NewIdleMonitor creates a new idle monitor.
func NewIdleMonitor(cfg IdleMonitorConfig) *IdleMonitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IdleMonitor{
		timeout:      cfg.Timeout,
		logger:       logger,
		lastActivity: time.Now(),
		shutdownChan: make(chan struct{}),
		stopChan:     make(chan struct{}),
		excludePaths: cfg.ExcludePaths,
	}
}

// Start begins watching for idle periods.
func (m *IdleMonitor) Start() {
	if m.timeout <= 0 {
		return
	}
	m.logger.Info("idle monitoring started", "timeout", m.timeout, "exclude_paths", m.excludePaths)
	go m.run()
}

// Stop halts the monitor without signaling shutdown.
func (m *IdleMonitor) Stop() {
	if m.timeout <= 0 {
		return
	}
	close(m.stopChan)
}

// ShutdownChan is closed once the idle timeout elapses with no activity.
func (m *IdleMonitor) ShutdownChan() <-chan struct{} {
	return m.shutdownChan
}

// Middleware tracks request activity, skipping excluded paths.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if m.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.excludePaths {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		atomic.AddInt64(&m.activeRequests, 1)
		m.touch()
		defer func() {
			atomic.AddInt64(&m.activeRequests, -1)
			m.touch()
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *IdleMonitor) run() {
	// Check well below the timeout so the signal is timely.
	interval := m.timeout / 6
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			active := atomic.LoadInt64(&m.activeRequests)
			if active > 0 {
				m.touch()
				continue
			}
			m.mu.RLock()
			idle := time.Since(m.lastActivity)
			m.mu.RUnlock()
			if idle >= m.timeout {
				m.logger.Info("idle timeout reached, signaling shutdown", "idle_time", idle)
				close(m.shutdownChan)
				return
			}
		}
	}
}
