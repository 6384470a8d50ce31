package config

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	defaultSettingsRefreshInterval = 5 * time.Minute
	defaultSettingsErrorBackoff    = time.Minute
)

// SettingsLoaderConfig configures a SettingsLoader. A nil S3Client disables
// the loader; callers then run on compiled-in defaults.
type SettingsLoaderConfig struct {
	S3Client        *s3.Client
	Bucket          string
	Key             string
	RefreshInterval time.Duration // how often to look for a newer document
	ErrorBackoff    time.Duration // pause after a failed fetch
	Logger          *slog.Logger
}

// SettingsDocument is one successful fetch of a settings object. Unchanged
// marks a conditional GET that matched the cached ETag; Body is nil then.
type SettingsDocument struct {
	Body      []byte
	ETag      string
	FetchedAt time.Time
	Unchanged bool
}

// SettingsLoader pulls a JSON settings object from S3 and caches it by
// ETag. Runtime-tunable configuration (plan quota overrides, log filters)
// goes through one of these, so the process polls for changes instead of
// requiring a redeploy.
type SettingsLoader struct {
	client *s3.Client
	bucket string
	key    string

	refreshInterval time.Duration
	errorBackoff    time.Duration
	logger          *slog.Logger

	mu        sync.RWMutex
	etag      string
	lastCheck time.Time
	lastError time.Time
	primed    bool // at least one check completed
	inFlight  bool
}

// NewSettingsLoader creates a loader for one settings object.
func NewSettingsLoader(cfg SettingsLoaderConfig) *SettingsLoader {
	l := &SettingsLoader{
		client:          cfg.S3Client,
		bucket:          cfg.Bucket,
		key:             cfg.Key,
		refreshInterval: cfg.RefreshInterval,
		errorBackoff:    cfg.ErrorBackoff,
		logger:          cfg.Logger,
	}
	if l.refreshInterval <= 0 {
		l.refreshInterval = defaultSettingsRefreshInterval
	}
	if l.errorBackoff <= 0 {
		l.errorBackoff = defaultSettingsErrorBackoff
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// IsEnabled reports whether an S3 client was configured.
func (l *SettingsLoader) IsEnabled() bool {
	return l.client != nil
}

// NeedsRefresh reports whether the cached document is stale. Stays false
// during the error backoff window and while another fetch is in flight.
func (l *SettingsLoader) NeedsRefresh() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.inFlight {
		return false
	}
	if !l.lastError.IsZero() && time.Since(l.lastError) < l.errorBackoff {
		return false
	}
	return !l.primed || time.Since(l.lastCheck) > l.refreshInterval
}

// Fetch performs a conditional GET against the settings object. It returns
// (nil, nil) when there is nothing to apply: S3 is not configured, the
// object does not exist, another goroutine holds the fetch, or the cache is
// still fresh.
func (l *SettingsLoader) Fetch(ctx context.Context) (*SettingsDocument, error) {
	if l.client == nil {
		return nil, nil
	}

	l.mu.Lock()
	if l.inFlight || (l.primed && time.Since(l.lastCheck) <= l.refreshInterval) {
		l.mu.Unlock()
		return nil, nil
	}
	l.inFlight = true
	etag := l.etag
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.inFlight = false
		l.mu.Unlock()
	}()

	input := &s3.GetObjectInput{
		Bucket: &l.bucket,
		Key:    &l.key,
	}
	if etag != "" {
		// If-None-Match wants the quotes S3 strips on the way out.
		quoted := `"` + etag + `"`
		input.IfNoneMatch = &quoted
	}

	resp, err := l.client.GetObject(ctx, input)
	if err != nil {
		return l.resolveFetchError(err)
	}
	defer resp.Body.Close()

	// Decode to RawMessage so a half-written upload never replaces a good
	// document.
	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		l.recordFailure()
		l.logger.Error("settings object is not valid JSON",
			"bucket", l.bucket,
			"key", l.key,
			"error", err,
		)
		return nil, err
	}

	now := time.Now()
	newETag := ""
	if resp.ETag != nil {
		newETag = strings.Trim(*resp.ETag, `"`)
	}

	l.mu.Lock()
	l.primed = true
	l.lastCheck = now
	l.lastError = time.Time{}
	l.etag = newETag
	l.mu.Unlock()

	l.logger.Debug("settings object fetched",
		"bucket", l.bucket,
		"key", l.key,
		"etag", newETag,
		"bytes", len(body),
	)

	return &SettingsDocument{
		Body:      body,
		ETag:      newETag,
		FetchedAt: now,
	}, nil
}

// resolveFetchError separates the two GetObject outcomes that are not
// failures: a missing object and an ETag match.
func (l *SettingsLoader) resolveFetchError(err error) (*SettingsDocument, error) {
	var missing *types.NoSuchKey
	if errors.As(err, &missing) {
		l.mu.Lock()
		firstCheck := !l.primed
		l.primed = true
		l.lastCheck = time.Now()
		l.lastError = time.Now()
		l.mu.Unlock()
		if firstCheck {
			l.logger.Debug("settings object absent, using compiled-in defaults",
				"bucket", l.bucket,
				"key", l.key,
			)
		}
		return nil, nil
	}

	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) && coded.ErrorCode() == "NotModified" {
		l.mu.Lock()
		l.lastCheck = time.Now()
		l.mu.Unlock()
		return &SettingsDocument{Unchanged: true}, nil
	}

	l.recordFailure()
	l.logger.Error("settings fetch failed",
		"bucket", l.bucket,
		"key", l.key,
		"error", err,
		"backoff", l.errorBackoff,
	)
	return nil, err
}

// recordFailure stamps the backoff clock. The loader counts as primed so a
// broken remote does not hold callers on the not-yet-initialized path.
func (l *SettingsLoader) recordFailure() {
	l.mu.Lock()
	l.lastError = time.Now()
	l.primed = true
	l.mu.Unlock()
}
