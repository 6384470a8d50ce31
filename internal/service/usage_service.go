package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guidely/guidely-api/internal/constants"
	"github.com/guidely/guidely-api/internal/models"
	"github.com/guidely/guidely-api/internal/repository"
)

// UsageService exposes usage read models and the export cooldown. Writes go
// through AccessService; this service only reads the ledger and the legacy
// limits document.
type UsageService struct {
	repos  *repository.Repositories
	mirror repository.LegacyMirror
	access *AccessService
	logger *slog.Logger
}

// NewUsageService creates a new usage service.
func NewUsageService(repos *repository.Repositories, mirror repository.LegacyMirror, access *AccessService, logger *slog.Logger) *UsageService {
	if mirror == nil {
		mirror = repository.NoopMirror{}
	}
	return &UsageService{
		repos:  repos,
		mirror: mirror,
		access: access,
		logger: logger,
	}
}

// TodayUsage is the per-bucket view of today's consumption with the quota
// remainder the UI renders next to it.
type TodayUsage struct {
	Date      string                                    `json:"date"`
	Buckets   map[models.ModelBucket]models.BucketUsage `json:"buckets"`
	Remaining map[models.ModelBucket]int                `json:"remaining"`
}

// Today returns today's consumption plus remaining quota per bucket for the
// caller's tier.
func (s *UsageService) Today(ctx context.Context, userEmail, tier string) (*TodayUsage, error) {
	daily, err := s.repos.Usage.GetDaily(ctx, userEmail, todayUTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	remaining, err := s.access.Remaining(ctx, userEmail, tier)
	if err != nil {
		return nil, err
	}
	return &TodayUsage{
		Date:      daily.Date,
		Buckets:   daily.Buckets,
		Remaining: remaining,
	}, nil
}

// maxHistoryDays bounds how far back the history endpoint will go.
const maxHistoryDays = 90

// History returns the last n days of usage, oldest first, today included.
// Days without activity appear with empty bucket maps.
func (s *UsageService) History(ctx context.Context, userEmail string, days int) ([]models.DailyUsage, error) {
	if days <= 0 {
		days = 7
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -(days - 1))
	history, err := s.repos.Usage.GetHistory(ctx, userEmail,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return history, nil
}

// CheckExportAllowed enforces the per-tier export cooldown. A zero cooldown
// means exports are never throttled.
func (s *UsageService) CheckExportAllowed(ctx context.Context, userEmail, tier string) error {
	limits := constants.LimitsForWithOverrides(ctx, tier)
	if limits.ExportCooldownHours <= 0 {
		return nil
	}

	doc, err := s.repos.UserLimit.Get(ctx, userEmail)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if doc.LastExport == nil {
		return nil
	}

	cooldown := time.Duration(limits.ExportCooldownHours) * time.Hour
	nextAt := doc.LastExport.Add(cooldown)
	if time.Now().Before(nextAt) {
		return fmt.Errorf("%w: next export available at %s",
			ErrExportCooldown, nextAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// RecordExport stamps the export time in the limits document and mirrors it
// to the legacy store.
func (s *UsageService) RecordExport(ctx context.Context, userEmail string) error {
	now := time.Now().UTC()
	if err := s.repos.UserLimit.SetLastExport(ctx, userEmail, now); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := s.mirror.SetLastExport(ctx, userEmail, now); err != nil {
		s.logger.Warn("legacy mirror export stamp failed", "user", userEmail, "error", err)
	}
	return nil
}
