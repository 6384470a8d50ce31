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

// AccessService gates model usage by plan tier and daily quota, and charges
// the usage ledger. The ledger is authoritative: every decision here reads
// and writes it, and storage errors deny rather than allow.
type AccessService struct {
	repos  *repository.Repositories
	mirror repository.LegacyMirror
	logger *slog.Logger
}

// NewAccessService creates a new access service.
func NewAccessService(repos *repository.Repositories, mirror repository.LegacyMirror, logger *slog.Logger) *AccessService {
	if mirror == nil {
		mirror = repository.NoopMirror{}
	}
	return &AccessService{
		repos:  repos,
		mirror: mirror,
		logger: logger,
	}
}

// todayUTC returns the current UTC calendar day in ledger key format.
func todayUTC() string {
	return time.Now().UTC().Format("2006-01-02")
}

// CheckAndReserve authorizes one generation for an authenticated user and
// charges it to the ledger before the provider is called. A failed provider
// call still counts: the charge is on attempt, not on success.
//
// Returns the remaining quota for today after this request. Unlimited plans
// report constants.UnlimitedDisplay.
func (s *AccessService) CheckAndReserve(ctx context.Context, userEmail, tier string, bucket models.ModelBucket) (int, error) {
	if !constants.HasModelAccess(tier, bucket) {
		return 0, &DenialError{
			Err:     ErrAccessDenied,
			Tier:    tier,
			Bucket:  bucket,
			Message: constants.ModelNotIncludedMessage(tier, bucket),
		}
	}

	quota := constants.DailyQuotaWithOverrides(ctx, tier, bucket)
	date := todayUTC()

	count, err := s.repos.Usage.BucketCount(ctx, userEmail, bucket, date)
	if err != nil {
		s.logger.Error("usage ledger read failed, denying request",
			"user", userEmail,
			"bucket", bucket,
			"error", err,
		)
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if quota != constants.QuotaUnlimited && count >= quota {
		return 0, &DenialError{
			Err:     ErrQuotaExceeded,
			Tier:    tier,
			Bucket:  bucket,
			Limit:   quota,
			Message: constants.QuotaExceededMessage(tier, bucket),
		}
	}

	// Pre-charge. If this write fails the provider is never called.
	if err := s.repos.Usage.Increment(ctx, userEmail, bucket, date, models.UsageDelta{Requests: 1}); err != nil {
		s.logger.Error("usage ledger write failed, denying request",
			"user", userEmail,
			"bucket", bucket,
			"error", err,
		)
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.mirrorGuide(ctx, userEmail, bucket)

	if quota == constants.QuotaUnlimited {
		return constants.UnlimitedDisplay, nil
	}
	return quota - (count + 1), nil
}

// RecordCompletion adds post-generation shape counters (text vs image,
// tokens) to the ledger. The request itself was already charged by
// CheckAndReserve; this is bookkeeping, not a gate, so failures are logged
// and swallowed.
func (s *AccessService) RecordCompletion(ctx context.Context, userEmail string, bucket models.ModelBucket, delta models.UsageDelta) {
	delta.Requests = 0
	if delta.IsZero() {
		return
	}
	if err := s.repos.Usage.Increment(ctx, userEmail, bucket, todayUTC(), delta); err != nil {
		s.logger.Warn("completion counters not recorded",
			"user", userEmail,
			"bucket", bucket,
			"error", err,
		)
	}
}

// Remaining returns today's remaining quota for every bucket the tier can
// use. Buckets outside the allow-list are omitted.
func (s *AccessService) Remaining(ctx context.Context, userEmail, tier string) (map[models.ModelBucket]int, error) {
	daily, err := s.repos.Usage.GetDaily(ctx, userEmail, todayUTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	remaining := make(map[models.ModelBucket]int)
	for _, bucket := range models.AllBuckets {
		if !constants.HasModelAccess(tier, bucket) {
			continue
		}
		quota := constants.DailyQuotaWithOverrides(ctx, tier, bucket)
		if quota == constants.QuotaUnlimited {
			remaining[bucket] = constants.UnlimitedDisplay
			continue
		}
		used := daily.Buckets[bucket].Requests
		left := quota - used
		if left < 0 {
			left = 0
		}
		remaining[bucket] = left
	}
	return remaining, nil
}

// mirrorGuide applies the lifetime counter to the legacy views. Both the
// SQLite document and the Mongo mirror are derived data; neither gates, so
// failures only get a log line.
func (s *AccessService) mirrorGuide(ctx context.Context, userEmail string, bucket models.ModelBucket) {
	if err := s.repos.UserLimit.IncrementGuide(ctx, userEmail, bucket); err != nil {
		s.logger.Warn("user limit doc not updated", "user", userEmail, "bucket", bucket, "error", err)
	}
	if err := s.mirror.IncrementGuide(ctx, userEmail, bucket); err != nil {
		s.logger.Warn("legacy mirror not updated", "user", userEmail, "bucket", bucket, "error", err)
	}
}
