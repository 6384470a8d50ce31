package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/guidely/guidely-api/internal/constants"
	"github.com/guidely/guidely-api/internal/models"
	"github.com/guidely/guidely-api/internal/repository"
)

// GuestService gates unauthenticated generations. Guests are identified by
// an HMAC of their network address and get a small lifetime allowance on a
// restricted bucket set. Network-address identity is a known limitation:
// shared NATs share an allowance and address rotation resets it.
type GuestService struct {
	repos   *repository.Repositories
	hmacKey []byte
	logger  *slog.Logger
}

// NewGuestService creates a new guest service. The key comes from
// config.GuestHMACKey and must not be the raw server secret.
func NewGuestService(repos *repository.Repositories, hmacKey []byte, logger *slog.Logger) *GuestService {
	return &GuestService{
		repos:   repos,
		hmacKey: hmacKey,
		logger:  logger,
	}
}

// Identity derives the stable guest identity for a client IP. The raw
// address never reaches storage.
func (s *GuestService) Identity(ip string) string {
	mac := hmac.New(sha256.New, s.hmacKey)
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckAndReserve authorizes one guest generation and charges it to the
// lifetime counter. Like the authenticated path, the charge lands before
// the provider call and storage errors deny.
//
// Returns the remaining lifetime allowance after this request.
func (s *GuestService) CheckAndReserve(ctx context.Context, identity string, bucket models.ModelBucket) (int, error) {
	if !constants.GuestAllowedBucket(bucket) {
		return 0, &DenialError{
			Err:     ErrAccessDenied,
			Tier:    "guest",
			Bucket:  bucket,
			Message: "This model requires an account. Sign up to use it.",
		}
	}

	count, err := s.repos.Guest.Count(ctx, identity)
	if err != nil {
		s.logger.Error("guest counter read failed, denying request", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if count >= constants.GuestGuideLimit {
		return 0, &DenialError{
			Err:     ErrGuestLimit,
			Tier:    "guest",
			Bucket:  bucket,
			Limit:   constants.GuestGuideLimit,
			Message: constants.GuestLimitMessage(),
		}
	}

	total, err := s.repos.Guest.Increment(ctx, identity)
	if err != nil {
		s.logger.Error("guest counter write failed, denying request", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	remaining := constants.GuestGuideLimit - total
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Remaining returns the guest's unused lifetime allowance.
func (s *GuestService) Remaining(ctx context.Context, identity string) (int, error) {
	count, err := s.repos.Guest.Count(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	remaining := constants.GuestGuideLimit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
