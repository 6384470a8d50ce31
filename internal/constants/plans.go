// Package constants defines centralized configuration for plan tiers, model
// access, daily quotas, and user-facing messages. Change values here to
// update limits across the entire application.
package constants

import (
	"fmt"
	"sync"
	"time"

	"github.com/guidely/guidely-api/internal/models"
)

// plansMu protects concurrent access to the Plans map.
var plansMu sync.RWMutex

// Plan tier names
const (
	TierFree    = "free"
	TierPro     = "pro"
	TierProPlus = "proplus"
)

// Quota sentinels. Absence of a bucket from a quota table is a bug, not an
// implicit "forbidden" - forbidden is an explicit zero.
const (
	QuotaUnlimited = -1
	QuotaForbidden = 0
)

// UnlimitedDisplay is what the presentation layer sees as "remaining" for an
// unlimited quota; the literal -1 never leaves the service layer.
const UnlimitedDisplay = 999999

// SupportLevel is the support entitlement attached to a plan.
type SupportLevel string

const (
	SupportCommunity SupportLevel = "community"
	SupportStandard  SupportLevel = "standard"
	SupportPriority  SupportLevel = "priority"
)

// PlanLimits defines the numeric limits and feature flags for a plan tier.
// DailyQuotas is keyed by bucket: -1 = unlimited, 0 = forbidden. Every
// bucket in models.AllBuckets must have an entry for every tier.
type PlanLimits struct {
	// DisplayName is the user-facing name for this tier.
	DisplayName string
	// Order controls display order in pricing tables (lower = first).
	Order int
	// DailyQuotas is the per-bucket daily generation quota (UTC calendar day).
	DailyQuotas map[models.ModelBucket]int
	// ExportCooldownHours is the minimum gap between guide exports (0 = none).
	ExportCooldownHours int
	// TeamSharing controls shared workspaces.
	TeamSharing bool
	// Templates controls access to the guide template library.
	Templates bool
	// SupportLevel is the support entitlement for this tier.
	SupportLevel SupportLevel
}

// Plans defines limits for each plan tier. To change quotas, modify this map
// (or supply S3 overrides via the plan settings loader).
var Plans = map[string]PlanLimits{
	TierFree: {
		DisplayName: "Free",
		Order:       0,
		DailyQuotas: map[models.ModelBucket]int{
			models.BucketLlama:      6,
			models.BucketGemini:     3,
			models.BucketDeepseek:   3,
			models.BucketGPT41:      QuotaForbidden,
			models.BucketGPT41Mini:  QuotaForbidden,
			models.BucketO3Mini:     QuotaForbidden,
			models.BucketOSSLarge:   QuotaForbidden,
			models.BucketNanoBanana: QuotaForbidden,
		},
		ExportCooldownHours: 24,
		TeamSharing:         false,
		Templates:           false,
		SupportLevel:        SupportCommunity,
	},
	TierPro: {
		DisplayName: "Pro",
		Order:       1,
		DailyQuotas: map[models.ModelBucket]int{
			models.BucketLlama:    QuotaUnlimited,
			models.BucketGemini:   25,
			models.BucketDeepseek: 25,
			// gpt41/gpt41mini are proplus-exclusive; the allow-list denies
			// them for pro independently of these zeros.
			models.BucketGPT41:      QuotaForbidden,
			models.BucketGPT41Mini:  QuotaForbidden,
			models.BucketO3Mini:     10,
			models.BucketOSSLarge:   25,
			models.BucketNanoBanana: 10,
		},
		ExportCooldownHours: 6,
		TeamSharing:         false,
		Templates:           true,
		SupportLevel:        SupportStandard,
	},
	TierProPlus: {
		DisplayName: "Pro+",
		Order:       2,
		DailyQuotas: map[models.ModelBucket]int{
			models.BucketLlama:      QuotaUnlimited,
			models.BucketGemini:     QuotaUnlimited,
			models.BucketDeepseek:   QuotaUnlimited,
			models.BucketGPT41:      QuotaUnlimited,
			models.BucketGPT41Mini:  QuotaUnlimited,
			models.BucketO3Mini:     QuotaUnlimited,
			models.BucketOSSLarge:   QuotaUnlimited,
			models.BucketNanoBanana: 100,
		},
		ExportCooldownHours: 0,
		TeamSharing:         true,
		Templates:           true,
		SupportLevel:        SupportPriority,
	},
}

// modelAllowList encodes which buckets each tier may use at all. This is
// deliberately NOT a monotonic superset chain: gpt41/gpt41mini are
// proplus-exclusive, so pro is allowed every other bucket even where its
// numeric quota is currently zero. The allow-list and the quota table are
// independent gates and both must pass.
var modelAllowList = map[string]map[models.ModelBucket]bool{
	TierFree: {
		models.BucketLlama:    true,
		models.BucketGemini:   true,
		models.BucketDeepseek: true,
	},
	TierPro: {
		models.BucketLlama:      true,
		models.BucketGemini:     true,
		models.BucketDeepseek:   true,
		models.BucketO3Mini:     true,
		models.BucketOSSLarge:   true,
		models.BucketNanoBanana: true,
	},
	TierProPlus: {
		models.BucketLlama:      true,
		models.BucketGemini:     true,
		models.BucketDeepseek:   true,
		models.BucketGPT41:      true,
		models.BucketGPT41Mini:  true,
		models.BucketO3Mini:     true,
		models.BucketOSSLarge:   true,
		models.BucketNanoBanana: true,
	},
}

// LimitsFor returns the limits for a tier, defaulting to the free tier for
// unknown tier names. Thread-safe for concurrent access.
func LimitsFor(tier string) PlanLimits {
	plansMu.RLock()
	defer plansMu.RUnlock()

	if limits, ok := Plans[tier]; ok {
		return limits
	}
	return Plans[TierFree]
}

// HasModelAccess reports whether a tier's allow-list includes a bucket.
// Unknown tiers fall back to the free allow-list. This is only the
// entitlement half of the gate; the numeric daily quota is checked
// separately by WithinGenerationLimit.
func HasModelAccess(tier string, bucket models.ModelBucket) bool {
	allowed, ok := modelAllowList[tier]
	if !ok {
		allowed = modelAllowList[TierFree]
	}
	return allowed[bucket]
}

// DailyQuota returns the daily quota for (tier, bucket) from the hardcoded
// catalog. Callers that want S3 overrides go through LimitsForWithOverrides.
func DailyQuota(tier string, bucket models.ModelBucket) int {
	limits := LimitsFor(tier)
	quota, ok := limits.DailyQuotas[bucket]
	if !ok {
		// Every bucket must be present in every tier's table; treat a gap
		// as forbidden rather than guessing.
		return QuotaForbidden
	}
	return quota
}

// WithinGenerationLimit reports whether one more generation fits a tier's
// daily quota for a bucket given the count consumed so far today. A quota
// of -1 is unlimited and always passes regardless of count.
func WithinGenerationLimit(tier string, bucket models.ModelBucket, currentCount int) bool {
	quota := DailyQuota(tier, bucket)
	if quota == QuotaUnlimited {
		return true
	}
	return currentCount < quota
}

// Guest limits. The guest cap is a lifetime ceiling keyed by network
// identity - there is no daily reset.
const (
	GuestGuideLimit = 3
)

// guestBuckets is the closed set of buckets guests may use.
var guestBuckets = map[models.ModelBucket]bool{
	models.BucketLlama:    true,
	models.BucketDeepseek: true,
}

// GuestAllowedBucket reports whether unauthenticated callers may use a bucket.
func GuestAllowedBucket(bucket models.ModelBucket) bool {
	return guestBuckets[bucket]
}

// Message boundary limits.
const (
	// MaxMessageImages bounds the images attached to a single chat message.
	MaxMessageImages = 6
	// MaxPromptLength bounds the user prompt accepted at the boundary.
	MaxPromptLength = 32_000
	// MaxTitleLength is the ceiling for session titles, including the
	// ellipsis appended on truncation.
	MaxTitleLength = 60
)

// HTTP request timeouts. Provider round-trips dominate latency and are
// allowed to run for tens of seconds, so generation endpoints get an
// extended budget rather than the short default.
const (
	// DefaultRequestTimeout is the timeout for most API endpoints.
	DefaultRequestTimeout = 30 * time.Second
	// GenerationRequestTimeout is the extended timeout for endpoints that
	// call out to a model provider.
	GenerationRequestTimeout = 3 * time.Minute
	// ProviderRetryAfterFallback is the retry hint attached to transient
	// provider errors. The go-openai client does not expose response
	// headers on its error types, so a provider-supplied Retry-After can
	// never be read back; this fallback always applies.
	ProviderRetryAfterFallback = 10 * time.Second
)

// Global rate limiting defaults
const (
	// GlobalIPRateLimitPerMinute is the fallback rate limit per client IP.
	GlobalIPRateLimitPerMinute = 100
	// GlobalConcurrencyLimit is the max concurrent requests the server will handle.
	GlobalConcurrencyLimit = 100
	// MaxRequestBodySize is the max request body size in bytes (2MB; inline
	// message images ride in the body).
	MaxRequestBodySize = 2 * 1024 * 1024
)

// QuotaExceededMessage returns a user-friendly message for a daily quota
// exceeded denial. The numeric limit is always included so the UI can render
// "X/Y used" without a second round-trip.
func QuotaExceededMessage(tier string, bucket models.ModelBucket) string {
	quota := DailyQuota(tier, bucket)
	switch tier {
	case TierFree:
		return fmt.Sprintf("You've reached your free plan limit of %d guides today for this model. Upgrade to Pro for higher daily limits.", quota)
	case TierPro:
		return fmt.Sprintf("You've reached your Pro plan limit of %d guides today for this model. Upgrade to Pro+ for unlimited access.", quota)
	default:
		return fmt.Sprintf("You've reached your daily limit of %d guides for this model. Please try again tomorrow.", quota)
	}
}

// ModelNotIncludedMessage returns a user-friendly message for a plan
// allow-list denial. Distinguishable from quota exhaustion so the UI can
// offer "upgrade" instead of "wait".
func ModelNotIncludedMessage(tier string, bucket models.ModelBucket) string {
	switch tier {
	case TierFree:
		return fmt.Sprintf("The %s model is not included in the free plan. Upgrade to Pro or Pro+ to use it.", bucket)
	case TierPro:
		return fmt.Sprintf("The %s model is exclusive to Pro+. Upgrade to use it.", bucket)
	default:
		return fmt.Sprintf("Your plan does not include the %s model.", bucket)
	}
}

// GuestLimitMessage is the denial shown when a guest's lifetime cap is hit.
func GuestLimitMessage() string {
	return fmt.Sprintf("You've used all %d free guest guides. Create an account to keep generating.", GuestGuideLimit)
}

// PlanMetadata represents display info synced from remote plan settings
// (display name overrides for pricing pages).
type PlanMetadata struct {
	Slug        string
	DisplayName string
}

// UpdatePlanMetadata applies display name overrides to the compiled-in
// catalog, so listings that read Plans directly show the synced names.
// Thread-safe for concurrent access.
func UpdatePlanMetadata(metadata []PlanMetadata) {
	plansMu.Lock()
	defer plansMu.Unlock()

	for _, m := range metadata {
		if plan, ok := Plans[m.Slug]; ok {
			if m.DisplayName != "" {
				plan.DisplayName = m.DisplayName
			}
			Plans[m.Slug] = plan
		}
	}
}
