package constants

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/guidely/guidely-api/internal/config"
	"github.com/guidely/guidely-api/internal/models"
)

// PlanSettingsJSON represents the JSON structure for plan settings from S3.
type PlanSettingsJSON struct {
	Plans map[string]PlanLimitsJSON `json:"plans"`
}

// PlanLimitsJSON represents plan limits in JSON format. The allow-lists are
// compiled in and cannot be overridden remotely; only numeric quotas and
// feature flags can.
type PlanLimitsJSON struct {
	DisplayName         string         `json:"display_name,omitempty"`
	Order               int            `json:"order,omitempty"`
	DailyQuotas         map[string]int `json:"daily_quotas"`
	ExportCooldownHours int            `json:"export_cooldown_hours"`
	TeamSharing         bool           `json:"team_sharing"`
	Templates           bool           `json:"templates"`
	SupportLevel        string         `json:"support_level,omitempty"`
}

// PlanSettingsLoader provides S3-backed plan settings with caching.
type PlanSettingsLoader struct {
	loader *config.SettingsLoader

	mu     sync.RWMutex
	plans  map[string]PlanLimits // overrides from S3
	logger *slog.Logger
}

// PlanSettingsConfig holds configuration for the plan settings loader.
type PlanSettingsConfig = config.SettingsLoaderConfig

// Global plan settings loader instance
var (
	planLoader     *PlanSettingsLoader
	planLoaderOnce sync.Once
)

// InitPlanLoader initializes the global plan settings loader.
// Call this at startup if you want S3-backed plan settings.
func InitPlanLoader(cfg PlanSettingsConfig) {
	planLoaderOnce.Do(func() {
		planLoader = &PlanSettingsLoader{
			loader: config.NewSettingsLoader(cfg),
			plans:  make(map[string]PlanLimits),
			logger: cfg.Logger,
		}
		if planLoader.logger == nil {
			planLoader.logger = slog.Default()
		}
	})
}

// GetPlanLoader returns the global plan settings loader (may be nil if not
// initialized).
func GetPlanLoader() *PlanSettingsLoader {
	return planLoader
}

// IsEnabled returns true if S3 is configured.
func (p *PlanSettingsLoader) IsEnabled() bool {
	return p.loader.IsEnabled()
}

// MaybeRefresh checks if we need to refresh plan settings from S3.
func (p *PlanSettingsLoader) MaybeRefresh(ctx context.Context) {
	if !p.loader.NeedsRefresh() {
		return
	}

	// Refresh in background to not block requests
	go p.refresh(context.WithoutCancel(ctx))
}

// refresh fetches plan settings from S3 and parses them.
func (p *PlanSettingsLoader) refresh(ctx context.Context) {
	result, err := p.loader.Fetch(ctx)
	if err != nil {
		// the loader already logged the error
		return
	}
	if result == nil || result.Unchanged {
		return
	}

	var settings PlanSettingsJSON
	if err := json.Unmarshal(result.Body, &settings); err != nil {
		p.logger.Error("failed to parse plan settings JSON", "error", err)
		return
	}

	p.apply(settings)
}

// apply merges fetched settings over the compiled-in catalog and installs
// the result as the active override set.
func (p *PlanSettingsLoader) apply(settings PlanSettingsJSON) {
	newPlans := make(map[string]PlanLimits)
	for name, limits := range settings.Plans {
		quotas := make(map[models.ModelBucket]int, len(models.AllBuckets))
		// Start from the compiled-in table so a partial override cannot
		// leave a bucket without an entry.
		for bucket, quota := range LimitsFor(name).DailyQuotas {
			quotas[bucket] = quota
		}
		for raw, quota := range limits.DailyQuotas {
			bucket := models.ModelBucket(raw)
			if !bucket.Valid() {
				p.logger.Warn("ignoring plan settings override for unknown bucket", "bucket", raw, "plan", name)
				continue
			}
			quotas[bucket] = quota
		}

		support := SupportLevel(limits.SupportLevel)
		if support == "" {
			support = LimitsFor(name).SupportLevel
		}

		newPlans[name] = PlanLimits{
			DisplayName:         limits.DisplayName,
			Order:               limits.Order,
			DailyQuotas:         quotas,
			ExportCooldownHours: limits.ExportCooldownHours,
			TeamSharing:         limits.TeamSharing,
			Templates:           limits.Templates,
			SupportLevel:        support,
		}
	}

	p.mu.Lock()
	p.plans = newPlans
	p.mu.Unlock()

	// Display names flow through to the compiled-in catalog too, so the
	// public plan listing picks them up without consulting the overrides.
	metadata := make([]PlanMetadata, 0, len(settings.Plans))
	for name, limits := range settings.Plans {
		if limits.DisplayName != "" {
			metadata = append(metadata, PlanMetadata{Slug: name, DisplayName: limits.DisplayName})
		}
	}
	UpdatePlanMetadata(metadata)

	p.logger.Info("plan settings loaded from S3",
		"plan_count", len(newPlans),
	)
}

// GetLimits returns plan limits from the S3 overrides, or nil if no
// override exists for the tier.
func (p *PlanSettingsLoader) GetLimits(tier string) *PlanLimits {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if limits, ok := p.plans[tier]; ok {
		return &limits
	}
	return nil
}

// LimitsForWithOverrides returns plan limits, checking S3 overrides first.
// This is the main entry point for gating code - it handles refresh and the
// fallback to the compiled-in catalog.
func LimitsForWithOverrides(ctx context.Context, tier string) PlanLimits {
	if planLoader != nil && planLoader.IsEnabled() {
		planLoader.MaybeRefresh(ctx)

		if limits := planLoader.GetLimits(tier); limits != nil {
			return *limits
		}
	}

	return LimitsFor(tier)
}

// DailyQuotaWithOverrides is DailyQuota with S3 overrides applied.
func DailyQuotaWithOverrides(ctx context.Context, tier string, bucket models.ModelBucket) int {
	limits := LimitsForWithOverrides(ctx, tier)
	quota, ok := limits.DailyQuotas[bucket]
	if !ok {
		return QuotaForbidden
	}
	return quota
}
