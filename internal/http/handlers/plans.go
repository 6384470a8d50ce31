package handlers

import (
	"context"
	"sort"

	"github.com/guidely/guidely-api/internal/constants"
	"github.com/guidely/guidely-api/internal/llm"
	"github.com/guidely/guidely-api/internal/models"
)

// PlanResponse describes one plan tier for pricing pages. Quotas are
// per-bucket daily limits: -1 means unlimited, 0 means not included.
type PlanResponse struct {
	Name                string         `json:"name" doc:"Tier name (free, pro, proplus)"`
	DisplayName         string         `json:"display_name" doc:"Human-readable tier name"`
	DailyQuotas         map[string]int `json:"daily_quotas" doc:"Daily generation quota per model bucket"`
	ExportCooldownHours int            `json:"export_cooldown_hours" doc:"Minimum hours between usage exports (0 = none)"`
	TeamSharing         bool           `json:"team_sharing" doc:"Shared workspaces included"`
	Templates           bool           `json:"templates" doc:"Template library included"`
	SupportLevel        string         `json:"support_level" doc:"Support entitlement"`
}

// ListPlansOutput is the response for the public plan catalog.
type ListPlansOutput struct {
	Body struct {
		Plans  []PlanResponse `json:"plans" doc:"Plan tiers in display order"`
		Models []string       `json:"models" doc:"Accepted model names and aliases"`
	}
}

var allTierNames = []string{
	constants.TierFree,
	constants.TierPro,
	constants.TierProPlus,
}

// ListPlans returns the plan catalog with per-bucket quotas and the
// accepted model names. Public endpoint for pricing pages.
func ListPlans(ctx context.Context, _ *struct{}) (*ListPlansOutput, error) {
	type planWithOrder struct {
		response PlanResponse
		order    int
	}

	var plans []planWithOrder
	for _, name := range allTierNames {
		limits := constants.LimitsForWithOverrides(ctx, name)

		quotas := make(map[string]int, len(models.AllBuckets))
		for _, bucket := range models.AllBuckets {
			quotas[string(bucket)] = limits.DailyQuotas[bucket]
		}

		displayName := limits.DisplayName
		if displayName == "" {
			displayName = name
		}

		plans = append(plans, planWithOrder{
			response: PlanResponse{
				Name:                name,
				DisplayName:         displayName,
				DailyQuotas:         quotas,
				ExportCooldownHours: limits.ExportCooldownHours,
				TeamSharing:         limits.TeamSharing,
				Templates:           limits.Templates,
				SupportLevel:        string(limits.SupportLevel),
			},
			order: limits.Order,
		})
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].order < plans[j].order
	})

	out := &ListPlansOutput{}
	out.Body.Plans = make([]PlanResponse, len(plans))
	for i, p := range plans {
		out.Body.Plans[i] = p.response
	}
	out.Body.Models = llm.ValidNames()
	return out, nil
}
