package handlers

import (
	"context"

	"github.com/guidely/guidely-api/internal/models"
	"github.com/guidely/guidely-api/internal/service"
)

// UsageHandler handles usage endpoints.
type UsageHandler struct {
	usageSvc *service.UsageService
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(usageSvc *service.UsageService) *UsageHandler {
	return &UsageHandler{usageSvc: usageSvc}
}

// BucketUsageResponse is one bucket's consumption for a day.
type BucketUsageResponse struct {
	Requests         int `json:"requests"`
	TextRequests     int `json:"text_requests"`
	ImageGenerations int `json:"image_generations"`
	Tokens           int `json:"tokens"`
}

// GetUsageOutput represents today's usage response.
type GetUsageOutput struct {
	Body struct {
		Date      string                         `json:"date" doc:"UTC calendar day"`
		Buckets   map[string]BucketUsageResponse `json:"buckets" doc:"Consumption by model bucket"`
		Remaining map[string]int                 `json:"remaining" doc:"Requests left today per accessible bucket (999999 = unlimited)"`
	}
}

// GetUsage returns today's consumption and remaining quota per bucket.
func (h *UsageHandler) GetUsage(ctx context.Context, input *struct{}) (*GetUsageOutput, error) {
	email, tier, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	today, err := h.usageSvc.Today(ctx, email, tier)
	if err != nil {
		return nil, mapServiceError(err)
	}

	out := &GetUsageOutput{}
	out.Body.Date = today.Date
	out.Body.Buckets = toBucketResponses(today.Buckets)
	out.Body.Remaining = make(map[string]int, len(today.Remaining))
	for bucket, left := range today.Remaining {
		out.Body.Remaining[string(bucket)] = left
	}
	return out, nil
}

// GetHistoryInput represents a usage history request.
type GetHistoryInput struct {
	Days int `query:"days" default:"7" minimum:"1" maximum:"90" doc:"Number of days, today included"`
}

// DailyUsageResponse is one day of usage history.
type DailyUsageResponse struct {
	Date    string                         `json:"date"`
	Buckets map[string]BucketUsageResponse `json:"buckets"`
}

// GetHistoryOutput represents a usage history response.
type GetHistoryOutput struct {
	Body struct {
		Days []DailyUsageResponse `json:"days" doc:"Oldest first; inactive days appear with empty buckets"`
	}
}

// GetHistory returns per-day usage for the requested window.
func (h *UsageHandler) GetHistory(ctx context.Context, input *GetHistoryInput) (*GetHistoryOutput, error) {
	email, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	history, err := h.usageSvc.History(ctx, email, input.Days)
	if err != nil {
		return nil, mapServiceError(err)
	}

	out := &GetHistoryOutput{}
	out.Body.Days = make([]DailyUsageResponse, len(history))
	for i, day := range history {
		out.Body.Days[i] = DailyUsageResponse{
			Date:    day.Date,
			Buckets: toBucketResponses(day.Buckets),
		}
	}
	return out, nil
}

// ExportUsageOutput represents a usage export response.
type ExportUsageOutput struct {
	Body struct {
		Days []DailyUsageResponse `json:"days"`
	}
}

// ExportUsage returns the full retained history, subject to the per-tier
// export cooldown.
func (h *UsageHandler) ExportUsage(ctx context.Context, input *struct{}) (*ExportUsageOutput, error) {
	email, tier, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.usageSvc.CheckExportAllowed(ctx, email, tier); err != nil {
		return nil, mapServiceError(err)
	}

	history, err := h.usageSvc.History(ctx, email, 90)
	if err != nil {
		return nil, mapServiceError(err)
	}
	if err := h.usageSvc.RecordExport(ctx, email); err != nil {
		return nil, mapServiceError(err)
	}

	out := &ExportUsageOutput{}
	out.Body.Days = make([]DailyUsageResponse, len(history))
	for i, day := range history {
		out.Body.Days[i] = DailyUsageResponse{
			Date:    day.Date,
			Buckets: toBucketResponses(day.Buckets),
		}
	}
	return out, nil
}

func toBucketResponses(buckets map[models.ModelBucket]models.BucketUsage) map[string]BucketUsageResponse {
	out := make(map[string]BucketUsageResponse, len(buckets))
	for bucket, usage := range buckets {
		out[string(bucket)] = BucketUsageResponse{
			Requests:         usage.Requests,
			TextRequests:     usage.TextRequests,
			ImageGenerations: usage.ImageGenerations,
			Tokens:           usage.Tokens,
		}
	}
	return out
}
