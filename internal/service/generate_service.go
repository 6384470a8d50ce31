package service

import (
	"context"
	"log/slog"

	"github.com/guidely/guidely-api/internal/llm"
	"github.com/guidely/guidely-api/internal/models"
)

// Caller identifies who is asking for a generation: an authenticated user
// (Email + Tier) or a guest (GuestIdentity). Exactly one of the two shapes
// is populated.
type Caller struct {
	Email         string
	Tier          string
	GuestIdentity string
}

// IsGuest reports whether the caller is unauthenticated.
func (c Caller) IsGuest() bool {
	return c.Email == ""
}

// GenerateService runs one-shot generations outside any chat session. Both
// authenticated users and guests land here; the gate differs, the provider
// flow does not.
type GenerateService struct {
	access    *AccessService
	guests    *GuestService
	completer llm.Completer
	logger    *slog.Logger
}

// NewGenerateService creates a new generate service.
func NewGenerateService(access *AccessService, guests *GuestService, completer llm.Completer, logger *slog.Logger) *GenerateService {
	return &GenerateService{
		access:    access,
		guests:    guests,
		completer: completer,
		logger:    logger,
	}
}

// GenerateResult is a one-shot generation response.
type GenerateResult struct {
	Content   string                `json:"content"`
	Images    []models.MessageImage `json:"images,omitempty"`
	Model     models.ModelBucket    `json:"model"`
	Remaining int                   `json:"remaining"`
	Usage     models.TokenUsage     `json:"usage"`
}

// Generate resolves the model, charges the appropriate allowance, and runs
// the completion. Guests burn lifetime allowance; users burn daily quota.
func (s *GenerateService) Generate(ctx context.Context, caller Caller, modelName, prompt string, images []models.MessageImage) (*GenerateResult, error) {
	if err := validateMessage(prompt, images); err != nil {
		return nil, err
	}

	res, err := llm.Resolve(modelName)
	if err != nil {
		return nil, unknownModelError(modelName)
	}

	var remaining int
	if caller.IsGuest() {
		remaining, err = s.guests.CheckAndReserve(ctx, caller.GuestIdentity, res.Bucket)
	} else {
		remaining, err = s.access.CheckAndReserve(ctx, caller.Email, caller.Tier, res.Bucket)
	}
	if err != nil {
		return nil, err
	}

	completion, err := s.completer.Complete(ctx, llm.Request{
		Bucket: res.Bucket,
		Messages: []llm.Message{
			{Role: models.RoleUser, Content: prompt, Images: images},
		},
	})
	if err != nil {
		return nil, err
	}

	// Guest usage is a lifetime counter, not a shaped ledger; only
	// authenticated usage gets completion counters.
	if !caller.IsGuest() {
		s.access.RecordCompletion(ctx, caller.Email, res.Bucket, completionDelta(res.Bucket, completion))
	}

	return &GenerateResult{
		Content:   completion.Content,
		Images:    completion.Images,
		Model:     res.Bucket,
		Remaining: remaining,
		Usage:     completion.Usage,
	}, nil
}
