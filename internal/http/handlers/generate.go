package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/guidely/guidely-api/internal/http/mw"
	"github.com/guidely/guidely-api/internal/models"
	"github.com/guidely/guidely-api/internal/service"
)

// GenerateHandler handles one-shot generation for users and guests.
type GenerateHandler struct {
	generateSvc *service.GenerateService
	guestSvc    *service.GuestService
}

// NewGenerateHandler creates a new generate handler.
func NewGenerateHandler(generateSvc *service.GenerateService, guestSvc *service.GuestService) *GenerateHandler {
	return &GenerateHandler{generateSvc: generateSvc, guestSvc: guestSvc}
}

// ImageInput is an inline image attachment.
type ImageInput struct {
	MimeType string `json:"mime_type" doc:"Image mime type (image/png, image/jpeg, ...)"`
	Data     string `json:"data" doc:"Base64-encoded image payload"`
}

// GenerateInput represents a one-shot generation request.
type GenerateInput struct {
	Body struct {
		Model  string       `json:"model" minLength:"1" doc:"Model name or alias"`
		Prompt string       `json:"prompt" doc:"User prompt"`
		Images []ImageInput `json:"images,omitempty" maxItems:"6" doc:"Optional inline images"`
	}
}

// GenerateOutput represents a generation response.
type GenerateOutput struct {
	Body struct {
		Content   string             `json:"content" doc:"Generated text"`
		Images    []ImageInput       `json:"images,omitempty" doc:"Generated images, when the model produces them"`
		Model     models.ModelBucket `json:"model" doc:"Bucket that served the request"`
		Remaining int                `json:"remaining" doc:"Requests left today (999999 = unlimited); for guests, lifetime guides left"`
		Tokens    int                `json:"tokens" doc:"Total tokens consumed"`
	}
}

// Generate runs a one-shot generation. Authenticated callers spend daily
// quota; anonymous callers spend the lifetime guest allowance tied to
// their network address.
func (h *GenerateHandler) Generate(ctx context.Context, input *GenerateInput) (*GenerateOutput, error) {
	caller := callerFromContext(ctx, h.guestSvc)
	if caller.IsGuest() && caller.GuestIdentity == "" {
		return nil, huma.Error401Unauthorized("could not identify caller")
	}

	result, err := h.generateSvc.Generate(ctx, caller, input.Body.Model, input.Body.Prompt, toModelImages(input.Body.Images))
	if err != nil {
		return nil, mapServiceError(err)
	}

	out := &GenerateOutput{}
	out.Body.Content = result.Content
	out.Body.Images = fromModelImages(result.Images)
	out.Body.Model = result.Model
	out.Body.Remaining = result.Remaining
	out.Body.Tokens = result.Usage.Total
	return out, nil
}

// GuestStatusOutput reports a guest's remaining allowance.
type GuestStatusOutput struct {
	Body struct {
		Remaining int `json:"remaining" doc:"Lifetime guest guides left"`
	}
}

// GuestStatus returns the remaining guest allowance for the caller's
// network identity.
func (h *GenerateHandler) GuestStatus(ctx context.Context, input *struct{}) (*GuestStatusOutput, error) {
	ip := mw.GetClientIP(ctx)
	if ip == "" {
		return nil, huma.Error401Unauthorized("could not identify caller")
	}
	remaining, err := h.guestSvc.Remaining(ctx, h.guestSvc.Identity(ip))
	if err != nil {
		return nil, mapServiceError(err)
	}
	out := &GuestStatusOutput{}
	out.Body.Remaining = remaining
	return out, nil
}

// callerFromContext builds the service caller: claims when authenticated,
// a derived network identity otherwise.
func callerFromContext(ctx context.Context, guestSvc *service.GuestService) service.Caller {
	if claims := getUserClaims(ctx); claims != nil {
		return service.Caller{Email: claims.Email, Tier: claims.Tier}
	}
	if ip := mw.GetClientIP(ctx); ip != "" {
		return service.Caller{GuestIdentity: guestSvc.Identity(ip)}
	}
	return service.Caller{}
}

func toModelImages(in []ImageInput) []models.MessageImage {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.MessageImage, len(in))
	for i, img := range in {
		out[i] = models.MessageImage{MimeType: img.MimeType, Data: img.Data}
	}
	return out
}

func fromModelImages(in []models.MessageImage) []ImageInput {
	if len(in) == 0 {
		return nil
	}
	out := make([]ImageInput, len(in))
	for i, img := range in {
		out[i] = ImageInput{MimeType: img.MimeType, Data: img.Data}
	}
	return out
}
