package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/guidely/guidely-api/internal/constants"
	"github.com/guidely/guidely-api/internal/llm"
	"github.com/guidely/guidely-api/internal/models"
	"github.com/guidely/guidely-api/internal/repository"
)

// ChatService owns the chat session lifecycle: creating sessions, running
// the gated generation flow for new messages, model switches, and the
// best-effort auto-title pass.
type ChatService struct {
	repos     *repository.Repositories
	access    *AccessService
	completer llm.Completer
	logger    *slog.Logger
}

// NewChatService creates a new chat service.
func NewChatService(repos *repository.Repositories, access *AccessService, completer llm.Completer, logger *slog.Logger) *ChatService {
	return &ChatService{
		repos:     repos,
		access:    access,
		completer: completer,
		logger:    logger,
	}
}

// SendResult is what a completed generation turn returns to the caller.
type SendResult struct {
	Message   *models.ChatMessage `json:"message"`
	Remaining int                 `json:"remaining"`
	Usage     models.TokenUsage   `json:"usage"`
}

// Create starts a new session on the given model. The model name may be a
// client-facing alias; it is resolved to a bucket and checked against the
// plan allow-list, but creating a session costs nothing — quota is charged
// per message. When a first message is supplied it seeds the title and is
// stored as the opening user turn; no generation runs until the client
// sends a message.
func (s *ChatService) Create(ctx context.Context, userEmail, tier, modelName, firstMessage string) (*models.ChatSession, error) {
	res, err := llm.Resolve(modelName)
	if err != nil {
		return nil, unknownModelError(modelName)
	}
	if !constants.HasModelAccess(tier, res.Bucket) {
		return nil, &DenialError{
			Err:     ErrAccessDenied,
			Tier:    tier,
			Bucket:  res.Bucket,
			Message: constants.ModelNotIncludedMessage(tier, res.Bucket),
		}
	}

	seed := strings.TrimSpace(firstMessage) != ""
	if seed {
		if err := validateMessage(firstMessage, nil); err != nil {
			return nil, err
		}
	}

	session := &models.ChatSession{
		UserEmail: userEmail,
		Model:     res.Bucket,
		Title:     seedTitle(firstMessage),
	}
	if err := s.repos.Session.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if seed {
		msg := &models.ChatMessage{
			SessionID: session.ID,
			Role:      models.RoleUser,
			Content:   firstMessage,
		}
		if err := s.repos.Session.AppendMessage(ctx, userEmail, msg); err != nil {
			return nil, fmt.Errorf("seed first message: %w", err)
		}
		session.Messages = []models.ChatMessage{*msg}
	}
	return session, nil
}

// Get returns the session with its messages.
func (s *ChatService) Get(ctx context.Context, id, userEmail string) (*models.ChatSession, error) {
	return s.repos.Session.GetByID(ctx, id, userEmail)
}

// List returns the user's sessions, most recently updated first.
func (s *ChatService) List(ctx context.Context, userEmail string, includeArchived bool, limit, offset int) ([]*models.ChatSession, error) {
	return s.repos.Session.List(ctx, userEmail, includeArchived, limit, offset)
}

// Archive soft-hides a session from the default listing.
func (s *ChatService) Archive(ctx context.Context, id, userEmail string) error {
	return s.repos.Session.SetArchived(ctx, id, userEmail, true)
}

// Delete removes a session and, via the schema cascade, its messages.
func (s *ChatService) Delete(ctx context.Context, id, userEmail string) error {
	return s.repos.Session.Delete(ctx, id, userEmail)
}

// SwitchModel changes the session's active bucket. The switch is re-gated
// against the caller's current plan: a session created on a higher tier
// cannot keep exclusive models after a downgrade. Switching to the bucket
// already active is a no-op.
func (s *ChatService) SwitchModel(ctx context.Context, id, userEmail, tier, modelName string) (*models.ChatSession, error) {
	res, err := llm.Resolve(modelName)
	if err != nil {
		return nil, unknownModelError(modelName)
	}

	session, err := s.repos.Session.GetByID(ctx, id, userEmail)
	if err != nil {
		return nil, err
	}
	if session.Model == res.Bucket {
		return session, nil
	}

	if !constants.HasModelAccess(tier, res.Bucket) {
		return nil, &DenialError{
			Err:     ErrAccessDenied,
			Tier:    tier,
			Bucket:  res.Bucket,
			Message: constants.ModelNotIncludedMessage(tier, res.Bucket),
		}
	}

	if err := s.repos.Session.UpdateModel(ctx, id, userEmail, res.Bucket); err != nil {
		return nil, err
	}
	session.Model = res.Bucket
	return session, nil
}

// SendMessage runs one generation turn in a session: validate, charge the
// quota, append the user message, call the provider, append the assistant
// reply, record completion counters, and kick off the auto-title pass.
//
// The quota charge lands before the provider call, so a provider failure
// still consumed one request.
func (s *ChatService) SendMessage(ctx context.Context, sessionID, userEmail, tier, content string, images []models.MessageImage) (*SendResult, error) {
	if err := validateMessage(content, images); err != nil {
		return nil, err
	}

	session, err := s.repos.Session.GetByID(ctx, sessionID, userEmail)
	if err != nil {
		return nil, err
	}

	remaining, err := s.access.CheckAndReserve(ctx, userEmail, tier, session.Model)
	if err != nil {
		return nil, err
	}

	userMsg := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   content,
		Images:    images,
	}
	if err := s.repos.Session.AppendMessage(ctx, userEmail, userMsg); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	completion, err := s.completer.Complete(ctx, llm.Request{
		Bucket:   session.Model,
		Messages: providerMessages(session.Messages, userMsg),
	})
	if err != nil {
		return nil, err
	}

	assistantMsg := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   completion.Content,
		Model:     session.Model,
		Images:    completion.Images,
	}
	if err := s.repos.Session.AppendMessage(ctx, userEmail, assistantMsg); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	s.access.RecordCompletion(ctx, userEmail, session.Model, completionDelta(session.Model, completion))

	if session.Title == models.DefaultSessionTitle {
		s.autoTitle(ctx, sessionID, userEmail, content)
	}

	return &SendResult{
		Message:   assistantMsg,
		Remaining: remaining,
		Usage:     completion.Usage,
	}, nil
}

// autoTitle asks the title model for a better name and applies it only if
// the session still carries the placeholder. Runs detached from the request
// context so a client disconnect after the reply does not cancel it; any
// failure is logged and never surfaced.
func (s *ChatService) autoTitle(ctx context.Context, sessionID, userEmail, firstMessage string) {
	bg := context.WithoutCancel(ctx)
	go func() {
		title, err := s.completer.GenerateTitle(bg, firstMessage)
		if err != nil {
			s.logger.Debug("auto-title generation failed", "session", sessionID, "error", err)
			return
		}
		if err := s.repos.Session.UpdateTitle(bg, sessionID, userEmail, title); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("auto-title not applied", "session", sessionID, "error", err)
		}
	}()
}

// validateMessage enforces the boundary limits on a user message.
func validateMessage(content string, images []models.MessageImage) error {
	if strings.TrimSpace(content) == "" && len(images) == 0 {
		return validationError("message is empty")
	}
	if len(content) > constants.MaxPromptLength {
		return validationError("message exceeds %d characters", constants.MaxPromptLength)
	}
	if len(images) > constants.MaxMessageImages {
		return validationError("at most %d images per message", constants.MaxMessageImages)
	}
	for _, img := range images {
		if !strings.HasPrefix(img.MimeType, "image/") {
			return validationError("unsupported attachment type %q", img.MimeType)
		}
	}
	return nil
}

// providerMessages flattens stored history plus the new turn into provider
// messages, oldest first.
func providerMessages(history []models.ChatMessage, latest *models.ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content, Images: m.Images})
	}
	out = append(out, llm.Message{Role: latest.Role, Content: latest.Content, Images: latest.Images})
	return out
}

// completionDelta maps a completion to ledger shape counters.
func completionDelta(bucket models.ModelBucket, completion *llm.Completion) models.UsageDelta {
	delta := models.UsageDelta{Tokens: completion.Usage.Total}
	if res, err := llm.ResolveBucket(bucket); err == nil && res.GeneratesImages {
		delta.ImageGenerations = 1
	} else {
		delta.TextRequests = 1
	}
	return delta
}

// seedTitle derives the initial session title from the first message, or
// falls back to the placeholder that marks the session eligible for
// auto-titling.
func seedTitle(firstMessage string) string {
	title := strings.Join(strings.Fields(firstMessage), " ")
	if title == "" {
		return models.DefaultSessionTitle
	}
	if runes := []rune(title); len(runes) > constants.MaxTitleLength {
		title = strings.TrimSpace(string(runes[:constants.MaxTitleLength-3])) + "..."
	}
	return title
}
