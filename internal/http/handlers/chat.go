package handlers

import (
	"context"
	"time"

	"github.com/guidely/guidely-api/internal/models"
	"github.com/guidely/guidely-api/internal/service"
)

// ChatHandler handles chat session endpoints.
type ChatHandler struct {
	chatSvc *service.ChatService
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatSvc *service.ChatService) *ChatHandler {
	return &ChatHandler{chatSvc: chatSvc}
}

// SessionResponse is the client view of a chat session.
type SessionResponse struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Model     models.ModelBucket `json:"model"`
	Archived  bool               `json:"archived"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Messages  []MessageResponse  `json:"messages,omitempty"`
}

// MessageResponse is the client view of a chat message.
type MessageResponse struct {
	ID        string             `json:"id"`
	Role      models.MessageRole `json:"role"`
	Content   string             `json:"content"`
	Model     models.ModelBucket `json:"model,omitempty"`
	Images    []ImageInput       `json:"images,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

func toSessionResponse(s *models.ChatSession, withMessages bool) SessionResponse {
	resp := SessionResponse{
		ID:        s.ID,
		Title:     s.Title,
		Model:     s.Model,
		Archived:  s.Archived,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if withMessages {
		resp.Messages = make([]MessageResponse, len(s.Messages))
		for i, m := range s.Messages {
			resp.Messages[i] = toMessageResponse(&m)
		}
	}
	return resp
}

func toMessageResponse(m *models.ChatMessage) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		Model:     m.Model,
		Images:    fromModelImages(m.Images),
		CreatedAt: m.CreatedAt,
	}
}

// CreateChatInput represents a session creation request.
type CreateChatInput struct {
	Body struct {
		Model        string `json:"model" minLength:"1" doc:"Model name or alias for the session"`
		FirstMessage string `json:"first_message,omitempty" doc:"Optional first message; stored as the opening user turn and seeds the session title"`
	}
}

// CreateChatOutput represents a session creation response.
type CreateChatOutput struct {
	Body SessionResponse
}

// CreateChat creates a new chat session.
func (h *ChatHandler) CreateChat(ctx context.Context, input *CreateChatInput) (*CreateChatOutput, error) {
	email, tier, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	session, err := h.chatSvc.Create(ctx, email, tier, input.Body.Model, input.Body.FirstMessage)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return &CreateChatOutput{Body: toSessionResponse(session, true)}, nil
}

// ListChatsInput represents a session listing request.
type ListChatsInput struct {
	IncludeArchived bool `query:"include_archived" doc:"Include archived sessions"`
	Limit           int  `query:"limit" default:"50" minimum:"1" maximum:"200" doc:"Page size"`
	Offset          int  `query:"offset" minimum:"0" doc:"Page offset"`
}

// ListChatsOutput represents a session listing response.
type ListChatsOutput struct {
	Body struct {
		Sessions []SessionResponse `json:"sessions"`
	}
}

// ListChats lists the caller's sessions, most recently updated first.
func (h *ChatHandler) ListChats(ctx context.Context, input *ListChatsInput) (*ListChatsOutput, error) {
	email, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	sessions, err := h.chatSvc.List(ctx, email, input.IncludeArchived, input.Limit, input.Offset)
	if err != nil {
		return nil, mapServiceError(err)
	}

	out := &ListChatsOutput{}
	out.Body.Sessions = make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		out.Body.Sessions[i] = toSessionResponse(s, false)
	}
	return out, nil
}

// GetChatInput represents a session fetch request.
type GetChatInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// GetChatOutput represents a session fetch response.
type GetChatOutput struct {
	Body SessionResponse
}

// GetChat returns one session with its messages.
func (h *ChatHandler) GetChat(ctx context.Context, input *GetChatInput) (*GetChatOutput, error) {
	email, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	session, err := h.chatSvc.Get(ctx, input.ID, email)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return &GetChatOutput{Body: toSessionResponse(session, true)}, nil
}

// SendMessageInput represents a message send request.
type SendMessageInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Content string       `json:"content" doc:"Message text"`
		Images  []ImageInput `json:"images,omitempty" maxItems:"6" doc:"Optional inline images"`
	}
}

// SendMessageOutput represents a message send response.
type SendMessageOutput struct {
	Body struct {
		Message   MessageResponse `json:"message" doc:"The assistant's reply"`
		Remaining int             `json:"remaining" doc:"Requests left today for the session's model"`
		Tokens    int             `json:"tokens" doc:"Total tokens consumed"`
	}
}

// SendMessage runs one generation turn in a session.
func (h *ChatHandler) SendMessage(ctx context.Context, input *SendMessageInput) (*SendMessageOutput, error) {
	email, tier, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	result, err := h.chatSvc.SendMessage(ctx, input.ID, email, tier, input.Body.Content, toModelImages(input.Body.Images))
	if err != nil {
		return nil, mapServiceError(err)
	}

	out := &SendMessageOutput{}
	out.Body.Message = toMessageResponse(result.Message)
	out.Body.Remaining = result.Remaining
	out.Body.Tokens = result.Usage.Total
	return out, nil
}

// SwitchModelInput represents a model switch request.
type SwitchModelInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Model string `json:"model" minLength:"1" doc:"New model name or alias"`
	}
}

// SwitchModelOutput represents a model switch response.
type SwitchModelOutput struct {
	Body SessionResponse
}

// SwitchModel changes the session's active model, re-checked against the
// caller's current plan.
func (h *ChatHandler) SwitchModel(ctx context.Context, input *SwitchModelInput) (*SwitchModelOutput, error) {
	email, tier, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	session, err := h.chatSvc.SwitchModel(ctx, input.ID, email, tier, input.Body.Model)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return &SwitchModelOutput{Body: toSessionResponse(session, false)}, nil
}

// ArchiveChatInput represents an archive request.
type ArchiveChatInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// ArchiveChatOutput represents an archive response.
type ArchiveChatOutput struct {
	Body struct {
		Archived bool `json:"archived"`
	}
}

// ArchiveChat hides a session from the default listing.
func (h *ChatHandler) ArchiveChat(ctx context.Context, input *ArchiveChatInput) (*ArchiveChatOutput, error) {
	email, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.chatSvc.Archive(ctx, input.ID, email); err != nil {
		return nil, mapServiceError(err)
	}
	out := &ArchiveChatOutput{}
	out.Body.Archived = true
	return out, nil
}

// DeleteChatInput represents a delete request.
type DeleteChatInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// DeleteChatOutput represents a delete response.
type DeleteChatOutput struct {
	Body struct {
		Deleted bool `json:"deleted"`
	}
}

// DeleteChat permanently removes a session and its messages.
func (h *ChatHandler) DeleteChat(ctx context.Context, input *DeleteChatInput) (*DeleteChatOutput, error) {
	email, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.chatSvc.Delete(ctx, input.ID, email); err != nil {
		return nil, mapServiceError(err)
	}
	out := &DeleteChatOutput{}
	out.Body.Deleted = true
	return out, nil
}
