package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/guidely/guidely-api/internal/http/handlers"
	"github.com/guidely/guidely-api/internal/http/mw"
)

// Handlers collects the handler implementations the route table needs.
type Handlers struct {
	Readyz   *handlers.ReadyzHandler
	Generate *handlers.GenerateHandler
	Chat     *handlers.ChatHandler
	Usage    *handlers.UsageHandler
}

// RegisterPublic registers routes that need no authentication at all.
func RegisterPublic(api huma.API, h *Handlers) {
	mw.PublicGet(api, "/api/v1/health", handlers.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	mw.PublicGet(api, "/api/v1/plans", handlers.ListPlans,
		mw.WithTags("Plans"),
		mw.WithSummary("List plan tiers"),
		mw.WithDescription("Returns every plan with its daily quotas per model bucket and feature flags, plus the model names the API accepts."),
		mw.WithOperationID("listPlans"))
}

// RegisterHidden registers Kubernetes probe routes, kept out of the docs.
func RegisterHidden(api huma.API, h *Handlers) {
	mw.HiddenGet(api, "/healthz", handlers.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz.Readyz)
}

// RegisterGenerate registers routes served under optional auth: signed-in
// users are metered against their plan, anonymous callers against the guest
// lifetime allowance.
func RegisterGenerate(api huma.API, h *Handlers) {
	mw.PublicPost(api, "/api/v1/generate", h.Generate.Generate,
		mw.WithTags("Generate"),
		mw.WithSummary("Generate a guide"),
		mw.WithDescription("Generates a one-shot guide. Works without a token; anonymous callers draw from a small lifetime allowance on entry-level models."),
		mw.WithOperationID("generate"))

	mw.PublicGet(api, "/api/v1/guest/status", h.Generate.GuestStatus,
		mw.WithTags("Generate"),
		mw.WithSummary("Guest allowance status"),
		mw.WithOperationID("guestStatus"))
}

// RegisterProtected registers routes that require a bearer token.
func RegisterProtected(api huma.API, h *Handlers) {
	// Chat sessions
	mw.ProtectedPost(api, "/api/v1/chats", h.Chat.CreateChat,
		mw.WithTags("Chats"),
		mw.WithSummary("Create chat session"),
		mw.WithOperationID("createChat"))
	mw.ProtectedGet(api, "/api/v1/chats", h.Chat.ListChats,
		mw.WithTags("Chats"),
		mw.WithSummary("List chat sessions"),
		mw.WithOperationID("listChats"))
	mw.ProtectedGet(api, "/api/v1/chats/{id}", h.Chat.GetChat,
		mw.WithTags("Chats"),
		mw.WithSummary("Get chat session with messages"),
		mw.WithOperationID("getChat"))
	mw.ProtectedPost(api, "/api/v1/chats/{id}/messages", h.Chat.SendMessage,
		mw.WithTags("Chats"),
		mw.WithSummary("Send a message"),
		mw.WithOperationID("sendMessage"))
	mw.ProtectedPut(api, "/api/v1/chats/{id}/model", h.Chat.SwitchModel,
		mw.WithTags("Chats"),
		mw.WithSummary("Switch session model"),
		mw.WithOperationID("switchModel"))
	mw.ProtectedPost(api, "/api/v1/chats/{id}/archive", h.Chat.ArchiveChat,
		mw.WithTags("Chats"),
		mw.WithSummary("Archive chat session"),
		mw.WithOperationID("archiveChat"))
	mw.ProtectedDelete(api, "/api/v1/chats/{id}", h.Chat.DeleteChat,
		mw.WithTags("Chats"),
		mw.WithSummary("Delete chat session"),
		mw.WithOperationID("deleteChat"))

	// Usage
	mw.ProtectedGet(api, "/api/v1/usage", h.Usage.GetUsage,
		mw.WithTags("Usage"),
		mw.WithSummary("Get today's usage"),
		mw.WithOperationID("getUsage"))
	mw.ProtectedGet(api, "/api/v1/usage/history", h.Usage.GetHistory,
		mw.WithTags("Usage"),
		mw.WithSummary("Get usage history"),
		mw.WithOperationID("getUsageHistory"))
	mw.ProtectedGet(api, "/api/v1/usage/export", h.Usage.ExportUsage,
		mw.WithTags("Usage"),
		mw.WithSummary("Export usage"),
		mw.WithDescription("Full usage dump for the last 90 days. Rate-limited per plan by a cooldown between exports."),
		mw.WithOperationID("exportUsage"))
}
