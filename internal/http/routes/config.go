// Package routes provides shared route registration for the Guidely API.
// Keeping registration in one place means the main server and the OpenAPI
// output always agree on the surface.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/guidely/guidely-api/internal/http/mw"
	"github.com/guidely/guidely-api/internal/version"
)

// NewHumaConfig creates the Huma configuration for the documented API.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Guidely API", version.Get().Short())
	cfg.Info.Description = "AI guide generation with plan-based model access, daily quotas, and chat sessions."

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:        "http",
			Scheme:      "bearer",
			Description: "JWT authentication. Include your session token in the Authorization header as `Bearer <token>`.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Generate", Description: "One-shot guide generation for users and guests"},
		{Name: "Chats", Description: "Chat session lifecycle and messaging"},
		{Name: "Usage", Description: "Daily usage, history, and exports"},
		{Name: "Plans", Description: "Plan tiers and model availability"},
		{Name: "Health", Description: "System health and status"},
	}

	return cfg
}

// NewUndocumentedConfig creates a Huma configuration with docs, OpenAPI, and
// schema routes disabled. Used for probe endpoints and for router groups whose
// operations are already described by the main API config.
func NewUndocumentedConfig() huma.Config {
	cfg := huma.DefaultConfig("Guidely API", version.Get().Short())
	cfg.DocsPath = ""
	cfg.OpenAPIPath = ""
	cfg.SchemasPath = ""
	return cfg
}
