// Package service contains the business logic layer.
// Note: user accounts, OAuth, and subscription billing are handled
// externally; services see the authenticated email and plan tier claims.
package service

import (
	"log/slog"

	"github.com/guidely/guidely-api/internal/config"
	"github.com/guidely/guidely-api/internal/llm"
	"github.com/guidely/guidely-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Access   *AccessService
	Guest    *GuestService
	Chat     *ChatService
	Generate *GenerateService
	Usage    *UsageService
}

// NewServices creates all service instances. The mirror may be nil when no
// legacy store is configured; services fall back to a no-op mirror.
func NewServices(cfg *config.Config, repos *repository.Repositories, mirror repository.LegacyMirror, completer llm.Completer, logger *slog.Logger) *Services {
	accessSvc := NewAccessService(repos, mirror, logger)
	guestSvc := NewGuestService(repos, cfg.GuestHMACKey, logger)
	chatSvc := NewChatService(repos, accessSvc, completer, logger)
	generateSvc := NewGenerateService(accessSvc, guestSvc, completer, logger)
	usageSvc := NewUsageService(repos, mirror, accessSvc, logger)

	return &Services{
		Access:   accessSvc,
		Guest:    guestSvc,
		Chat:     chatSvc,
		Generate: generateSvc,
		Usage:    usageSvc,
	}
}
