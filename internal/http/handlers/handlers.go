// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/guidely/guidely-api/internal/constants"
	"github.com/guidely/guidely-api/internal/http/mw"
	"github.com/guidely/guidely-api/internal/version"
)

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Short()
	return out, nil
}

// LivezOutput represents the liveness probe response.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez is the liveness probe: the process is up.
func Livez(ctx context.Context, input *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// ReadyzOutput represents the readiness probe response.
type ReadyzOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// ReadyzHandler holds the database handle for readiness checks.
type ReadyzHandler struct {
	db *sql.DB
}

// NewReadyzHandler creates a new readiness probe handler.
func NewReadyzHandler(db *sql.DB) *ReadyzHandler {
	return &ReadyzHandler{db: db}
}

// Readyz is the readiness probe: the process can reach its database.
func (h *ReadyzHandler) Readyz(ctx context.Context, input *struct{}) (*ReadyzOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("database not configured")
	}
	if err := h.db.PingContext(ctx); err != nil {
		return nil, huma.Error503ServiceUnavailable("database unreachable")
	}
	out := &ReadyzOutput{}
	out.Body.Status = "ready"
	return out, nil
}

// errMissingClaims covers handlers reached without the auth middleware.
var errMissingClaims = errors.New("no user claims in context")

// getUserClaims extracts user claims from context.
func getUserClaims(ctx context.Context) *mw.UserClaims {
	return mw.GetUserClaims(ctx)
}

// requireUser returns the caller's email and tier, or an error for the 401
// nobody should normally hit past the middleware.
func requireUser(ctx context.Context) (email, tier string, err error) {
	claims := mw.GetUserClaims(ctx)
	if claims == nil || claims.Email == "" {
		return "", "", huma.Error401Unauthorized("unauthorized", errMissingClaims)
	}
	tier = claims.Tier
	if tier == "" {
		tier = constants.TierFree
	}
	return claims.Email, tier, nil
}
