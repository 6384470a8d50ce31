// Package mw contains HTTP middleware for the guidely-api.
package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/guidely/guidely-api/internal/auth"
	"github.com/guidely/guidely-api/internal/logging"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserClaimsKey is the context key for user claims.
	UserClaimsKey ContextKey = "user_claims"
	// ClientIPKey is the context key for the resolved client address.
	ClientIPKey ContextKey = "client_ip"
)

// UserClaims is the authenticated identity a handler sees: the email claim
// and the plan tier, already normalized by the verifier.
type UserClaims struct {
	Email string
	Tier  string
}

// Auth returns middleware that requires a valid bearer token. The verified
// claims land in the request context and the user id joins the log context
// for request tracing.
func Auth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := claimsFromHeader(verifier, r)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			ctx := withClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth returns middleware for endpoints that serve both users and
// guests. A missing Authorization header passes through as a guest; a
// present but invalid one is still rejected rather than silently demoted.
func OptionalAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := claimsFromHeader(verifier, r)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// ClientIP returns middleware that stashes the client address in the
// context so huma handlers, which never see the raw request, can derive
// guest identities. Must run after chi's RealIP.
func ClientIP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if i := strings.LastIndex(ip, ":"); i > 0 && !strings.HasSuffix(ip, "]") {
				ip = ip[:i]
			}
			ip = strings.Trim(ip, "[]")
			ctx := context.WithValue(r.Context(), ClientIPKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserClaims extracts user claims from context, nil for guests.
func GetUserClaims(ctx context.Context) *UserClaims {
	claims, _ := ctx.Value(UserClaimsKey).(*UserClaims)
	return claims
}

// GetClientIP extracts the resolved client address from context.
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ClientIPKey).(string)
	return ip
}

func claimsFromHeader(verifier *auth.Verifier, r *http.Request) (*UserClaims, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	verified, err := verifier.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	return &UserClaims{
		Email: verified.Email,
		Tier:  verified.GetTier(),
	}, nil
}

func withClaims(ctx context.Context, claims *UserClaims) context.Context {
	ctx = context.WithValue(ctx, UserClaimsKey, claims)
	// Attach the user to the log context for filtering; never printed.
	return logging.WithUserID(ctx, claims.Email)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid or missing token"}`))
}
