package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/guidely/guidely-api/internal/auth"
)

func newTestVerifier() *auth.Verifier {
	return auth.NewVerifier("test-secret-at-least-32-chars-long!!")
}

func claimsProbe(t *testing.T, got **UserClaims) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = GetUserClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	verifier := newTestVerifier()
	token, err := verifier.IssueToken("alice@example.com", "pro", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	t.Run("valid token passes claims through", func(t *testing.T) {
		var got *UserClaims
		handler := Auth(verifier)(claimsProbe(t, &got))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got == nil || got.Email != "alice@example.com" || got.Tier != "pro" {
			t.Errorf("claims = %+v", got)
		}
	})

	t.Run("missing header rejected", func(t *testing.T) {
		var got *UserClaims
		handler := Auth(verifier)(claimsProbe(t, &got))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		var got *UserClaims
		handler := Auth(verifier)(claimsProbe(t, &got))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestOptionalAuth(t *testing.T) {
	verifier := newTestVerifier()

	t.Run("no header passes through as guest", func(t *testing.T) {
		var got *UserClaims
		handler := OptionalAuth(verifier)(claimsProbe(t, &got))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got != nil {
			t.Errorf("claims = %+v, want nil for guest", got)
		}
	})

	t.Run("invalid token still rejected", func(t *testing.T) {
		// A bad token must not silently demote the caller to guest: that
		// would hand an expired session the guest allowance.
		var got *UserClaims
		handler := OptionalAuth(verifier)(claimsProbe(t, &got))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil)
		req.Header.Set("Authorization", "Bearer expired-garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{"ipv4 with port", "203.0.113.7:52168", "203.0.113.7"},
		{"ipv4 without port", "203.0.113.7", "203.0.113.7"},
		{"ipv6 with brackets", "[2001:db8::1]:443", "2001:db8::1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			handler := ClientIP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetClientIP(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if got != tc.want {
				t.Errorf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}
