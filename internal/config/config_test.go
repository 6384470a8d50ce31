package config

import (
	"bytes"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.GroqBaseURL == "" || cfg.DeepseekBaseURL == "" || cfg.GeminiBaseURL == "" {
		t.Error("provider base URLs should have defaults")
	}
	if cfg.MirrorEnabled() {
		t.Error("mirror should be disabled without MONGO_URL")
	}
	if cfg.StorageEnabled {
		t.Error("storage should be disabled without bucket and endpoint")
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Errorf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail without JWT_SECRET")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("MONGO_URL", "mongodb://localhost:27017")
	t.Setenv("CORS_ORIGINS", "https://app.example.com,https://staging.example.com")
	t.Setenv("AWS_ENDPOINT_URL_S3", "https://fly.storage.tigris.dev")
	t.Setenv("BUCKET_NAME", "guidely-config")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if !cfg.MirrorEnabled() {
		t.Error("mirror should be enabled with MONGO_URL set")
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v, want 2 entries", cfg.CORSOrigins)
	}
	if !cfg.StorageEnabled {
		t.Error("storage should be enabled with bucket and endpoint set")
	}
}

func TestKeyDerivation(t *testing.T) {
	guestA := deriveKey("secret-a", "guidely-api-guest-identity-v1", "hmac-sha256-guest-identity")
	guestB := deriveKey("secret-b", "guidely-api-guest-identity-v1", "hmac-sha256-guest-identity")
	contentA := deriveKey("secret-a", "guidely-api-content-v1", "aes-256-gcm-chat-content")

	if len(guestA) != 32 {
		t.Fatalf("key length = %d, want 32", len(guestA))
	}
	if bytes.Equal(guestA, guestB) {
		t.Error("different secrets must derive different keys")
	}
	if bytes.Equal(guestA, contentA) {
		t.Error("different purposes must derive different keys from one secret")
	}
	if !bytes.Equal(guestA, deriveKey("secret-a", "guidely-api-guest-identity-v1", "hmac-sha256-guest-identity")) {
		t.Error("derivation must be deterministic")
	}
}
