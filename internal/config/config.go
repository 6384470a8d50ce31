// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Legacy usage mirror (MongoDB). Empty URL disables the mirror.
	MongoURL      string
	MongoDatabase string

	// Authentication
	JWTSecret string

	// GuestHMACKey signs guest identities derived from client IPs so raw
	// addresses never reach storage. Derived from JWTSecret.
	GuestHMACKey []byte

	// ContentKey encrypts chat message content at rest. Derived from
	// JWTSecret with a separate HKDF label.
	ContentKey []byte

	// Provider credentials. A missing key disables the buckets served by
	// that backend.
	GroqAPIKey      string
	GroqBaseURL     string
	DeepseekAPIKey  string
	DeepseekBaseURL string
	GeminiAPIKey    string
	GeminiBaseURL   string
	OpenAIAPIKey    string
	OpenAIBaseURL   string

	// CORS
	CORSOrigins []string

	// Object Storage (S3-compatible) for runtime plan overrides
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string
	StorageRegion    string
	PlanSettingsKey  string // object key of the plan settings JSON

	// Shutdown
	ShutdownGracePeriod time.Duration
	// IdleTimeout stops the server after a quiet period for scale-to-zero
	// hosting. Zero disables idle shutdown.
	IdleTimeout time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present (local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:guidely.db?_journal=WAL&_timeout=5000"),

		MongoURL:      getEnv("MONGO_URL", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "guidely"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		GroqAPIKey:      getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:     getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		DeepseekAPIKey:  getEnv("DEEPSEEK_API_KEY", ""),
		DeepseekBaseURL: getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
		PlanSettingsKey:  getEnv("PLAN_SETTINGS_KEY", "config/plan-settings.json"),

		ShutdownGracePeriod: getEnvDuration("SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		IdleTimeout:         getEnvDuration("IDLE_TIMEOUT", 0),
	}

	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg.GuestHMACKey = deriveKey(cfg.JWTSecret,
		"guidely-api-guest-identity-v1", "hmac-sha256-guest-identity")
	cfg.ContentKey = deriveKey(cfg.JWTSecret,
		"guidely-api-content-v1", "aes-256-gcm-chat-content")

	return cfg, nil
}

// MirrorEnabled returns true if the legacy MongoDB usage mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.MongoURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}

// deriveKey creates a 32-byte key from the JWT secret using HKDF. The salt
// and info strings bind each derived key to a single purpose so one secret
// can safely back several of them.
func deriveKey(secret, salt, info string) []byte {
	hkdfReader := hkdf.New(sha256.New, []byte(secret), []byte(salt), []byte(info))

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		// This should never happen with valid inputs
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
