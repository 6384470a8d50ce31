// Package models defines the domain models for the application.
// Note: user accounts, authentication, and subscription billing are handled
// externally; UserEmail fields reference the authenticated user's email claim.
package models

import (
	"time"
)

// ModelBucket is the unit of quota accounting. Several client-facing model
// aliases map into one bucket, so quota arithmetic is always done on the
// bucket, never on the raw alias.
type ModelBucket string

const (
	BucketLlama      ModelBucket = "llama"
	BucketGemini     ModelBucket = "gemini"
	BucketDeepseek   ModelBucket = "deepseek"
	BucketGPT41      ModelBucket = "gpt41"
	BucketGPT41Mini  ModelBucket = "gpt41mini"
	BucketO3Mini     ModelBucket = "o3mini"
	BucketOSSLarge   ModelBucket = "osslarge"
	BucketNanoBanana ModelBucket = "nanobanana"
)

// AllBuckets lists every bucket in the closed set. Quota tables and
// exhaustiveness checks iterate this; keep it in sync with the constants.
var AllBuckets = []ModelBucket{
	BucketLlama,
	BucketGemini,
	BucketDeepseek,
	BucketGPT41,
	BucketGPT41Mini,
	BucketO3Mini,
	BucketOSSLarge,
	BucketNanoBanana,
}

// Valid reports whether b is a member of the closed bucket set.
func (b ModelBucket) Valid() bool {
	for _, known := range AllBuckets {
		if b == known {
			return true
		}
	}
	return false
}

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ValidRole reports whether r is one of the accepted message roles.
func ValidRole(r MessageRole) bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// MessageImage is an inline image attached to a chat message.
// The mime type must be image/*; the boundary enforces both the mime
// constraint and the per-message image count so oversized payloads never
// reach the session store.
type MessageImage struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64-encoded payload or remote URL
}

// ChatMessage is a single message within a chat session. Messages are
// append-only; they are never edited or removed while the session exists.
type ChatMessage struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Model     ModelBucket    `json:"model,omitempty"` // bucket that produced an assistant message
	Images    []MessageImage `json:"images,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// DefaultSessionTitle is the title a session carries until the first
// message (or the auto-title pass) replaces it.
const DefaultSessionTitle = "New chat"

// ChatSession is a persisted multi-turn conversation bound to one user and
// one active bucket at a time. The Model field only changes through an
// explicit, re-authorized switch.
type ChatSession struct {
	ID        string        `json:"id"`
	UserEmail string        `json:"user_email"`
	Title     string        `json:"title"`
	Model     ModelBucket   `json:"model"`
	Archived  bool          `json:"archived"`
	Messages  []ChatMessage `json:"messages,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// UsageRecord is one row of the usage ledger: counters for a single
// (user, bucket, UTC calendar day) triple. Counters only ever increase
// within a day, and a past day's record is never mutated.
type UsageRecord struct {
	UserEmail        string      `json:"user_email"`
	Bucket           ModelBucket `json:"bucket"`
	Date             string      `json:"date"` // YYYY-MM-DD, UTC
	Requests         int         `json:"requests"`
	TextRequests     int         `json:"text_requests"`
	ImageGenerations int         `json:"image_generations"`
	Tokens           int         `json:"tokens"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// UsageDelta is an additive increment applied to the ledger. Zero fields
// are no-ops; negative values are rejected at the repository layer.
type UsageDelta struct {
	Requests         int
	TextRequests     int
	ImageGenerations int
	Tokens           int
}

// IsZero reports whether the delta would change nothing.
func (d UsageDelta) IsZero() bool {
	return d.Requests == 0 && d.TextRequests == 0 && d.ImageGenerations == 0 && d.Tokens == 0
}

// BucketUsage summarizes one bucket's consumption for a single day.
type BucketUsage struct {
	Requests         int `json:"requests"`
	TextRequests     int `json:"text_requests"`
	ImageGenerations int `json:"image_generations"`
	Tokens           int `json:"tokens"`
}

// DailyUsage is one day of a usage history, keyed by bucket. Days with no
// activity still appear with an empty Buckets map so history consumers
// never have to special-case gaps.
type DailyUsage struct {
	Date    string                      `json:"date"` // YYYY-MM-DD, UTC
	Buckets map[ModelBucket]BucketUsage `json:"buckets"`
}

// UserLimits is the legacy per-user limits document: lifetime per-bucket
// guide counters plus the last export timestamp. The daily ledger is
// authoritative for gating; this document is maintained as a
// migration-compatible derived view.
type UserLimits struct {
	UserEmail  string              `json:"user_email"`
	Guides     map[ModelBucket]int `json:"guides"`
	LastExport *time.Time          `json:"last_export,omitempty"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// GuestCounter tracks a guest identity's lifetime guide count. There is no
// calendar rollover: the cap is a lifetime ceiling, which is the anti-abuse
// mechanism for anonymous traffic.
type GuestCounter struct {
	Identity  string    `json:"identity"` // HMAC of the client network address
	Guides    int       `json:"guides"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenUsage is the token accounting returned by a provider completion.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}
