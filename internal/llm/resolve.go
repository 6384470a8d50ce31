// Package llm resolves public model names to provider backends and talks to
// the completion APIs.
package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/guidely/guidely-api/internal/models"
)

// ErrUnknownModel is returned when a requested model name does not resolve
// to any bucket.
var ErrUnknownModel = errors.New("unknown model")

// Resolution is the outcome of mapping a public model name.
type Resolution struct {
	// Bucket is the quota bucket the request is charged against.
	Bucket models.ModelBucket

	// ProviderModelID is the model identifier sent to the provider API.
	ProviderModelID string

	// Provider is the backend that serves this bucket.
	Provider string

	// SupportsImages is true when the bucket accepts image attachments.
	SupportsImages bool

	// GeneratesImages is true when completions are image generations rather
	// than text.
	GeneratesImages bool
}

// Provider names.
const (
	ProviderGroq     = "groq"
	ProviderGemini   = "gemini"
	ProviderDeepseek = "deepseek"
	ProviderOpenAI   = "openai"
)

// bucketBackends maps each bucket to its serving backend. Every bucket in
// models.AllBuckets must have an entry here.
var bucketBackends = map[models.ModelBucket]Resolution{
	models.BucketLlama: {
		Bucket:          models.BucketLlama,
		ProviderModelID: "llama-3.3-70b-versatile",
		Provider:        ProviderGroq,
	},
	models.BucketGemini: {
		Bucket:          models.BucketGemini,
		ProviderModelID: "gemini-2.0-flash",
		Provider:        ProviderGemini,
		SupportsImages:  true,
	},
	models.BucketDeepseek: {
		Bucket:          models.BucketDeepseek,
		ProviderModelID: "deepseek-chat",
		Provider:        ProviderDeepseek,
	},
	models.BucketGPT41: {
		Bucket:          models.BucketGPT41,
		ProviderModelID: "gpt-4.1",
		Provider:        ProviderOpenAI,
		SupportsImages:  true,
	},
	models.BucketGPT41Mini: {
		Bucket:          models.BucketGPT41Mini,
		ProviderModelID: "gpt-4.1-mini",
		Provider:        ProviderOpenAI,
		SupportsImages:  true,
	},
	models.BucketO3Mini: {
		Bucket:          models.BucketO3Mini,
		ProviderModelID: "o3-mini",
		Provider:        ProviderOpenAI,
	},
	models.BucketOSSLarge: {
		Bucket:          models.BucketOSSLarge,
		ProviderModelID: "openai/gpt-oss-120b",
		Provider:        ProviderGroq,
	},
	models.BucketNanoBanana: {
		Bucket:          models.BucketNanoBanana,
		ProviderModelID: "gemini-2.5-flash-image-preview",
		Provider:        ProviderGemini,
		SupportsImages:  true,
		GeneratesImages: true,
	},
}

// aliases maps legacy and marketing model names onto buckets. Canonical
// bucket names resolve without an entry here.
var aliases = map[string]models.ModelBucket{
	"kimi":     models.BucketOSSLarge,
	"kimi0905": models.BucketOSSLarge,
	"qwen32b":  models.BucketLlama,
}

// Resolve maps a public model name to its bucket and provider backend.
// Matching is case-insensitive and ignores surrounding whitespace. Unknown
// names return an error wrapping ErrUnknownModel; nothing guesses a default.
func Resolve(name string) (Resolution, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Resolution{}, fmt.Errorf("%w: empty model name", ErrUnknownModel)
	}

	bucket := models.ModelBucket(key)
	if alias, ok := aliases[key]; ok {
		bucket = alias
	}

	res, ok := bucketBackends[bucket]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return res, nil
}

// ResolveBucket returns the backend for an already-validated bucket.
func ResolveBucket(bucket models.ModelBucket) (Resolution, error) {
	res, ok := bucketBackends[bucket]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownModel, bucket)
	}
	return res, nil
}

// ValidNames returns every accepted model name, canonical buckets first,
// then aliases, each group sorted.
func ValidNames() []string {
	canonical := make([]string, 0, len(bucketBackends))
	for bucket := range bucketBackends {
		canonical = append(canonical, string(bucket))
	}
	sort.Strings(canonical)

	extra := make([]string, 0, len(aliases))
	for name := range aliases {
		extra = append(extra, name)
	}
	sort.Strings(extra)

	return append(canonical, extra...)
}
