package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/guidely/guidely-api/internal/constants"
)

// Error categories for provider failures.
var (
	// ErrProviderOverloaded indicates the backend is rate limited or
	// temporarily unavailable; the caller may retry after a delay.
	ErrProviderOverloaded = errors.New("provider overloaded")

	// ErrProviderError indicates a non-retryable provider failure.
	ErrProviderError = errors.New("provider error")

	// ErrInvalidAPIKey indicates the configured provider key was rejected.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrContentTooLong indicates the prompt exceeded the model's context.
	ErrContentTooLong = errors.New("content too long")

	// ErrEmptyCompletion indicates the provider returned no choices.
	ErrEmptyCompletion = errors.New("empty completion")
)

// ProviderError is a classified error from a completion backend.
type ProviderError struct {
	// Original error from the client library.
	Err error

	// HTTP status code from the provider, if known.
	StatusCode int

	// Provider and model that were being used.
	Provider string
	Model    string

	// User-facing message.
	UserMessage string

	// Raw error text for logs.
	RawMessage string

	// Category for classification (rate_limit, provider_error, invalid_key,
	// content_too_long, timeout, unknown).
	Category string

	// Retryable is true when the same request may succeed later.
	Retryable bool

	// RetryAfter is the suggested client backoff for retryable errors.
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown provider error"
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the failure is a temporary backend condition
// rather than a permanent one.
func (e *ProviderError) IsTransient() bool {
	return e.Retryable
}

// ClassifyError turns a raw client error into a ProviderError. It understands
// go-openai's APIError status codes and falls back to message sniffing for
// wrapped transport errors.
func ClassifyError(err error, provider, model string) *ProviderError {
	if err == nil {
		return nil
	}

	var existing *ProviderError
	if errors.As(err, &existing) {
		return existing
	}

	perr := &ProviderError{
		Err:        err,
		Provider:   provider,
		Model:      model,
		RawMessage: err.Error(),
		// openai.APIError carries no response headers, so the provider's
		// own Retry-After is unavailable here.
		RetryAfter: constants.ProviderRetryAfterFallback,
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr.StatusCode = apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		perr.StatusCode = reqErr.HTTPStatusCode
	}

	switch perr.StatusCode {
	case http.StatusTooManyRequests:
		perr.Err = ErrProviderOverloaded
		perr.Category = "rate_limit"
		perr.UserMessage = "The model is receiving too many requests right now. Please try again in a moment."
		perr.Retryable = true
		return perr

	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		perr.Err = ErrProviderOverloaded
		perr.Category = "provider_error"
		perr.UserMessage = "The model is temporarily unavailable. Please try again shortly."
		perr.Retryable = true
		return perr

	case http.StatusUnauthorized, http.StatusForbidden:
		perr.Err = ErrInvalidAPIKey
		perr.Category = "invalid_key"
		perr.UserMessage = "The model backend rejected our credentials. Please try a different model."
		perr.Retryable = false
		return perr
	}

	return classifyByMessage(perr, strings.ToLower(err.Error()))
}

func classifyByMessage(perr *ProviderError, errStr string) *ProviderError {
	switch {
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "ratelimit"):
		perr.Err = ErrProviderOverloaded
		perr.Category = "rate_limit"
		perr.UserMessage = "The model is receiving too many requests right now. Please try again in a moment."
		perr.Retryable = true

	case strings.Contains(errStr, "overloaded") || strings.Contains(errStr, "capacity"):
		perr.Err = ErrProviderOverloaded
		perr.Category = "provider_error"
		perr.UserMessage = "The model is under heavy load. Please try again shortly."
		perr.Retryable = true

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") ||
		errors.Is(perr.Err, context.DeadlineExceeded):
		perr.Err = ErrProviderOverloaded
		perr.Category = "timeout"
		perr.UserMessage = "The model took too long to respond. Please try again."
		perr.Retryable = true

	case strings.Contains(errStr, "context") && strings.Contains(errStr, "length"):
		perr.Err = ErrContentTooLong
		perr.Category = "content_too_long"
		perr.UserMessage = "The conversation is too long for this model. Start a new chat or switch to a model with a larger context."
		perr.Retryable = false

	case strings.Contains(errStr, "invalid api key") || strings.Contains(errStr, "authentication"):
		perr.Err = ErrInvalidAPIKey
		perr.Category = "invalid_key"
		perr.UserMessage = "The model backend rejected our credentials. Please try a different model."
		perr.Retryable = false

	default:
		perr.Err = ErrProviderError
		perr.Category = "unknown"
		perr.UserMessage = fmt.Sprintf("The %s backend returned an error. Please try again.", perr.Provider)
		perr.Retryable = false
	}

	return perr
}

// IsTransient reports whether err is a retryable provider condition.
func IsTransient(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return false
}

// RetryAfter returns the backoff hint for a transient error, or zero.
func RetryAfter(err error) time.Duration {
	var perr *ProviderError
	if errors.As(err, &perr) && perr.Retryable {
		return perr.RetryAfter
	}
	return 0
}

// UserMessage returns the user-facing text for a provider error.
func UserMessage(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.UserMessage
	}
	return "An unexpected error occurred. Please try again."
}
