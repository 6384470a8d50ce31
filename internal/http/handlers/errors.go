package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/guidely/guidely-api/internal/llm"
	"github.com/guidely/guidely-api/internal/repository"
	"github.com/guidely/guidely-api/internal/service"
)

// mapServiceError translates service and provider errors into huma status
// errors with user-facing messages. The distinction the UI depends on:
// plan denials are 403 (upgrade), quota and guest denials are 429 (wait or
// sign up), transient provider trouble is 429 with a Retry-After hint.
func mapServiceError(err error) error {
	if err == nil {
		return nil
	}

	var denial *service.DenialError
	if errors.As(err, &denial) {
		switch {
		case errors.Is(denial.Err, service.ErrAccessDenied):
			return huma.Error403Forbidden(denial.Message)
		case errors.Is(denial.Err, service.ErrQuotaExceeded),
			errors.Is(denial.Err, service.ErrGuestLimit):
			return huma.Error429TooManyRequests(denial.Message)
		}
	}

	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		if perr.IsTransient() {
			retryErr := huma.Error429TooManyRequests(perr.UserMessage)
			return huma.ErrorWithHeaders(retryErr, http.Header{
				"Retry-After": []string{fmt.Sprintf("%d", int(perr.RetryAfter.Seconds()))},
			})
		}
		return huma.Error502BadGateway(perr.UserMessage)
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, service.ErrExportCooldown):
		return huma.Error429TooManyRequests(err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return huma.Error404NotFound("not found")
	case errors.Is(err, service.ErrStorageUnavailable):
		return huma.Error503ServiceUnavailable("temporarily unavailable, please retry")
	case errors.Is(err, llm.ErrProviderNotConfigured):
		return huma.Error503ServiceUnavailable("model backend not configured")
	}

	return huma.Error500InternalServerError("internal error")
}
