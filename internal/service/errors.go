package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/guidely/guidely-api/internal/llm"
	"github.com/guidely/guidely-api/internal/models"
)

// Sentinel errors for gating decisions. Handlers map these to HTTP status
// codes; services attach user-facing context via DenialError.
var (
	// ErrAccessDenied indicates the plan's allow-list does not include the
	// requested model. Independent of usage counters.
	ErrAccessDenied = errors.New("model not included in plan")
	// ErrQuotaExceeded indicates the daily quota for the bucket is used up.
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	// ErrGuestLimit indicates an anonymous caller exhausted the lifetime
	// guest allowance.
	ErrGuestLimit = errors.New("guest limit reached")
	// ErrStorageUnavailable indicates the usage ledger could not be read or
	// written. Gating fails closed on this error.
	ErrStorageUnavailable = errors.New("usage storage unavailable")
	// ErrValidation indicates the request failed boundary validation.
	ErrValidation = errors.New("validation failed")
	// ErrExportCooldown indicates the user exported too recently.
	ErrExportCooldown = errors.New("export cooldown active")
)

// DenialError wraps a gating sentinel with the context needed to render a
// useful denial: which tier and bucket were checked, the numeric limit when
// one applies, and a ready-to-display message.
type DenialError struct {
	Err     error
	Tier    string
	Bucket  models.ModelBucket
	Limit   int
	Message string
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("%v: tier=%s bucket=%s", e.Err, e.Tier, e.Bucket)
}

func (e *DenialError) Unwrap() error {
	return e.Err
}

// validationError builds an ErrValidation with a caller-facing message.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// unknownModelError rejects an unresolvable model name and lists what the
// caller could have asked for.
func unknownModelError(name string) error {
	return validationError("unknown model %q, valid models: %s", name, strings.Join(llm.ValidNames(), ", "))
}
