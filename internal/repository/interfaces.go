// Package repository defines repository interfaces for data access.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/guidely/guidely-api/internal/crypto"
	"github.com/guidely/guidely-api/internal/models"
)

// ErrNotFound is returned when a requested row does not exist or is not
// visible to the requesting user. Ownership mismatches deliberately look
// identical to missing rows.
var ErrNotFound = errors.New("not found")

// UsageRepository is the daily usage ledger. It is the authoritative source
// for quota gating.
type UsageRepository interface {
	// Increment applies a delta to the (user, bucket, date) row, creating it
	// if needed. The increment is a single atomic statement.
	Increment(ctx context.Context, userEmail string, bucket models.ModelBucket, date string, delta models.UsageDelta) error
	// BucketCount returns the request count for one bucket on one day.
	// Missing rows count as zero.
	BucketCount(ctx context.Context, userEmail string, bucket models.ModelBucket, date string) (int, error)
	// GetDaily returns all bucket counters for one day.
	GetDaily(ctx context.Context, userEmail string, date string) (*models.DailyUsage, error)
	// GetHistory returns one entry per day in [startDate, endDate], oldest
	// first. Days without activity appear with an empty bucket map.
	GetHistory(ctx context.Context, userEmail string, startDate, endDate string) ([]models.DailyUsage, error)
}

// UserLimitRepository maintains the legacy per-user totals document.
type UserLimitRepository interface {
	Get(ctx context.Context, userEmail string) (*models.UserLimits, error)
	// IncrementGuide bumps the lifetime counter for one bucket.
	IncrementGuide(ctx context.Context, userEmail string, bucket models.ModelBucket) error
	// SetLastExport records when the user last ran an export.
	SetLastExport(ctx context.Context, userEmail string, at time.Time) error
}

// GuestRepository tracks lifetime guide counts for anonymous identities.
type GuestRepository interface {
	Count(ctx context.Context, identity string) (int, error)
	// Increment adds one guide to the identity's lifetime count and returns
	// the new total.
	Increment(ctx context.Context, identity string) (int, error)
}

// SessionRepository stores chat sessions and their messages. All reads and
// writes are scoped to the owning user.
type SessionRepository interface {
	Create(ctx context.Context, session *models.ChatSession) error
	// GetByID returns the session with its messages, or ErrNotFound when it
	// does not exist or belongs to another user.
	GetByID(ctx context.Context, id, userEmail string) (*models.ChatSession, error)
	// List returns the user's sessions without messages, most recently
	// updated first.
	List(ctx context.Context, userEmail string, includeArchived bool, limit, offset int) ([]*models.ChatSession, error)
	AppendMessage(ctx context.Context, userEmail string, msg *models.ChatMessage) error
	// UpdateTitle sets the title only while the session still carries the
	// placeholder title, making retitling idempotent.
	UpdateTitle(ctx context.Context, id, userEmail, title string) error
	UpdateModel(ctx context.Context, id, userEmail string, bucket models.ModelBucket) error
	SetArchived(ctx context.Context, id, userEmail string, archived bool) error
	Delete(ctx context.Context, id, userEmail string) error
}

// Repositories holds all repository instances.
type Repositories struct {
	Usage     UsageRepository
	UserLimit UserLimitRepository
	Guest     GuestRepository
	Session   SessionRepository
}

// NewRepositories creates all repository instances. A nil encryptor stores
// chat content in plaintext.
func NewRepositories(db *sql.DB, enc *crypto.Encryptor) *Repositories {
	return &Repositories{
		Usage:     NewSQLiteUsageRepository(db),
		UserLimit: NewSQLiteUserLimitRepository(db),
		Guest:     NewSQLiteGuestRepository(db),
		Session:   NewSQLiteSessionRepository(db, enc),
	}
}
