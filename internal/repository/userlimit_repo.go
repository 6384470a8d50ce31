package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/guidely/guidely-api/internal/models"
)

// SQLiteUserLimitRepository implements UserLimitRepository for SQLite/libsql.
// The guides document is stored as JSON; increments run read-modify-write in
// a transaction. The daily ledger stays authoritative for gating, so a lost
// race here only skews the legacy view.
type SQLiteUserLimitRepository struct {
	db *sql.DB
}

// NewSQLiteUserLimitRepository creates a new SQLite user limit repository.
func NewSQLiteUserLimitRepository(db *sql.DB) *SQLiteUserLimitRepository {
	return &SQLiteUserLimitRepository{db: db}
}

// Get returns the user's limits document. Users with no document yet get an
// empty one rather than ErrNotFound.
func (r *SQLiteUserLimitRepository) Get(ctx context.Context, userEmail string) (*models.UserLimits, error) {
	var guidesJSON string
	var lastExport sql.NullString
	var updatedAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT guides_json, last_export_at, updated_at
		FROM user_limits WHERE user_email = ?
	`, userEmail).Scan(&guidesJSON, &lastExport, &updatedAt)

	if err == sql.ErrNoRows {
		return &models.UserLimits{
			UserEmail: userEmail,
			Guides:    make(map[models.ModelBucket]int),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	limits := &models.UserLimits{
		UserEmail: userEmail,
		Guides:    make(map[models.ModelBucket]int),
	}
	if err := json.Unmarshal([]byte(guidesJSON), &limits.Guides); err != nil {
		return nil, err
	}
	if lastExport.Valid {
		if t, err := time.Parse(time.RFC3339, lastExport.String); err == nil {
			limits.LastExport = &t
		}
	}
	limits.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return limits, nil
}

// IncrementGuide bumps the lifetime counter for one bucket.
func (r *SQLiteUserLimitRepository) IncrementGuide(ctx context.Context, userEmail string, bucket models.ModelBucket) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	guides := make(map[models.ModelBucket]int)
	var guidesJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT guides_json FROM user_limits WHERE user_email = ?`, userEmail,
	).Scan(&guidesJSON)
	switch {
	case err == sql.ErrNoRows:
		// First write for this user
	case err != nil:
		return err
	default:
		if err := json.Unmarshal([]byte(guidesJSON), &guides); err != nil {
			return err
		}
	}

	guides[bucket]++
	updated, err := json.Marshal(guides)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_limits (user_email, guides_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_email) DO UPDATE SET
			guides_json = excluded.guides_json,
			updated_at = excluded.updated_at
	`, userEmail, string(updated), now); err != nil {
		return err
	}

	return tx.Commit()
}

// SetLastExport records when the user last ran an export.
func (r *SQLiteUserLimitRepository) SetLastExport(ctx context.Context, userEmail string, at time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_limits (user_email, guides_json, last_export_at, updated_at)
		VALUES (?, '{}', ?, ?)
		ON CONFLICT(user_email) DO UPDATE SET
			last_export_at = excluded.last_export_at,
			updated_at = excluded.updated_at
	`, userEmail, at.UTC().Format(time.RFC3339), now)
	return err
}
