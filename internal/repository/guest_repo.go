package repository

import (
	"context"
	"database/sql"
	"time"
)

// SQLiteGuestRepository implements GuestRepository for SQLite/libsql.
type SQLiteGuestRepository struct {
	db *sql.DB
}

// NewSQLiteGuestRepository creates a new SQLite guest repository.
func NewSQLiteGuestRepository(db *sql.DB) *SQLiteGuestRepository {
	return &SQLiteGuestRepository{db: db}
}

// Count returns the lifetime guide count for an identity. Unknown
// identities count as zero.
func (r *SQLiteGuestRepository) Count(ctx context.Context, identity string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT guides FROM guest_counters WHERE identity = ?`, identity,
	).Scan(&count)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Increment adds one guide to the identity's lifetime count and returns the
// new total. The upsert-then-read runs in a transaction so concurrent
// guests sharing an identity never lose a count.
func (r *SQLiteGuestRepository) Increment(ctx context.Context, identity string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO guest_counters (identity, guides, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			guides = guides + 1,
			updated_at = excluded.updated_at
	`, identity, now, now); err != nil {
		return 0, err
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT guides FROM guest_counters WHERE identity = ?`, identity,
	).Scan(&count); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}
