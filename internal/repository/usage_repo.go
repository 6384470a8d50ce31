package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guidely/guidely-api/internal/models"
)

// SQLiteUsageRepository implements UsageRepository for SQLite/libsql.
type SQLiteUsageRepository struct {
	db *sql.DB
}

// NewSQLiteUsageRepository creates a new SQLite usage repository.
func NewSQLiteUsageRepository(db *sql.DB) *SQLiteUsageRepository {
	return &SQLiteUsageRepository{db: db}
}

// Increment applies a delta to the ledger row for (user, bucket, date).
// The upsert runs as one statement so concurrent requests cannot lose
// increments.
func (r *SQLiteUsageRepository) Increment(ctx context.Context, userEmail string, bucket models.ModelBucket, date string, delta models.UsageDelta) error {
	if delta.Requests < 0 || delta.TextRequests < 0 || delta.ImageGenerations < 0 || delta.Tokens < 0 {
		return fmt.Errorf("usage delta must not be negative: %+v", delta)
	}
	if delta.IsZero() {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_records (
			user_email, bucket, date,
			requests, text_requests, image_generations, tokens,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_email, bucket, date) DO UPDATE SET
			requests = requests + excluded.requests,
			text_requests = text_requests + excluded.text_requests,
			image_generations = image_generations + excluded.image_generations,
			tokens = tokens + excluded.tokens,
			updated_at = excluded.updated_at
	`,
		userEmail, string(bucket), date,
		delta.Requests, delta.TextRequests, delta.ImageGenerations, delta.Tokens,
		now, now,
	)
	return err
}

// BucketCount returns the request count for one bucket on one day.
func (r *SQLiteUsageRepository) BucketCount(ctx context.Context, userEmail string, bucket models.ModelBucket, date string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT requests FROM usage_records
		WHERE user_email = ? AND bucket = ? AND date = ?
	`, userEmail, string(bucket), date).Scan(&count)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetDaily returns all bucket counters for one day.
func (r *SQLiteUsageRepository) GetDaily(ctx context.Context, userEmail string, date string) (*models.DailyUsage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT bucket, requests, text_requests, image_generations, tokens
		FROM usage_records
		WHERE user_email = ? AND date = ?
	`, userEmail, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	daily := &models.DailyUsage{
		Date:    date,
		Buckets: make(map[models.ModelBucket]models.BucketUsage),
	}
	for rows.Next() {
		var bucket string
		var u models.BucketUsage
		if err := rows.Scan(&bucket, &u.Requests, &u.TextRequests, &u.ImageGenerations, &u.Tokens); err != nil {
			return nil, err
		}
		daily.Buckets[models.ModelBucket(bucket)] = u
	}
	return daily, rows.Err()
}

// GetHistory returns one entry per day in [startDate, endDate], oldest
// first, with quiet days filled in as empty maps.
func (r *SQLiteUsageRepository) GetHistory(ctx context.Context, userEmail string, startDate, endDate string) ([]models.DailyUsage, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s", endDate, startDate)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT date, bucket, requests, text_requests, image_generations, tokens
		FROM usage_records
		WHERE user_email = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, userEmail, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDate := make(map[string]map[models.ModelBucket]models.BucketUsage)
	for rows.Next() {
		var date, bucket string
		var u models.BucketUsage
		if err := rows.Scan(&date, &bucket, &u.Requests, &u.TextRequests, &u.ImageGenerations, &u.Tokens); err != nil {
			return nil, err
		}
		if byDate[date] == nil {
			byDate[date] = make(map[models.ModelBucket]models.BucketUsage)
		}
		byDate[date][models.ModelBucket(bucket)] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var history []models.DailyUsage
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format("2006-01-02")
		buckets := byDate[date]
		if buckets == nil {
			buckets = make(map[models.ModelBucket]models.BucketUsage)
		}
		history = append(history, models.DailyUsage{Date: date, Buckets: buckets})
	}
	return history, nil
}

// PruneBefore deletes ledger rows with a date strictly before the cutoff
// (inclusive dates use YYYY-MM-DD, so string comparison orders correctly).
// Used by the retention worker; not part of UsageRepository.
func (r *SQLiteUsageRepository) PruneBefore(ctx context.Context, cutoffDate string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM usage_records WHERE date < ?`, cutoffDate,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
