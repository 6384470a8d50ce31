package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/guidely/guidely-api/internal/models"
)

func TestUsageIncrementAndCount(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	delta := models.UsageDelta{Requests: 1, TextRequests: 1, Tokens: 120}
	for i := 0; i < 3; i++ {
		if err := repos.Usage.Increment(ctx, "a@example.com", models.BucketLlama, "2026-08-30", delta); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}

	count, err := repos.Usage.BucketCount(ctx, "a@example.com", models.BucketLlama, "2026-08-30")
	if err != nil {
		t.Fatalf("BucketCount: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	daily, err := repos.Usage.GetDaily(ctx, "a@example.com", "2026-08-30")
	if err != nil {
		t.Fatalf("GetDaily: %v", err)
	}
	usage := daily.Buckets[models.BucketLlama]
	if usage.Requests != 3 || usage.TextRequests != 3 || usage.Tokens != 360 {
		t.Errorf("unexpected bucket usage: %+v", usage)
	}
}

func TestUsageCountMissingRowIsZero(t *testing.T) {
	repos := setupTestRepos(t)

	count, err := repos.Usage.BucketCount(context.Background(), "nobody@example.com", models.BucketGemini, "2026-08-30")
	if err != nil {
		t.Fatalf("BucketCount: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestUsageIncrementIsolation(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	delta := models.UsageDelta{Requests: 1}

	// Different bucket, different day, different user: all separate rows.
	mustIncrement(t, repos, "a@example.com", models.BucketLlama, "2026-08-30", delta)
	mustIncrement(t, repos, "a@example.com", models.BucketGemini, "2026-08-30", delta)
	mustIncrement(t, repos, "a@example.com", models.BucketLlama, "2026-08-31", delta)
	mustIncrement(t, repos, "b@example.com", models.BucketLlama, "2026-08-30", delta)

	count, err := repos.Usage.BucketCount(ctx, "a@example.com", models.BucketLlama, "2026-08-30")
	if err != nil {
		t.Fatalf("BucketCount: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestUsageIncrementRejectsNegative(t *testing.T) {
	repos := setupTestRepos(t)

	err := repos.Usage.Increment(context.Background(), "a@example.com", models.BucketLlama, "2026-08-30",
		models.UsageDelta{Requests: -1})
	if err == nil {
		t.Fatal("negative delta must be rejected")
	}
}

func TestUsageIncrementZeroDeltaIsNoop(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	if err := repos.Usage.Increment(ctx, "a@example.com", models.BucketLlama, "2026-08-30", models.UsageDelta{}); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	daily, err := repos.Usage.GetDaily(ctx, "a@example.com", "2026-08-30")
	if err != nil {
		t.Fatalf("GetDaily: %v", err)
	}
	if len(daily.Buckets) != 0 {
		t.Errorf("zero delta must not create a row, got %+v", daily.Buckets)
	}
}

func TestUsageConcurrentIncrements(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repos.Usage.Increment(ctx, "a@example.com", models.BucketDeepseek, "2026-08-30",
				models.UsageDelta{Requests: 1})
		}()
	}
	wg.Wait()

	count, err := repos.Usage.BucketCount(ctx, "a@example.com", models.BucketDeepseek, "2026-08-30")
	if err != nil {
		t.Fatalf("BucketCount: %v", err)
	}
	if count != workers {
		t.Errorf("count = %d, want %d (lost increments)", count, workers)
	}
}

func TestUsageHistoryFillsQuietDays(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	mustIncrement(t, repos, "a@example.com", models.BucketLlama, "2026-08-28", models.UsageDelta{Requests: 2})
	mustIncrement(t, repos, "a@example.com", models.BucketGemini, "2026-08-30", models.UsageDelta{Requests: 1})

	history, err := repos.Usage.GetHistory(ctx, "a@example.com", "2026-08-27", "2026-08-30")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}

	if len(history) != 4 {
		t.Fatalf("len(history) = %d, want 4", len(history))
	}
	if history[0].Date != "2026-08-27" || history[3].Date != "2026-08-30" {
		t.Errorf("unexpected date range: %s .. %s", history[0].Date, history[3].Date)
	}
	if len(history[0].Buckets) != 0 || len(history[2].Buckets) != 0 {
		t.Error("quiet days must have empty bucket maps")
	}
	if history[1].Buckets[models.BucketLlama].Requests != 2 {
		t.Errorf("day 2026-08-28 llama requests = %d, want 2", history[1].Buckets[models.BucketLlama].Requests)
	}
	if history[3].Buckets[models.BucketGemini].Requests != 1 {
		t.Errorf("day 2026-08-30 gemini requests = %d, want 1", history[3].Buckets[models.BucketGemini].Requests)
	}
}

func TestUsageHistoryRejectsBadRange(t *testing.T) {
	repos := setupTestRepos(t)

	if _, err := repos.Usage.GetHistory(context.Background(), "a@example.com", "2026-08-30", "2026-08-01"); err == nil {
		t.Error("end before start must be rejected")
	}
	if _, err := repos.Usage.GetHistory(context.Background(), "a@example.com", "not-a-date", "2026-08-30"); err == nil {
		t.Error("malformed dates must be rejected")
	}
}

func mustIncrement(t *testing.T, repos *Repositories, userEmail string, bucket models.ModelBucket, date string, delta models.UsageDelta) {
	t.Helper()
	if err := repos.Usage.Increment(context.Background(), userEmail, bucket, date, delta); err != nil {
		t.Fatalf("Increment(%s, %s, %s): %v", userEmail, bucket, date, err)
	}
}

func TestUsagePruneBefore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteUsageRepository(db)
	repos := NewRepositories(db, nil)

	mustIncrement(t, repos, "a@example.com", models.BucketLlama, "2026-01-15", models.UsageDelta{Requests: 1})
	mustIncrement(t, repos, "a@example.com", models.BucketLlama, "2026-05-01", models.UsageDelta{Requests: 1})
	mustIncrement(t, repos, "b@example.com", models.BucketGemini, "2026-04-30", models.UsageDelta{Requests: 1})

	deleted, err := repo.PruneBefore(context.Background(), "2026-05-01")
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2 (rows before the cutoff)", deleted)
	}

	// The row on the cutoff date itself survives.
	count, err := repo.BucketCount(context.Background(), "a@example.com", models.BucketLlama, "2026-05-01")
	if err != nil {
		t.Fatalf("BucketCount: %v", err)
	}
	if count != 1 {
		t.Errorf("surviving row count = %d, want 1", count)
	}
}
