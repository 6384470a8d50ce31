package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guidely/guidely-api/internal/constants"
	"github.com/guidely/guidely-api/internal/models"
	"github.com/guidely/guidely-api/internal/repository"
)

func newUsageFixture() (*UsageService, *mockUsageRepo, *mockUserLimitRepo, *mockMirror) {
	usage := newMockUsageRepo()
	limits := newMockUserLimitRepo()
	mirror := &mockMirror{}
	repos := &repository.Repositories{
		Usage:     usage,
		UserLimit: limits,
	}
	access := NewAccessService(repos, mirror, testLogger())
	return NewUsageService(repos, mirror, access, testLogger()), usage, limits, mirror
}

func TestUsageToday(t *testing.T) {
	svc, usage, _, _ := newUsageFixture()
	usage.seed("alice@example.com", models.BucketLlama, 2)

	today, err := svc.Today(context.Background(), "alice@example.com", constants.TierFree)
	if err != nil {
		t.Fatalf("Today() error = %v", err)
	}

	if today.Buckets[models.BucketLlama].Requests != 2 {
		t.Errorf("llama requests = %d, want 2", today.Buckets[models.BucketLlama].Requests)
	}
	if today.Remaining[models.BucketLlama] != 4 {
		t.Errorf("llama remaining = %d, want 4", today.Remaining[models.BucketLlama])
	}
	if today.Date != todayUTC() {
		t.Errorf("date = %s, want %s", today.Date, todayUTC())
	}
}

func TestUsageHistory(t *testing.T) {
	svc, _, _, _ := newUsageFixture()

	t.Run("clamps the window", func(t *testing.T) {
		history, err := svc.History(context.Background(), "alice@example.com", 500)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != maxHistoryDays {
			t.Errorf("days = %d, want %d", len(history), maxHistoryDays)
		}
	})

	t.Run("defaults an empty request to a week", func(t *testing.T) {
		history, err := svc.History(context.Background(), "alice@example.com", 0)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != 7 {
			t.Errorf("days = %d, want 7", len(history))
		}
		if history[len(history)-1].Date != todayUTC() {
			t.Errorf("last day = %s, want today", history[len(history)-1].Date)
		}
	})
}

func TestExportCooldown(t *testing.T) {
	ctx := context.Background()

	t.Run("first export always allowed", func(t *testing.T) {
		svc, _, _, _ := newUsageFixture()
		if err := svc.CheckExportAllowed(ctx, "alice@example.com", constants.TierFree); err != nil {
			t.Errorf("CheckExportAllowed() error = %v", err)
		}
	})

	t.Run("recent export blocks within cooldown", func(t *testing.T) {
		svc, _, limits, _ := newUsageFixture()
		limits.lastExport["alice@example.com"] = time.Now().Add(-1 * time.Hour)

		// Free cooldown is 24h.
		err := svc.CheckExportAllowed(ctx, "alice@example.com", constants.TierFree)
		if !errors.Is(err, ErrExportCooldown) {
			t.Errorf("error = %v, want ErrExportCooldown", err)
		}
	})

	t.Run("stale export passes", func(t *testing.T) {
		svc, _, limits, _ := newUsageFixture()
		limits.lastExport["alice@example.com"] = time.Now().Add(-48 * time.Hour)

		if err := svc.CheckExportAllowed(ctx, "alice@example.com", constants.TierFree); err != nil {
			t.Errorf("CheckExportAllowed() error = %v", err)
		}
	})

	t.Run("zero cooldown never throttles", func(t *testing.T) {
		svc, _, limits, _ := newUsageFixture()
		limits.lastExport["carol@example.com"] = time.Now()

		if err := svc.CheckExportAllowed(ctx, "carol@example.com", constants.TierProPlus); err != nil {
			t.Errorf("CheckExportAllowed() error = %v", err)
		}
	})
}

func TestRecordExport(t *testing.T) {
	svc, _, limits, mirror := newUsageFixture()

	if err := svc.RecordExport(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("RecordExport() error = %v", err)
	}
	if _, ok := limits.lastExport["alice@example.com"]; !ok {
		t.Error("export time not stamped")
	}
	if mirror.exports != 1 {
		t.Errorf("mirror exports = %d, want 1", mirror.exports)
	}

	t.Run("mirror failure does not fail the export", func(t *testing.T) {
		mirror.err = errors.New("mongo down")
		if err := svc.RecordExport(context.Background(), "alice@example.com"); err != nil {
			t.Errorf("RecordExport() error = %v", err)
		}
	})
}
