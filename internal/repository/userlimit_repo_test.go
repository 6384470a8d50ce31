package repository

import (
	"context"
	"testing"
	"time"

	"github.com/guidely/guidely-api/internal/models"
)

func TestUserLimitGetMissingReturnsEmptyDoc(t *testing.T) {
	repos := setupTestRepos(t)

	limits, err := repos.UserLimit.Get(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if limits.UserEmail != "new@example.com" {
		t.Errorf("UserEmail = %q", limits.UserEmail)
	}
	if len(limits.Guides) != 0 {
		t.Errorf("Guides = %v, want empty", limits.Guides)
	}
	if limits.LastExport != nil {
		t.Error("LastExport should be nil for a fresh doc")
	}
}

func TestUserLimitIncrementGuide(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := repos.UserLimit.IncrementGuide(ctx, "a@example.com", models.BucketLlama); err != nil {
			t.Fatalf("IncrementGuide: %v", err)
		}
	}
	if err := repos.UserLimit.IncrementGuide(ctx, "a@example.com", models.BucketGemini); err != nil {
		t.Fatalf("IncrementGuide: %v", err)
	}

	limits, err := repos.UserLimit.Get(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if limits.Guides[models.BucketLlama] != 2 {
		t.Errorf("llama guides = %d, want 2", limits.Guides[models.BucketLlama])
	}
	if limits.Guides[models.BucketGemini] != 1 {
		t.Errorf("gemini guides = %d, want 1", limits.Guides[models.BucketGemini])
	}
}

func TestUserLimitSetLastExport(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := repos.UserLimit.SetLastExport(ctx, "a@example.com", at); err != nil {
		t.Fatalf("SetLastExport: %v", err)
	}

	limits, err := repos.UserLimit.Get(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if limits.LastExport == nil || !limits.LastExport.Equal(at) {
		t.Errorf("LastExport = %v, want %v", limits.LastExport, at)
	}

	// Setting the export timestamp must not clobber guide counters.
	if err := repos.UserLimit.IncrementGuide(ctx, "a@example.com", models.BucketLlama); err != nil {
		t.Fatalf("IncrementGuide: %v", err)
	}
	later := at.Add(time.Hour)
	if err := repos.UserLimit.SetLastExport(ctx, "a@example.com", later); err != nil {
		t.Fatalf("SetLastExport: %v", err)
	}

	limits, err = repos.UserLimit.Get(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if limits.Guides[models.BucketLlama] != 1 {
		t.Errorf("llama guides = %d, want 1 after export", limits.Guides[models.BucketLlama])
	}
	if limits.LastExport == nil || !limits.LastExport.Equal(later) {
		t.Errorf("LastExport = %v, want %v", limits.LastExport, later)
	}
}
