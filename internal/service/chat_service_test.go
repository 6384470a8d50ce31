package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/guidely/guidely-api/internal/constants"
	"github.com/guidely/guidely-api/internal/models"
	"github.com/guidely/guidely-api/internal/repository"
)

type chatFixture struct {
	svc       *ChatService
	usage     *mockUsageRepo
	sessions  *mockSessionRepo
	completer *mockCompleter
}

func newChatFixture() *chatFixture {
	usage := newMockUsageRepo()
	sessions := newMockSessionRepo()
	completer := &mockCompleter{content: "Here is your guide.", usage: models.TokenUsage{Input: 10, Output: 20, Total: 30}}
	repos := &repository.Repositories{
		Usage:     usage,
		UserLimit: newMockUserLimitRepo(),
		Guest:     newMockGuestRepo(),
		Session:   sessions,
	}
	access := NewAccessService(repos, &mockMirror{}, testLogger())
	return &chatFixture{
		svc:       NewChatService(repos, access, completer, testLogger()),
		usage:     usage,
		sessions:  sessions,
		completer: completer,
	}
}

func TestChatCreate(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	t.Run("resolves aliases to buckets", func(t *testing.T) {
		session, err := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "qwen32b", "")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if session.Model != models.BucketLlama {
			t.Errorf("model = %s, want llama", session.Model)
		}
		if session.Title != models.DefaultSessionTitle {
			t.Errorf("title = %q, want placeholder", session.Title)
		}
	})

	t.Run("first message seeds the title", func(t *testing.T) {
		long := strings.Repeat("how do I set up a home espresso bar ", 4)
		session, err := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", long)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if len(session.Title) > constants.MaxTitleLength {
			t.Errorf("title length = %d, want <= %d", len(session.Title), constants.MaxTitleLength)
		}
		if !strings.HasSuffix(session.Title, "...") {
			t.Errorf("truncated title %q lacks ellipsis", session.Title)
		}
	})

	t.Run("first message becomes the opening turn", func(t *testing.T) {
		session, err := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", "plan a trip to Lisbon")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if len(session.Messages) != 1 {
			t.Fatalf("messages = %d, want 1", len(session.Messages))
		}
		if session.Messages[0].Role != models.RoleUser {
			t.Errorf("role = %s, want user", session.Messages[0].Role)
		}
		if session.Messages[0].Content != "plan a trip to Lisbon" {
			t.Errorf("content = %q", session.Messages[0].Content)
		}
		stored, err := f.sessions.GetByID(ctx, session.ID, "alice@example.com")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if len(stored.Messages) != 1 {
			t.Errorf("stored messages = %d, want 1", len(stored.Messages))
		}
	})

	t.Run("multibyte first message truncates on rune boundaries", func(t *testing.T) {
		session, err := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", "café "+strings.Repeat("é", 80))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if !utf8.ValidString(session.Title) {
			t.Errorf("title %q is not valid UTF-8", session.Title)
		}
		if got := utf8.RuneCountInString(session.Title); got > constants.MaxTitleLength {
			t.Errorf("title runes = %d, want <= %d", got, constants.MaxTitleLength)
		}
		if !strings.HasSuffix(session.Title, "...") {
			t.Errorf("truncated title %q lacks ellipsis", session.Title)
		}
	})

	t.Run("plan allow-list gates creation", func(t *testing.T) {
		_, err := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "gpt41", "")
		if !errors.Is(err, ErrAccessDenied) {
			t.Errorf("error = %v, want ErrAccessDenied", err)
		}
	})

	t.Run("unknown model is a validation error", func(t *testing.T) {
		_, err := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "gpt9", "")
		if !errors.Is(err, ErrValidation) {
			t.Errorf("error = %v, want ErrValidation", err)
		}
		if err == nil || !strings.Contains(err.Error(), "valid models:") || !strings.Contains(err.Error(), "llama") {
			t.Errorf("error %v does not list valid models", err)
		}
	})

	t.Run("creation is free of charge", func(t *testing.T) {
		count, _ := f.usage.BucketCount(ctx, "alice@example.com", models.BucketLlama, todayUTC())
		if count != 0 {
			t.Errorf("ledger count after creates = %d, want 0", count)
		}
	})
}

func TestSendMessage_FullTurn(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	session, err := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", "first question")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := f.svc.SendMessage(ctx, session.ID, "alice@example.com", constants.TierFree, "how do I brew pour-over?", nil)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if result.Message.Role != models.RoleAssistant {
		t.Errorf("reply role = %s, want assistant", result.Message.Role)
	}
	if result.Message.Content != "Here is your guide." {
		t.Errorf("reply content = %q", result.Message.Content)
	}
	if result.Remaining != 5 {
		t.Errorf("remaining = %d, want 5", result.Remaining)
	}
	if result.Usage.Total != 30 {
		t.Errorf("usage total = %d, want 30", result.Usage.Total)
	}

	stored, err := f.svc.Get(ctx, session.ID, "alice@example.com")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// Seed turn from Create, then the sent turn and the reply.
	if len(stored.Messages) != 3 {
		t.Fatalf("stored messages = %d, want 3", len(stored.Messages))
	}
	if stored.Messages[0].Content != "first question" {
		t.Errorf("seed turn content = %q", stored.Messages[0].Content)
	}
	if stored.Messages[1].Role != models.RoleUser || stored.Messages[2].Role != models.RoleAssistant {
		t.Errorf("message order = %s,%s", stored.Messages[1].Role, stored.Messages[2].Role)
	}

	// One request charged, one text completion recorded.
	count, _ := f.usage.BucketCount(ctx, "alice@example.com", models.BucketLlama, todayUTC())
	if count != 1 {
		t.Errorf("ledger requests = %d, want 1", count)
	}
	var text, tokens int
	for _, d := range f.usage.deltas {
		text += d.TextRequests
		tokens += d.Tokens
	}
	if text != 1 || tokens != 30 {
		t.Errorf("completion counters = text %d tokens %d, want 1 and 30", text, tokens)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	session, _ := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", "")

	cases := []struct {
		name    string
		content string
		images  []models.MessageImage
	}{
		{"empty message", "   ", nil},
		{"oversized prompt", strings.Repeat("a", constants.MaxPromptLength+1), nil},
		{"too many images", "look", make([]models.MessageImage, constants.MaxMessageImages+1)},
		{"non-image attachment", "look", []models.MessageImage{{MimeType: "application/pdf", Data: "x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, session.ID, "alice@example.com", constants.TierFree, tc.content, tc.images)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}

	// Rejected messages never reach the ledger or the provider.
	count, _ := f.usage.BucketCount(ctx, "alice@example.com", models.BucketLlama, todayUTC())
	if count != 0 {
		t.Errorf("ledger count = %d, want 0", count)
	}
	if len(f.completer.requests) != 0 {
		t.Errorf("provider calls = %d, want 0", len(f.completer.requests))
	}
}

func TestSendMessage_ChargeOnAttempt(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	session, _ := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", "")
	f.completer.err = errors.New("provider exploded")

	_, err := f.svc.SendMessage(ctx, session.ID, "alice@example.com", constants.TierFree, "hello", nil)
	if err == nil {
		t.Fatal("SendMessage() succeeded with a failing provider")
	}

	// The failed attempt still cost one request.
	count, _ := f.usage.BucketCount(ctx, "alice@example.com", models.BucketLlama, todayUTC())
	if count != 1 {
		t.Errorf("ledger count = %d, want 1", count)
	}
}

func TestSendMessage_QuotaDeniedBeforeProvider(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	session, _ := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", "")
	f.usage.seed("alice@example.com", models.BucketLlama, 6)

	_, err := f.svc.SendMessage(ctx, session.ID, "alice@example.com", constants.TierFree, "hello", nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("error = %v, want ErrQuotaExceeded", err)
	}
	if len(f.completer.requests) != 0 {
		t.Errorf("provider calls after denial = %d, want 0", len(f.completer.requests))
	}
}

func TestSendMessage_AutoTitle(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	f.completer.title = "Pour-Over Basics"

	// Created without a first message, so the placeholder title stands.
	session, _ := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", "")

	if _, err := f.svc.SendMessage(ctx, session.ID, "alice@example.com", constants.TierFree, "how do I brew pour-over?", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	select {
	case title := <-f.sessions.titleApplied:
		if title != "Pour-Over Basics" {
			t.Errorf("title = %q, want %q", title, "Pour-Over Basics")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("auto-title never ran")
	}
}

func TestSendMessage_AutoTitleSkippedWhenTitled(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	session, _ := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", "seeded title")

	if _, err := f.svc.SendMessage(ctx, session.ID, "alice@example.com", constants.TierFree, "hello", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	// Give a stray goroutine a moment to show itself.
	time.Sleep(50 * time.Millisecond)
	f.completer.mu.Lock()
	calls := f.completer.titleCalls
	f.completer.mu.Unlock()
	if calls != 0 {
		t.Errorf("title calls = %d, want 0", calls)
	}
}

func TestSendMessage_TitleFailureDoesNotSurface(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	f.completer.titleErr = errors.New("title model down")
	session, _ := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", "")

	if _, err := f.svc.SendMessage(ctx, session.ID, "alice@example.com", constants.TierFree, "hello", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
}

func TestSwitchModel(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	session, _ := f.svc.Create(ctx, "bob@example.com", constants.TierPro, "llama", "")

	t.Run("re-gated against current plan", func(t *testing.T) {
		// gpt41 is proplus-exclusive; pro is denied on switch too.
		_, err := f.svc.SwitchModel(ctx, session.ID, "bob@example.com", constants.TierPro, "gpt41")
		if !errors.Is(err, ErrAccessDenied) {
			t.Errorf("error = %v, want ErrAccessDenied", err)
		}
	})

	t.Run("allowed switch persists", func(t *testing.T) {
		updated, err := f.svc.SwitchModel(ctx, session.ID, "bob@example.com", constants.TierPro, "o3mini")
		if err != nil {
			t.Fatalf("SwitchModel() error = %v", err)
		}
		if updated.Model != models.BucketO3Mini {
			t.Errorf("model = %s, want o3mini", updated.Model)
		}
		stored, _ := f.svc.Get(ctx, session.ID, "bob@example.com")
		if stored.Model != models.BucketO3Mini {
			t.Errorf("stored model = %s, want o3mini", stored.Model)
		}
	})

	t.Run("same bucket is a no-op even when plan lost access", func(t *testing.T) {
		other, _ := f.svc.Create(ctx, "bob@example.com", constants.TierProPlus, "gpt41", "")
		got, err := f.svc.SwitchModel(ctx, other.ID, "bob@example.com", constants.TierPro, "gpt41")
		if err != nil {
			t.Fatalf("SwitchModel() error = %v", err)
		}
		if got.Model != models.BucketGPT41 {
			t.Errorf("model = %s, want gpt41", got.Model)
		}
	})

	t.Run("ownership mismatch looks like not found", func(t *testing.T) {
		_, err := f.svc.SwitchModel(ctx, session.ID, "mallory@example.com", constants.TierProPlus, "o3mini")
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestChatOwnership(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	session, _ := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", "")

	if _, err := f.svc.Get(ctx, session.ID, "mallory@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Get: error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.SendMessage(ctx, session.ID, "mallory@example.com", constants.TierFree, "hi", nil); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("SendMessage: error = %v, want ErrNotFound", err)
	}
	if err := f.svc.Delete(ctx, session.ID, "mallory@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Delete: error = %v, want ErrNotFound", err)
	}

	// The owner still sees the session untouched.
	if _, err := f.svc.Get(ctx, session.ID, "alice@example.com"); err != nil {
		t.Errorf("owner Get: error = %v", err)
	}
}

func TestChatArchive(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	session, _ := f.svc.Create(ctx, "alice@example.com", constants.TierFree, "llama", "")

	if err := f.svc.Archive(ctx, session.ID, "alice@example.com"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	visible, _ := f.svc.List(ctx, "alice@example.com", false, 50, 0)
	if len(visible) != 0 {
		t.Errorf("default listing shows %d sessions, want 0", len(visible))
	}
	all, _ := f.svc.List(ctx, "alice@example.com", true, 50, 0)
	if len(all) != 1 {
		t.Errorf("archived listing shows %d sessions, want 1", len(all))
	}
}
