package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/guidely/guidely-api/internal/llm"
	"github.com/guidely/guidely-api/internal/models"
	"github.com/guidely/guidely-api/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Hand-written repository mocks. Each one keeps enough state in memory to
// observe what the services wrote; error fields force failure paths.

type mockUsageRepo struct {
	mu       sync.Mutex
	counts   map[string]int
	deltas   []models.UsageDelta
	incErr   error
	countErr error
	dailyErr error
}

func newMockUsageRepo() *mockUsageRepo {
	return &mockUsageRepo{counts: make(map[string]int)}
}

func usageKey(userEmail string, bucket models.ModelBucket, date string) string {
	return fmt.Sprintf("%s|%s|%s", userEmail, bucket, date)
}

func (m *mockUsageRepo) Increment(_ context.Context, userEmail string, bucket models.ModelBucket, date string, delta models.UsageDelta) error {
	if m.incErr != nil {
		return m.incErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[usageKey(userEmail, bucket, date)] += delta.Requests
	m.deltas = append(m.deltas, delta)
	return nil
}

func (m *mockUsageRepo) BucketCount(_ context.Context, userEmail string, bucket models.ModelBucket, date string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[usageKey(userEmail, bucket, date)], nil
}

func (m *mockUsageRepo) GetDaily(_ context.Context, userEmail string, date string) (*models.DailyUsage, error) {
	if m.dailyErr != nil {
		return nil, m.dailyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	daily := &models.DailyUsage{Date: date, Buckets: make(map[models.ModelBucket]models.BucketUsage)}
	for _, bucket := range models.AllBuckets {
		if n := m.counts[usageKey(userEmail, bucket, date)]; n > 0 {
			daily.Buckets[bucket] = models.BucketUsage{Requests: n}
		}
	}
	return daily, nil
}

func (m *mockUsageRepo) GetHistory(_ context.Context, _ string, startDate, endDate string) ([]models.DailyUsage, error) {
	if m.dailyErr != nil {
		return nil, m.dailyErr
	}
	start, _ := time.Parse("2006-01-02", startDate)
	end, _ := time.Parse("2006-01-02", endDate)
	var out []models.DailyUsage
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, models.DailyUsage{Date: d.Format("2006-01-02"), Buckets: map[models.ModelBucket]models.BucketUsage{}})
	}
	return out, nil
}

// seed sets today's request count directly.
func (m *mockUsageRepo) seed(userEmail string, bucket models.ModelBucket, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[usageKey(userEmail, bucket, todayUTC())] = n
}

type mockUserLimitRepo struct {
	mu         sync.Mutex
	guides     map[string]int
	lastExport map[string]time.Time
	incErr     error
	getErr     error
}

func newMockUserLimitRepo() *mockUserLimitRepo {
	return &mockUserLimitRepo{guides: make(map[string]int), lastExport: make(map[string]time.Time)}
}

func (m *mockUserLimitRepo) Get(_ context.Context, userEmail string) (*models.UserLimits, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := &models.UserLimits{UserEmail: userEmail, Guides: map[models.ModelBucket]int{}}
	if at, ok := m.lastExport[userEmail]; ok {
		doc.LastExport = &at
	}
	return doc, nil
}

func (m *mockUserLimitRepo) IncrementGuide(_ context.Context, userEmail string, bucket models.ModelBucket) error {
	if m.incErr != nil {
		return m.incErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guides[fmt.Sprintf("%s|%s", userEmail, bucket)]++
	return nil
}

func (m *mockUserLimitRepo) SetLastExport(_ context.Context, userEmail string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastExport[userEmail] = at
	return nil
}

type mockGuestRepo struct {
	mu       sync.Mutex
	counts   map[string]int
	countErr error
	incErr   error
}

func newMockGuestRepo() *mockGuestRepo {
	return &mockGuestRepo{counts: make(map[string]int)}
}

func (m *mockGuestRepo) Count(_ context.Context, identity string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[identity], nil
}

func (m *mockGuestRepo) Increment(_ context.Context, identity string) (int, error) {
	if m.incErr != nil {
		return 0, m.incErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[identity]++
	return m.counts[identity], nil
}

type mockSessionRepo struct {
	mu           sync.Mutex
	sessions     map[string]*models.ChatSession
	nextID       int
	titleApplied chan string
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions:     make(map[string]*models.ChatSession),
		titleApplied: make(chan string, 1),
	}
}

func (m *mockSessionRepo) Create(_ context.Context, session *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if session.ID == "" {
		session.ID = fmt.Sprintf("sess-%d", m.nextID)
	}
	if session.Title == "" {
		session.Title = models.DefaultSessionTitle
	}
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id, userEmail string) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.UserEmail != userEmail {
		return nil, repository.ErrNotFound
	}
	cp := *session
	cp.Messages = append([]models.ChatMessage(nil), session.Messages...)
	return &cp, nil
}

func (m *mockSessionRepo) List(_ context.Context, userEmail string, includeArchived bool, _, _ int) ([]*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ChatSession
	for _, session := range m.sessions {
		if session.UserEmail != userEmail {
			continue
		}
		if session.Archived && !includeArchived {
			continue
		}
		cp := *session
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockSessionRepo) AppendMessage(_ context.Context, userEmail string, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[msg.SessionID]
	if !ok || session.UserEmail != userEmail {
		return repository.ErrNotFound
	}
	msg.ID = fmt.Sprintf("msg-%d", len(session.Messages)+1)
	session.Messages = append(session.Messages, *msg)
	return nil
}

func (m *mockSessionRepo) UpdateTitle(_ context.Context, id, userEmail, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.UserEmail != userEmail {
		return repository.ErrNotFound
	}
	if session.Title == models.DefaultSessionTitle {
		session.Title = title
	}
	select {
	case m.titleApplied <- session.Title:
	default:
	}
	return nil
}

func (m *mockSessionRepo) UpdateModel(_ context.Context, id, userEmail string, bucket models.ModelBucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.UserEmail != userEmail {
		return repository.ErrNotFound
	}
	session.Model = bucket
	return nil
}

func (m *mockSessionRepo) SetArchived(_ context.Context, id, userEmail string, archived bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.UserEmail != userEmail {
		return repository.ErrNotFound
	}
	session.Archived = archived
	return nil
}

func (m *mockSessionRepo) Delete(_ context.Context, id, userEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.UserEmail != userEmail {
		return repository.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

type mockCompleter struct {
	mu         sync.Mutex
	content    string
	images     []models.MessageImage
	usage      models.TokenUsage
	err        error
	title      string
	titleErr   error
	requests   []llm.Request
	titleCalls int
}

func (m *mockCompleter) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Completion{Content: m.content, Images: m.images, Usage: m.usage}, nil
}

func (m *mockCompleter) GenerateTitle(_ context.Context, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titleCalls++
	if m.titleErr != nil {
		return "", m.titleErr
	}
	return m.title, nil
}

type mockMirror struct {
	mu      sync.Mutex
	guides  int
	exports int
	err     error
}

func (m *mockMirror) IncrementGuide(context.Context, string, models.ModelBucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.guides++
	return nil
}

func (m *mockMirror) SetLastExport(context.Context, string, time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.exports++
	return nil
}

func (m *mockMirror) Close(context.Context) error { return nil }
