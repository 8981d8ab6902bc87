package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"solace/internal/domain/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	getErr  error
	setErr  error

	deleted []string
	sets    int
	setDone chan struct{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: make(map[string]string),
		setDone: make(chan struct{}, 8),
	}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.entries[key]
	return v, ok, nil
}

func (f *fakeCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer func() { f.setDone <- struct{}{} }()
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[key] = value
	f.sets++
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeCache) waitForSet(t *testing.T) {
	t.Helper()
	select {
	case <-f.setDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cache repopulation")
	}
}

type fakeMessageRepo struct {
	messages  []models.Message
	listErr   error
	latestErr error

	listCalls int
}

func (f *fakeMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.messages, nil
}

func (f *fakeMessageRepo) CreateMessage(ctx context.Context, conversationID string, message *models.Message) error {
	return nil
}

func (f *fakeMessageRepo) DeleteByConversation(ctx context.Context, conversationID string) error {
	return nil
}

func (f *fakeMessageRepo) LatestCreatedAt(ctx context.Context, conversationID string) (time.Time, bool, error) {
	if f.latestErr != nil {
		return time.Time{}, false, f.latestErr
	}
	if len(f.messages) == 0 {
		return time.Time{}, false, nil
	}
	return f.messages[len(f.messages)-1].CreatedAt, true, nil
}

func sampleMessages(base time.Time, n int) []models.Message {
	messages := make([]models.Message, n)
	for i := range messages {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		messages[i] = models.Message{
			ID:        string(rune('a' + i)),
			Role:      role,
			Content:   "message body",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return messages
}

func seedCache(t *testing.T, cache *fakeCache, conversationID string, messages []models.Message) {
	t.Helper()
	payload, err := models.EncodeCachedMessages(messages)
	if err != nil {
		t.Fatalf("encode seed messages: %v", err)
	}
	cache.entries[models.ConversationCacheKey(conversationID)] = payload
}

func TestLoadCacheHitSkipsDurableStore(t *testing.T) {
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	cached := sampleMessages(base, 4)

	cache := newFakeCache()
	seedCache(t, cache, "conv-1", cached)
	repo := &fakeMessageRepo{messages: sampleMessages(base, 6)}

	svc := NewService(cache, repo, true, testLogger())

	got, err := svc.Load(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("got %d messages, want 4 from cache", len(got))
	}
	if repo.listCalls != 0 {
		t.Errorf("durable store queried %d times on a trusted hit, want 0", repo.listCalls)
	}
}

func TestLoadCacheMissFallsBackAndRepopulates(t *testing.T) {
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	stored := sampleMessages(base, 3)

	cache := newFakeCache()
	repo := &fakeMessageRepo{messages: stored}

	svc := NewService(cache, repo, true, testLogger())

	got, err := svc.Load(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d messages, want 3 from durable store", len(got))
	}
	if repo.listCalls != 1 {
		t.Errorf("durable store queried %d times, want 1", repo.listCalls)
	}

	// Repopulation is asynchronous; the read must already have returned.
	cache.waitForSet(t)

	key := models.ConversationCacheKey("conv-1")
	payload, found, _ := cache.Get(context.Background(), key)
	if !found {
		t.Fatal("cache never repopulated after miss")
	}
	decoded, err := models.DecodeCachedMessages(payload)
	if err != nil {
		t.Fatalf("repopulated entry undecodable: %v", err)
	}
	if len(decoded) != 3 {
		t.Errorf("repopulated %d messages, want 3", len(decoded))
	}
}

func TestLoadEmptyConversationIsNotCached(t *testing.T) {
	cache := newFakeCache()
	repo := &fakeMessageRepo{}

	svc := NewService(cache, repo, true, testLogger())

	got, err := svc.Load(context.Background(), "conv-empty")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}

	select {
	case <-cache.setDone:
		t.Error("empty history was written to the cache")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoadCacheFailuresDegradeToDurableStore(t *testing.T) {
	base := time.Now().Add(-time.Hour)

	tests := []struct {
		name  string
		cache func() *fakeCache
	}{
		{
			name: "cache read error",
			cache: func() *fakeCache {
				c := newFakeCache()
				c.getErr = errors.New("redis down")
				return c
			},
		},
		{
			name: "undecodable entry",
			cache: func() *fakeCache {
				c := newFakeCache()
				c.entries[models.ConversationCacheKey("conv-1")] = "{not json"
				return c
			},
		},
		{
			name: "empty entry",
			cache: func() *fakeCache {
				c := newFakeCache()
				c.entries[models.ConversationCacheKey("conv-1")] = "[]"
				return c
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeMessageRepo{messages: sampleMessages(base, 2)}
			svc := NewService(tt.cache(), repo, true, testLogger())

			got, err := svc.Load(context.Background(), "conv-1")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got) != 2 {
				t.Errorf("got %d messages, want 2 from durable store", len(got))
			}
		})
	}
}

func TestLoadDurableStoreErrorPropagates(t *testing.T) {
	cache := newFakeCache()
	repo := &fakeMessageRepo{listErr: errors.New("connection refused")}

	svc := NewService(cache, repo, true, testLogger())

	if _, err := svc.Load(context.Background(), "conv-1"); err == nil {
		t.Fatal("Load returned nil error on durable store failure")
	}
}

func TestLoadValidationPolicy(t *testing.T) {
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	cached := sampleMessages(base, 3)

	tests := []struct {
		name        string
		storeLatest time.Time
		wantFresh   bool
	}{
		{
			name:        "store matches cache",
			storeLatest: cached[len(cached)-1].CreatedAt,
			wantFresh:   true,
		},
		{
			name: "store newer within tolerance",
			// Sub-second skew between writers must not invalidate the hit.
			storeLatest: cached[len(cached)-1].CreatedAt.Add(500 * time.Millisecond),
			wantFresh:   true,
		},
		{
			name:        "store newer beyond tolerance",
			storeLatest: cached[len(cached)-1].CreatedAt.Add(10 * time.Second),
			wantFresh:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newFakeCache()
			seedCache(t, cache, "conv-1", cached)

			stored := sampleMessages(base, 4)
			stored[len(stored)-1].CreatedAt = tt.storeLatest
			repo := &fakeMessageRepo{messages: stored}

			svc := NewService(cache, repo, false, testLogger())

			got, err := svc.Load(context.Background(), "conv-1")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}

			if tt.wantFresh {
				if len(got) != 3 {
					t.Errorf("got %d messages, want 3 from validated cache", len(got))
				}
				if repo.listCalls != 0 {
					t.Errorf("durable list called %d times for a fresh hit, want 0", repo.listCalls)
				}
			} else {
				if len(got) != 4 {
					t.Errorf("got %d messages, want 4 from durable store after invalidation", len(got))
				}
				if len(cache.deleted) == 0 {
					t.Error("stale cache entry never deleted")
				}
			}
		})
	}
}

func TestLoadValidationDurableErrorPropagates(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	cache := newFakeCache()
	seedCache(t, cache, "conv-1", sampleMessages(base, 2))

	repo := &fakeMessageRepo{latestErr: errors.New("connection refused")}

	svc := NewService(cache, repo, false, testLogger())

	if _, err := svc.Load(context.Background(), "conv-1"); err == nil {
		t.Fatal("Load returned nil error when staleness validation failed against the store")
	}
}
