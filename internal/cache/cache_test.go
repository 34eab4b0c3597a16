package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type article struct {
	Title string `json:"title"`
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

type countingObserver struct {
	hits, misses int
}

func (c *countingObserver) CacheHit()  { c.hits++ }
func (c *countingObserver) CacheMiss() { c.misses++ }

type failingStore struct{}

func (failingStore) Load(context.Context) ([]byte, error) { return nil, errors.New("disk on fire") }
func (failingStore) Save(context.Context, []byte) error   { return errors.New("disk on fire") }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(store Store, clock *fakeClock, obs Observer) *Cache[[]article] {
	return New[[]article](store,
		WithTTL(time.Hour),
		WithClock(clock.Now),
		WithObserver(obs),
		WithLogger(quietLogger()),
	)
}

func TestCache_PutThenGet(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	obs := &countingObserver{}
	c := newTestCache(NewMemoryStore(), clock, obs)

	if _, ok := c.Get(ctx); ok {
		t.Fatal("Expected miss on empty cache")
	}

	payload := []article{{Title: "Solar record"}, {Title: "Wind auction"}}
	if err := c.Put(ctx, payload); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	clock.now = clock.now.Add(59 * time.Minute)
	got, ok := c.Get(ctx)
	if !ok {
		t.Fatal("Expected hit within TTL")
	}
	if len(got) != 2 || got[1].Title != "Wind auction" {
		t.Errorf("Unexpected payload: %+v", got)
	}

	if obs.hits != 1 || obs.misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d hits %d misses", obs.hits, obs.misses)
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(NewMemoryStore(), clock, nil)

	c.Put(ctx, []article{{Title: "old"}})

	clock.now = clock.now.Add(time.Hour)
	if _, ok := c.Get(ctx); ok {
		t.Error("Expected miss once TTL has elapsed")
	}

	// a new Put overwrites the stale entry
	c.Put(ctx, []article{{Title: "new"}})
	got, ok := c.Get(ctx)
	if !ok || got[0].Title != "new" {
		t.Errorf("Expected fresh payload after overwrite, got %+v (ok=%v)", got, ok)
	}
}

func TestCache_CorruptStoreIsMiss(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStore()
	c := newTestCache(store, clock, nil)

	for _, data := range []string{"{not json", `{"payload":[{"title":"x"}]}`, `[]`} {
		store.Save(ctx, []byte(data))
		if got, ok := c.Get(ctx); ok || got != nil {
			t.Errorf("Expected miss for %q, got %+v", data, got)
		}
	}

	broken := newTestCache(failingStore{}, clock, nil)
	if _, ok := broken.Get(ctx); ok {
		t.Error("Expected miss from failing store")
	}
}

func TestFileStore_MissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "news_cache.json")
	clock := &fakeClock{now: time.Now()}
	c := newTestCache(NewFileStore(path), clock, nil)

	if _, ok := c.Get(ctx); ok {
		t.Error("Expected miss for missing file")
	}

	if err := c.Put(ctx, []article{{Title: "Heat pumps"}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok := c.Get(ctx)
	if !ok || got[0].Title != "Heat pumps" {
		t.Errorf("Expected cached payload from file, got %+v", got)
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, ok := c.Get(ctx); ok {
		t.Error("Expected miss for corrupt file")
	}
}

func TestFetchWithCache(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	c := newTestCache(NewMemoryStore(), clock, nil)

	calls := 0
	fetch := func(context.Context) ([]article, error) {
		calls++
		return []article{{Title: "fetched"}}, nil
	}

	first := c.FetchWithCache(ctx, fetch, nil)
	second := c.FetchWithCache(ctx, fetch, nil)
	if calls != 1 {
		t.Errorf("Expected fetcher to run once, ran %d times", calls)
	}
	if first[0].Title != "fetched" || second[0].Title != "fetched" {
		t.Errorf("Unexpected payloads: %+v %+v", first, second)
	}
}

func TestFetchWithCache_FailureNotCached(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStore()
	c := newTestCache(store, clock, nil)

	failing := func(context.Context) ([]article, error) {
		return nil, errors.New("upstream down")
	}

	got := c.FetchWithCache(ctx, failing, []article{})
	if got == nil || len(got) != 0 {
		t.Errorf("Expected empty fallback, got %+v", got)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected nothing cached after failure, got %v", err)
	}
}
