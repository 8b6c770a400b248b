package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"teamboard-api/domain"
)

type stubBackend struct {
	listColumnsFn func(ctx context.Context, boardID string) ([]domain.Column, error)
	listTasksFn   func(ctx context.Context, boardID string) ([]domain.Task, error)
}

func (s *stubBackend) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	if s.listColumnsFn == nil {
		return nil, errors.New("unexpected ListColumns call")
	}
	return s.listColumnsFn(ctx, boardID)
}

func (s *stubBackend) ListTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	if s.listTasksFn == nil {
		return nil, errors.New("unexpected ListTasks call")
	}
	return s.listTasksFn(ctx, boardID)
}

func newCacheFixture(t *testing.T, base snapshotBackend, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(base, client, ttl), mr
}

func TestCacheFetchBoardSnapshotMissThenHit(t *testing.T) {
	ctx := context.Background()
	boardID := "board-1"
	columns := []domain.Column{{ID: "c1", BoardID: boardID, Name: "To Do"}}
	tasks := []domain.Task{{ID: "t1", BoardID: boardID, ColumnID: "c1", Title: "Write code"}}

	var calls int
	cache, mr := newCacheFixture(t, &stubBackend{
		listColumnsFn: func(ctx context.Context, id string) ([]domain.Column, error) {
			calls++
			if id != boardID {
				t.Fatalf("unexpected board id: %s", id)
			}
			return append([]domain.Column(nil), columns...), nil
		},
		listTasksFn: func(ctx context.Context, id string) ([]domain.Task, error) {
			return append([]domain.Task(nil), tasks...), nil
		},
	}, time.Minute)

	snap, err := cache.FetchBoardSnapshot(ctx, boardID)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if !reflect.DeepEqual(snap.Columns, columns) || !reflect.DeepEqual(snap.Tasks, tasks) {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
	if calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", calls)
	}
	if ttl := mr.TTL(boardCacheKey(boardID)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	// Second fetch must be served from Redis.
	if _, err := cache.FetchBoardSnapshot(ctx, boardID); err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cache hit, backend called %d times", calls)
	}
}

func TestCacheEvictBoardForcesReload(t *testing.T) {
	ctx := context.Background()
	var calls int
	cache, _ := newCacheFixture(t, &stubBackend{
		listColumnsFn: func(ctx context.Context, id string) ([]domain.Column, error) {
			calls++
			return nil, nil
		},
		listTasksFn: func(ctx context.Context, id string) ([]domain.Task, error) {
			return nil, nil
		},
	}, time.Minute)

	if _, err := cache.FetchBoardSnapshot(ctx, "b"); err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	cache.EvictBoard(ctx, "b")
	if _, err := cache.FetchBoardSnapshot(ctx, "b"); err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected reload after evict, backend called %d times", calls)
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	ctx := context.Background()
	var calls int
	cache, mr := newCacheFixture(t, &stubBackend{
		listColumnsFn: func(ctx context.Context, id string) ([]domain.Column, error) {
			calls++
			return nil, nil
		},
		listTasksFn: func(ctx context.Context, id string) ([]domain.Task, error) {
			return nil, nil
		},
	}, time.Minute)

	if err := mr.Set(boardCacheKey("b"), "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}
	if _, err := cache.FetchBoardSnapshot(ctx, "b"); err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected backend fallback, got %d calls", calls)
	}
}

func TestCacheZeroTTLDisablesStore(t *testing.T) {
	ctx := context.Background()
	var calls int
	cache, mr := newCacheFixture(t, &stubBackend{
		listColumnsFn: func(ctx context.Context, id string) ([]domain.Column, error) {
			calls++
			return nil, nil
		},
		listTasksFn: func(ctx context.Context, id string) ([]domain.Task, error) {
			return nil, nil
		},
	}, 0)

	if _, err := cache.FetchBoardSnapshot(ctx, "b"); err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if mr.Exists(boardCacheKey("b")) {
		t.Fatal("zero TTL must not store snapshots")
	}
	if _, err := cache.FetchBoardSnapshot(ctx, "b"); err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 backend calls, got %d", calls)
	}
}
