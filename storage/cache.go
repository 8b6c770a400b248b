package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"teamboard-api/domain"
)

// BoardSnapshot is the fully-loaded board state served to clients and used
// as the revert point for optimistic mutations.
type BoardSnapshot struct {
	Columns []domain.Column `json:"columns"`
	Tasks   []domain.Task   `json:"tasks"`
}

type snapshotBackend interface {
	ListColumns(ctx context.Context, boardID string) ([]domain.Column, error)
	ListTasks(ctx context.Context, boardID string) ([]domain.Task, error)
}

// Cache wraps a Storage instance with Redis-backed caching for board
// snapshot reads. Writes to a board must evict its entry.
type Cache struct {
	*Storage
	base  snapshotBackend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base snapshotBackend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{base: base, redis: client, ttl: ttl}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

// FetchBoardSnapshot loads a board's columns and tasks, serving from Redis
// when possible.
func (c *Cache) FetchBoardSnapshot(ctx context.Context, boardID string) (BoardSnapshot, error) {
	if snap, ok := c.loadFromCache(ctx, boardID); ok {
		return snap, nil
	}

	columns, err := c.base.ListColumns(ctx, boardID)
	if err != nil {
		return BoardSnapshot{}, err
	}
	tasks, err := c.base.ListTasks(ctx, boardID)
	if err != nil {
		return BoardSnapshot{}, err
	}

	snap := BoardSnapshot{Columns: columns, Tasks: tasks}
	c.store(ctx, boardID, snap)
	return snap, nil
}

// EvictBoard drops a board's cached snapshot.
func (c *Cache) EvictBoard(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(boardID)).Result()
}

func (c *Cache) loadFromCache(ctx context.Context, boardID string) (BoardSnapshot, bool) {
	if c.redis == nil {
		return BoardSnapshot{}, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
		}
		return BoardSnapshot{}, false
	}
	var snap BoardSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
		return BoardSnapshot{}, false
	}
	return snap, true
}

func (c *Cache) store(ctx context.Context, boardID string, snap BoardSnapshot) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(boardID), data, c.ttl).Err()
}

func boardCacheKey(boardID string) string {
	return "board:" + boardID
}
