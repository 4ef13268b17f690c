// Package db defines the storage facade the repositories are built on.
// Consumers depend on the narrow sub-interfaces, not on Store.
package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	HashStore
	KVStore
	SortedSetStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// HashStore provides hash-based key-value operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ZAddItem holds a single key+member pair for pipelined ZADD.
type ZAddItem struct {
	Key    string
	Member string
	Score  float64
}

// ZMember is one sorted set member with its score.
type ZMember struct {
	Member string
	Score  float64
}

// SortedSetStore provides recency-index operations over sorted sets.
type SortedSetStore interface {
	ZAdd(ctx context.Context, key, member string, score float64) error
	ZAddMulti(ctx context.Context, items []ZAddItem) error
	ZRem(ctx context.Context, key, member string) error
	// ZRevRange returns up to limit members ordered by descending score.
	ZRevRange(ctx context.Context, key string, limit int) ([]ZMember, error)
	ZCard(ctx context.Context, key string) (int64, error)
}
