// Package db implements a sharded concurrent map keyed by string ids.
// Keys are spread over shards by xxh3 hash; every per-key operation runs
// under the lock of exactly one shard, so callbacks passed to the atomic
// operations below observe and mutate a key without racing other callers
// of the same key.
package db

import (
	"context"
	"sync/atomic"

	"github.com/zeebo/xxh3"
)

// Tunables.
const (
	NumOfShards = 1024
	shardMask   = NumOfShards - 1 // faster than division
)

// Map is a sharded concurrent map with a precise global length.
type Map[V any] struct {
	len    int64 // aggregated number of items (atomic)
	shards [NumOfShards]*Shard[V]
}

// NewMap creates the map and initializes shards.
func NewMap[V any]() *Map[V] {
	m := &Map[V]{}
	for id := range m.shards {
		m.shards[id] = NewShard[V]()
	}
	return m
}

// Get reads a value.
func (m *Map[V]) Get(key string) (value V, ok bool) {
	return m.Shard(key).Get(key)
}

// Has reports whether key is present.
func (m *Map[V]) Has(key string) bool {
	_, ok := m.Shard(key).Get(key)
	return ok
}

// Load runs fn with the value of key under the shard read lock.
// It reports whether the key was present.
func (m *Map[V]) Load(key string, fn func(V)) bool {
	return m.Shard(key).Load(key, fn)
}

// LoadOrStore returns the existing value of key, or stores value when absent.
// loaded reports whether the value was already there.
func (m *Map[V]) LoadOrStore(key string, value V) (actual V, loaded bool) {
	actual, loaded = m.Shard(key).LoadOrStore(key, value)
	if !loaded {
		atomic.AddInt64(&m.len, 1)
	}
	return
}

// Compute runs fn under the shard write lock with the current value of key.
// fn returns the value to keep and whether to keep it; returning keep=false
// deletes the key. The kept value is returned.
func (m *Map[V]) Compute(key string, fn func(old V, exists bool) (value V, keep bool)) (V, bool) {
	value, keep, lenDelta := m.Shard(key).Compute(key, fn)
	if lenDelta != 0 {
		atomic.AddInt64(&m.len, lenDelta)
	}
	return value, keep
}

// Remove deletes a key.
func (m *Map[V]) Remove(key string) (hit bool) {
	if hit = m.Shard(key).Remove(key); hit {
		atomic.AddInt64(&m.len, -1)
	}
	return
}

// RemoveIf deletes key when pred, evaluated under the shard write lock, holds.
func (m *Map[V]) RemoveIf(key string, pred func(V) bool) (removed bool) {
	if removed = m.Shard(key).RemoveIf(key, pred); removed {
		atomic.AddInt64(&m.len, -1)
	}
	return
}

// Keys returns a snapshot of all keys. Keys added or removed during the walk
// may or may not be included.
func (m *Map[V]) Keys(ctx context.Context) []string {
	keys := make([]string, 0, m.Len())
	m.WalkShards(ctx, func(_ uint64, shard *Shard[V]) {
		keys = shard.appendKeys(keys)
	})
	return keys
}

// WalkShards applies fn to all shards synchronously.
func (m *Map[V]) WalkShards(ctx context.Context, fn func(id uint64, shard *Shard[V])) {
	for id, s := range m.shards {
		if ctx.Err() != nil {
			return
		}
		fn(uint64(id), s)
	}
}

func (m *Map[V]) Shard(key string) *Shard[V] { return m.shards[xxh3.HashString(key)&shardMask] }
func (m *Map[V]) Len() int64                 { return atomic.LoadInt64(&m.len) }
