package db

import (
	"sync"
	"sync/atomic"
)

// Shard is an independent segment of the sharded map.
type Shard[V any] struct {
	sync.RWMutex
	items map[string]V
	len   int64 // number of items (atomic)
}

func NewShard[V any]() *Shard[V] {
	return &Shard[V]{items: make(map[string]V)}
}

func (sh *Shard[V]) Len() int64 { return atomic.LoadInt64(&sh.len) }

// Get reads a value under a shared lock.
func (sh *Shard[V]) Get(key string) (value V, hit bool) {
	sh.RLock()
	value, hit = sh.items[key]
	sh.RUnlock()
	return
}

// Load runs fn under a shared lock if key is present.
func (sh *Shard[V]) Load(key string, fn func(V)) bool {
	sh.RLock()
	defer sh.RUnlock()
	value, hit := sh.items[key]
	if hit {
		fn(value)
	}
	return hit
}

// LoadOrStore keeps an existing value and stores value only when key is absent.
func (sh *Shard[V]) LoadOrStore(key string, value V) (actual V, loaded bool) {
	sh.Lock()
	defer sh.Unlock()
	if old, hit := sh.items[key]; hit {
		return old, true
	}
	sh.items[key] = value
	atomic.AddInt64(&sh.len, 1)
	return value, false
}

// Compute replaces, inserts or deletes key according to fn, under the write lock.
func (sh *Shard[V]) Compute(key string, fn func(old V, exists bool) (V, bool)) (value V, keep bool, lenDelta int64) {
	sh.Lock()
	defer sh.Unlock()

	old, exists := sh.items[key]
	value, keep = fn(old, exists)
	switch {
	case keep:
		sh.items[key] = value
		if !exists {
			lenDelta = 1
		}
	case exists:
		delete(sh.items, key)
		lenDelta = -1
	}
	if lenDelta != 0 {
		atomic.AddInt64(&sh.len, lenDelta)
	}
	return
}

// Remove deletes a key under the write lock.
func (sh *Shard[V]) Remove(key string) (hit bool) {
	sh.Lock()
	defer sh.Unlock()
	return sh.removeUnlocked(key)
}

// RemoveIf deletes key when pred holds for its value.
func (sh *Shard[V]) RemoveIf(key string, pred func(V) bool) bool {
	sh.Lock()
	defer sh.Unlock()
	value, hit := sh.items[key]
	if !hit || !pred(value) {
		return false
	}
	return sh.removeUnlocked(key)
}

func (sh *Shard[V]) removeUnlocked(key string) bool {
	if _, hit := sh.items[key]; !hit {
		return false
	}
	delete(sh.items, key)
	atomic.AddInt64(&sh.len, -1)
	return true
}

func (sh *Shard[V]) appendKeys(dst []string) []string {
	if sh.Len() == 0 {
		return dst
	}
	sh.RLock()
	for k := range sh.items {
		dst = append(dst, k)
	}
	sh.RUnlock()
	return dst
}
