package cache

import (
	"sync/atomic"

	"github.com/Borislavv/go-subbox/internal/future"
	"github.com/Borislavv/go-subbox/model"
)

// Metadata tracks the upstream change token of one playlist and when it was last requested.
// etag is read and written only under the shard lock of its key.
type Metadata struct {
	etag         string
	lastAccessed atomic.Int64 // unix nanos
}

func newMetadata(etag string, now int64) *Metadata {
	m := &Metadata{etag: etag}
	m.lastAccessed.Store(now)
	return m
}

func (m *Metadata) touch(now int64) { m.lastAccessed.Store(now) }

// LastAccessed returns the unix nanos of the latest request for the playlist.
func (m *Metadata) LastAccessed() int64 { return m.lastAccessed.Load() }

type videosFuture = future.Future[[]model.Video]

// entry holds the handle served to callers. A reload swaps the handle only
// after it succeeds, so readers never wait on a refresh.
type entry struct {
	current   atomic.Pointer[videosFuture]
	reloading atomic.Bool
}

func newEntry() *entry {
	e := &entry{}
	e.current.Store(future.New[[]model.Video]())
	return e
}

func (e *entry) handle() *videosFuture { return e.current.Load() }
