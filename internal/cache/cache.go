// Package cache implements the refresh engine: a per-playlist cache of video
// lists with change-token driven background refresh and idle eviction.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Borislavv/go-subbox/config"
	"github.com/Borislavv/go-subbox/internal/cache/db"
	"github.com/Borislavv/go-subbox/internal/future"
	"github.com/Borislavv/go-subbox/internal/source"
	"github.com/Borislavv/go-subbox/model"
	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Borislavv/go-subbox/internal/cache"

// Loader fetches the full, newest-first video list of a playlist.
type Loader func(ctx context.Context, playlistID string) ([]model.Video, error)

// Submitter runs tasks asynchronously. *pool.Pool satisfies it.
type Submitter interface {
	Submit(task func()) error
}

// TokenSource returns the current change tokens of playlists.
type TokenSource interface {
	Playlists(ctx context.Context, ids []string) ([]model.Playlist, error)
}

type Cacher interface {
	Get(ctx context.Context, ids []string) (*future.Composite[[]model.Video], error)
	EvictAndRefresh(ctx context.Context) error
	CacheMetrics() Metrics
}

var _ Cacher = (*Cache)(nil)

// Cache is the refresh engine. Loads run on the engine ctx, never on the
// ctx of the request that triggered them, because their result is shared.
type Cache struct {
	ctx      context.Context
	cfg      config.CacheCfg
	tokens   TokenSource
	load     Loader
	pool     Submitter
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
	counters *counters

	meta  *db.Map[*Metadata]
	items *db.Map[*entry]

	pass sync.Mutex
}

// New creates the engine. clk may be nil for the wall clock.
func New(
	ctx context.Context,
	cfg config.CacheCfg,
	tokens TokenSource,
	load Loader,
	pool Submitter,
	clk clock.Clock,
	logger *slog.Logger,
) *Cache {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache{
		ctx:      ctx,
		cfg:      cfg,
		tokens:   tokens,
		load:     load,
		pool:     pool,
		clock:    clk,
		logger:   logger.With("component", "cache"),
		tracer:   otel.Tracer(tracerName),
		counters: newCounters(),
		meta:     db.NewMap[*Metadata](),
		items:    db.NewMap[*entry](),
	}
}

// Get returns one handle per id, in the order of ids. Ids seen for the first
// time have their change token fetched in one batch before their load starts.
// If that fetch fails no handle is created and the error is returned.
func (c *Cache) Get(ctx context.Context, ids []string) (*future.Composite[[]model.Video], error) {
	now := c.clock.Now().UnixNano()

	var missing []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if !c.meta.Load(id, func(m *Metadata) { m.touch(now) }) {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		if err := c.register(ctx, missing, now); err != nil {
			return nil, err
		}
	}

	handles := make([]*videosFuture, 0, len(ids))
	for _, id := range ids {
		handles = append(handles, c.obtain(id))
	}
	return future.All(handles), nil
}

// EvictAndRefresh runs one reconciliation pass. A pass requested while
// another one is running is skipped.
func (c *Cache) EvictAndRefresh(ctx context.Context) error {
	if !c.pass.TryLock() {
		c.counters.passesSkipped.Add(1)
		c.logger.Debug("reconciliation pass skipped: previous pass still running")
		return nil
	}
	defer c.pass.Unlock()

	c.counters.passes.Add(1)
	evictedMeta, evictedItems := c.evict(ctx)

	ids := c.meta.Keys(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	reloads, err := c.refresh(ctx, ids)
	if err != nil {
		c.counters.passErrors.Add(1)
		return fmt.Errorf("reconciliation pass: %w", err)
	}

	c.logger.Debug("reconciliation pass finished",
		"evicted_metadata", evictedMeta,
		"evicted_items", evictedItems,
		"checked", len(ids),
		"reloads", reloads,
	)
	return nil
}

// CacheMetrics returns a snapshot of the engine counters.
func (c *Cache) CacheMetrics() Metrics {
	m := c.counters.snapshot()
	m.Metadata = c.meta.Len()
	m.Items = c.items.Len()
	return m
}

// Len returns the number of cached playlists.
func (c *Cache) Len() int64 { return c.items.Len() }

/**
 * Private API.
 */

func (c *Cache) register(ctx context.Context, ids []string, now int64) error {
	playlists, err := c.tokens.Playlists(ctx, ids)
	if err != nil {
		return source.Wrap(source.OpPlaylists, ids, err)
	}

	tokens := make(map[string]string, len(playlists))
	for _, p := range playlists {
		tokens[p.ID] = p.ETag
	}
	for _, id := range ids {
		if existing, loaded := c.meta.LoadOrStore(id, newMetadata(tokens[id], now)); loaded {
			existing.touch(now)
		}
	}
	return nil
}

// obtain returns the shared handle of id, creating the entry and starting
// its load when absent. A failed handle is replaced by a fresh load, shared
// by everyone arriving after the failure.
func (c *Cache) obtain(id string) *videosFuture {
	var created *entry
	e, _ := c.items.Compute(id, func(old *entry, exists bool) (*entry, bool) {
		if exists {
			return old, true
		}
		created = newEntry()
		return created, true
	})

	if created != nil {
		c.counters.misses.Add(1)
		c.startLoad(id, created.handle())
		return created.handle()
	}

	c.counters.hits.Add(1)
	current := e.handle()
	if current.Failed() {
		retry := future.New[[]model.Video]()
		if e.current.CompareAndSwap(current, retry) {
			c.startLoad(id, retry)
		}
		return e.handle()
	}
	return current
}

func (c *Cache) startLoad(id string, f *videosFuture) {
	c.counters.loads.Add(1)
	err := c.pool.Submit(func() {
		videos, err := c.safeFetch(id, "cache.load")
		if err != nil {
			c.counters.loadErrors.Add(1)
			c.logger.Warn("playlist load failed", "playlist", id, "err", err)
		}
		f.Complete(videos, err)
	})
	if err != nil {
		c.counters.loadErrors.Add(1)
		f.Complete(nil, fmt.Errorf("schedule load of %s: %w", id, err))
	}
}

// reload refreshes e ahead of time: callers keep getting the current handle
// until the new list is loaded. A failed reload keeps the current handle.
func (c *Cache) reload(id string, e *entry) bool {
	if !e.reloading.CompareAndSwap(false, true) {
		return false
	}
	c.counters.reloads.Add(1)

	err := c.pool.Submit(func() {
		defer e.reloading.Store(false)
		videos, err := c.safeFetch(id, "cache.reload")
		if err != nil {
			c.counters.reloadErrors.Add(1)
			c.logger.Warn("playlist reload failed, serving previous list", "playlist", id, "err", err)
			return
		}
		e.current.Store(future.Resolved(videos, nil))
	})
	if err != nil {
		e.reloading.Store(false)
		c.counters.reloadErrors.Add(1)
		return false
	}
	return true
}

// safeFetch turns a panicking loader into an error so the handle still completes.
func (c *Cache) safeFetch(id, op string) (videos []model.Video, err error) {
	defer func() {
		if r := recover(); r != nil {
			videos, err = nil, fmt.Errorf("%s of %s panicked: %v", op, id, r)
		}
	}()
	return c.fetch(id, op)
}

func (c *Cache) fetch(id, op string) ([]model.Video, error) {
	ctx, span := c.tracer.Start(c.ctx, op, trace.WithAttributes(attribute.String("playlist.id", id)))
	defer span.End()

	videos, err := c.load(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("videos", len(videos)))
	return videos, nil
}

func (c *Cache) evict(ctx context.Context) (evictedMeta, evictedItems int) {
	threshold := c.cfg.EvictionThreshold.Nanoseconds()
	now := c.clock.Now().UnixNano()

	for _, id := range c.meta.Keys(ctx) {
		// checked outside the metadata lock so that shard locks never nest;
		// metadata touched since the pass began may still be awaiting its item
		hasItem := c.items.Has(id)
		if c.meta.RemoveIf(id, func(m *Metadata) bool {
			accessed := m.LastAccessed()
			return (!hasItem && accessed < now) || now-accessed > threshold
		}) {
			evictedMeta++
		}
	}

	for _, id := range c.items.Keys(ctx) {
		if !c.meta.Has(id) && c.items.Remove(id) {
			evictedItems++
		}
	}

	c.counters.evictedMetadata.Add(int64(evictedMeta))
	c.counters.evictedItems.Add(int64(evictedItems))
	return
}

func (c *Cache) refresh(ctx context.Context, ids []string) (reloads int, err error) {
	if len(ids) == 0 {
		return 0, nil
	}

	playlists, err := c.tokens.Playlists(ctx, ids)
	if err != nil {
		return 0, source.Wrap(source.OpPlaylists, ids, err)
	}

	for _, p := range playlists {
		changed := false
		c.meta.Compute(p.ID, func(m *Metadata, exists bool) (*Metadata, bool) {
			if !exists {
				return nil, false
			}
			if m.etag != p.ETag {
				m.etag, changed = p.ETag, true
			}
			return m, true
		})

		e, ok := c.items.Get(p.ID)
		if !ok {
			continue
		}
		if (changed || e.handle().Failed()) && c.reload(p.ID, e) {
			reloads++
		}
	}
	return reloads, nil
}

// ErrNotCached is returned by Peek for playlists without a cached entry.
var ErrNotCached = errors.New("cache: playlist is not cached")

// Peek returns the token and the handle of a cached playlist without touching it.
func (c *Cache) Peek(id string) (etag string, handle *future.Future[[]model.Video], err error) {
	found := c.meta.Load(id, func(m *Metadata) { etag = m.etag })
	e, ok := c.items.Get(id)
	if !found || !ok {
		return "", nil, ErrNotCached
	}
	return etag, e.handle(), nil
}
