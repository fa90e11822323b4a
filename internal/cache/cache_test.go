package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Borislavv/go-subbox/config"
	"github.com/Borislavv/go-subbox/internal/future"
	"github.com/Borislavv/go-subbox/internal/paging"
	"github.com/Borislavv/go-subbox/internal/pool"
	"github.com/Borislavv/go-subbox/internal/source"
	"github.com/Borislavv/go-subbox/internal/source/fake"
	"github.com/Borislavv/go-subbox/model"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

// inline runs submitted tasks on the caller goroutine.
type inline struct{}

func (inline) Submit(task func()) error { task(); return nil }

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func video(id string, hoursAgo int) model.Video {
	return model.Video{ID: id, PublishedAt: t0.Add(-time.Duration(hoursAgo) * time.Hour)}
}

func cacheCfg() config.CacheCfg {
	return config.CacheCfg{EvictionThreshold: time.Hour, UpdatePeriod: 5 * time.Minute}
}

func newTestCache(t *testing.T, src *fake.Source, sub Submitter, clk clock.Clock) *Cache {
	t.Helper()
	load := func(ctx context.Context, id string) ([]model.Video, error) {
		return paging.Collect(ctx, src, id, 0)
	}
	return New(context.Background(), cacheCfg(), src, load, sub, clk, slog.New(slog.DiscardHandler))
}

func getOne(t *testing.T, c *Cache, id string) []model.Video {
	t.Helper()
	all, err := c.Get(context.Background(), []string{id})
	require.NoError(t, err)
	lists, err := all.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, lists, 1)
	return lists[0]
}

func ids(vs []model.Video) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ID)
	}
	return out
}

// TestCache_Get_OrderAndLoad verifies one handle per id in input order.
func TestCache_Get_OrderAndLoad(t *testing.T) {
	src := fake.New().
		SetPlaylist("A", "ea", video("a1", 1), video("a2", 3)).
		SetPlaylist("B", "eb", video("b1", 2))
	c := newTestCache(t, src, inline{}, clock.NewMock())

	all, err := c.Get(context.Background(), []string{"B", "A"})
	require.NoError(t, err)
	require.Equal(t, 2, all.Len())

	lists, err := all.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"b1"}, ids(lists[0]))
	require.Equal(t, []string{"a1", "a2"}, ids(lists[1]))

	require.Equal(t, [][]string{{"B", "A"}}, src.Requests(source.OpPlaylists))
	m := c.CacheMetrics()
	require.EqualValues(t, 2, m.Misses)
	require.EqualValues(t, 2, m.Metadata)
	require.EqualValues(t, 2, m.Items)
}

// TestCache_Get_MetadataOnlyForNewIDs verifies the token fetch covers exactly the ids not yet known.
func TestCache_Get_MetadataOnlyForNewIDs(t *testing.T) {
	src := fake.New().SetPlaylist("A", "ea").SetPlaylist("B", "eb")
	c := newTestCache(t, src, inline{}, clock.NewMock())

	getOne(t, c, "A")
	_, err := c.Get(context.Background(), []string{"A", "B"})
	require.NoError(t, err)

	require.Equal(t, [][]string{{"A"}, {"B"}}, src.Requests(source.OpPlaylists))
	require.Equal(t, 2, src.Calls(source.OpPlaylistItems), "a hit must not reload")
	require.EqualValues(t, 1, c.CacheMetrics().Hits)
}

// TestCache_Get_SingleLoadUnderConcurrency verifies concurrent requests for an uncached id share one load.
func TestCache_Get_SingleLoadUnderConcurrency(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e", video("v1", 1))
	release := make(chan struct{})
	src.OnCall(source.OpPlaylistItems, func(context.Context) { <-release })

	p := pool.New(4, time.Second, slog.New(slog.DiscardHandler))
	defer func() { require.NoError(t, p.Close(context.Background())) }()
	c := newTestCache(t, src, p, clock.NewMock())

	const callers = 32
	handles := make([]*future.Composite[[]model.Video], callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Go(func() {
			h, err := c.Get(context.Background(), []string{"P"})
			require.NoError(t, err)
			handles[i] = h
		})
	}
	wg.Wait()
	close(release)

	first := handles[0].Futures()[0]
	for _, h := range handles {
		require.Same(t, first, h.Futures()[0])
		lists, err := h.Get(context.Background())
		require.NoError(t, err)
		require.Equal(t, []string{"v1"}, ids(lists[0]))
	}
	require.Equal(t, 1, src.Calls(source.OpPlaylistItems))
	require.EqualValues(t, 1, c.CacheMetrics().Loads)
}

// TestCache_Get_MetadataFailure verifies a failed token fetch creates no handles.
func TestCache_Get_MetadataFailure(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e")
	boom := errors.New("boom")
	src.Fail(source.OpPlaylists, boom)
	c := newTestCache(t, src, inline{}, clock.NewMock())

	_, err := c.Get(context.Background(), []string{"P"})
	var ue *source.UpstreamError
	require.ErrorAs(t, err, &ue)
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 0, c.CacheMetrics().Items)
	require.Equal(t, 0, src.Calls(source.OpPlaylistItems))
}

// TestCache_Get_FailedLoadRetriedByNextRequest verifies a failed handle is replaced on the next request.
func TestCache_Get_FailedLoadRetriedByNextRequest(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e", video("v1", 1))
	boom := errors.New("boom")
	src.Fail(source.OpPlaylistItems, boom)
	c := newTestCache(t, src, inline{}, clock.NewMock())

	all, err := c.Get(context.Background(), []string{"P"})
	require.NoError(t, err)
	_, err = all.Get(context.Background())
	require.ErrorIs(t, err, boom)

	src.Fail(source.OpPlaylistItems, nil)
	require.Equal(t, []string{"v1"}, ids(getOne(t, c, "P")))
	require.Equal(t, 2, src.Calls(source.OpPlaylistItems))
	require.EqualValues(t, 1, c.CacheMetrics().LoadErrors)
}

// TestCache_Get_PanickingLoadFails verifies a loader panic fails the handle and the next request retries.
func TestCache_Get_PanickingLoadFails(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e", video("v1", 1))
	var calls atomic.Int32
	load := func(ctx context.Context, id string) ([]model.Video, error) {
		if calls.Add(1) == 1 {
			panic("decoder blew up")
		}
		return paging.Collect(ctx, src, id, 0)
	}
	c := New(context.Background(), cacheCfg(), src, load, inline{}, clock.NewMock(), slog.New(slog.DiscardHandler))

	all, err := c.Get(context.Background(), []string{"P"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = all.Get(ctx)
	require.ErrorContains(t, err, "panicked")
	require.NotErrorIs(t, err, context.DeadlineExceeded)

	require.Equal(t, []string{"v1"}, ids(getOne(t, c, "P")))
	m := c.CacheMetrics()
	require.EqualValues(t, 2, m.Loads)
	require.EqualValues(t, 1, m.LoadErrors)
}

// TestCache_EvictAndRefresh_PanickingReloadKeepsPrevious verifies a reload panic keeps the old list and allows later reloads.
func TestCache_EvictAndRefresh_PanickingReloadKeepsPrevious(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e1", video("v1", 2))
	var panicking atomic.Bool
	load := func(ctx context.Context, id string) ([]model.Video, error) {
		if panicking.Load() {
			panic("decoder blew up")
		}
		return paging.Collect(ctx, src, id, 0)
	}
	c := New(context.Background(), cacheCfg(), src, load, inline{}, clock.NewMock(), slog.New(slog.DiscardHandler))
	getOne(t, c, "P")

	panicking.Store(true)
	src.SetPlaylist("P", "e2", video("v2", 1))
	require.NoError(t, c.EvictAndRefresh(context.Background()))
	require.Equal(t, []string{"v1"}, ids(getOne(t, c, "P")))
	require.EqualValues(t, 1, c.CacheMetrics().ReloadErrors)

	panicking.Store(false)
	src.SetETag("P", "e3")
	require.NoError(t, c.EvictAndRefresh(context.Background()))
	require.Equal(t, []string{"v2"}, ids(getOne(t, c, "P")))
}

// TestCache_EvictAndRefresh_KeepsJustRegistered verifies metadata written during the pass survives
// while its list entry is still being created, and stale orphans are still dropped.
func TestCache_EvictAndRefresh_KeepsJustRegistered(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e", video("v1", 1)).SetPlaylist("Q", "e")
	clk := clock.NewMock()
	c := newTestCache(t, src, inline{}, clk)
	ctx := context.Background()

	require.NoError(t, c.register(ctx, []string{"P"}, clk.Now().UnixNano()))
	require.NoError(t, c.EvictAndRefresh(ctx))
	require.EqualValues(t, 0, c.CacheMetrics().EvictedMetadata)
	require.EqualValues(t, 1, c.CacheMetrics().Metadata)

	require.Equal(t, []string{"v1"}, ids(getOne(t, c, "P")))
	require.Equal(t, [][]string{{"P"}, {"P"}}, src.Requests(source.OpPlaylists), "no second registration")
	require.Equal(t, 1, src.Calls(source.OpPlaylistItems))

	require.NoError(t, c.register(ctx, []string{"Q"}, clk.Now().UnixNano()))
	clk.Add(time.Second)
	require.NoError(t, c.EvictAndRefresh(ctx))
	require.False(t, c.meta.Has("Q"), "an orphan from an earlier moment is dropped")
	require.True(t, c.meta.Has("P"))
}

// TestCache_EvictAndRefresh_EvictsIdle verifies playlists idle beyond the threshold are forgotten.
func TestCache_EvictAndRefresh_EvictsIdle(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e", video("v1", 1))
	clk := clock.NewMock()
	c := newTestCache(t, src, inline{}, clk)

	getOne(t, c, "P")
	clk.Add(61 * time.Minute)
	require.NoError(t, c.EvictAndRefresh(context.Background()))

	m := c.CacheMetrics()
	require.EqualValues(t, 0, m.Metadata)
	require.EqualValues(t, 0, m.Items)
	require.EqualValues(t, 1, m.EvictedMetadata)
	require.EqualValues(t, 1, m.EvictedItems)

	getOne(t, c, "P")
	require.Equal(t, 2, src.Calls(source.OpPlaylistItems), "an evicted playlist is loaded again")
}

// TestCache_EvictAndRefresh_TouchKeepsEntry verifies requests renew the access time.
func TestCache_EvictAndRefresh_TouchKeepsEntry(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e", video("v1", 1))
	clk := clock.NewMock()
	c := newTestCache(t, src, inline{}, clk)

	getOne(t, c, "P")
	clk.Add(40 * time.Minute)
	getOne(t, c, "P")
	clk.Add(40 * time.Minute)
	require.NoError(t, c.EvictAndRefresh(context.Background()))

	require.EqualValues(t, 1, c.CacheMetrics().Items)
	require.Equal(t, 1, src.Calls(source.OpPlaylistItems))
}

// TestCache_EvictAndRefresh_ReloadsOnceOnChange verifies a changed token triggers exactly one reload.
func TestCache_EvictAndRefresh_ReloadsOnceOnChange(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e1", video("v1", 2))
	c := newTestCache(t, src, inline{}, clock.NewMock())
	getOne(t, c, "P")

	src.SetPlaylist("P", "e2", video("v2", 1), video("v1", 2))
	require.NoError(t, c.EvictAndRefresh(context.Background()))
	require.Equal(t, 2, src.Calls(source.OpPlaylistItems))

	require.NoError(t, c.EvictAndRefresh(context.Background()))
	require.Equal(t, 2, src.Calls(source.OpPlaylistItems), "an unchanged token must not reload")

	require.Equal(t, []string{"v2", "v1"}, ids(getOne(t, c, "P")))
	etag, _, err := c.Peek("P")
	require.NoError(t, err)
	require.Equal(t, "e2", etag)
	require.EqualValues(t, 1, c.CacheMetrics().Reloads)
}

// TestCache_EvictAndRefresh_NoReloadWhenUnchanged verifies passes leave unchanged playlists alone.
func TestCache_EvictAndRefresh_NoReloadWhenUnchanged(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e1", video("v1", 2))
	c := newTestCache(t, src, inline{}, clock.NewMock())
	getOne(t, c, "P")

	for i := 0; i < 3; i++ {
		require.NoError(t, c.EvictAndRefresh(context.Background()))
	}
	require.Equal(t, 1, src.Calls(source.OpPlaylistItems))
	require.EqualValues(t, 0, c.CacheMetrics().Reloads)
}

// TestCache_EvictAndRefresh_FailedReloadKeepsPrevious verifies a failed refresh keeps serving the old list.
func TestCache_EvictAndRefresh_FailedReloadKeepsPrevious(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e1", video("v1", 2))
	c := newTestCache(t, src, inline{}, clock.NewMock())
	getOne(t, c, "P")

	src.SetETag("P", "e2")
	src.Fail(source.OpPlaylistItems, errors.New("boom"))
	require.NoError(t, c.EvictAndRefresh(context.Background()))

	require.Equal(t, []string{"v1"}, ids(getOne(t, c, "P")))
	require.EqualValues(t, 1, c.CacheMetrics().ReloadErrors)
}

// TestCache_EvictAndRefresh_OldValueServedDuringReload verifies readers are not blocked by a reload.
func TestCache_EvictAndRefresh_OldValueServedDuringReload(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e1", video("v1", 2))
	p := pool.New(2, time.Second, slog.New(slog.DiscardHandler))
	defer func() { require.NoError(t, p.Close(context.Background())) }()
	c := newTestCache(t, src, p, clock.NewMock())
	getOne(t, c, "P")

	release := make(chan struct{})
	src.OnCall(source.OpPlaylistItems, func(context.Context) { <-release })
	src.SetPlaylist("P", "e2", video("v2", 1))
	require.NoError(t, c.EvictAndRefresh(context.Background()))

	require.Equal(t, []string{"v1"}, ids(getOne(t, c, "P")))
	close(release)
	require.Eventually(t, func() bool {
		return ids(getOne(t, c, "P"))[0] == "v2"
	}, time.Second, 5*time.Millisecond)
}

// TestCache_EvictAndRefresh_MetadataFailure verifies a failed pass is reported and counted.
func TestCache_EvictAndRefresh_MetadataFailure(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e1")
	c := newTestCache(t, src, inline{}, clock.NewMock())
	getOne(t, c, "P")

	src.Fail(source.OpPlaylists, errors.New("boom"))
	require.Error(t, c.EvictAndRefresh(context.Background()))
	require.EqualValues(t, 1, c.CacheMetrics().PassErrors)
	require.EqualValues(t, 1, c.CacheMetrics().Items)
}

// TestCache_EvictAndRefresh_NoOverlap verifies a pass requested during another one is skipped.
func TestCache_EvictAndRefresh_NoOverlap(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e1")
	c := newTestCache(t, src, inline{}, clock.NewMock())
	getOne(t, c, "P")

	entered, release := make(chan struct{}), make(chan struct{})
	src.OnCall(source.OpPlaylists, func(context.Context) {
		close(entered)
		<-release
	})

	done := make(chan error, 1)
	go func() { done <- c.EvictAndRefresh(context.Background()) }()
	<-entered

	require.NoError(t, c.EvictAndRefresh(context.Background()))
	require.EqualValues(t, 1, c.CacheMetrics().PassesSkipped)

	close(release)
	require.NoError(t, <-done)
	require.EqualValues(t, 2, c.CacheMetrics().Passes+c.CacheMetrics().PassesSkipped)
}

// TestCache_EvictAndRefresh_RetriesFailedEntries verifies failed loads are retried by the next pass.
func TestCache_EvictAndRefresh_RetriesFailedEntries(t *testing.T) {
	src := fake.New().SetPlaylist("P", "e1", video("v1", 1))
	src.Fail(source.OpPlaylistItems, errors.New("boom"))
	c := newTestCache(t, src, inline{}, clock.NewMock())

	all, err := c.Get(context.Background(), []string{"P"})
	require.NoError(t, err)
	_, err = all.Get(context.Background())
	require.Error(t, err)

	src.Fail(source.OpPlaylistItems, nil)
	require.NoError(t, c.EvictAndRefresh(context.Background()))

	_, h, err := c.Peek("P")
	require.NoError(t, err)
	v, err := h.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"v1"}, ids(v))
}

// TestCounters_Snapshot verifies counters are reported as written.
func TestCounters_Snapshot(t *testing.T) {
	c := newCounters()
	c.hits.Add(3)
	c.reloads.Add(2)
	s := c.snapshot()
	require.EqualValues(t, 3, s.Hits)
	require.EqualValues(t, 2, s.Reloads)
	require.Zero(t, s.Misses)
}
