package subbox

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/Borislavv/go-subbox/config"
	"github.com/Borislavv/go-subbox/internal/source"
	"github.com/Borislavv/go-subbox/internal/source/fake"
	"github.com/Borislavv/go-subbox/internal/stream"
	"github.com/Borislavv/go-subbox/model"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func at(sec int) time.Time { return time.Unix(int64(sec), 0).UTC() }

func exampleSource() *fake.Source {
	return fake.New().
		AddChannel("A", "UU_A").
		AddChannel("B", "UU_B").
		SetPlaylist("UU_A", "ea",
			model.Video{ID: "a1", ChannelID: "A", PublishedAt: at(10)},
			model.Video{ID: "a2", ChannelID: "A", PublishedAt: at(8)},
		).
		SetPlaylist("UU_B", "eb",
			model.Video{ID: "b1", ChannelID: "B", PublishedAt: at(9)},
		)
}

func newTestService(t *testing.T, src source.Source, opts ...Option) *Service {
	t.Helper()
	s := New(context.Background(), config.Default(), src, slog.New(slog.DiscardHandler), opts...)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func ids(vs []model.Video) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ID)
	}
	return out
}

// TestService_Page verifies the merged stream is sliced into pages.
func TestService_Page(t *testing.T) {
	s := newTestService(t, exampleSource())
	ctx := context.Background()

	page0, err := s.Page(ctx, []string{"A", "B"}, 2, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "b1"}, ids(page0))

	page1, err := s.Page(ctx, []string{"A", "B"}, 2, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"a2"}, ids(page1))

	page2, err := s.Page(ctx, []string{"A", "B"}, 2, 2)
	require.NoError(t, err)
	require.Empty(t, page2)
}

// TestService_PageOutOfRange verifies pages whose offset overflows are empty, not page 0.
func TestService_PageOutOfRange(t *testing.T) {
	s := newTestService(t, exampleSource())
	ctx := context.Background()

	for _, page := range []int{1 << 62, math.MaxInt / 2, math.MaxInt} {
		videos, err := s.Page(ctx, []string{"A", "B"}, 2, page)
		require.NoError(t, err)
		require.Empty(t, videos, "page %d", page)
	}

	videos, err := s.Page(ctx, []string{"A", "B"}, 0, 0)
	require.NoError(t, err)
	require.Empty(t, videos)
}

// TestService_NotFound verifies an unknown channel fails the request and names it.
func TestService_NotFound(t *testing.T) {
	s := newTestService(t, exampleSource())

	_, err := s.Page(context.Background(), []string{"A", "Z"}, 20, 0)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, []string{"Z"}, nf.Keys)
}

// TestService_Count verifies the total of all channels.
func TestService_Count(t *testing.T) {
	s := newTestService(t, exampleSource())
	n, err := s.Count(context.Background(), []string{"B", "A"})
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

// TestService_Videos verifies the stream is newest first and reuses cached playlists.
func TestService_Videos(t *testing.T) {
	src := exampleSource()
	s := newTestService(t, src)

	for i := 0; i < 3; i++ {
		it, err := s.Videos(context.Background(), []string{"B", "A", "A"})
		require.NoError(t, err)
		all, err := stream.Collect(context.Background(), it)
		require.NoError(t, err)
		require.Equal(t, []string{"a1", "b1", "a2"}, ids(all))
	}
	require.Equal(t, 1, src.Calls(source.OpChannels))
	require.Equal(t, 1, src.Calls(source.OpPlaylists))
	require.Equal(t, 2, src.Calls(source.OpPlaylistItems))
	require.EqualValues(t, 4, s.CacheMetrics().Hits)
}

// TestService_Upstream verifies upstream failures are reported as such.
func TestService_Upstream(t *testing.T) {
	src := exampleSource()
	src.Fail(source.OpPlaylistItems, errors.New("quota"))
	s := newTestService(t, src)

	_, err := s.Page(context.Background(), []string{"A"}, 20, 0)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
}

// TestService_BackgroundRefresh verifies the refresher picks up upstream changes.
func TestService_BackgroundRefresh(t *testing.T) {
	src := exampleSource()
	clk := clock.NewMock()
	s := newTestService(t, src, WithClock(clk))

	_, err := s.Page(context.Background(), []string{"B"}, 20, 0)
	require.NoError(t, err)

	src.SetPlaylist("UU_B", "eb2",
		model.Video{ID: "b2", ChannelID: "B", PublishedAt: at(11)},
		model.Video{ID: "b1", ChannelID: "B", PublishedAt: at(9)},
	)
	clk.Add(config.DefaultUpdatePeriod)

	require.Eventually(t, func() bool {
		page, err := s.Page(context.Background(), []string{"B"}, 20, 0)
		return err == nil && len(page) == 2 && page[0].ID == "b2"
	}, 2*time.Second, 5*time.Millisecond)
}

// TestService_Close verifies Close is idempotent and stops accepting loads.
func TestService_Close(t *testing.T) {
	s := New(context.Background(), config.Default(), exampleSource(), slog.New(slog.DiscardHandler))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Page(context.Background(), []string{"A"}, 20, 0)
	require.ErrorIs(t, err, ErrClosed)
}

// countingSource reports upstream call counters like the YouTube client does.
type countingSource struct {
	*fake.Source
}

func (s countingSource) Requests() int64 {
	return int64(s.Calls(source.OpChannels) + s.Calls(source.OpPlaylists) + s.Calls(source.OpPlaylistItems) + s.Calls(source.OpVideos))
}

func (s countingSource) Failures() int64 { return 0 }

// TestService_UpstreamMetrics verifies upstream counters reach the registry when the source reports them.
func TestService_UpstreamMetrics(t *testing.T) {
	s := newTestService(t, countingSource{exampleSource()})
	_, err := s.Count(context.Background(), []string{"A"})
	require.NoError(t, err)

	families, err := s.Registry().Gather()
	require.NoError(t, err)
	var requests float64
	for _, mf := range families {
		if mf.GetName() == "subbox_upstream_requests_total" {
			requests = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Positive(t, requests)

	plain := newTestService(t, exampleSource())
	families, err = plain.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		require.NotEqual(t, "subbox_upstream_requests_total", mf.GetName())
	}
}
