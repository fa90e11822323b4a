// Package youtube implements source.Source on top of the YouTube Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-subbox/config"
	"github.com/Borislavv/go-subbox/internal/shared/rate"
	"github.com/Borislavv/go-subbox/internal/source"
	"github.com/Borislavv/go-subbox/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

const tracerName = "github.com/Borislavv/go-subbox/internal/source/youtube"

var errNoAPIKey = errors.New("youtube: source.api_key is required")

// Client is a paced, traced YouTube Data API client.
type Client struct {
	svc         *yt.Service
	jitter      *rate.Jitter
	concurrency int
	logger      *slog.Logger
	tracer      trace.Tracer
	requests    atomic.Int64
	failures    atomic.Int64
}

var _ source.Source = (*Client)(nil)

// New creates a client authenticated with the configured API key. Extra
// options are appended, which lets tests point the client at a local server.
func New(ctx context.Context, cfg config.SourceCfg, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if cfg.APIKey == "" && len(opts) == 0 {
		return nil, errNoAPIKey
	}

	base := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.AppName != "" {
		base = append(base, option.WithUserAgent(cfg.AppName))
	}
	svc, err := yt.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	return &Client{
		svc:         svc,
		jitter:      rate.NewJitter(ctx, cfg.RequestsPerSec),
		concurrency: max(cfg.BatchConcurrency, 1),
		logger:      logger.With("component", "youtube"),
		tracer:      otel.Tracer(tracerName),
	}, nil
}

// Requests returns the number of upstream requests issued so far.
func (c *Client) Requests() int64 { return c.requests.Load() }

// Failures returns the number of failed upstream requests.
func (c *Client) Failures() int64 { return c.failures.Load() }

func (c *Client) Channels(ctx context.Context, ids []string) ([]model.Channel, error) {
	return fanOut(ctx, c, source.OpChannels, ids, func(ctx context.Context, chunk []string) ([]model.Channel, error) {
		resp, err := c.svc.Channels.List([]string{"contentDetails"}).
			Id(chunk...).
			Fields("items(id,contentDetails/relatedPlaylists/uploads)").
			Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		out := make([]model.Channel, 0, len(resp.Items))
		for _, item := range resp.Items {
			if item.ContentDetails == nil || item.ContentDetails.RelatedPlaylists == nil {
				continue
			}
			out = append(out, model.Channel{ID: item.Id, UploadsPlaylist: item.ContentDetails.RelatedPlaylists.Uploads})
		}
		return out, nil
	})
}

func (c *Client) Playlists(ctx context.Context, ids []string) ([]model.Playlist, error) {
	return fanOut(ctx, c, source.OpPlaylists, ids, func(ctx context.Context, chunk []string) ([]model.Playlist, error) {
		resp, err := c.svc.Playlists.List([]string{"id"}).
			Id(chunk...).
			Fields("items(id,etag)").
			Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		out := make([]model.Playlist, 0, len(resp.Items))
		for _, item := range resp.Items {
			out = append(out, model.Playlist{ID: item.Id, ETag: item.Etag})
		}
		return out, nil
	})
}

func (c *Client) PlaylistItems(ctx context.Context, playlistID, pageToken string, maxResults int) (model.PlaylistPage, error) {
	if maxResults <= 0 || maxResults > source.MaxBatch {
		maxResults = source.MaxBatch
	}

	var page model.PlaylistPage
	err := c.call(ctx, source.OpPlaylistItems, []string{playlistID}, func(ctx context.Context) error {
		call := c.svc.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(int64(maxResults)).
			Fields("nextPageToken,items/contentDetails/videoId")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return err
		}
		page.NextPageToken = resp.NextPageToken
		page.VideoIDs = make([]string, 0, len(resp.Items))
		for _, item := range resp.Items {
			if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
				page.VideoIDs = append(page.VideoIDs, item.ContentDetails.VideoId)
			}
		}
		return nil
	})
	return page, err
}

func (c *Client) Videos(ctx context.Context, ids []string) ([]model.Video, error) {
	return fanOut(ctx, c, source.OpVideos, ids, func(ctx context.Context, chunk []string) ([]model.Video, error) {
		resp, err := c.svc.Videos.List([]string{"snippet"}).
			Id(chunk...).
			Fields("items(id,snippet(channelId,publishedAt,title,thumbnails/default/url))").
			Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		out := make([]model.Video, 0, len(resp.Items))
		for _, item := range resp.Items {
			v, err := toVideo(item)
			if err != nil {
				c.logger.Warn("skipping malformed video", "id", item.Id, "err", err)
				continue
			}
			out = append(out, v)
		}
		return out, nil
	})
}

func toVideo(item *yt.Video) (model.Video, error) {
	if item.Snippet == nil {
		return model.Video{}, errors.New("missing snippet")
	}
	published, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
	if err != nil {
		return model.Video{}, fmt.Errorf("parse publishedAt: %w", err)
	}
	v := model.Video{
		ID:          item.Id,
		ChannelID:   item.Snippet.ChannelId,
		PublishedAt: published,
		Title:       item.Snippet.Title,
	}
	if th := item.Snippet.Thumbnails; th != nil && th.Default != nil {
		v.Thumbnail = th.Default.Url
	}
	return v, nil
}

// call paces, traces and counts one upstream request. Errors come back as *source.UpstreamError.
func (c *Client) call(ctx context.Context, op string, ids []string, fn func(ctx context.Context) error) error {
	if err := c.jitter.Wait(ctx); err != nil {
		return source.Wrap(op, ids, err)
	}

	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("youtube.op", op),
		attribute.Int("youtube.ids", len(ids)),
	))
	defer span.End()

	c.requests.Add(1)
	if err := fn(ctx); err != nil {
		c.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("upstream call failed", "op", op, "ids", len(ids), "err", err)
		return source.Wrap(op, ids, err)
	}
	return nil
}

// fanOut splits ids into chunks of source.MaxBatch, runs them with bounded
// concurrency and concatenates the results in chunk order.
func fanOut[T any](
	ctx context.Context,
	c *Client,
	op string,
	ids []string,
	fetch func(ctx context.Context, chunk []string) ([]T, error),
) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	chunks := source.Batches(ids, source.MaxBatch)
	results := make([][]T, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			return c.call(gctx, op, chunk, func(ctx context.Context) error {
				res, err := fetch(ctx, chunk)
				results[i] = res
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, r := range results {
		total += len(r)
	}
	out := make([]T, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
