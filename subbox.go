// Package subbox aggregates the uploads of many channels into one
// newest-first stream, shielding the upstream from repeated requests.
package subbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Borislavv/go-subbox/config"
	"github.com/Borislavv/go-subbox/internal/cache"
	"github.com/Borislavv/go-subbox/internal/merge"
	"github.com/Borislavv/go-subbox/internal/paging"
	"github.com/Borislavv/go-subbox/internal/pool"
	"github.com/Borislavv/go-subbox/internal/refresher"
	"github.com/Borislavv/go-subbox/internal/resolver"
	"github.com/Borislavv/go-subbox/internal/source"
	"github.com/Borislavv/go-subbox/internal/stream"
	"github.com/Borislavv/go-subbox/internal/telemetry"
	"github.com/Borislavv/go-subbox/model"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Errors callers may classify with errors.As / errors.Is.
type (
	NotFoundError = resolver.NotFoundError
	UpstreamError = source.UpstreamError
)

var (
	ErrResolutionFailed = paging.ErrResolutionFailed
	ErrExhausted        = stream.ErrExhausted
	ErrClosed           = pool.ErrClosed
)

const closeTimeout = 10 * time.Second

type SubBox interface {
	Videos(ctx context.Context, channelIDs []string) (stream.Iterator[model.Video], error)
	Page(ctx context.Context, channelIDs []string, perPage, page int) ([]model.Video, error)
	Count(ctx context.Context, channelIDs []string) (int, error)
	Registry() *prometheus.Registry
	io.Closer
}

// Service composes the resolution cache, the refresh engine and its workers.
type Service struct {
	cache.Cacher
	refresher.Refresher
	telemetry.Logger

	resolver *resolver.Resolver
	pool     *pool.Pool
	registry *prometheus.Registry
	logger   *slog.Logger
	cls      context.CancelFunc
	once     sync.Once
}

var _ SubBox = (*Service)(nil)

type options struct {
	clock clock.Clock
}

type Option func(*options)

// WithClock replaces the wall clock of the engine and the refresher.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// New wires the service on top of src. Background workers live until Close.
func New(ctx context.Context, cfg *config.Config, src source.Source, logger *slog.Logger, opts ...Option) *Service {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(ctx)
	budget := cfg.Source.VideosPerPlaylist
	loader := func(ctx context.Context, playlistID string) ([]model.Video, error) {
		return paging.Collect(ctx, src, playlistID, budget)
	}

	loads := pool.New(cfg.Pool.Size, cfg.Pool.IdleTimeout, logger)
	cacher := cache.New(ctx, cfg.Cache, src, loader, loads, o.clock, logger)
	refresh := refresher.New(ctx, cfg.Cache, logger, cacher, o.clock)
	resolve := resolver.New(cfg.Resolution, src, logger)

	sources := telemetry.Sources{Cache: cacher, Pool: loads, Resolver: resolve, Refresher: refresh}
	if up, ok := src.(telemetry.UpstreamSource); ok {
		sources.Upstream = up
	}
	telemeter := telemetry.NewLogs(ctx, cfg.Telemetry.StatLogsInterval, logger, sources)

	return &Service{
		Cacher:    cacher,
		Refresher: refresh,
		Logger:    telemeter,
		resolver:  resolve,
		pool:      loads,
		registry:  telemetry.NewRegistry(sources),
		logger:    logger,
		cls:       cancel,
	}
}

// Videos returns the merged, newest-first uploads of channelIDs. It fails
// with *NotFoundError when any channel is unknown and with *UpstreamError
// when the upstream cannot be reached. ctx bounds only the wait for loads.
func (s *Service) Videos(ctx context.Context, channelIDs []string) (stream.Iterator[model.Video], error) {
	lists, err := s.lists(ctx, channelIDs)
	if err != nil {
		return nil, err
	}
	its := make([]stream.Iterator[model.Video], 0, len(lists))
	for _, list := range lists {
		its = append(its, stream.FromSlice(list))
	}
	return merge.Sorted(its, model.ByPublishedDesc), nil
}

// Page returns page number page (from 0) of perPage videos of the merged stream.
// A page past the end, including one whose offset does not fit an int, is empty.
func (s *Service) Page(ctx context.Context, channelIDs []string, perPage, page int) ([]model.Video, error) {
	it, err := s.Videos(ctx, channelIDs)
	if err != nil {
		return nil, err
	}
	if perPage <= 0 || page < 0 || page > math.MaxInt/perPage {
		return []model.Video{}, nil
	}
	return stream.Page(it, page*perPage, perPage)
}

// Count returns the total number of videos of channelIDs.
func (s *Service) Count(ctx context.Context, channelIDs []string) (int, error) {
	lists, err := s.lists(ctx, channelIDs)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, list := range lists {
		n += len(list)
	}
	return n, nil
}

// Registry returns the Prometheus registry of the service metrics.
func (s *Service) Registry() *prometheus.Registry { return s.registry }

// ResolverMetrics returns a snapshot of the channel resolution cache.
func (s *Service) ResolverMetrics() resolver.Metrics { return s.resolver.ResolverMetrics() }

// PoolMetrics returns a snapshot of the load pool.
func (s *Service) PoolMetrics() pool.Metrics { return s.pool.PoolMetrics() }

// Close stops the workers and waits for running loads. It is idempotent.
func (s *Service) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.Refresher.Close()
		_ = s.Logger.Close()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err = s.pool.Close(ctx); err != nil {
			s.logger.Warn("load pool did not drain in time", "err", err)
		}
		s.cls()
	})
	return err
}

func (s *Service) lists(ctx context.Context, channelIDs []string) ([][]model.Video, error) {
	resolved, err := s.resolver.Resolve(ctx, channelIDs)
	if err != nil {
		return nil, err
	}

	playlists := make([]string, 0, len(resolved))
	seen := make(map[string]struct{}, len(resolved))
	for _, ch := range channelIDs {
		pl := resolved[ch]
		if _, dup := seen[pl]; dup {
			continue
		}
		seen[pl] = struct{}{}
		playlists = append(playlists, pl)
	}

	handles, err := s.Cacher.Get(ctx, playlists)
	if err != nil {
		return nil, err
	}
	lists, err := handles.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load uploads: %w", err)
	}
	return lists, nil
}
