// Package resolver maps channel ids to their uploads playlist ids.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-subbox/config"
	"github.com/Borislavv/go-subbox/internal/source"
	"github.com/Borislavv/go-subbox/model"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// fetchTimeout bounds a shared upstream lookup, which no single caller can cancel.
const fetchTimeout = 30 * time.Second

// NotFoundError lists every requested channel the upstream does not know, in request order.
type NotFoundError struct {
	Keys []string
}

func (e *NotFoundError) Error() string {
	return "channels not found: " + strings.Join(e.Keys, ", ")
}

// ChannelSource is the part of the upstream the resolver needs.
type ChannelSource interface {
	Channels(ctx context.Context, ids []string) ([]model.Channel, error)
}

type resolution struct {
	playlistID string
	found      bool
}

// Metrics is a snapshot of resolver activity.
type Metrics struct {
	Hits    int64
	Misses  int64
	Fetches int64
	Len     int
}

// Resolver caches resolutions with a TTL and a capacity bound.
type Resolver struct {
	src         ChannelSource
	cache       *expirable.LRU[string, resolution]
	cacheMisses bool
	group       singleflight.Group
	logger      *slog.Logger

	hits    atomic.Int64
	misses  atomic.Int64
	fetches atomic.Int64
}

func New(cfg config.ResolutionCfg, src ChannelSource, logger *slog.Logger) *Resolver {
	return &Resolver{
		src:         src,
		cache:       expirable.NewLRU[string, resolution](cfg.Capacity, nil, cfg.TTL),
		cacheMisses: cfg.CacheMisses,
		logger:      logger.With("component", "resolver"),
	}
}

// Resolve returns the uploads playlist of every known key. Keys absent from
// the cache are fetched with one batched upstream call. If any key stays
// unresolved, the resolved subset is returned together with a *NotFoundError.
func (r *Resolver) Resolve(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	known := make(map[string]bool, len(keys))

	var missing []string
	for _, key := range keys {
		if _, seen := known[key]; seen {
			continue
		}
		if res, ok := r.cache.Get(key); ok {
			r.hits.Add(1)
			known[key] = res.found
			if res.found {
				out[key] = res.playlistID
			}
			continue
		}
		r.misses.Add(1)
		known[key] = false
		if key != "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		fetched, err := r.fetch(ctx, missing)
		if err != nil {
			return out, err
		}
		for key, playlistID := range fetched {
			out[key] = playlistID
		}
	}

	var notFound []string
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := out[key]; !ok {
			notFound = append(notFound, key)
		}
	}
	if len(notFound) > 0 {
		return out, &NotFoundError{Keys: notFound}
	}
	return out, nil
}

// ResolverMetrics returns a snapshot of resolver counters.
func (r *Resolver) ResolverMetrics() Metrics {
	return Metrics{
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
		Fetches: r.fetches.Load(),
		Len:     r.cache.Len(),
	}
}

// fetch loads missing keys from the upstream. Identical concurrent batches
// share one call, which outlives the caller that started it.
func (r *Resolver) fetch(ctx context.Context, keys []string) (map[string]string, error) {
	ch := r.group.DoChan(strings.Join(keys, "\x00"), func() (any, error) {
		r.fetches.Add(1)
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		channels, err := r.src.Channels(fctx, keys)
		if err != nil {
			return nil, source.Wrap(source.OpChannels, keys, err)
		}

		resolved := make(map[string]string, len(channels))
		for _, ch := range channels {
			if ch.UploadsPlaylist == "" {
				continue
			}
			resolved[ch.ID] = ch.UploadsPlaylist
			r.cache.Add(ch.ID, resolution{playlistID: ch.UploadsPlaylist, found: true})
		}
		if r.cacheMisses {
			for _, key := range keys {
				if _, ok := resolved[key]; !ok {
					r.cache.Add(key, resolution{})
				}
			}
		}
		return resolved, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, fmt.Errorf("resolve channels: %w", res.Err)
	}
	if res.Shared {
		r.logger.Debug("channel resolution shared with a concurrent request", "keys", len(keys))
	}
	return res.Val.(map[string]string), nil
}
