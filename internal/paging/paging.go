// Package paging exposes an upstream playlist as a lazy stream of videos.
package paging

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Borislavv/go-subbox/internal/source"
	"github.com/Borislavv/go-subbox/internal/stream"
	"github.com/Borislavv/go-subbox/model"
)

// ErrResolutionFailed is returned when a channel has no uploads playlist.
var ErrResolutionFailed = errors.New("paging: channel has no uploads playlist")

// DefaultPageSize is the number of playlist entries requested per page.
const DefaultPageSize = source.MaxBatch

type state uint8

const (
	unstarted state = iota
	fetching
	hasPage
	exhausted
	failed
)

func (s state) String() string {
	switch s {
	case unstarted:
		return "unstarted"
	case fetching:
		return "fetching"
	case hasPage:
		return "has_page"
	case exhausted:
		return "exhausted"
	case failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Option configures an Iterator.
type Option func(*Iterator)

// WithBudget stops the iterator after n videos. n <= 0 means no limit.
func WithBudget(n int) Option {
	return func(it *Iterator) { it.budget = max(n, 0) }
}

// WithPageSize sets how many entries are requested per page, capped at source.MaxBatch.
func WithPageSize(n int) Option {
	return func(it *Iterator) {
		if n > 0 {
			it.pageSize = min(n, source.MaxBatch)
		}
	}
}

// Iterator pulls one playlist page at a time, only when the previous page is used up.
// It is single-pass and not safe for concurrent use.
type Iterator struct {
	ctx        context.Context
	src        source.Source
	channelID  string
	playlistID string
	pageSize   int
	budget     int

	state   state
	buf     []model.Video
	pos     int
	token   string
	fetched int
	pages   int
	err     error
}

var _ stream.Iterator[model.Video] = (*Iterator)(nil)

// NewUploads iterates the uploads of a channel. The channel is resolved on the first pull.
func NewUploads(ctx context.Context, src source.Source, channelID string, opts ...Option) *Iterator {
	return newIterator(ctx, src, channelID, "", opts)
}

// NewPlaylist iterates a playlist whose id is already known.
func NewPlaylist(ctx context.Context, src source.Source, playlistID string, opts ...Option) *Iterator {
	return newIterator(ctx, src, "", playlistID, opts)
}

func newIterator(ctx context.Context, src source.Source, channelID, playlistID string, opts []Option) *Iterator {
	it := &Iterator{
		ctx:        ctx,
		src:        src,
		channelID:  channelID,
		playlistID: playlistID,
		pageSize:   DefaultPageSize,
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// HasNext reports whether another video is available, fetching the next page if needed.
func (it *Iterator) HasNext() bool {
	for {
		switch it.state {
		case unstarted:
			if it.playlistID == "" {
				if err := it.resolve(); err != nil {
					it.fail(err)
					return false
				}
			}
			it.state = fetching
		case fetching:
			if err := it.fetch(); err != nil {
				it.fail(err)
				return false
			}
		case hasPage:
			if it.pos < len(it.buf) {
				return true
			}
			if it.token == "" || it.budgetSpent() {
				it.state, it.buf = exhausted, nil
				return false
			}
			it.state = fetching
		default:
			return false
		}
	}
}

// Next returns the next video. After the last one it returns stream.ErrExhausted.
func (it *Iterator) Next() (model.Video, error) {
	if !it.HasNext() {
		if it.err != nil {
			return model.Video{}, it.err
		}
		return model.Video{}, stream.ErrExhausted
	}
	v := it.buf[it.pos]
	it.pos++
	return v, nil
}

// Err returns the failure that stopped the iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Pages returns the number of playlist pages fetched so far.
func (it *Iterator) Pages() int { return it.pages }

func (it *Iterator) fail(err error) {
	it.state, it.err, it.buf = failed, err, nil
}

func (it *Iterator) budgetSpent() bool {
	return it.budget > 0 && it.fetched >= it.budget
}

func (it *Iterator) resolve() error {
	channels, err := it.src.Channels(it.ctx, []string{it.channelID})
	if err != nil {
		return err
	}
	for _, ch := range channels {
		if ch.ID == it.channelID && ch.UploadsPlaylist != "" {
			it.playlistID = ch.UploadsPlaylist
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrResolutionFailed, it.channelID)
}

func (it *Iterator) fetch() error {
	n := it.pageSize
	if it.budget > 0 {
		n = min(n, it.budget-it.fetched)
	}

	page, err := it.src.PlaylistItems(it.ctx, it.playlistID, it.token, n)
	if err != nil {
		return err
	}
	it.pages++

	ids := page.VideoIDs
	if len(ids) > n {
		ids = ids[:n]
	}
	videos, err := it.hydrate(ids)
	if err != nil {
		return err
	}

	it.fetched += len(ids)
	it.buf, it.pos, it.token = videos, 0, page.NextPageToken
	it.state = hasPage
	return nil
}

// hydrate loads video details and keeps them in playlist order.
// Videos the upstream no longer knows are dropped.
func (it *Iterator) hydrate(ids []string) ([]model.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	videos, err := it.src.Videos(it.ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Video, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
	}
	out := make([]model.Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Collect loads up to budget videos of a playlist and sorts them newest first.
func Collect(ctx context.Context, src source.Source, playlistID string, budget int) ([]model.Video, error) {
	it := NewPlaylist(ctx, src, playlistID, WithBudget(budget))
	videos, err := stream.Collect(ctx, it)
	if err != nil {
		return nil, fmt.Errorf("collect playlist %s: %w", playlistID, err)
	}
	slices.SortStableFunc(videos, model.ByPublishedDesc)
	return videos, nil
}
