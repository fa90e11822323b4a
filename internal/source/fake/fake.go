// Package fake provides an in-memory source.Source that records every call.
package fake

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"

	"github.com/Borislavv/go-subbox/internal/source"
	"github.com/Borislavv/go-subbox/model"
)

var errPlaylistNotFound = errors.New("playlist not found")

// Source is an in-memory upstream. The zero value is not usable; use New.
type Source struct {
	mu       sync.Mutex
	uploads  map[string]string      // channel id -> uploads playlist id
	etags    map[string]string      // playlist id -> etag
	items    map[string][]string    // playlist id -> video ids, upstream order
	videos   map[string]model.Video // video id -> video
	failures map[string]error       // op -> error returned by every call
	requests map[string][][]string  // op -> ids of every call
	hooks    map[string]func(context.Context)
}

// New returns an empty source.
func New() *Source {
	return &Source{
		uploads:  make(map[string]string),
		etags:    make(map[string]string),
		items:    make(map[string][]string),
		videos:   make(map[string]model.Video),
		failures: make(map[string]error),
		requests: make(map[string][][]string),
		hooks:    make(map[string]func(context.Context)),
	}
}

// AddChannel registers a channel with its uploads playlist.
func (s *Source) AddChannel(channelID, playlistID string) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[channelID] = playlistID
	return s
}

// SetPlaylist replaces the content and etag of a playlist. Videos are listed in the given order.
func (s *Source) SetPlaylist(playlistID, etag string, videos ...model.Video) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.etags[playlistID] = etag
	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		s.videos[v.ID] = v
		ids = append(ids, v.ID)
	}
	s.items[playlistID] = ids
	return s
}

// SetETag changes the etag of a playlist without touching its content.
func (s *Source) SetETag(playlistID, etag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.etags[playlistID] = etag
}

// RemovePlaylist makes the upstream forget a playlist.
func (s *Source) RemovePlaylist(playlistID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.etags, playlistID)
	delete(s.items, playlistID)
}

// Fail makes every call of op return err. A nil err clears the failure.
func (s *Source) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// OnCall installs fn to run at the start of every call of op, outside the lock.
// Tests use it to block or observe loads.
func (s *Source) OnCall(op string, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[op] = fn
}

// Calls returns how many times op was invoked.
func (s *Source) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests[op])
}

// Requests returns the ids passed to every call of op.
func (s *Source) Requests(op string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests[op])
}

func (s *Source) begin(ctx context.Context, op string, ids []string) error {
	s.mu.Lock()
	s.requests[op] = append(s.requests[op], slices.Clone(ids))
	hook := s.hooks[op]
	s.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[op]; err != nil {
		return source.Wrap(op, ids, err)
	}
	return ctx.Err()
}

func (s *Source) Channels(ctx context.Context, ids []string) ([]model.Channel, error) {
	if err := s.begin(ctx, source.OpChannels, ids); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Channel, 0, len(ids))
	for _, id := range ids {
		if pl, ok := s.uploads[id]; ok {
			out = append(out, model.Channel{ID: id, UploadsPlaylist: pl})
		}
	}
	return out, nil
}

func (s *Source) Playlists(ctx context.Context, ids []string) ([]model.Playlist, error) {
	if err := s.begin(ctx, source.OpPlaylists, ids); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Playlist, 0, len(ids))
	for _, id := range ids {
		if etag, ok := s.etags[id]; ok {
			out = append(out, model.Playlist{ID: id, ETag: etag})
		}
	}
	return out, nil
}

// PlaylistItems pages through a playlist. Page tokens are decimal offsets.
func (s *Source) PlaylistItems(ctx context.Context, playlistID, pageToken string, maxResults int) (model.PlaylistPage, error) {
	if err := s.begin(ctx, source.OpPlaylistItems, []string{playlistID, pageToken}); err != nil {
		return model.PlaylistPage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, ok := s.items[playlistID]
	if !ok {
		return model.PlaylistPage{}, source.Wrap(source.OpPlaylistItems, []string{playlistID}, errPlaylistNotFound)
	}
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return model.PlaylistPage{}, source.Wrap(source.OpPlaylistItems, []string{playlistID}, err)
		}
		offset = n
	}
	if maxResults <= 0 || maxResults > source.MaxBatch {
		maxResults = source.MaxBatch
	}

	end := min(offset+maxResults, len(all))
	page := model.PlaylistPage{VideoIDs: slices.Clone(all[min(offset, end):end])}
	if end < len(all) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (s *Source) Videos(ctx context.Context, ids []string) ([]model.Video, error) {
	if err := s.begin(ctx, source.OpVideos, ids); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}
