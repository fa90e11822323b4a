// Package source declares the upstream video platform the service reads from.
package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/Borislavv/go-subbox/model"
)

// MaxBatch is the largest number of ids the upstream accepts per request.
const MaxBatch = 50

// Source is the upstream video platform. Batch methods accept any number of ids
// and split them into requests of at most MaxBatch; ids unknown to the upstream
// are omitted from the result rather than reported as errors.
type Source interface {
	// Channels maps channel ids to their uploads playlist.
	Channels(ctx context.Context, ids []string) ([]model.Channel, error)
	// Playlists returns the current change token of every known playlist.
	Playlists(ctx context.Context, ids []string) ([]model.Playlist, error)
	// PlaylistItems returns one page of video ids. pageToken is empty for the first page.
	PlaylistItems(ctx context.Context, playlistID, pageToken string, maxResults int) (model.PlaylistPage, error)
	// Videos hydrates video ids into videos.
	Videos(ctx context.Context, ids []string) ([]model.Video, error)
}

// UpstreamError reports a failed call to the upstream.
type UpstreamError struct {
	Op  string
	IDs []string
	Err error
}

func (e *UpstreamError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
	}
	ids := e.IDs
	suffix := ""
	if len(ids) > 5 {
		ids, suffix = ids[:5], fmt.Sprintf(" (+%d more)", len(e.IDs)-5)
	}
	return fmt.Sprintf("upstream %s [%s%s]: %v", e.Op, strings.Join(ids, ","), suffix, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Wrap returns err as an *UpstreamError unless it already is one or is nil.
func Wrap(op string, ids []string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*UpstreamError); ok {
		return err
	}
	return &UpstreamError{Op: op, IDs: ids, Err: err}
}

// Batches splits ids into consecutive chunks of at most size elements.
// The chunks share the backing array of ids.
func Batches(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxBatch
	}
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for len(ids) > 0 {
		n := min(size, len(ids))
		out = append(out, ids[:n:n])
		ids = ids[n:]
	}
	return out
}

// Upstream operation names used in errors, spans and metrics.
const (
	OpChannels      = "channels.list"
	OpPlaylists     = "playlists.list"
	OpPlaylistItems = "playlistItems.list"
	OpVideos        = "videos.list"
)
