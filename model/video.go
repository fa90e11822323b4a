package model

import (
	"cmp"
	"time"
)

// Video is one uploaded item of a channel. Values are immutable once fetched.
type Video struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channelId"`
	PublishedAt time.Time `json:"publishedAt"`
	Title       string    `json:"title"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
}

// ByPublishedDesc orders newest videos first. Equal timestamps fall back to the
// id so that sorting a single slice is deterministic.
func ByPublishedDesc(a, b Video) int {
	if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
