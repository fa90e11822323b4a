package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Borislavv/go-subbox/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
)

type handler struct {
	svc    Service
	logger *slog.Logger
}

type pageQuery struct {
	PerPage int `form:"perPage,default=20" binding:"min=1,max=50"`
	Page    int `form:"page,default=0" binding:"min=0"`
}

type feedQuery struct {
	Format string `form:"format,default=rss" binding:"oneof=rss atom"`
	Limit  int    `form:"limit,default=50" binding:"min=1,max=200"`
}

// Videos serves one page of the merged uploads of the requested channels.
func (h *handler) Videos(c *gin.Context) {
	ids, err := channelIDs(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var q pageQuery
	if err = c.ShouldBindQuery(&q); err != nil {
		h.writeError(c, &validationError{msg: err.Error()})
		return
	}

	videos, err := h.svc.Page(c.Request.Context(), ids, q.PerPage, q.Page)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, videos)
}

// Count serves the number of videos of the requested channels.
func (h *handler) Count(c *gin.Context) {
	ids, err := channelIDs(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	n, err := h.svc.Count(c.Request.Context(), ids)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// Feed renders the newest videos of the requested channels as RSS or Atom.
func (h *handler) Feed(c *gin.Context) {
	ids, err := channelIDs(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var q feedQuery
	if err = c.ShouldBindQuery(&q); err != nil {
		h.writeError(c, &validationError{msg: err.Error()})
		return
	}

	it, err := h.svc.Videos(c.Request.Context(), ids)
	if err != nil {
		h.writeError(c, err)
		return
	}
	videos, err := stream.Page(it, 0, q.Limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	feed := &feeds.Feed{
		Title:       "Subscriptions: " + strings.Join(ids, ", "),
		Link:        &feeds.Link{Href: requestURL(c)},
		Description: fmt.Sprintf("Latest uploads of %d channels", len(ids)),
		Created:     time.Now().UTC(),
	}
	for _, v := range videos {
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      v.ID,
			Title:   v.Title,
			Link:    &feeds.Link{Href: "https://www.youtube.com/watch?v=" + v.ID},
			Author:  &feeds.Author{Name: v.ChannelID},
			Created: v.PublishedAt,
		})
	}
	if len(videos) > 0 {
		feed.Updated = videos[0].PublishedAt
	}

	var (
		body        string
		contentType string
	)
	if q.Format == "atom" {
		body, err = feed.ToAtom()
		contentType = "application/atom+xml; charset=utf-8"
	} else {
		body, err = feed.ToRss()
		contentType = "application/rss+xml; charset=utf-8"
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, []byte(body))
}

// channelIDs reads channelIds given repeated and/or comma separated,
// dropping duplicates while keeping the first-seen order.
func channelIDs(c *gin.Context) ([]string, error) {
	raw := c.QueryArray("channelIds")
	ids := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, param := range raw {
		for _, id := range strings.Split(param, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				return nil, &validationError{msg: "channelIds must not contain blank entries"}
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, &validationError{msg: "channelIds is required"}
	}
	return ids, nil
}

func requestURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}
