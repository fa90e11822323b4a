// Package api exposes the service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Borislavv/go-subbox/config"
	"github.com/Borislavv/go-subbox/internal/stream"
	"github.com/Borislavv/go-subbox/model"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Service is the part of subbox.Service the handlers use.
type Service interface {
	Videos(ctx context.Context, channelIDs []string) (stream.Iterator[model.Video], error)
	Page(ctx context.Context, channelIDs []string, perPage, page int) ([]model.Video, error)
	Count(ctx context.Context, channelIDs []string) (int, error)
}

// NewRouter builds the gin engine. metrics may be nil to skip /metrics.
func NewRouter(cfg config.HTTPCfg, svc Service, metrics http.Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(logger))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodOptions}
	corsCfg.ExposeHeaders = []string{RequestIDHeader}
	if len(cfg.CORSOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	h := &handler{svc: svc, logger: logger}
	r.GET("/videos", h.Videos)
	r.GET("/videos/count", h.Count)
	r.GET("/feed", h.Feed)
	return r
}
