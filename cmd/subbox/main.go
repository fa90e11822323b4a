// Command subbox serves the merged uploads of YouTube channels over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	subbox "github.com/Borislavv/go-subbox"
	"github.com/Borislavv/go-subbox/config"
	"github.com/Borislavv/go-subbox/internal/api"
	"github.com/Borislavv/go-subbox/internal/source/youtube"
	"github.com/Borislavv/go-subbox/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "subbox:", err)
		os.Exit(1)
	}
}

func run() error {
	path := flag.String("config", os.Getenv("SUBBOX_CONFIG"), "path to the yaml config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*path)
	if err != nil {
		return err
	}
	logger, level, err := telemetry.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error("tracing shutdown failed", "err", err)
		}
	}()

	src, err := youtube.New(ctx, cfg.Source, logger)
	if err != nil {
		return fmt.Errorf("youtube client: %w", err)
	}

	svc := subbox.New(ctx, cfg, src, logger)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("service close failed", "err", err)
		}
	}()

	router := api.NewRouter(cfg.HTTP, svc, telemetry.Handler(svc.Registry()), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Serve(gctx, cfg.HTTP.Addr, router, logger)
	})
	if *path != "" {
		g.Go(func() error {
			return config.Watch(gctx, *path, logger, func(next *config.Config) {
				lvl, err := config.ParseLevel(next.Log.Level)
				if err != nil {
					logger.Warn("ignoring log level", "level", next.Log.Level, "err", err)
					return
				}
				level.Set(lvl)
			})
		})
	}

	logger.Info("subbox is running", "addr", cfg.HTTP.Addr)
	err = g.Wait()
	logger.Info("subbox is stopped")
	return err
}
