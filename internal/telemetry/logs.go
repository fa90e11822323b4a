package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Borislavv/go-subbox/internal/shared/format"
)

type Logger interface {
	Interval() time.Duration
	Close() error
}

// Logs periodically writes per-interval counter deltas of every component.
type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	src      Sources
	interval time.Duration
}

// NewLogs starts the stat log loop. interval <= 0 disables it.
func NewLogs(ctx context.Context, interval time.Duration, logger *slog.Logger, src Sources) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	return (&Logs{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		src:      src,
		interval: interval,
	}).run()
}

func (l *Logs) Interval() time.Duration {
	return l.interval
}

func (l *Logs) Close() error {
	l.cancel()
	return nil
}

func (l *Logs) run() *Logs {
	if l.interval > 0 {
		go l.loop()
	}
	return l
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	s := newSampler(l.src)
	prev := s.snapshot()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			cur := s.snapshot()
			l.write(deltaSnapshot(prev, cur))
			prev = cur
		}
	}
}

func (l *Logs) write(d snapshot) {
	common := []any{"interval", format.FmtDuration(l.interval)}

	c := l.src.Cache.CacheMetrics()
	l.logger.Info("refresh_engine",
		append(common,
			"hits", format.FmtCount(int64(d.hits)),
			"misses", format.FmtCount(int64(d.misses)),
			"loads", int64(d.loads),
			"load_errors", int64(d.loadErrors),
			"reloads", int64(d.reloads),
			"reload_errors", int64(d.reloadErrors),
			"playlists", c.Items,
		)...,
	)

	_, _, lastNs := l.src.Refresher.RefresherMetrics()
	l.logger.Info("reconciliation",
		append(common,
			"passes", int64(d.passes),
			"errors", int64(d.passErrors),
			"skipped", int64(d.passSkipped),
			"evicted_metadata", int64(d.evictedMeta),
			"evicted_lists", int64(d.evictedItems),
			"last_pass", format.FmtDuration(time.Duration(lastNs)),
		)...,
	)

	r := l.src.Resolver.ResolverMetrics()
	l.logger.Info("resolver",
		append(common,
			"hits", int64(d.resolverHits),
			"misses", int64(d.resolverMisses),
			"fetches", int64(d.resolverFetches),
			"entries", r.Len,
		)...,
	)

	p := l.src.Pool.PoolMetrics()
	l.logger.Info("load_pool",
		append(common,
			"completed", int64(d.poolCompleted),
			"panicked", int64(d.poolPanicked),
			"workers", p.Workers,
			"queued", p.Queued,
		)...,
	)

	if l.src.Upstream != nil {
		l.logger.Info("upstream",
			append(common,
				"requests", int64(d.upstreamRequests),
				"failures", int64(d.upstreamFailures),
			)...,
		)
	}
}
