// Package refresher runs the periodic reconciliation pass of the refresh engine.
package refresher

import (
	"context"
	"log/slog"

	"github.com/Borislavv/go-subbox/config"
	"github.com/benbjohnson/clock"
)

// Reconciler is the engine side of a pass. *cache.Cache satisfies it.
type Reconciler interface {
	EvictAndRefresh(ctx context.Context) error
}

type Refresher interface {
	RefresherMetrics() (passes, errors, lastDurationNs int64)
	Close() error
}

// RefreshWorker triggers one pass per update period from a single goroutine,
// so passes never overlap.
type RefreshWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	cfg      config.CacheCfg
	engine   Reconciler
	clock    clock.Clock
	logger   *slog.Logger
	counters *refresherCounters
}

// New starts the worker. clk may be nil for the wall clock.
func New(
	ctx context.Context,
	cfg config.CacheCfg,
	logger *slog.Logger,
	engine Reconciler,
	clk clock.Clock,
) Refresher {
	if cfg.RefreshDisabled || cfg.UpdatePeriod <= 0 {
		return &NoOpRefresher{}
	}
	if clk == nil {
		clk = clock.New()
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&RefreshWorker{
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		cfg:      cfg,
		engine:   engine,
		clock:    clk,
		logger:   logger,
		counters: newRefresherCounters(),
	}).run()
}

func (w *RefreshWorker) RefresherMetrics() (passes, errors, lastDurationNs int64) {
	return w.counters.snapshot()
}

// Close stops the worker and waits for a running pass to notice cancellation.
func (w *RefreshWorker) Close() error {
	w.cancel()
	<-w.done
	return nil
}

func (w *RefreshWorker) run() *RefreshWorker {
	w.logger.Info("refresher is running",
		"update_period", w.cfg.UpdatePeriod,
		"eviction_threshold", w.cfg.EvictionThreshold,
	)

	ticker := w.clock.Ticker(w.cfg.UpdatePeriod)
	go func() {
		defer close(w.done)
		defer w.logger.Info("refresher is stopped")
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.pass()
			}
		}
	}()

	return w
}

func (w *RefreshWorker) pass() {
	start := w.clock.Now()
	err := w.engine.EvictAndRefresh(w.ctx)
	w.counters.lastDuration.Store(int64(w.clock.Since(start)))
	w.counters.passes.Add(1)

	if err != nil {
		if w.ctx.Err() != nil {
			return
		}
		w.counters.errors.Add(1)
		w.logger.Error("reconciliation pass failed", "err", err)
	}
}
