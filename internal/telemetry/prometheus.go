package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "subbox"

// NewRegistry exposes the component counters as Prometheus metrics. Values
// are read from the components on scrape, so nothing is double counted.
func NewRegistry(src Sources) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	counter := func(subsystem, name, help string, fn func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, func() float64 { return float64(fn()) })
	}
	gauge := func(subsystem, name, help string, fn func() int64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, func() float64 { return float64(fn()) })
	}

	c := src.Cache.CacheMetrics
	reg.MustRegister(
		counter("cache", "hits_total", "Requests served by an existing playlist entry.", func() int64 { return c().Hits }),
		counter("cache", "misses_total", "Requests that created a playlist entry.", func() int64 { return c().Misses }),
		counter("cache", "loads_total", "Playlist loads started.", func() int64 { return c().Loads }),
		counter("cache", "load_errors_total", "Playlist loads that failed.", func() int64 { return c().LoadErrors }),
		counter("cache", "reloads_total", "Background reloads started after a token change.", func() int64 { return c().Reloads }),
		counter("cache", "reload_errors_total", "Background reloads that failed.", func() int64 { return c().ReloadErrors }),
		counter("cache", "evicted_metadata_total", "Metadata entries evicted.", func() int64 { return c().EvictedMetadata }),
		counter("cache", "evicted_lists_total", "Video list entries evicted.", func() int64 { return c().EvictedItems }),
		counter("cache", "passes_skipped_total", "Reconciliation passes skipped because one was running.", func() int64 { return c().PassesSkipped }),
		gauge("cache", "playlists", "Cached playlists.", func() int64 { return c().Items }),
	)

	reg.MustRegister(
		counter("refresher", "passes_total", "Reconciliation passes run.", func() int64 {
			passes, _, _ := src.Refresher.RefresherMetrics()
			return passes
		}),
		counter("refresher", "errors_total", "Reconciliation passes that failed.", func() int64 {
			_, errs, _ := src.Refresher.RefresherMetrics()
			return errs
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "refresher", Name: "last_pass_seconds",
			Help: "Duration of the latest reconciliation pass.",
		}, func() float64 {
			_, _, ns := src.Refresher.RefresherMetrics()
			return float64(ns) / 1e9
		}),
	)

	r := src.Resolver.ResolverMetrics
	reg.MustRegister(
		counter("resolver", "hits_total", "Channel resolutions served from cache.", func() int64 { return r().Hits }),
		counter("resolver", "misses_total", "Channel resolutions not in cache.", func() int64 { return r().Misses }),
		counter("resolver", "fetches_total", "Batched upstream channel lookups.", func() int64 { return r().Fetches }),
		gauge("resolver", "entries", "Cached channel resolutions.", func() int64 { return int64(r().Len) }),
	)

	p := src.Pool.PoolMetrics
	reg.MustRegister(
		counter("pool", "completed_total", "Load tasks finished.", func() int64 { return p().Completed }),
		counter("pool", "panicked_total", "Load tasks that panicked.", func() int64 { return p().Panicked }),
		gauge("pool", "workers", "Live pool workers.", func() int64 { return int64(p().Workers) }),
		gauge("pool", "queued", "Tasks waiting for a worker.", func() int64 { return int64(p().Queued) }),
	)

	if up := src.Upstream; up != nil {
		reg.MustRegister(
			counter("upstream", "requests_total", "Upstream API calls issued.", up.Requests),
			counter("upstream", "failures_total", "Upstream API calls that failed.", up.Failures),
		)
	}

	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
