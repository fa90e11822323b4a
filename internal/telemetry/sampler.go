package telemetry

import (
	"github.com/Borislavv/go-subbox/internal/cache"
	"github.com/Borislavv/go-subbox/internal/pool"
	"github.com/Borislavv/go-subbox/internal/resolver"
)

type CacheSource interface {
	CacheMetrics() cache.Metrics
}

type PoolSource interface {
	PoolMetrics() pool.Metrics
}

type ResolverSource interface {
	ResolverMetrics() resolver.Metrics
}

type RefresherSource interface {
	RefresherMetrics() (passes, errors, lastDurationNs int64)
}

// UpstreamSource is implemented by sources that count their upstream calls.
type UpstreamSource interface {
	Requests() int64
	Failures() int64
}

// Sources groups every component reporting counters.
type Sources struct {
	Cache     CacheSource
	Pool      PoolSource
	Resolver  ResolverSource
	Refresher RefresherSource
	Upstream  UpstreamSource // optional
}

type sampler struct {
	src Sources
}

func newSampler(src Sources) sampler {
	return sampler{src: src}
}

// snapshot holds cumulative counters (monotonic).
type snapshot struct {
	hits         uint64
	misses       uint64
	loads        uint64
	loadErrors   uint64
	reloads      uint64
	reloadErrors uint64
	evictedMeta  uint64
	evictedItems uint64

	passes      uint64
	passErrors  uint64
	passSkipped uint64

	resolverHits    uint64
	resolverMisses  uint64
	resolverFetches uint64

	poolCompleted uint64
	poolPanicked  uint64

	upstreamRequests uint64
	upstreamFailures uint64
}

func (s sampler) snapshot() snapshot {
	c := s.src.Cache.CacheMetrics()
	p := s.src.Pool.PoolMetrics()
	r := s.src.Resolver.ResolverMetrics()
	passes, passErrors, _ := s.src.Refresher.RefresherMetrics()

	var upRequests, upFailures int64
	if s.src.Upstream != nil {
		upRequests, upFailures = s.src.Upstream.Requests(), s.src.Upstream.Failures()
	}

	return snapshot{
		hits:         u(c.Hits),
		misses:       u(c.Misses),
		loads:        u(c.Loads),
		loadErrors:   u(c.LoadErrors),
		reloads:      u(c.Reloads),
		reloadErrors: u(c.ReloadErrors),
		evictedMeta:  u(c.EvictedMetadata),
		evictedItems: u(c.EvictedItems),

		passes:      u(passes),
		passErrors:  u(passErrors),
		passSkipped: u(c.PassesSkipped),

		resolverHits:    u(r.Hits),
		resolverMisses:  u(r.Misses),
		resolverFetches: u(r.Fetches),

		poolCompleted: u(p.Completed),
		poolPanicked:  u(p.Panicked),

		upstreamRequests: u(upRequests),
		upstreamFailures: u(upFailures),
	}
}

func u(v int64) uint64 { return uint64(max(v, 0)) }

// deltaSnapshot converts cumulative snapshots to per-interval deltas.
// If counters reset (cur < prev), it treats cur as the delta.
func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		hits:         delta(prev.hits, cur.hits),
		misses:       delta(prev.misses, cur.misses),
		loads:        delta(prev.loads, cur.loads),
		loadErrors:   delta(prev.loadErrors, cur.loadErrors),
		reloads:      delta(prev.reloads, cur.reloads),
		reloadErrors: delta(prev.reloadErrors, cur.reloadErrors),
		evictedMeta:  delta(prev.evictedMeta, cur.evictedMeta),
		evictedItems: delta(prev.evictedItems, cur.evictedItems),

		passes:      delta(prev.passes, cur.passes),
		passErrors:  delta(prev.passErrors, cur.passErrors),
		passSkipped: delta(prev.passSkipped, cur.passSkipped),

		resolverHits:    delta(prev.resolverHits, cur.resolverHits),
		resolverMisses:  delta(prev.resolverMisses, cur.resolverMisses),
		resolverFetches: delta(prev.resolverFetches, cur.resolverFetches),

		poolCompleted: delta(prev.poolCompleted, cur.poolCompleted),
		poolPanicked:  delta(prev.poolPanicked, cur.poolPanicked),

		upstreamRequests: delta(prev.upstreamRequests, cur.upstreamRequests),
		upstreamFailures: delta(prev.upstreamFailures, cur.upstreamFailures),
	}
}

func delta(prev, cur uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}
