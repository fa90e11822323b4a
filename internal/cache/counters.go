package cache

import "sync/atomic"

type counters struct {
	hits            atomic.Int64
	misses          atomic.Int64
	loads           atomic.Int64
	loadErrors      atomic.Int64
	reloads         atomic.Int64
	reloadErrors    atomic.Int64
	evictedMetadata atomic.Int64
	evictedItems    atomic.Int64
	passes          atomic.Int64
	passErrors      atomic.Int64
	passesSkipped   atomic.Int64
}

func newCounters() *counters {
	return &counters{}
}

// Metrics is a point-in-time view of the engine counters.
type Metrics struct {
	Hits            int64
	Misses          int64
	Loads           int64
	LoadErrors      int64
	Reloads         int64
	ReloadErrors    int64
	EvictedMetadata int64
	EvictedItems    int64
	Passes          int64
	PassErrors      int64
	PassesSkipped   int64
	Metadata        int64
	Items           int64
}

func (c *counters) snapshot() Metrics {
	return Metrics{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Loads:           c.loads.Load(),
		LoadErrors:      c.loadErrors.Load(),
		Reloads:         c.reloads.Load(),
		ReloadErrors:    c.reloadErrors.Load(),
		EvictedMetadata: c.evictedMetadata.Load(),
		EvictedItems:    c.evictedItems.Load(),
		Passes:          c.passes.Load(),
		PassErrors:      c.passErrors.Load(),
		PassesSkipped:   c.passesSkipped.Load(),
	}
}
