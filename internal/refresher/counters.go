package refresher

import "sync/atomic"

type refresherCounters struct {
	passes       atomic.Int64 // completed reconciliation passes
	errors       atomic.Int64 // passes that returned an error
	lastDuration atomic.Int64 // nanoseconds of the latest pass
}

func newRefresherCounters() *refresherCounters {
	return &refresherCounters{}
}

func (c *refresherCounters) snapshot() (passes, errors, lastDurationNs int64) {
	passes = c.passes.Load()
	errors = c.errors.Load()
	lastDurationNs = c.lastDuration.Load()
	return
}
