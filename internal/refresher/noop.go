package refresher

// NoOpRefresher is used when background reconciliation is disabled.
type NoOpRefresher struct{}

// RefresherMetrics always returns zero values.
func (NoOpRefresher) RefresherMetrics() (passes, errors, lastDurationNs int64) {
	return 0, 0, 0
}

// Close does nothing and returns nil.
func (NoOpRefresher) Close() error {
	return nil
}
