package format

import (
	"strconv"
	"strings"
	"time"
)

// FmtDuration renders d as compact day/hour/minute/second parts followed by
// fractional milliseconds, e.g. "1h2m3s4.5ms". Zero renders as "0ms".
func FmtDuration(d time.Duration) string {
	if d == 0 {
		return "0ms"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}

	const day = 24 * time.Hour
	parts := []struct {
		unit   time.Duration
		suffix string
	}{
		{day, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	}
	for _, p := range parts {
		if n := d / p.unit; n > 0 {
			b.WriteString(strconv.FormatInt(int64(n), 10))
			b.WriteString(p.suffix)
			d -= n * p.unit
		}
	}

	if d > 0 {
		millis := float64(d) / float64(time.Millisecond)
		b.WriteString(strconv.FormatFloat(millis, 'f', -1, 64))
		b.WriteString("ms")
	}
	return b.String()
}

// FmtCount renders large counters with a k/M suffix for log lines.
func FmtCount(n int64) string {
	const (
		K = 1000
		M = K * 1000
	)
	switch {
	case n >= M || n <= -M:
		return strconv.FormatFloat(float64(n)/M, 'f', 1, 64) + "M"
	case n >= K || n <= -K:
		return strconv.FormatFloat(float64(n)/K, 'f', 1, 64) + "k"
	default:
		return strconv.FormatInt(n, 10)
	}
}
