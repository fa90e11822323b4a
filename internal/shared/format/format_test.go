package format

import (
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

// TestFmtDuration_FormatsCorrectly verifies duration formatting for different magnitudes.
func TestFmtDuration_FormatsCorrectly(t *testing.T) {
	tests := []struct {
		name     string
		in       time.Duration
		expected string
	}{
		{"zero", 0, "0ms"},
		{"sub millisecond", 1500 * time.Microsecond, "1.5ms"},
		{"nanoseconds", 1234 * time.Nanosecond, "0.001234ms"},
		{"seconds", 3 * time.Second, "3s"},
		{"mixed", time.Hour + 2*time.Minute + 3*time.Second + 4500*time.Microsecond, "1h2m3s4.5ms"},
		{"days", 50 * time.Hour, "2d2h"},
		{"negative", -1500 * time.Millisecond, "-1s500ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, FmtDuration(tt.in))
		})
	}
}

// TestFmtCount_FormatsCorrectly verifies counter formatting.
func TestFmtCount_FormatsCorrectly(t *testing.T) {
	require.Equal(t, "999", FmtCount(999))
	require.Equal(t, "1.5k", FmtCount(1500))
	require.Equal(t, "2.0M", FmtCount(2_000_000))
}
