package wiretime

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the Go reference layout of the wire format.
const Layout = "2006-01-02T15:04:05Z"

// Format renders t as a wire timestamp. Sub-second precision is truncated.
func Format(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(Layout)
}

// Cutoff returns the wire timestamp window before now.
// A negative window is treated as zero.
func Cutoff(now time.Time, window time.Duration) string {
	if window < 0 {
		window = 0
	}
	return Format(now.Add(-window))
}

// Parse reads a wire timestamp. Any RFC 3339 value is accepted as well,
// since the remote API may send explicit offsets; the result is in UTC.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("wiretime: empty timestamp")
	}
	if t, err := time.Parse(Layout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("wiretime: invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Before reports whether wire timestamp a sorts strictly before b.
func Before(a, b string) bool { return a < b }

// After reports whether wire timestamp a sorts strictly after b.
func After(a, b string) bool { return a > b }
