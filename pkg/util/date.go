package util

import (
	"strconv"
	"time"
)

// kiteTimeLayout is what Kite historical candles carry, e.g.
// "2025-01-06T09:15:00+0530" (no colon in the offset).
const kiteTimeLayout = "2006-01-02T15:04:05-0700"

// ParseTime tries RFC3339, RFC3339Nano, the Kite candle layout, and unix
// seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(kiteTimeLayout, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// IntervalDuration maps a Kite interval string to its bar duration.
// Unrecognized intervals fall back to one minute.
func IntervalDuration(interval string) time.Duration {
	switch interval {
	case "minute":
		return time.Minute
	case "3minute":
		return 3 * time.Minute
	case "5minute":
		return 5 * time.Minute
	case "10minute":
		return 10 * time.Minute
	case "15minute":
		return 15 * time.Minute
	case "30minute":
		return 30 * time.Minute
	case "60minute":
		return time.Hour
	case "day":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// AlignRange rounds a time range down to bar boundaries for the interval.
func AlignRange(from, to time.Time, interval string) (time.Time, time.Time) {
	d := IntervalDuration(interval)
	return from.Truncate(d), to.Truncate(d)
}
