package repository

// Interval represents candle resolution as named by the broker API.
type Interval string

const (
	IntervalMinute   Interval = "minute"
	Interval3Minute  Interval = "3minute"
	Interval5Minute  Interval = "5minute"
	Interval10Minute Interval = "10minute"
	Interval15Minute Interval = "15minute"
	Interval30Minute Interval = "30minute"
	Interval60Minute Interval = "60minute"
	IntervalDay      Interval = "day"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case IntervalMinute, Interval3Minute, Interval5Minute, Interval10Minute,
		Interval15Minute, Interval30Minute, Interval60Minute, IntervalDay:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default scan interval.
func DefaultInterval() Interval { return Interval5Minute }

// NormalizeInterval converts a raw string to a valid interval (or the
// default).
func NormalizeInterval(s string) Interval {
	if s == "" {
		return DefaultInterval()
	}
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}

// IntervalMinutes returns the bar length in minutes (day counts a full
// session).
func IntervalMinutes(iv Interval) int {
	switch iv {
	case IntervalMinute:
		return 1
	case Interval3Minute:
		return 3
	case Interval5Minute:
		return 5
	case Interval10Minute:
		return 10
	case Interval15Minute:
		return 15
	case Interval30Minute:
		return 30
	case Interval60Minute:
		return 60
	case IntervalDay:
		return 375
	default:
		return 5
	}
}
