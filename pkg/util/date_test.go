package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2025-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeKiteLayout(t *testing.T) {
	got, ok := ParseTime("2025-01-06T09:15:00+0530")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Hour() != 9 || got.Minute() != 15 {
		t.Fatalf("unexpected time %v", got)
	}
	_, offset := got.Zone()
	if offset != 5*3600+1800 {
		t.Fatalf("unexpected offset %d", offset)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2025, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2025, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"minute":   time.Minute,
		"5minute":  5 * time.Minute,
		"60minute": time.Hour,
		"day":      24 * time.Hour,
		"bogus":    time.Minute,
	}
	for interval, want := range cases {
		if got := IntervalDuration(interval); got != want {
			t.Fatalf("%s: got %v want %v", interval, got, want)
		}
	}
}

func TestAlignRange(t *testing.T) {
	from := time.Date(2025, 10, 10, 10, 12, 34, 0, time.UTC)
	to := time.Date(2025, 10, 10, 11, 3, 2, 0, time.UTC)
	af, at := AlignRange(from, to, "5minute")
	if af.Minute() != 10 || af.Second() != 0 {
		t.Fatalf("from not aligned: %v", af)
	}
	if at.Minute() != 0 || at.Second() != 0 {
		t.Fatalf("to not aligned: %v", at)
	}
}
