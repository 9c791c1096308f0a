package smc

import (
	"testing"
	"time"
)

func seriesFromHLC(highs, lows, closes []float64) *series {
	return &series{high: highs, low: lows, close: closes, times: make([]time.Time, len(highs))}
}

func TestComputeBOSBullish(t *testing.T) {
	s := seriesFromHLC(
		[]float64{10, 10.5, 10, 11.2, 12.1},
		[]float64{9, 9.5, 9.4, 10.2, 11.0},
		[]float64{9.5, 10.2, 9.8, 11.0, 12.0},
	)
	swingHigh := []bool{false, true, false, false, false}
	swingLow := make([]bool, 5)

	bullish, bearish := computeBOS(s, swingHigh, swingLow)

	// Every close above the 10.5 swing high breaks structure, not
	// just the first one.
	want := []bool{false, false, false, true, true}
	for i := range want {
		if bullish[i] != want[i] {
			t.Fatalf("bullish[%d] = %v, want %v", i, bullish[i], want[i])
		}
		if bearish[i] {
			t.Fatalf("unexpected bearish BOS at %d", i)
		}
	}
}

func TestComputeBOSBearish(t *testing.T) {
	s := seriesFromHLC(
		[]float64{10, 10.5, 10.2, 9.8, 9.6},
		[]float64{9, 9.5, 9.6, 9.0, 8.8},
		[]float64{9.8, 10.0, 9.9, 9.2, 9.0},
	)
	swingHigh := make([]bool, 5)
	swingLow := []bool{false, true, false, false, false}

	bullish, bearish := computeBOS(s, swingHigh, swingLow)

	want := []bool{false, false, false, true, true}
	for i := range want {
		if bearish[i] != want[i] {
			t.Fatalf("bearish[%d] = %v, want %v", i, bearish[i], want[i])
		}
		if bullish[i] {
			t.Fatalf("unexpected bullish BOS at %d", i)
		}
	}
}

func TestComputeBOSSwingUpdatesBeforeCheck(t *testing.T) {
	// Bar 3 raises the swing high to 12 and closes at 11: above the
	// old 10 level but not the new one, so no break fires there.
	s := seriesFromHLC(
		[]float64{9.5, 10, 9.8, 12, 12.6},
		[]float64{9, 9.2, 9.1, 10.5, 11.8},
		[]float64{9.3, 9.8, 9.5, 11, 12.5},
	)
	swingHigh := []bool{false, true, false, true, false}
	swingLow := make([]bool, 5)

	bullish, _ := computeBOS(s, swingHigh, swingLow)

	if bullish[3] {
		t.Fatalf("close below the bar's own swing level should not break")
	}
	if !bullish[4] {
		t.Fatalf("close above the updated level should break")
	}
}

func TestComputeBOSNoSwingsNoBreaks(t *testing.T) {
	s := seriesFromHLC(
		[]float64{10, 20, 30},
		[]float64{5, 15, 25},
		[]float64{9, 19, 29},
	)
	none := make([]bool, 3)
	bullish, bearish := computeBOS(s, none, none)
	for i := 0; i < 3; i++ {
		if bullish[i] || bearish[i] {
			t.Fatalf("no swing levels yet, no BOS expected at %d", i)
		}
	}
}
