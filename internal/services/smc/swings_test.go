package smc

import (
	"testing"
	"time"
)

func seriesFromHL(highs, lows []float64) *series {
	n := len(highs)
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = (highs[i] + lows[i]) / 2
	}
	return &series{high: highs, low: lows, close: closes, times: make([]time.Time, n)}
}

func TestComputeSwingsCenterPeak(t *testing.T) {
	s := seriesFromHL(
		[]float64{10, 11, 15, 11, 10, 11, 10},
		[]float64{9, 8, 7, 8, 9, 8, 9},
	)
	swingHigh, swingLow := computeSwings(s, 2)

	for i := range swingHigh {
		wantHigh := i == 2
		wantLow := i == 2
		if swingHigh[i] != wantHigh {
			t.Fatalf("swingHigh[%d] = %v", i, swingHigh[i])
		}
		if swingLow[i] != wantLow {
			t.Fatalf("swingLow[%d] = %v", i, swingLow[i])
		}
	}
}

func TestComputeSwingsTiesAllMarked(t *testing.T) {
	s := seriesFromHL(
		[]float64{10, 10, 13, 13, 13, 10, 10},
		[]float64{9, 9, 9, 9, 9, 9, 9},
	)
	swingHigh, _ := computeSwings(s, 1)

	want := []bool{false, false, true, true, true, false, false}
	for i := range want {
		if swingHigh[i] != want[i] {
			t.Fatalf("swingHigh[%d] = %v, want %v", i, swingHigh[i], want[i])
		}
	}
}

func TestComputeSwingsEdgesNeverMarked(t *testing.T) {
	// Rising highs put the global maximum on the last bar, but edge
	// bars have incomplete windows and stay unmarked.
	s := seriesFromHL(
		[]float64{1, 2, 3, 4, 5, 6},
		[]float64{0.5, 1.5, 2.5, 3.5, 4.5, 5.5},
	)
	swingHigh, swingLow := computeSwings(s, 2)

	for _, i := range []int{0, 1, 4, 5} {
		if swingHigh[i] || swingLow[i] {
			t.Fatalf("edge bar %d should not be a swing", i)
		}
	}
}

func TestComputeSwingsShortSeries(t *testing.T) {
	s := seriesFromHL([]float64{1, 2}, []float64{0, 1})
	swingHigh, swingLow := computeSwings(s, 5)
	for i := range swingHigh {
		if swingHigh[i] || swingLow[i] {
			t.Fatalf("no swings expected on a series shorter than the window")
		}
	}
}
