package smc

import (
	"math"
	"testing"
	"time"
)

func flatSeries(n int, o, h, l, c float64) *series {
	s := &series{
		high:  make([]float64, n),
		low:   make([]float64, n),
		close: make([]float64, n),
		times: make([]time.Time, n),
	}
	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		s.high[i] = h
		s.low[i] = l
		s.close[i] = c
		s.times[i] = start.Add(time.Duration(i) * 5 * time.Minute)
	}
	return s
}

func TestComputeATRShortSeries(t *testing.T) {
	s := flatSeries(10, 100, 100.5, 99.5, 100)
	atr := computeATR(s, 14)
	if len(atr) != 10 {
		t.Fatalf("expected 10 values, got %d", len(atr))
	}
	for i, v := range atr {
		if !math.IsNaN(v) {
			t.Fatalf("expected NaN at %d, got %v", i, v)
		}
	}
}

func TestComputeATRSeedAndSmoothing(t *testing.T) {
	s := flatSeries(20, 100, 100.5, 99.5, 100)
	atr := computeATR(s, 14)

	for i := 0; i < 13; i++ {
		if !math.IsNaN(atr[i]) {
			t.Fatalf("expected NaN warmup at %d, got %v", i, atr[i])
		}
	}
	if atr[13] != 1.0 {
		t.Fatalf("seed should be the plain mean, got %v", atr[13])
	}
	// Constant true range keeps the smoothed value at the same level.
	for i := 14; i < 20; i++ {
		if math.Abs(atr[i]-1.0) > 1e-12 {
			t.Fatalf("expected ATR 1.0 at %d, got %v", i, atr[i])
		}
	}
}

func TestComputeATRGapUsesPrevClose(t *testing.T) {
	s := &series{
		high:  []float64{2.0, 2.2, 2.3},
		low:   []float64{1.0, 2.1, 2.2},
		close: []float64{1.5, 2.15, 2.25},
		times: make([]time.Time, 3),
	}
	atr := computeATR(s, 2)

	if !math.IsNaN(atr[0]) {
		t.Fatalf("expected NaN at 0, got %v", atr[0])
	}
	// tr[0]=1.0 (no previous close), tr[1]=|2.2-1.5|=0.7 from the gap.
	if math.Abs(atr[1]-0.85) > 1e-12 {
		t.Fatalf("expected seed 0.85, got %v", atr[1])
	}
	// tr[2]=max(0.1, |2.3-2.15|, |2.2-2.15|)=0.15
	if math.Abs(atr[2]-0.5) > 1e-12 {
		t.Fatalf("expected smoothed 0.5, got %v", atr[2])
	}
}

func TestComputeATRSeedOnLastBar(t *testing.T) {
	s := flatSeries(5, 100, 101, 99, 100)
	atr := computeATR(s, 5)
	if math.IsNaN(atr[4]) {
		t.Fatalf("expected seed at last index when length equals period")
	}
	if math.Abs(atr[4]-2.0) > 1e-12 {
		t.Fatalf("expected seed 2.0, got %v", atr[4])
	}
}
