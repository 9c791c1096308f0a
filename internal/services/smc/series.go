package smc

import (
	"time"

	"ZoneScan/internal/domain/models"
)

// series holds the candle columns the passes operate on. Extracted
// once per detection run.
type series struct {
	high  []float64
	low   []float64
	close []float64
	times []time.Time
}

func newSeries(candles []models.Candle) *series {
	n := len(candles)
	s := &series{
		high:  make([]float64, n),
		low:   make([]float64, n),
		close: make([]float64, n),
		times: make([]time.Time, n),
	}
	for i, c := range candles {
		s.high[i] = c.High
		s.low[i] = c.Low
		s.close[i] = c.Close
		s.times[i] = c.Timestamp
	}
	return s
}

func (s *series) len() int { return len(s.high) }

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
