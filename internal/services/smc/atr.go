package smc

import "math"

// computeATR returns one Average True Range value per bar using
// Wilder's smoothing. The first period-1 entries are NaN (insufficient
// history); downstream passes must skip those indices.
//
// True range at bar i is high[i]-low[i] for i=0, otherwise
// max(high[i]-low[i], |high[i]-close[i-1]|, |low[i]-close[i-1]|).
// The seed at index period-1 is the arithmetic mean of the first
// period true ranges; afterwards
// atr[i] = atr[i-1]*(1-1/period) + tr[i]/period.
func computeATR(s *series, period int) []float64 {
	n := s.len()
	if n == 0 {
		return nil
	}

	tr := make([]float64, n)
	tr[0] = s.high[0] - s.low[0]
	for i := 1; i < n; i++ {
		hl := s.high[i] - s.low[i]
		hc := math.Abs(s.high[i] - s.close[i-1])
		lc := math.Abs(s.low[i] - s.close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	atr := make([]float64, n)
	for i := 0; i < n && i < period; i++ {
		atr[i] = math.NaN()
	}
	if n >= period {
		var sum float64
		for i := 0; i < period; i++ {
			sum += tr[i]
		}
		atr[period-1] = sum / float64(period)
		alpha := 1.0 / float64(period)
		for i := period; i < n; i++ {
			atr[i] = atr[i-1]*(1-alpha) + tr[i]*alpha
		}
	}
	return atr
}
