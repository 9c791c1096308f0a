package smc

// computeSwings marks swing highs and swing lows. Bar i is a swing
// high when high[i] equals the maximum over the window [i-n, i+n]
// inclusive, and a swing low when low[i] equals the window minimum.
// Ties inside the window all qualify. The first and last n bars are
// never marked because their windows are incomplete.
func computeSwings(s *series, n int) (swingHigh, swingLow []bool) {
	length := s.len()
	swingHigh = make([]bool, length)
	swingLow = make([]bool, length)
	if n <= 0 {
		return swingHigh, swingLow
	}

	for i := n; i < length-n; i++ {
		hi := s.high[i]
		lo := s.low[i]
		isHigh := true
		isLow := true
		for j := i - n; j <= i+n; j++ {
			if s.high[j] > hi {
				isHigh = false
			}
			if s.low[j] < lo {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		swingHigh[i] = isHigh
		swingLow[i] = isLow
	}

	return swingHigh, swingLow
}
