package smc

// computeBOS marks break-of-structure bars. A bullish BOS fires when a
// close exceeds the most recent swing high seen so far; a bearish BOS
// fires when a close drops below the most recent swing low. The swing
// reference at bar i includes bar i itself when i carries a swing
// marker, so a bar can both set and break a level.
func computeBOS(s *series, swingHigh, swingLow []bool) (bullish, bearish []bool) {
	length := s.len()
	bullish = make([]bool, length)
	bearish = make([]bool, length)

	var lastSwingHigh, lastSwingLow float64
	haveHigh := false
	haveLow := false

	for i := 0; i < length; i++ {
		if swingHigh[i] {
			lastSwingHigh = s.high[i]
			haveHigh = true
		}
		if swingLow[i] {
			lastSwingLow = s.low[i]
			haveLow = true
		}

		if haveHigh && s.close[i] > lastSwingHigh {
			bullish[i] = true
		}
		if haveLow && s.close[i] < lastSwingLow {
			bearish[i] = true
		}
	}

	return bullish, bearish
}
