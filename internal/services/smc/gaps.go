package smc

// computeFVG marks fair value gaps on interior bars. A bullish gap
// sits at bar i when high[i-1] < low[i+1], meaning the candle bodies
// around i left untraded space below; a bearish gap when
// low[i-1] > high[i+1]. Edge bars have no neighbour on one side and
// are never marked.
func computeFVG(s *series) (bullish, bearish []bool) {
	length := s.len()
	bullish = make([]bool, length)
	bearish = make([]bool, length)

	for i := 1; i < length-1; i++ {
		if s.high[i-1] < s.low[i+1] {
			bullish[i] = true
		}
		if s.low[i-1] > s.high[i+1] {
			bearish[i] = true
		}
	}

	return bullish, bearish
}
