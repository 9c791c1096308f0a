package smc

// Settings are the tunables for one detection run. Passed by value
// into every pass; the detector holds no other state.
type Settings struct {
	// ATRPeriod is the Wilder smoothing window for the volatility
	// pass.
	ATRPeriod int
	// LookbackSwings is the half-window for swing detection: a bar is
	// a swing high when it is the maximum of the surrounding
	// 2*LookbackSwings+1 bars.
	LookbackSwings int
	// BaseMaxCandles caps consolidation base length in bars.
	BaseMaxCandles int
	// BaseRangeATRPct caps base tightness: bases with range greater
	// than BaseRangeATRPct*ATR are rejected.
	BaseRangeATRPct float64
	// ImpulseATRMult is the minimum departure strength in ATR
	// multiples for a base to qualify as a zone.
	ImpulseATRMult float64
	// MinScore drops zones scoring below it (0..6).
	MinScore float64
}

// DefaultSettings returns the production defaults for 5-minute bars.
func DefaultSettings() Settings {
	return Settings{
		ATRPeriod:       14,
		LookbackSwings:  5,
		BaseMaxCandles:  5,
		BaseRangeATRPct: 1.2,
		ImpulseATRMult:  3.5,
		MinScore:        4.0,
	}
}

// Normalize replaces out-of-range values with defaults so a partially
// filled config cannot produce a degenerate run.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	if s.ATRPeriod < 1 {
		s.ATRPeriod = def.ATRPeriod
	}
	if s.LookbackSwings < 1 {
		s.LookbackSwings = def.LookbackSwings
	}
	if s.BaseMaxCandles < 1 {
		s.BaseMaxCandles = def.BaseMaxCandles
	}
	if s.BaseRangeATRPct <= 0 {
		s.BaseRangeATRPct = def.BaseRangeATRPct
	}
	if s.ImpulseATRMult <= 0 {
		s.ImpulseATRMult = def.ImpulseATRMult
	}
	if s.MinScore < 0 {
		s.MinScore = def.MinScore
	}
	return s
}

// MinBars is the minimum series length a scan should supply for one
// meaningful pass. Shorter series yield no zones.
func (s Settings) MinBars() int {
	return s.ATRPeriod + s.BaseMaxCandles + s.LookbackSwings + 5
}
