package smc

import "ZoneScan/internal/domain/models"

// scoreZone rates a candidate zone on six criteria and returns the
// total alongside the per-criterion breakdown. Each criterion
// contributes at most 1.0, so totals range over [0, 6].
//
// Impulse and tightness are graded (full, half, zero credit); the
// remaining four are binary. Tightness falls back to full base width
// when ATR is zero so a degenerate bar never scores as tight.
func scoreZone(
	impulseRatio float64,
	baseRange float64,
	atr float64,
	fresh bool,
	fvgPresent bool,
	bosAligned bool,
	baseLen int,
) (float64, map[string]float64) {
	details := make(map[string]float64, 6)

	switch {
	case impulseRatio > 3.0:
		details[models.CriterionImpulse] = 1.0
	case impulseRatio > 1.8:
		details[models.CriterionImpulse] = 0.5
	default:
		details[models.CriterionImpulse] = 0.0
	}

	basePct := 1.0
	if atr > 0 {
		basePct = baseRange / atr
	}
	switch {
	case basePct < 0.20:
		details[models.CriterionTightness] = 1.0
	case basePct < 0.40:
		details[models.CriterionTightness] = 0.5
	default:
		details[models.CriterionTightness] = 0.0
	}

	details[models.CriterionFreshness] = boolScore(fresh)
	details[models.CriterionFVG] = boolScore(fvgPresent)
	details[models.CriterionBOS] = boolScore(bosAligned)
	details[models.CriterionCleanBase] = boolScore(baseLen <= 2)

	total := 0.0
	for _, v := range details {
		total += v
	}
	return total, details
}

func boolScore(ok bool) float64 {
	if ok {
		return 1.0
	}
	return 0.0
}
