// Package smc implements supply and demand zone detection over OHLCV
// candles: a volatility pass (Wilder ATR), structure passes (swing
// points, break of structure, fair value gaps), a base/impulse zone
// generator, a six-criteria scorer, and an overlap resolver.
//
// Detection is pure computation over the input slice. The same candles
// and settings always produce the same zones in the same order.
package smc

import (
	"math"
	"sort"

	"ZoneScan/internal/domain/models"
	"ZoneScan/internal/domain/service"
)

// Detector finds supply and demand zones in candle history.
type Detector struct {
	settings Settings
}

var _ service.ZoneDetector = (*Detector)(nil)

// NewDetector builds a detector. Invalid settings fields are replaced
// with defaults, see Settings.Normalize.
func NewDetector(settings Settings) *Detector {
	return &Detector{settings: settings.Normalize()}
}

// Settings returns the normalized settings the detector runs with.
func (d *Detector) Settings() Settings {
	return d.settings
}

// MinBars returns the minimum history length for a meaningful scan.
// Shorter inputs are not an error; Detect simply finds nothing useful.
func (d *Detector) MinBars() int {
	return d.settings.MinBars()
}

// Detect runs the full pipeline and returns surviving zones sorted by
// score descending. Ties keep generation order: earlier base end
// first, demand before supply at the same candidate bar.
func (d *Detector) Detect(candles []models.Candle) []models.Zone {
	s := newSeries(candles)
	n := s.len()
	bmc := d.settings.BaseMaxCandles

	atr := computeATR(s, d.settings.ATRPeriod)
	swingHigh, swingLow := computeSwings(s, d.settings.LookbackSwings)
	bullishBOS, bearishBOS := computeBOS(s, swingHigh, swingLow)
	bullishFVG, bearishFVG := computeFVG(s)

	var raw []models.Zone

	// Candidate bars leave room for the widest base behind and at
	// least one departure bar ahead.
	for i := bmc; i < n-bmc-1; i++ {
		atrI := atr[i]
		if math.IsNaN(atrI) || atrI == 0 {
			continue
		}

		for baseLen := 1; baseLen <= bmc; baseLen++ {
			baseStart := i - baseLen + 1
			baseEnd := i

			baseHigh := maxOf(s.high[baseStart : baseEnd+1])
			baseLow := minOf(s.low[baseStart : baseEnd+1])
			baseRange := baseHigh - baseLow

			// A base wider than the ATR allowance is consolidation
			// noise, not accumulation.
			if baseRange > d.settings.BaseRangeATRPct*atrI {
				continue
			}

			lookEnd := i + 4
			if lookEnd > n {
				lookEnd = n
			}

			upMove := maxOf(s.high[i:lookEnd]) - baseHigh
			downMove := baseLow - minOf(s.low[i:lookEnd])

			isDemand := upMove >= d.settings.ImpulseATRMult*atrI
			isSupply := downMove >= d.settings.ImpulseATRMult*atrI
			if !isDemand && !isSupply {
				continue
			}

			cand := candidate{
				baseStart: baseStart,
				baseEnd:   baseEnd,
				baseLen:   baseLen,
				baseHigh:  baseHigh,
				baseLow:   baseLow,
				baseRange: baseRange,
				atr:       atrI,
				lookFrom:  i,
				lookEnd:   lookEnd,
			}

			if isDemand {
				if z, ok := d.buildZone(s, models.ZoneDemand, cand, upMove, bullishFVG, bullishBOS); ok {
					raw = append(raw, z)
				}
			}
			if isSupply {
				if z, ok := d.buildZone(s, models.ZoneSupply, cand, downMove, bearishFVG, bearishBOS); ok {
					raw = append(raw, z)
				}
			}
		}
	}

	return resolveOverlaps(raw)
}

// candidate carries one base/look-ahead window through zone assembly.
type candidate struct {
	baseStart int
	baseEnd   int
	baseLen   int
	baseHigh  float64
	baseLow   float64
	baseRange float64
	atr       float64
	lookFrom  int
	lookEnd   int
}

// buildZone scores one directional candidate. The bool result is false
// when the zone misses the minimum score.
func (d *Detector) buildZone(
	s *series,
	zoneType models.ZoneType,
	cand candidate,
	impulseMove float64,
	fvg, bos []bool,
) (models.Zone, bool) {
	impulseRatio := impulseMove / cand.atr
	fvgPresent := anyMarked(fvg[cand.lookFrom:cand.lookEnd])
	bosAligned := anyMarked(bos[cand.lookFrom:cand.lookEnd])
	fresh := isFresh(s, cand.baseEnd, cand.baseHigh, cand.baseLow)

	score, details := scoreZone(
		impulseRatio, cand.baseRange, cand.atr,
		fresh, fvgPresent, bosAligned, cand.baseLen,
	)
	if score < d.settings.MinScore {
		return models.Zone{}, false
	}

	probability := models.ProbabilityMediumHigh
	if score >= 5 {
		probability = models.ProbabilityHigh
	}

	return models.Zone{
		Type:         zoneType,
		High:         cand.baseHigh,
		Low:          cand.baseLow,
		Mid:          (cand.baseHigh + cand.baseLow) / 2,
		Score:        score,
		Probability:  probability,
		BaseStartIdx: cand.baseStart,
		BaseEndIdx:   cand.baseEnd,
		Mitigated:    !fresh,
		FVGPresent:   fvgPresent,
		ImpulseRatio: impulseRatio,
		ScoreDetails: details,
		Start:        s.times[cand.baseStart],
		End:          s.times[cand.baseEnd],
	}, true
}

// isFresh reports whether no bar after the base re-entered the zone.
// Re-entry is open-interval: touching a boundary exactly does not
// mitigate.
func isFresh(s *series, baseEnd int, zoneHigh, zoneLow float64) bool {
	for j := baseEnd + 1; j < s.len(); j++ {
		if s.low[j] < zoneHigh && s.high[j] > zoneLow {
			return false
		}
	}
	return true
}

func anyMarked(flags []bool) bool {
	for _, f := range flags {
		if f {
			return true
		}
	}
	return false
}

// resolveOverlaps orders zones by score descending and greedily drops
// any zone whose price band overlaps an already kept zone of the same
// type. The sort is stable so equal scores keep generation order.
func resolveOverlaps(raw []models.Zone) []models.Zone {
	sort.SliceStable(raw, func(a, b int) bool {
		return raw[a].Score > raw[b].Score
	})

	kept := make([]models.Zone, 0, len(raw))
	for i := range raw {
		zone := &raw[i]
		overlaps := false
		for k := range kept {
			if kept[k].Type != zone.Type {
				continue
			}
			if zone.Overlaps(&kept[k]) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, *zone)
		}
	}
	return kept
}
