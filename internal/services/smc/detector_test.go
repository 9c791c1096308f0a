package smc

import (
	"math"
	"reflect"
	"testing"
	"time"

	"ZoneScan/internal/domain/models"
)

var fixtureStart = time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)

func candle(i int, o, h, l, c float64) models.Candle {
	return models.Candle{
		Instrument: "RELIANCE",
		Exchange:   "NSE",
		Interval:   "5minute",
		Timestamp:  fixtureStart.Add(time.Duration(i) * 5 * time.Minute),
		Open:       o,
		High:       h,
		Low:        l,
		Close:      c,
		Volume:     1000,
	}
}

// demandFixture is twenty quiet bars, a two-candle tight base, then a
// three-bar rally with a gap that never returns. The base at bars
// 20-21 hits every criterion.
func demandFixture() []models.Candle {
	candles := make([]models.Candle, 0, 30)
	for i := 0; i < 20; i++ {
		candles = append(candles, candle(i, 100, 100.5, 99.5, 100))
	}
	candles = append(candles,
		candle(20, 100, 100.03, 99.98, 100),
		candle(21, 100, 100.03, 99.98, 100),
		candle(22, 100.05, 106, 100.04, 105.8),
		candle(23, 105.9, 110, 105.5, 109.8),
		candle(24, 109.9, 112, 109, 111.5),
	)
	for i := 25; i < 30; i++ {
		candles = append(candles, candle(i, 111.5, 112, 110.8, 111.5))
	}
	return candles
}

// supplyFixture mirrors demandFixture around 100.
func supplyFixture() []models.Candle {
	mirror := func(v float64) float64 { return 200 - v }
	src := demandFixture()
	out := make([]models.Candle, len(src))
	for i, c := range src {
		out[i] = c
		out[i].Open = mirror(c.Open)
		out[i].High = mirror(c.Low)
		out[i].Low = mirror(c.High)
		out[i].Close = mirror(c.Close)
	}
	return out
}

func TestDetectFlatSeriesFindsNothing(t *testing.T) {
	candles := make([]models.Candle, 0, 20)
	for i := 0; i < 20; i++ {
		candles = append(candles, candle(i, 100, 100, 100, 100))
	}
	zones := NewDetector(DefaultSettings()).Detect(candles)
	if len(zones) != 0 {
		t.Fatalf("expected no zones on a flat series, got %d", len(zones))
	}
}

func TestDetectEmptyInput(t *testing.T) {
	d := NewDetector(DefaultSettings())
	if got := d.Detect(nil); len(got) != 0 {
		t.Fatalf("expected no zones for nil input, got %d", len(got))
	}
	if got := d.Detect([]models.Candle{candle(0, 100, 101, 99, 100)}); len(got) != 0 {
		t.Fatalf("expected no zones for a single bar, got %d", len(got))
	}
}

func TestDetectDemandZone(t *testing.T) {
	zones := NewDetector(DefaultSettings()).Detect(demandFixture())

	if len(zones) != 1 {
		t.Fatalf("expected exactly one zone after dedup, got %d", len(zones))
	}
	z := zones[0]
	if z.Type != models.ZoneDemand {
		t.Fatalf("expected demand, got %s", z.Type)
	}
	if z.Score != 6.0 {
		t.Fatalf("expected full score 6.0, got %v", z.Score)
	}
	if z.Probability != models.ProbabilityHigh {
		t.Fatalf("expected High, got %s", z.Probability)
	}
	if z.High != 100.03 || z.Low != 99.98 {
		t.Fatalf("unexpected bounds [%v, %v]", z.Low, z.High)
	}
	if z.Mid != (100.03+99.98)/2 {
		t.Fatalf("unexpected mid %v", z.Mid)
	}
	if z.BaseStartIdx != 21 || z.BaseEndIdx != 21 {
		t.Fatalf("unexpected base [%d, %d]", z.BaseStartIdx, z.BaseEndIdx)
	}
	if z.Mitigated {
		t.Fatalf("price never returned, zone must be fresh")
	}
	if !z.FVGPresent {
		t.Fatalf("departure gap expected")
	}
	if z.ImpulseRatio <= 3.0 {
		t.Fatalf("expected strong impulse, got %v", z.ImpulseRatio)
	}
	for k, v := range z.ScoreDetails {
		if v != 1.0 {
			t.Fatalf("criterion %s = %v, want 1.0", k, v)
		}
	}
	if !z.Start.Equal(fixtureStart.Add(21 * 5 * time.Minute)) {
		t.Fatalf("unexpected start %v", z.Start)
	}
	if !z.End.Equal(z.Start) {
		t.Fatalf("single-candle base must start and end together")
	}
}

func TestDetectSupplyZone(t *testing.T) {
	zones := NewDetector(DefaultSettings()).Detect(supplyFixture())

	if len(zones) != 1 {
		t.Fatalf("expected exactly one zone, got %d", len(zones))
	}
	z := zones[0]
	if z.Type != models.ZoneSupply {
		t.Fatalf("expected supply, got %s", z.Type)
	}
	if z.Score != 6.0 {
		t.Fatalf("expected 6.0, got %v", z.Score)
	}
	if z.High != 100.02 || z.Low != 99.97 {
		t.Fatalf("unexpected bounds [%v, %v]", z.Low, z.High)
	}
	if z.Mitigated || !z.FVGPresent {
		t.Fatalf("expected a fresh zone with a departure gap")
	}
}

func TestDetectMitigatedZone(t *testing.T) {
	// A late bar sells all the way back into the base.
	candles := append(demandFixture(), candle(30, 111, 111, 100, 100.5))
	zones := NewDetector(DefaultSettings()).Detect(candles)

	if len(zones) != 1 {
		t.Fatalf("expected one zone, got %d", len(zones))
	}
	z := zones[0]
	if !z.Mitigated {
		t.Fatalf("re-entered zone must be mitigated")
	}
	if z.ScoreDetails[models.CriterionFreshness] != 0.0 {
		t.Fatalf("freshness must score 0 after re-entry")
	}
	if z.Score != 5.0 {
		t.Fatalf("expected 5.0 after losing freshness, got %v", z.Score)
	}
	if z.Probability != models.ProbabilityHigh {
		t.Fatalf("5.0 still labels High, got %s", z.Probability)
	}
	if z.High != 100.03 || z.Low != 99.98 {
		t.Fatalf("unexpected bounds [%v, %v]", z.Low, z.High)
	}
}

func TestDetectLaterBarsWithoutReentry(t *testing.T) {
	// More bars that never trade back into the base change nothing.
	extended := demandFixture()
	for i := 30; i < 40; i++ {
		extended = append(extended, candle(i, 111.5, 112.5, 110.9, 111.8))
	}

	base := NewDetector(DefaultSettings()).Detect(demandFixture())
	again := NewDetector(DefaultSettings()).Detect(extended)

	if len(base) != 1 || len(again) != 1 {
		t.Fatalf("expected one zone before and after, got %d and %d", len(base), len(again))
	}
	if again[0].Mitigated {
		t.Fatalf("bars that stay above the base must not mitigate the zone")
	}
	if !reflect.DeepEqual(base[0], again[0]) {
		t.Fatalf("extension away from the zone changed it:\n%+v\n%+v", base[0], again[0])
	}
}

func TestDetectMinScoreFiltersEverything(t *testing.T) {
	settings := DefaultSettings()
	settings.MinScore = 6.5
	zones := NewDetector(settings).Detect(demandFixture())
	if len(zones) != 0 {
		t.Fatalf("no zone can reach 6.5, got %d", len(zones))
	}
}

func TestDetectThresholdMonotonic(t *testing.T) {
	detect := func(minScore float64) []models.Zone {
		settings := DefaultSettings()
		settings.MinScore = minScore
		return NewDetector(settings).Detect(demandFixture())
	}

	loose := detect(4.0)
	strict := detect(5.5)

	if len(loose) != 1 || len(strict) != 1 {
		t.Fatalf("expected one zone at both thresholds, got %d and %d", len(loose), len(strict))
	}
	if !reflect.DeepEqual(loose[0], strict[0]) {
		t.Fatalf("raising the threshold must not change the surviving zone")
	}
}

func TestDetectDeterministic(t *testing.T) {
	d := NewDetector(DefaultSettings())
	first := d.Detect(demandFixture())
	second := d.Detect(demandFixture())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same input must produce identical zones")
	}
}

// choppyFixture is a deterministic oscillating walk used only for
// invariant checks; whether it yields zones is not asserted.
func choppyFixture() []models.Candle {
	candles := make([]models.Candle, 0, 120)
	for i := 0; i < 120; i++ {
		p := 100 + 8*math.Sin(float64(i)/5) + float64(i%7)*0.3
		h := p + 0.6 + float64(i%3)*0.4
		l := p - 0.6 - float64(i%5)*0.2
		candles = append(candles, candle(i, p, h, l, p+0.2))
	}
	return candles
}

func TestDetectInvariants(t *testing.T) {
	d := NewDetector(DefaultSettings())
	for _, candles := range [][]models.Candle{demandFixture(), supplyFixture(), choppyFixture()} {
		zones := d.Detect(candles)
		for i := range zones {
			z := &zones[i]
			if z.High <= z.Low {
				t.Fatalf("zone bounds inverted: [%v, %v]", z.Low, z.High)
			}
			if z.Score < 0 || z.Score > 6 {
				t.Fatalf("score out of range: %v", z.Score)
			}
			sum := 0.0
			for _, v := range z.ScoreDetails {
				sum += v
			}
			if z.Score != sum {
				t.Fatalf("score %v != sum of details %v", z.Score, sum)
			}
			wantProb := models.ProbabilityMediumHigh
			if z.Score >= 5 {
				wantProb = models.ProbabilityHigh
			}
			if z.Probability != wantProb {
				t.Fatalf("score %v labelled %s", z.Score, z.Probability)
			}
			if z.BaseStartIdx > z.BaseEndIdx {
				t.Fatalf("base indices inverted: [%d, %d]", z.BaseStartIdx, z.BaseEndIdx)
			}
			if n := z.BaseEndIdx - z.BaseStartIdx + 1; n > DefaultSettings().BaseMaxCandles {
				t.Fatalf("base too long: %d candles", n)
			}
			for j := 0; j < i; j++ {
				prev := &zones[j]
				if prev.Type == z.Type && z.Overlaps(prev) {
					t.Fatalf("same-type zones overlap: [%v,%v] and [%v,%v]",
						prev.Low, prev.High, z.Low, z.High)
				}
			}
		}
		for i := 1; i < len(zones); i++ {
			if zones[i].Score > zones[i-1].Score {
				t.Fatalf("zones not sorted by score descending")
			}
		}
	}
}

func TestResolveOverlapsKeepsHighestScore(t *testing.T) {
	raw := []models.Zone{
		{Type: models.ZoneDemand, High: 101, Low: 100, Score: 4.5},
		{Type: models.ZoneDemand, High: 101.5, Low: 100.5, Score: 5.5},
	}
	kept := resolveOverlaps(raw)
	if len(kept) != 1 {
		t.Fatalf("expected one survivor, got %d", len(kept))
	}
	if kept[0].Score != 5.5 {
		t.Fatalf("expected the 5.5 zone to win, got %v", kept[0].Score)
	}
}

func TestResolveOverlapsKeepsDifferentTypes(t *testing.T) {
	raw := []models.Zone{
		{Type: models.ZoneDemand, High: 101, Low: 100, Score: 5.0},
		{Type: models.ZoneSupply, High: 101, Low: 100, Score: 4.0},
	}
	kept := resolveOverlaps(raw)
	if len(kept) != 2 {
		t.Fatalf("opposite types never collide, got %d survivors", len(kept))
	}
}

func TestResolveOverlapsKeepsDisjoint(t *testing.T) {
	raw := []models.Zone{
		{Type: models.ZoneDemand, High: 101, Low: 100, Score: 5.0},
		{Type: models.ZoneDemand, High: 103, Low: 102, Score: 4.0},
		{Type: models.ZoneDemand, High: 102, Low: 101, Score: 4.5},
	}
	kept := resolveOverlaps(raw)
	if len(kept) != 3 {
		t.Fatalf("touching bounds do not overlap, got %d survivors", len(kept))
	}
	if kept[0].Score != 5.0 || kept[1].Score != 4.5 || kept[2].Score != 4.0 {
		t.Fatalf("unexpected order: %v %v %v", kept[0].Score, kept[1].Score, kept[2].Score)
	}
}

func TestResolveOverlapsStableOnTies(t *testing.T) {
	raw := []models.Zone{
		{Type: models.ZoneDemand, High: 101, Low: 100, Score: 5.0, BaseEndIdx: 10},
		{Type: models.ZoneDemand, High: 101.5, Low: 100.5, Score: 5.0, BaseEndIdx: 20},
	}
	kept := resolveOverlaps(raw)
	if len(kept) != 1 {
		t.Fatalf("expected one survivor, got %d", len(kept))
	}
	if kept[0].BaseEndIdx != 10 {
		t.Fatalf("tie must keep the earlier generated zone, kept idx %d", kept[0].BaseEndIdx)
	}
}
