package usecase

import (
	"context"
	"fmt"
	"time"

	"ZoneScan/internal/domain/models"
	drepo "ZoneScan/internal/domain/repository"
	"ZoneScan/pkg/util"
)

// ChartUseCase assembles the candle window and overlay zones a chart
// client renders for one instrument.
type ChartUseCase struct {
	candles drepo.CandleStore
	zones   drepo.ZoneStore
}

func NewChartUseCase(candles drepo.CandleStore, zones drepo.ZoneStore) *ChartUseCase {
	return &ChartUseCase{candles: candles, zones: zones}
}

type ChartParams struct {
	Instrument string
	Interval   drepo.Interval
	Days       int
	Limit      int
}

type ChartResult struct {
	Instrument string               `json:"instrument"`
	Interval   string               `json:"interval"`
	From       time.Time            `json:"from"`
	To         time.Time            `json:"to"`
	Count      int                  `json:"count"`
	Candles    []models.Candle      `json:"candles"`
	Zones      []*models.StoredZone `json:"zones"`
}

func (uc *ChartUseCase) GetChart(ctx context.Context, p ChartParams) (*ChartResult, error) {
	if p.Instrument == "" {
		return nil, fmt.Errorf("instrument required")
	}
	p.Interval = drepo.NormalizeInterval(string(p.Interval))
	if p.Days <= 0 {
		p.Days = 10
	}
	if p.Days > 60 {
		p.Days = 60
	}
	if p.Limit <= 0 {
		p.Limit = 10000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -p.Days)
	// bar-aligned bounds keep the response stable between bar closes
	from, to = util.AlignRange(from, to, string(p.Interval))

	candles, err := uc.candles.GetCandles(ctx, p.Instrument, from, to, p.Interval)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) > p.Limit {
		candles = candles[len(candles)-p.Limit:]
	}

	// Mitigated zones stay on the chart; the client styles them.
	zones, _, err := uc.zones.List(ctx, drepo.ZoneFilter{
		Instrument: p.Instrument,
		Limit:      500,
	})
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}

	return &ChartResult{
		Instrument: p.Instrument,
		Interval:   string(p.Interval),
		From:       from,
		To:         to,
		Count:      len(candles),
		Candles:    candles,
		Zones:      zones,
	}, nil
}
