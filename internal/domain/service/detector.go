package service

import (
	"context"

	"ZoneScan/internal/domain/models"
)

// ZoneDetector finds supply and demand zones in a candle series. Pure
// computation: no I/O, deterministic for identical input and settings.
type ZoneDetector interface {
	Detect(candles []models.Candle) []models.Zone
	MinBars() int
}

// Notifier delivers alerts for zone lifecycle events.
type Notifier interface {
	SendZoneAlert(ctx context.Context, instrument string, zone *models.Zone, lastPrice float64) error
	SendMitigationAlert(ctx context.Context, zone *models.StoredZone, lastPrice float64) error
	SendScanSummary(ctx context.Context, summary *models.ScanSummaryEvent) error
	SendStartup(ctx context.Context, instruments int, interval string) error
}

// UniverseProvider resolves the instrument universe for scanning.
type UniverseProvider interface {
	Instruments(ctx context.Context) ([]models.Instrument, error)
	Lookup(ctx context.Context, tradingSymbol string) (*models.Instrument, error)
	Refresh(ctx context.Context) error
}
