package repository

import (
	"context"
	"time"

	"ZoneScan/internal/domain/models"
)

// CandleStore provides candle persistence and readback for detection
// and charting.
type CandleStore interface {
	Init(ctx context.Context) error
	UpsertBatch(ctx context.Context, candles []models.Candle) error
	GetCandles(ctx context.Context, instrument string, from, to time.Time, interval Interval) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, instrument string, n int, interval Interval) ([]models.Candle, error)
	Health(ctx context.Context) error
	Close() error
}

// CandleArchiver writes completed scan windows to long-term storage.
type CandleArchiver interface {
	Archive(ctx context.Context, instrument string, interval Interval, candles []models.Candle) (string, error)
}
