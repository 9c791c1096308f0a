package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"

	"ZoneScan/internal/domain/models"
	domrepo "ZoneScan/internal/domain/repository"
)

// parquetBar is the flat row layout written to archive files.
type parquetBar struct {
	Timestamp int64   `parquet:"t"`
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    int64   `parquet:"v"`
}

// ParquetArchiver writes fetched candles to <dir>/<symbol>/<day>.parquet,
// one file per trading day, overwritten on re-scan so the newest fetch
// wins.
type ParquetArchiver struct {
	dir string
}

var _ domrepo.CandleArchiver = (*ParquetArchiver)(nil)

func NewParquetArchiver(dir string) *ParquetArchiver {
	return &ParquetArchiver{dir: dir}
}

// Archive groups candles by the day of their own timezone, typically
// the exchange session date, and returns the symbol directory.
func (a *ParquetArchiver) Archive(ctx context.Context, instrument string, interval domrepo.Interval, candles []models.Candle) (string, error) {
	if len(candles) == 0 {
		return "", nil
	}

	symbolDir := filepath.Join(a.dir, instrument)
	if err := os.MkdirAll(symbolDir, 0o755); err != nil {
		return "", fmt.Errorf("archive dir: %w", err)
	}

	byDay := map[string][]parquetBar{}
	for _, c := range candles {
		day := c.Timestamp.Format("2006-01-02")
		byDay[day] = append(byDay[day], parquetBar{
			Timestamp: c.Timestamp.Unix(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path := filepath.Join(symbolDir, day+".parquet")
		if err := parquet.WriteFile(path, byDay[day]); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
	}
	return symbolDir, nil
}
