package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ZoneScan/internal/domain/models"
	domrepo "ZoneScan/internal/domain/repository"
	pkgch "ZoneScan/pkg/clickhouse"
	applogger "ZoneScan/pkg/logger"
)

const candleTable = "zonescan.candles"

// candleDDL is idempotent; ReplacingMergeTree collapses re-fetched bars
// on the (instrument, interval, ts) sort key so repeated scans of the
// same window do not accumulate duplicates.
var candleDDL = []string{
	`CREATE DATABASE IF NOT EXISTS zonescan`,
	`CREATE TABLE IF NOT EXISTS ` + candleTable + ` (
		instrument LowCardinality(String),
		exchange   LowCardinality(String),
		interval   LowCardinality(String),
		ts         DateTime('UTC'),
		open       Float64,
		high       Float64,
		low        Float64,
		close      Float64,
		volume     Int64
	) ENGINE = ReplacingMergeTree
	PARTITION BY toYYYYMM(ts)
	ORDER BY (instrument, interval, ts)`,
}

// CHCandleStore implements CandleStore backed by ClickHouse.
type CHCandleStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

func NewCHCandleStore(ch *pkgch.Client) *CHCandleStore {
	return &CHCandleStore{ch: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHCandleStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, candleDDL)
}

// UpsertBatch writes candles in multi-row VALUES chunks. Rows without
// an instrument or timestamp are dropped silently.
func (s *CHCandleStore) UpsertBatch(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(candles); start += chunkSize {
		end := start + chunkSize
		if end > len(candles) {
			end = len(candles)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, c := range candles[start:end] {
			if c.Instrument == "" || c.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				c.Instrument,
				c.Exchange,
				c.Interval,
				c.Timestamp.UTC(),
				c.Open,
				c.High,
				c.Low,
				c.Close,
				c.Volume,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (instrument, exchange, interval, ts, open, high, low, close, volume) VALUES %s",
			candleTable, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse candle upsert error",
					applogger.Int("rows", len(values)),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("upsert candles: %w", err)
		}
	}
	return nil
}

func (s *CHCandleStore) GetCandles(ctx context.Context, instrument string, from, to time.Time, interval domrepo.Interval) ([]models.Candle, error) {
	start := time.Now()
	const q = `
		SELECT instrument, exchange, interval, ts, open, high, low, close, volume
		FROM ` + candleTable + ` FINAL
		WHERE instrument = ? AND interval = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`
	rows, err := s.db.QueryContext(ctx, q, instrument, string(interval), from.UTC(), to.UTC())
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_candles query error",
				applogger.String("instrument", instrument),
				applogger.String("interval", string(interval)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}
	if s.l != nil {
		s.l.Debug("clickhouse get_candles ok",
			applogger.String("instrument", instrument),
			applogger.String("interval", string(interval)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, instrument string, n int, interval domrepo.Interval) ([]models.Candle, error) {
	const q = `
		SELECT instrument, exchange, interval, ts, open, high, low, close, volume
		FROM ` + candleTable + ` FINAL
		WHERE instrument = ? AND interval = ?
		ORDER BY ts DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, q, instrument, string(interval), n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_candles query error",
				applogger.String("instrument", instrument),
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	out, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *CHCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHCandleStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}

func scanCandles(rows *sql.Rows) ([]models.Candle, error) {
	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Instrument, &c.Exchange, &c.Interval, &c.Timestamp,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
