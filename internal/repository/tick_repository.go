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
	pkgkafka "ZoneScan/pkg/kafka"
)

const tickTable = "zonescan.ticks"

// tickDDL keeps 30 days of the raw firehose; charting and detection
// read candles, ticks exist for replay and debugging.
var tickDDL = []string{
	`CREATE DATABASE IF NOT EXISTS zonescan`,
	`CREATE TABLE IF NOT EXISTS ` + tickTable + ` (
		ts          DateTime64(3, 'UTC'),
		instrument  LowCardinality(String),
		token       UInt32,
		price       Float64,
		qty         UInt32,
		volume      UInt32,
		avg_price   Float64,
		received_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	PARTITION BY toYYYYMMDD(ts)
	ORDER BY (instrument, ts)
	TTL toDateTime(ts) + INTERVAL 30 DAY`,
}

// CHTickStorage implements TickStorage for ClickHouse.
type CHTickStorage struct {
	ch *pkgch.Client
	db *sql.DB
}

var _ domrepo.TickStorage = (*CHTickStorage)(nil)

// NewCHTickStorage creates ClickHouse tick storage.
func NewCHTickStorage(ch *pkgch.Client) *CHTickStorage {
	return &CHTickStorage{ch: ch, db: ch.DB()}
}

func (s *CHTickStorage) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, tickDDL)
}

func (s *CHTickStorage) Store(ctx context.Context, t *models.Tick) error {
	const q = "INSERT INTO " + tickTable +
		" (ts, instrument, token, price, qty, volume, avg_price, received_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := s.db.ExecContext(ctx, q,
		t.ExchangeTime.UTC(),
		t.Instrument,
		t.Token,
		t.LastPrice,
		t.LastQuantity,
		t.VolumeTraded,
		t.AveragePrice,
		t.ReceivedAt.UTC(),
	)
	return err
}

// StoreBatch inserts ticks in multi-row VALUES chunks of 2000 to keep
// round trips down during bursts.
func (s *CHTickStorage) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, t := range ticks[start:end] {
			if t == nil || t.Instrument == "" || t.ExchangeTime.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				t.ExchangeTime.UTC(),
				t.Instrument,
				t.Token,
				t.LastPrice,
				t.LastQuantity,
				t.VolumeTraded,
				t.AveragePrice,
				t.ReceivedAt.UTC(),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, instrument, token, price, qty, volume, avg_price, received_at) VALUES %s",
			tickTable, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *CHTickStorage) Query(ctx context.Context, instrument string, from, to time.Time, limit int) ([]*models.Tick, error) {
	const q = "SELECT ts, instrument, token, price, qty, volume, avg_price, received_at FROM " + tickTable +
		" WHERE instrument = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?"
	rows, err := s.db.QueryContext(ctx, q, instrument, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []*models.Tick
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.ExchangeTime, &t.Instrument, &t.Token, &t.LastPrice,
			&t.LastQuantity, &t.VolumeTraded, &t.AveragePrice, &t.ReceivedAt); err != nil {
			return nil, err
		}
		ticks = append(ticks, &t)
	}
	return ticks, rows.Err()
}

func (s *CHTickStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHTickStorage) Close() error {
	return nil // pool owned by pkg/clickhouse
}

// KafkaTickPublisher implements Publisher for Kafka. Messages are
// keyed by instrument so per-scrip ordering survives partitioning.
type KafkaTickPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaTickPublisher creates a Kafka tick publisher.
func NewKafkaTickPublisher(producer *pkgkafka.Producer, topic string) domrepo.Publisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

func tickPayload(t *models.Tick) map[string]interface{} {
	return map[string]interface{}{
		"instrument": t.Instrument,
		"token":      t.Token,
		"t":          t.ExchangeTime.Unix(),
		"c":          t.LastPrice,
		"q":          t.LastQuantity,
		"v":          t.VolumeTraded,
		"avg":        t.AveragePrice,
	}
}

func (p *KafkaTickPublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Instrument), tickPayload(t))
}

func (p *KafkaTickPublisher) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(ticks))
	for i, t := range ticks {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(t.Instrument),
			Value: tickPayload(t),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaTickPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
