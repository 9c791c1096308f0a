package repository

import (
	"context"
	"time"

	"ZoneScan/internal/domain/models"
)

// MarketStream is the live tick feed from the broker websocket.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, tokens []uint32) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher fans ticks out to the configured backend (Kafka or direct
// ClickHouse writes).
type Publisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
	Close() error
}

// TickStorage persists the raw tick stream.
type TickStorage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, t *models.Tick) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Query(ctx context.Context, instrument string, from, to time.Time, limit int) ([]*models.Tick, error)
	Health(ctx context.Context) error
	Close() error
}

// ZoneEvents publishes zone lifecycle events for downstream
// consumers.
type ZoneEvents interface {
	PublishDetected(ctx context.Context, ev *models.ZoneEvent) error
	PublishMitigated(ctx context.Context, ev *models.ZoneEvent) error
	PublishSummary(ctx context.Context, ev *models.ScanSummaryEvent) error
	Close() error
}

// Metrics records operational counters consumed by usecases. The
// Prometheus recorder satisfies this.
type Metrics interface {
	RecordMessageSent(backend, instrument string)
	RecordError(kind string)
	RecordScan(outcome string)
	RecordZoneDetected(zoneType string)
	RecordMitigation()
	RecordAlertSent(kind string)
	RecordLastPrice(instrument string, price float64)
	SetActiveZones(zoneType string, n int)
	RecordLatency(op string, seconds float64)
}
