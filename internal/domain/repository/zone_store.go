package repository

import (
	"context"

	"ZoneScan/internal/domain/models"
)

// ZoneFilter narrows zone listing queries.
type ZoneFilter struct {
	Instrument string
	ZoneType   models.ZoneType
	MinScore   float64
	ActiveOnly bool
	Limit      int
	Offset     int
}

// ZoneStore persists detected zones keyed by their stable zone key.
// Upsert is idempotent: a re-detected zone refreshes last_updated and
// mitigated instead of inserting a duplicate.
type ZoneStore interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, instrument, exchange string, zone *models.Zone) (inserted bool, err error)
	GetByKey(ctx context.Context, zoneKey string) (*models.StoredZone, error)
	List(ctx context.Context, filter ZoneFilter) ([]*models.StoredZone, int64, error)
	ActiveZones(ctx context.Context, instrument string) ([]*models.StoredZone, error)
	MarkMitigated(ctx context.Context, zoneKey string) error
	MarkAlertSent(ctx context.Context, zoneKey string) error
	MarkMitigationAlertSent(ctx context.Context, zoneKey string) error
	CountActiveByType(ctx context.Context) (map[models.ZoneType]int, error)
	Health(ctx context.Context) error
	Close() error
}
