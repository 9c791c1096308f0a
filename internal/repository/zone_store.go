package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"ZoneScan/internal/domain/models"
	domrepo "ZoneScan/internal/domain/repository"
	applogger "ZoneScan/pkg/logger"
	pkgpg "ZoneScan/pkg/postgres"
)

var zoneDDL = []string{
	`CREATE TABLE IF NOT EXISTS zones (
		id                    BIGSERIAL PRIMARY KEY,
		zone_key              TEXT NOT NULL UNIQUE,
		instrument            TEXT NOT NULL,
		exchange              TEXT NOT NULL,
		zone_type             TEXT NOT NULL,
		zone_high             DOUBLE PRECISION NOT NULL,
		zone_low              DOUBLE PRECISION NOT NULL,
		zone_mid              DOUBLE PRECISION NOT NULL,
		score                 DOUBLE PRECISION NOT NULL,
		probability           TEXT NOT NULL,
		mitigated             BOOLEAN NOT NULL DEFAULT FALSE,
		fvg_present           BOOLEAN NOT NULL DEFAULT FALSE,
		impulse_ratio         DOUBLE PRECISION NOT NULL,
		datetime_start        TIMESTAMPTZ NOT NULL,
		datetime_end          TIMESTAMPTZ NOT NULL,
		first_seen            TIMESTAMPTZ NOT NULL,
		last_updated          TIMESTAMPTZ NOT NULL,
		alert_sent            BOOLEAN NOT NULL DEFAULT FALSE,
		mitigation_alert_sent BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_zones_instrument ON zones (instrument)`,
	`CREATE INDEX IF NOT EXISTS idx_zones_mitigated ON zones (mitigated)`,
	`CREATE INDEX IF NOT EXISTS idx_zones_alert ON zones (alert_sent, mitigated)`,
}

const zoneColumns = `id, zone_key, instrument, exchange, zone_type,
	zone_high, zone_low, zone_mid, score, probability,
	mitigated, fvg_present, impulse_ratio,
	datetime_start, datetime_end, first_seen, last_updated,
	alert_sent, mitigation_alert_sent`

// PGZoneStore implements ZoneStore backed by Postgres.
type PGZoneStore struct {
	pg *pkgpg.Client
	db *sqlx.DB
	l  *applogger.Logger
}

var _ domrepo.ZoneStore = (*PGZoneStore)(nil)

func NewPGZoneStore(pg *pkgpg.Client) *PGZoneStore {
	return &PGZoneStore{pg: pg, db: pg.DB()}
}

// SetLogger injects a structured logger.
func (s *PGZoneStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *PGZoneStore) Init(ctx context.Context) error {
	return s.pg.InitSchema(ctx, zoneDDL)
}

// Upsert inserts a newly detected zone or, when the zone key already
// exists, refreshes last_updated and mitigated from the fresh
// detection. Reports whether a new row was created. The xmax check
// distinguishes insert from update without a second round trip.
func (s *PGZoneStore) Upsert(ctx context.Context, instrument, exchange string, zone *models.Zone) (bool, error) {
	now := time.Now().UTC().Truncate(time.Second)
	key := zone.Key(instrument)

	const q = `
		INSERT INTO zones (
			zone_key, instrument, exchange, zone_type,
			zone_high, zone_low, zone_mid, score, probability,
			mitigated, fvg_present, impulse_ratio,
			datetime_start, datetime_end, first_seen, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (zone_key) DO UPDATE
			SET last_updated = EXCLUDED.last_updated,
			    mitigated    = EXCLUDED.mitigated
		RETURNING (xmax = 0) AS inserted
	`
	var inserted bool
	err := s.db.QueryRowContext(ctx, q,
		key, instrument, exchange, string(zone.Type),
		zone.High, zone.Low, zone.Mid, zone.Score, zone.Probability,
		zone.Mitigated, zone.FVGPresent, zone.ImpulseRatio,
		zone.Start, zone.End, now, now,
	).Scan(&inserted)
	if err != nil {
		if s.l != nil {
			s.l.Error("zone upsert error",
				applogger.String("zone_key", key),
				applogger.Error(err),
			)
		}
		return false, fmt.Errorf("upsert zone: %w", err)
	}
	if inserted && s.l != nil {
		s.l.Debug("zone inserted", applogger.String("zone_key", key))
	}
	return inserted, nil
}

// GetByKey returns the stored zone or nil when no row matches.
func (s *PGZoneStore) GetByKey(ctx context.Context, zoneKey string) (*models.StoredZone, error) {
	var z models.StoredZone
	q := "SELECT " + zoneColumns + " FROM zones WHERE zone_key = $1"
	if err := s.db.GetContext(ctx, &z, q, zoneKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get zone: %w", err)
	}
	return &z, nil
}

// List returns zones matching the filter ordered best score first,
// together with the unpaged match count.
func (s *PGZoneStore) List(ctx context.Context, filter domrepo.ZoneFilter) ([]*models.StoredZone, int64, error) {
	conds := []string{"TRUE"}
	args := []interface{}{}

	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Instrument != "" {
		add("instrument = $%d", filter.Instrument)
	}
	if filter.ZoneType != "" {
		add("zone_type = $%d", string(filter.ZoneType))
	}
	if filter.MinScore > 0 {
		add("score >= $%d", filter.MinScore)
	}
	if filter.ActiveOnly {
		conds = append(conds, "mitigated = FALSE")
	}
	where := strings.Join(conds, " AND ")

	var total int64
	countQ := "SELECT COUNT(*) FROM zones WHERE " + where
	if err := s.db.GetContext(ctx, &total, countQ, args...); err != nil {
		return nil, 0, fmt.Errorf("count zones: %w", err)
	}

	q := "SELECT " + zoneColumns + " FROM zones WHERE " + where +
		" ORDER BY score DESC, datetime_start DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	zones := []*models.StoredZone{}
	if err := s.db.SelectContext(ctx, &zones, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list zones: %w", err)
	}
	return zones, total, nil
}

// ActiveZones returns every non-mitigated zone for one instrument.
func (s *PGZoneStore) ActiveZones(ctx context.Context, instrument string) ([]*models.StoredZone, error) {
	zones := []*models.StoredZone{}
	q := "SELECT " + zoneColumns + " FROM zones WHERE instrument = $1 AND mitigated = FALSE ORDER BY score DESC"
	if err := s.db.SelectContext(ctx, &zones, q, instrument); err != nil {
		return nil, fmt.Errorf("active zones: %w", err)
	}
	return zones, nil
}

func (s *PGZoneStore) MarkMitigated(ctx context.Context, zoneKey string) error {
	now := time.Now().UTC().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx,
		"UPDATE zones SET mitigated = TRUE, last_updated = $1 WHERE zone_key = $2", now, zoneKey)
	if err != nil {
		return fmt.Errorf("mark mitigated: %w", err)
	}
	if s.l != nil {
		s.l.Debug("zone mitigated", applogger.String("zone_key", zoneKey))
	}
	return nil
}

func (s *PGZoneStore) MarkAlertSent(ctx context.Context, zoneKey string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE zones SET alert_sent = TRUE WHERE zone_key = $1", zoneKey)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	return nil
}

func (s *PGZoneStore) MarkMitigationAlertSent(ctx context.Context, zoneKey string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE zones SET mitigation_alert_sent = TRUE WHERE zone_key = $1", zoneKey)
	if err != nil {
		return fmt.Errorf("mark mitigation alert sent: %w", err)
	}
	return nil
}

// CountActiveByType reports non-mitigated zone counts per direction.
func (s *PGZoneStore) CountActiveByType(ctx context.Context) (map[models.ZoneType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT zone_type, COUNT(*) FROM zones WHERE mitigated = FALSE GROUP BY zone_type")
	if err != nil {
		return nil, fmt.Errorf("count active zones: %w", err)
	}
	defer rows.Close()

	out := map[models.ZoneType]int{}
	for rows.Next() {
		var zt string
		var n int
		if err := rows.Scan(&zt, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[models.ZoneType(zt)] = n
	}
	return out, rows.Err()
}

func (s *PGZoneStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PGZoneStore) Close() error {
	return nil // pool owned by pkg/postgres
}
