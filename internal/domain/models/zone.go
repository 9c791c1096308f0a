package models

import (
	"fmt"
	"time"
)

// ZoneType is the direction of a detected zone.
type ZoneType string

const (
	ZoneDemand ZoneType = "demand"
	ZoneSupply ZoneType = "supply"
)

// Probability labels assigned from the final score.
const (
	ProbabilityHigh       = "High"
	ProbabilityMediumHigh = "Medium-High"
)

// Score criteria names used in Zone.ScoreDetails. Each maps to
// 0.0, 0.5 or 1.0; the total score is their sum (max 6.0).
const (
	CriterionImpulse   = "impulse"
	CriterionTightness = "tightness"
	CriterionFreshness = "freshness"
	CriterionFVG       = "fvg"
	CriterionBOS       = "bos"
	CriterionCleanBase = "clean_base"
)

// Zone is one detected supply or demand zone. Immutable once returned
// by the detector; persistence attaches instrument/exchange identity.
type Zone struct {
	Type         ZoneType           `json:"type"`
	High         float64            `json:"zone_high"`
	Low          float64            `json:"zone_low"`
	Mid          float64            `json:"zone_mid"`
	Score        float64            `json:"score"`
	Probability  string             `json:"probability"`
	BaseStartIdx int                `json:"base_start_idx"`
	BaseEndIdx   int                `json:"base_end_idx"`
	Mitigated    bool               `json:"mitigated"`
	FVGPresent   bool               `json:"fvg_present"`
	ImpulseRatio float64            `json:"impulse_ratio"`
	ScoreDetails map[string]float64 `json:"score_details"`
	Start        time.Time          `json:"datetime_start"`
	End          time.Time          `json:"datetime_end"`
}

// Fresh reports whether no later bar re-entered the zone bounds at
// detection time.
func (z *Zone) Fresh() bool {
	return !z.Mitigated
}

// Overlaps reports open-interval price overlap with another zone.
func (z *Zone) Overlaps(other *Zone) bool {
	return z.Low < other.High && z.High > other.Low
}

// Key builds the stable identity used for idempotent upserts across
// repeated scans: instrument, direction, base start truncated to
// seconds, and bounds rounded to 2 decimals.
func (z *Zone) Key(instrument string) string {
	return MakeZoneKey(instrument, z.Type, z.Start, z.High, z.Low)
}

// MakeZoneKey builds a deterministic zone identity string.
func MakeZoneKey(instrument string, zoneType ZoneType, start time.Time, high, low float64) string {
	return fmt.Sprintf("%s|%s|%s|%.2f|%.2f",
		instrument, zoneType, start.Format("2006-01-02 15:04:05"), high, low)
}

// StoredZone is a persisted zone row with storage identity and alert
// bookkeeping.
type StoredZone struct {
	ID                  int64     `db:"id" json:"id"`
	ZoneKey             string    `db:"zone_key" json:"zone_key"`
	Instrument          string    `db:"instrument" json:"instrument"`
	Exchange            string    `db:"exchange" json:"exchange"`
	ZoneType            ZoneType  `db:"zone_type" json:"type"`
	ZoneHigh            float64   `db:"zone_high" json:"zone_high"`
	ZoneLow             float64   `db:"zone_low" json:"zone_low"`
	ZoneMid             float64   `db:"zone_mid" json:"zone_mid"`
	Score               float64   `db:"score" json:"score"`
	Probability         string    `db:"probability" json:"probability"`
	Mitigated           bool      `db:"mitigated" json:"mitigated"`
	FVGPresent          bool      `db:"fvg_present" json:"fvg_present"`
	ImpulseRatio        float64   `db:"impulse_ratio" json:"impulse_ratio"`
	DatetimeStart       time.Time `db:"datetime_start" json:"datetime_start"`
	DatetimeEnd         time.Time `db:"datetime_end" json:"datetime_end"`
	FirstSeen           time.Time `db:"first_seen" json:"first_seen"`
	LastUpdated         time.Time `db:"last_updated" json:"last_updated"`
	AlertSent           bool      `db:"alert_sent" json:"alert_sent"`
	MitigationAlertSent bool      `db:"mitigation_alert_sent" json:"mitigation_alert_sent"`
}

// AsZone converts the stored row back into detector shape for event
// payloads. ScoreDetails are not persisted and come back nil.
func (s *StoredZone) AsZone() *Zone {
	return &Zone{
		Type:         s.ZoneType,
		High:         s.ZoneHigh,
		Low:          s.ZoneLow,
		Mid:          s.ZoneMid,
		Score:        s.Score,
		Probability:  s.Probability,
		Mitigated:    s.Mitigated,
		FVGPresent:   s.FVGPresent,
		ImpulseRatio: s.ImpulseRatio,
		Start:        s.DatetimeStart,
		End:          s.DatetimeEnd,
	}
}
