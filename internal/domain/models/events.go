package models

import "time"

// Kafka event types published on the zones topic.
const (
	EventZoneDetected  = "zone_detected"
	EventZoneMitigated = "zone_mitigated"
	EventScanSummary   = "scan_summary"
)

// ZoneEvent is published when a zone is first detected or later
// mitigated. Keyed by instrument so per-scrip ordering holds.
type ZoneEvent struct {
	Event      string    `json:"event"`
	ZoneKey    string    `json:"zone_key"`
	Instrument string    `json:"instrument"`
	Exchange   string    `json:"exchange"`
	Zone       *Zone     `json:"zone,omitempty"`
	LastPrice  float64   `json:"last_price,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ScanSummaryEvent reports one full universe sweep.
type ScanSummaryEvent struct {
	Event       string    `json:"event"`
	ScanID      string    `json:"scan_id"`
	Instruments int       `json:"instruments"`
	ZonesFound  int       `json:"zones_found"`
	NewZones    int       `json:"new_zones"`
	Mitigations int       `json:"mitigations"`
	Errors      int       `json:"errors"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// ScanOutcome aggregates the result of scanning one instrument.
type ScanOutcome struct {
	Instrument  string
	ZonesFound  int
	NewZones    int
	Mitigations int
	Err         error
}
