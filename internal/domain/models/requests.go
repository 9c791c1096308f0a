package models

// Request and response shapes for the zones HTTP API. Defined in
// domain for consistency and reuse.

type ZonesRequest struct {
	Instrument string  `query:"instrument" json:"instrument"`
	Type       string  `query:"type" json:"type" validate:"omitempty,oneof=demand supply"`
	MinScore   float64 `query:"min_score" json:"min_score" validate:"gte=0,lte=6"`
	ActiveOnly bool    `query:"active_only" json:"active_only"`
	Limit      int     `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
	Offset     int     `query:"offset" json:"offset" validate:"gte=0"`
}

type ActiveZonesRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
}

type ChartRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
	Interval   string `query:"interval" json:"interval" default:"5minute" validate:"oneof=minute 3minute 5minute 10minute 15minute 30minute 60minute day"`
	DaysBack   int    `query:"days_back" json:"days_back" default:"10" validate:"gte=1,lte=60"`
}

// ScanRequest triggers an on-demand sweep. An empty instrument list
// means the whole universe.
type ScanRequest struct {
	Instruments []string `json:"instruments" validate:"omitempty,dive,min=1,max=32"`
}

// ScanAccepted is returned once the scan jobs are on the queue.
type ScanAccepted struct {
	RunID  string `json:"run_id"`
	Queued int    `json:"queued"`
}

// ZoneCounts summarises the stored zone population.
type ZoneCounts struct {
	Total        int64 `json:"total"`
	Active       int64 `json:"active"`
	Mitigated    int64 `json:"mitigated"`
	ActiveDemand int   `json:"active_demand"`
	ActiveSupply int   `json:"active_supply"`
}
