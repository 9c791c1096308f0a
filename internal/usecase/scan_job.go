package usecase

import (
	"context"
	"fmt"
	"log"

	dsvc "ZoneScan/internal/domain/service"
	"ZoneScan/pkg/queue"
)

// ScanJobType is the queue message type for on-demand instrument
// scans.
const ScanJobType = "scan.instrument"

// ScanJobPayload is one queued scan request. RunID groups the requests
// submitted by a single API call.
type ScanJobPayload struct {
	RunID      string `json:"run_id"`
	Instrument string `json:"instrument"`
}

// ScanJob runs queued scans through the same per-instrument pipeline
// the scheduler uses.
type ScanJob struct {
	scanner  *Scanner
	universe dsvc.UniverseProvider
}

func NewScanJob(scanner *Scanner, universe dsvc.UniverseProvider) *ScanJob {
	return &ScanJob{scanner: scanner, universe: universe}
}

func (j *ScanJob) Name() string { return "instrument-scan" }

func (j *ScanJob) Type() string { return ScanJobType }

func (j *ScanJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[ScanJobPayload](payload)
	if err != nil {
		return fmt.Errorf("parse scan payload: %w", err)
	}
	if p.Instrument == "" {
		return fmt.Errorf("scan job missing instrument")
	}

	inst, err := j.universe.Lookup(ctx, p.Instrument)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", p.Instrument, err)
	}

	out := j.scanner.ScanInstrument(ctx, *inst)
	if out.Err != nil {
		return out.Err
	}
	log.Printf("scan job %s: %s zones=%d new=%d mitigations=%d",
		p.RunID, out.Instrument, out.ZonesFound, out.NewZones, out.Mitigations)
	return nil
}

var _ queue.Job = (*ScanJob)(nil)
