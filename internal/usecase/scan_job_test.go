package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"ZoneScan/internal/domain/models"
)

func TestScanJobHandleTypedPayload(t *testing.T) {
	fx := newScanFixture()
	fx.universe.instruments = []models.Instrument{{TradingSymbol: "INFY", Token: 1}}
	fx.fetcher.candles["INFY"] = scanCandleSeries(20, time.Now().UTC())

	job := NewScanJob(fx.scanner(defaultScanConfig()), fx.universe)
	err := job.Handle(context.Background(), ScanJobPayload{RunID: "r1", Instrument: "INFY"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if fx.metrics.scans["ok"] != 1 {
		t.Fatalf("scan did not run: %v", fx.metrics.scans)
	}
}

func TestScanJobHandleMapPayload(t *testing.T) {
	fx := newScanFixture()
	fx.universe.instruments = []models.Instrument{{TradingSymbol: "INFY", Token: 1}}
	fx.fetcher.candles["INFY"] = scanCandleSeries(20, time.Now().UTC())

	job := NewScanJob(fx.scanner(defaultScanConfig()), fx.universe)
	// Payload shape after a Redis round trip.
	payload := map[string]interface{}{"run_id": "r2", "instrument": "INFY"}
	if err := job.Handle(context.Background(), payload); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if fx.metrics.scans["ok"] != 1 {
		t.Fatalf("scan did not run: %v", fx.metrics.scans)
	}
}

func TestScanJobUnknownInstrument(t *testing.T) {
	fx := newScanFixture()

	job := NewScanJob(fx.scanner(defaultScanConfig()), fx.universe)
	err := job.Handle(context.Background(), ScanJobPayload{Instrument: "NOPE"})
	if err == nil || !strings.Contains(err.Error(), "lookup NOPE") {
		t.Fatalf("expected lookup failure, got %v", err)
	}
}

func TestScanJobMissingInstrument(t *testing.T) {
	fx := newScanFixture()

	job := NewScanJob(fx.scanner(defaultScanConfig()), fx.universe)
	if err := job.Handle(context.Background(), ScanJobPayload{RunID: "r3"}); err == nil {
		t.Fatal("expected error for empty instrument")
	}
}
