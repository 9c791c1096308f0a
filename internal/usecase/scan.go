package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"ZoneScan/internal/domain/models"
	drepo "ZoneScan/internal/domain/repository"
	dsvc "ZoneScan/internal/domain/service"
	"ZoneScan/internal/service/telegram"
)

// HistoricalFetcher pulls OHLCV history for one instrument.
type HistoricalFetcher interface {
	Historical(ctx context.Context, inst models.Instrument, interval string, daysBack int) ([]models.Candle, error)
}

// ScannerConfig carries the sweep tunables.
type ScannerConfig struct {
	Exchange        string
	Interval        string
	DaysBack        int
	Workers         int
	AlertMinScore   float64
	ScanDelay       time.Duration
	SendScanSummary bool
}

// Scanner runs zone detection over the instrument universe: fetch
// candles, persist them, detect zones, upsert, check stored zones for
// mitigation and fan out alerts and events.
type Scanner struct {
	cfg      ScannerConfig
	fetcher  HistoricalFetcher
	universe dsvc.UniverseProvider
	detector dsvc.ZoneDetector
	zones    drepo.ZoneStore
	candles  drepo.CandleStore
	archiver drepo.CandleArchiver
	notifier dsvc.Notifier
	events   drepo.ZoneEvents
	metrics  drepo.Metrics
}

func NewScanner(
	cfg ScannerConfig,
	fetcher HistoricalFetcher,
	universe dsvc.UniverseProvider,
	detector dsvc.ZoneDetector,
	zones drepo.ZoneStore,
	candles drepo.CandleStore,
	notifier dsvc.Notifier,
	events drepo.ZoneEvents,
	metrics drepo.Metrics,
) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	// rough yield: ~5/7 of calendar days are sessions of 375 trading minutes
	bars := cfg.DaysBack * 5 * 375 / (7 * drepo.IntervalMinutes(drepo.Interval(cfg.Interval)))
	if bars < detector.MinBars() {
		log.Printf("scanner: days_back %d yields ~%d %s bars, detection needs %d; sweeps will skip instruments",
			cfg.DaysBack, bars, cfg.Interval, detector.MinBars())
	}
	return &Scanner{
		cfg:      cfg,
		fetcher:  fetcher,
		universe: universe,
		detector: detector,
		zones:    zones,
		candles:  candles,
		notifier: notifier,
		events:   events,
		metrics:  metrics,
	}
}

// WithArchiver attaches cold storage for fetched candle windows.
func (s *Scanner) WithArchiver(a drepo.CandleArchiver) *Scanner {
	s.archiver = a
	return s
}

// ScanAll sweeps the whole universe with cfg.Workers concurrent
// fetchers and returns the aggregated summary. Cancelling ctx stops
// feeding new instruments; in-flight ones finish.
func (s *Scanner) ScanAll(ctx context.Context) (*models.ScanSummaryEvent, error) {
	scanID := uuid.NewString()
	startedAt := time.Now().UTC()

	instruments, err := s.universe.Instruments(ctx)
	if err != nil {
		s.metrics.RecordError("universe")
		return nil, fmt.Errorf("resolve universe: %w", err)
	}
	log.Printf("scan %s: sweeping %d instruments", shortID(scanID), len(instruments))

	workers := s.cfg.Workers
	if workers > len(instruments) && len(instruments) > 0 {
		workers = len(instruments)
	}

	jobs := make(chan models.Instrument)
	outcomes := make(chan *models.ScanOutcome, len(instruments))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inst := range jobs {
				outcomes <- s.ScanInstrument(ctx, inst)
				if s.cfg.ScanDelay > 0 {
					select {
					case <-ctx.Done():
					case <-time.After(s.cfg.ScanDelay):
					}
				}
			}
		}()
	}

feed:
	for _, inst := range instruments {
		select {
		case <-ctx.Done():
			log.Printf("scan %s: shutdown requested, stopping sweep early", shortID(scanID))
			break feed
		case jobs <- inst:
		}
	}
	close(jobs)

	go func() { wg.Wait(); close(outcomes) }()

	summary := &models.ScanSummaryEvent{
		Event:       models.EventScanSummary,
		ScanID:      scanID,
		Instruments: len(instruments),
		StartedAt:   startedAt,
	}
	for out := range outcomes {
		summary.ZonesFound += out.ZonesFound
		summary.NewZones += out.NewZones
		summary.Mitigations += out.Mitigations
		if out.Err != nil {
			summary.Errors++
		}
	}
	summary.FinishedAt = time.Now().UTC()

	duration := summary.FinishedAt.Sub(summary.StartedAt)
	s.metrics.RecordLatency("scan_all", duration.Seconds())
	log.Printf("scan %s: done in %.1fs instruments=%d new_zones=%d mitigations=%d errors=%d",
		shortID(scanID), duration.Seconds(), summary.Instruments,
		summary.NewZones, summary.Mitigations, summary.Errors)

	s.refreshActiveGauge(ctx)

	if err := s.events.PublishSummary(ctx, summary); err != nil {
		log.Printf("scan %s: summary event publish failed: %v", shortID(scanID), err)
		s.metrics.RecordError("events")
	}

	if s.cfg.SendScanSummary {
		if err := s.notifier.SendScanSummary(ctx, summary); err != nil {
			if !errors.Is(err, telegram.ErrNotConfigured) {
				s.metrics.RecordError("alert")
			}
		} else {
			s.metrics.RecordAlertSent("summary")
		}
	}

	return summary, nil
}

// ScanInstrument runs the full per-instrument pipeline. Insufficient
// history is a skip, not an error.
func (s *Scanner) ScanInstrument(ctx context.Context, inst models.Instrument) *models.ScanOutcome {
	out := &models.ScanOutcome{Instrument: inst.TradingSymbol}
	if ctx.Err() != nil {
		return out
	}

	candles, err := s.fetcher.Historical(ctx, inst, s.cfg.Interval, s.cfg.DaysBack)
	if err != nil {
		log.Printf("scan: fetch %s failed: %v", inst.TradingSymbol, err)
		s.metrics.RecordError("fetch")
		s.metrics.RecordScan("error")
		out.Err = fmt.Errorf("fetch %s: %w", inst.TradingSymbol, err)
		return out
	}
	if len(candles) < s.detector.MinBars() {
		s.metrics.RecordScan("skipped")
		return out
	}

	lastPrice := candles[len(candles)-1].Close
	s.metrics.RecordLastPrice(inst.TradingSymbol, lastPrice)

	// Persistence failures must not block detection; the sweep still
	// produces zones and alerts from the in-memory series.
	if err := s.candles.UpsertBatch(ctx, candles); err != nil {
		log.Printf("scan: candle store %s failed: %v", inst.TradingSymbol, err)
		s.metrics.RecordError("candle_store")
	}
	if s.archiver != nil {
		if _, err := s.archiver.Archive(ctx, inst.TradingSymbol, drepo.Interval(s.cfg.Interval), candles); err != nil {
			log.Printf("scan: archive %s failed: %v", inst.TradingSymbol, err)
			s.metrics.RecordError("archive")
		}
	}

	zones := s.detector.Detect(candles)
	out.ZonesFound = len(zones)

	inserted := s.upsertZones(ctx, inst, zones, lastPrice, out)
	out.NewZones = len(inserted)

	s.checkMitigations(ctx, inst, candles, lastPrice, out)
	s.sendNewZoneAlerts(ctx, inst, inserted, lastPrice)

	if out.Err != nil {
		s.metrics.RecordScan("error")
	} else {
		s.metrics.RecordScan("ok")
	}
	return out
}

type insertedZone struct {
	key  string
	zone *models.Zone
}

func (s *Scanner) upsertZones(ctx context.Context, inst models.Instrument, zones []models.Zone, lastPrice float64, out *models.ScanOutcome) []insertedZone {
	var inserted []insertedZone
	for i := range zones {
		z := &zones[i]
		isNew, err := s.zones.Upsert(ctx, inst.TradingSymbol, s.cfg.Exchange, z)
		if err != nil {
			log.Printf("scan: zone upsert %s failed: %v", inst.TradingSymbol, err)
			s.metrics.RecordError("zone_store")
			out.Err = fmt.Errorf("upsert %s: %w", inst.TradingSymbol, err)
			continue
		}
		if !isNew {
			continue
		}
		inserted = append(inserted, insertedZone{key: z.Key(inst.TradingSymbol), zone: z})
		s.metrics.RecordZoneDetected(string(z.Type))

		ev := &models.ZoneEvent{
			ZoneKey:    z.Key(inst.TradingSymbol),
			Instrument: inst.TradingSymbol,
			Exchange:   s.cfg.Exchange,
			Zone:       z,
			LastPrice:  lastPrice,
		}
		if err := s.events.PublishDetected(ctx, ev); err != nil {
			log.Printf("scan: zone event publish %s failed: %v", inst.TradingSymbol, err)
			s.metrics.RecordError("events")
		}
	}
	return inserted
}

// checkMitigations walks the stored active zones and marks any the
// fetched series has since traded through.
func (s *Scanner) checkMitigations(ctx context.Context, inst models.Instrument, candles []models.Candle, lastPrice float64, out *models.ScanOutcome) {
	stored, err := s.zones.ActiveZones(ctx, inst.TradingSymbol)
	if err != nil {
		log.Printf("scan: active zones %s failed: %v", inst.TradingSymbol, err)
		s.metrics.RecordError("zone_store")
		out.Err = fmt.Errorf("active zones %s: %w", inst.TradingSymbol, err)
		return
	}

	for _, row := range stored {
		if !tradedThrough(candles, row.ZoneHigh, row.ZoneLow, row.DatetimeEnd) {
			continue
		}
		if err := s.zones.MarkMitigated(ctx, row.ZoneKey); err != nil {
			log.Printf("scan: mark mitigated %s failed: %v", row.ZoneKey, err)
			s.metrics.RecordError("zone_store")
			continue
		}
		out.Mitigations++
		s.metrics.RecordMitigation()

		mz := row.AsZone()
		mz.Mitigated = true
		ev := &models.ZoneEvent{
			ZoneKey:    row.ZoneKey,
			Instrument: row.Instrument,
			Exchange:   row.Exchange,
			Zone:       mz,
			LastPrice:  lastPrice,
		}
		if err := s.events.PublishMitigated(ctx, ev); err != nil {
			log.Printf("scan: mitigation event publish %s failed: %v", row.ZoneKey, err)
			s.metrics.RecordError("events")
		}

		if row.Score >= s.cfg.AlertMinScore && !row.MitigationAlertSent {
			if err := s.notifier.SendMitigationAlert(ctx, row, lastPrice); err != nil {
				if !errors.Is(err, telegram.ErrNotConfigured) {
					s.metrics.RecordError("alert")
				}
				continue
			}
			s.metrics.RecordAlertSent("mitigation")
			if err := s.zones.MarkMitigationAlertSent(ctx, row.ZoneKey); err != nil {
				log.Printf("scan: mark mitigation alert %s failed: %v", row.ZoneKey, err)
				s.metrics.RecordError("zone_store")
			}
		}
	}
}

// sendNewZoneAlerts notifies qualifying fresh zones. Alert bookkeeping
// only advances on confirmed delivery so failures retry next sweep.
func (s *Scanner) sendNewZoneAlerts(ctx context.Context, inst models.Instrument, inserted []insertedZone, lastPrice float64) {
	for _, nz := range inserted {
		if nz.zone.Score < s.cfg.AlertMinScore || nz.zone.Mitigated {
			continue
		}
		if err := s.notifier.SendZoneAlert(ctx, inst.TradingSymbol, nz.zone, lastPrice); err != nil {
			if !errors.Is(err, telegram.ErrNotConfigured) {
				s.metrics.RecordError("alert")
			}
			continue
		}
		s.metrics.RecordAlertSent("zone")
		if err := s.zones.MarkAlertSent(ctx, nz.key); err != nil {
			log.Printf("scan: mark alert sent %s failed: %v", nz.key, err)
			s.metrics.RecordError("zone_store")
		}
	}
}

func (s *Scanner) refreshActiveGauge(ctx context.Context) {
	counts, err := s.zones.CountActiveByType(ctx)
	if err != nil {
		log.Printf("scan: active zone counts failed: %v", err)
		s.metrics.RecordError("zone_store")
		return
	}
	s.metrics.SetActiveZones(string(models.ZoneDemand), counts[models.ZoneDemand])
	s.metrics.SetActiveZones(string(models.ZoneSupply), counts[models.ZoneSupply])
}

// tradedThrough reports whether any bar after end overlapped the zone
// price band.
func tradedThrough(candles []models.Candle, zoneHigh, zoneLow float64, end time.Time) bool {
	for i := range candles {
		if !candles[i].Timestamp.After(end) {
			continue
		}
		if candles[i].Low < zoneHigh && candles[i].High > zoneLow {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
