// Package universe resolves the scannable instrument set: NSE equity
// underlyings that carry active NFO futures contracts. Index
// underlyings are excluded; their candles live in a different segment.
package universe

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"ZoneScan/internal/domain/models"
	"ZoneScan/internal/domain/service"
	"ZoneScan/pkg/cache"
	"ZoneScan/pkg/util"
)

// InstrumentFetcher is the slice of the market-data client the
// universe needs: the full instrument dump for one exchange.
type InstrumentFetcher interface {
	Instruments(ctx context.Context, exchange string) ([]models.Instrument, error)
}

// Option configures the universe service.
type Option func(*Service)

// WithSymbols restricts the universe to an explicit symbol list. The
// NFO intersection is skipped so a non-F&O symbol can still be
// scanned.
func WithSymbols(symbols []string) Option {
	return func(s *Service) {
		cleaned := make([]string, 0, len(symbols))
		for _, sym := range symbols {
			sym = util.NormalizeSymbol(sym)
			if sym != "" {
				cleaned = append(cleaned, sym)
			}
		}
		if len(cleaned) == 0 {
			return
		}
		sort.Strings(cleaned)
		s.only = make(map[string]struct{}, len(cleaned))
		for _, sym := range cleaned {
			s.only[sym] = struct{}{}
		}
		s.onlyTag = cache.HashKey(strings.Join(cleaned, ","))
	}
}

// Service caches the F&O equity universe per trading day. The
// instrument dump only changes overnight, so repeated calls within the
// same day are free.
type Service struct {
	fetcher  InstrumentFetcher
	dayCache cache.Service
	loc      *time.Location
	only     map[string]struct{}
	onlyTag  string

	mu       sync.RWMutex
	day      string
	universe []models.Instrument
	bySymbol map[string]models.Instrument
}

var _ service.UniverseProvider = (*Service)(nil)

// New builds the universe service. dayCache may be nil; the in-memory
// day copy then carries the caching alone.
func New(fetcher InstrumentFetcher, dayCache cache.Service, opts ...Option) *Service {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	s := &Service{
		fetcher:  fetcher,
		dayCache: dayCache,
		loc:      loc,
		bySymbol: make(map[string]models.Instrument),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Instruments returns the universe sorted by trading symbol, fetching
// at most once per calendar day.
func (s *Service) Instruments(ctx context.Context) ([]models.Instrument, error) {
	today := s.today()

	s.mu.RLock()
	if s.day == today && len(s.universe) > 0 {
		out := make([]models.Instrument, len(s.universe))
		copy(out, s.universe)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	if s.dayCache != nil {
		var cached []models.Instrument
		if err := s.dayCache.Get(ctx, s.cacheKey(today), &cached); err == nil && len(cached) > 0 {
			s.store(today, cached)
			return cached, nil
		}
	}

	universe, err := s.build(ctx)
	if err != nil {
		return nil, err
	}
	if s.dayCache != nil {
		if err := s.dayCache.Set(ctx, s.cacheKey(today), universe, 24*time.Hour); err != nil {
			log.Printf("universe: day cache write failed: %v", err)
		}
	}
	s.store(today, universe)
	return universe, nil
}

// Lookup resolves one trading symbol against the current universe.
func (s *Service) Lookup(ctx context.Context, tradingSymbol string) (*models.Instrument, error) {
	s.mu.RLock()
	if s.day == s.today() {
		if inst, ok := s.bySymbol[tradingSymbol]; ok {
			s.mu.RUnlock()
			return &inst, nil
		}
		if len(s.universe) > 0 {
			s.mu.RUnlock()
			return nil, fmt.Errorf("instrument %s not in scan universe", tradingSymbol)
		}
	}
	s.mu.RUnlock()

	if _, err := s.Instruments(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if inst, ok := s.bySymbol[tradingSymbol]; ok {
		return &inst, nil
	}
	return nil, fmt.Errorf("instrument %s not in scan universe", tradingSymbol)
}

// Refresh drops the day cache and fetches the universe again.
func (s *Service) Refresh(ctx context.Context) error {
	today := s.today()

	universe, err := s.build(ctx)
	if err != nil {
		return err
	}
	if s.dayCache != nil {
		if err := s.dayCache.Set(ctx, s.cacheKey(today), universe, 24*time.Hour); err != nil {
			log.Printf("universe: day cache write failed: %v", err)
		}
	}
	s.store(today, universe)
	return nil
}

// build fetches both exchanges and intersects them: unique underlying
// names of active NFO futures, matched against NSE EQ trading symbols.
func (s *Service) build(ctx context.Context) ([]models.Instrument, error) {
	if len(s.only) > 0 {
		return s.buildExplicit(ctx)
	}

	nfo, err := s.fetcher.Instruments(ctx, "NFO")
	if err != nil {
		return nil, fmt.Errorf("fetch NFO instruments: %w", err)
	}

	foNames := make(map[string]struct{})
	for _, inst := range nfo {
		if inst.InstrumentType == "FUT" && inst.Name != "" {
			foNames[inst.Name] = struct{}{}
		}
	}
	log.Printf("universe: %d unique F&O underlying names in NFO", len(foNames))

	nse, err := s.fetcher.Instruments(ctx, "NSE")
	if err != nil {
		return nil, fmt.Errorf("fetch NSE instruments: %w", err)
	}

	seen := make(map[string]struct{})
	result := make([]models.Instrument, 0, len(foNames))
	for _, inst := range nse {
		sym := inst.TradingSymbol
		if _, fo := foNames[sym]; !fo || inst.InstrumentType != "EQ" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		if inst.Name == "" {
			inst.Name = sym
		}
		result = append(result, inst)
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].TradingSymbol < result[b].TradingSymbol
	})
	log.Printf("universe: matched %d NSE equities with F&O contracts", len(result))
	return result, nil
}

// buildExplicit resolves the configured symbol list against the NSE
// equity dump.
func (s *Service) buildExplicit(ctx context.Context) ([]models.Instrument, error) {
	nse, err := s.fetcher.Instruments(ctx, "NSE")
	if err != nil {
		return nil, fmt.Errorf("fetch NSE instruments: %w", err)
	}

	seen := make(map[string]struct{})
	result := make([]models.Instrument, 0, len(s.only))
	for _, inst := range nse {
		sym := inst.TradingSymbol
		if _, want := s.only[sym]; !want || inst.InstrumentType != "EQ" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		if inst.Name == "" {
			inst.Name = sym
		}
		result = append(result, inst)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("none of the %d configured symbols resolved on NSE", len(s.only))
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].TradingSymbol < result[b].TradingSymbol
	})
	log.Printf("universe: resolved %d of %d configured symbols", len(result), len(s.only))
	return result, nil
}

func (s *Service) store(day string, universe []models.Instrument) {
	bySymbol := make(map[string]models.Instrument, len(universe))
	for _, inst := range universe {
		bySymbol[inst.TradingSymbol] = inst
	}

	s.mu.Lock()
	s.day = day
	s.universe = make([]models.Instrument, len(universe))
	copy(s.universe, universe)
	s.bySymbol = bySymbol
	s.mu.Unlock()
}

func (s *Service) today() string {
	return time.Now().In(s.loc).Format("2006-01-02")
}

// cacheKey tags the day key with the explicit symbol list so a config
// change cannot replay a stale cached universe.
func (s *Service) cacheKey(day string) string {
	if s.onlyTag == "" {
		return cache.GenerateKey("universe", day)
	}
	return cache.GenerateKeyWithParams("universe", day, s.onlyTag)
}
