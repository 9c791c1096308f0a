package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	models "ZoneScan/internal/domain/models"
	domrepo "ZoneScan/internal/domain/repository"
	"ZoneScan/internal/service/cache"
	"ZoneScan/internal/usecase"

	"github.com/labstack/echo/v4"
)

type fakeAPIZones struct {
	mu         sync.Mutex
	rows       []*models.StoredZone
	total      int64
	active     []*models.StoredZone
	byType     map[models.ZoneType]int
	lastFilter domrepo.ZoneFilter
	lists      int
	healthErr  error
}

func (f *fakeAPIZones) Init(ctx context.Context) error { return nil }

func (f *fakeAPIZones) Upsert(ctx context.Context, instrument, exchange string, zone *models.Zone) (bool, error) {
	return false, nil
}

func (f *fakeAPIZones) GetByKey(ctx context.Context, zoneKey string) (*models.StoredZone, error) {
	return nil, nil
}

func (f *fakeAPIZones) List(ctx context.Context, filter domrepo.ZoneFilter) ([]*models.StoredZone, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	f.lists++
	return f.rows, f.total, nil
}

func (f *fakeAPIZones) ActiveZones(ctx context.Context, instrument string) ([]*models.StoredZone, error) {
	return f.active, nil
}

func (f *fakeAPIZones) MarkMitigated(ctx context.Context, zoneKey string) error           { return nil }
func (f *fakeAPIZones) MarkAlertSent(ctx context.Context, zoneKey string) error           { return nil }
func (f *fakeAPIZones) MarkMitigationAlertSent(ctx context.Context, zoneKey string) error { return nil }

func (f *fakeAPIZones) CountActiveByType(ctx context.Context) (map[models.ZoneType]int, error) {
	return f.byType, nil
}

func (f *fakeAPIZones) Health(ctx context.Context) error { return f.healthErr }
func (f *fakeAPIZones) Close() error                     { return nil }

func (f *fakeAPIZones) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type fakeAPICandles struct {
	series []models.Candle
}

func (f *fakeAPICandles) Init(ctx context.Context) error                           { return nil }
func (f *fakeAPICandles) UpsertBatch(ctx context.Context, c []models.Candle) error { return nil }

func (f *fakeAPICandles) GetCandles(ctx context.Context, instrument string, from, to time.Time, interval domrepo.Interval) ([]models.Candle, error) {
	return f.series, nil
}

func (f *fakeAPICandles) GetLatestNCandles(ctx context.Context, instrument string, n int, interval domrepo.Interval) ([]models.Candle, error) {
	return f.series, nil
}

func (f *fakeAPICandles) Health(ctx context.Context) error { return nil }
func (f *fakeAPICandles) Close() error                     { return nil }

type fakeAPIUniverse struct {
	instruments []models.Instrument
}

func (f *fakeAPIUniverse) Instruments(ctx context.Context) ([]models.Instrument, error) {
	return f.instruments, nil
}

func (f *fakeAPIUniverse) Lookup(ctx context.Context, sym string) (*models.Instrument, error) {
	for i := range f.instruments {
		if f.instruments[i].TradingSymbol == sym {
			return &f.instruments[i], nil
		}
	}
	return nil, nil
}

func (f *fakeAPIUniverse) Refresh(ctx context.Context) error { return nil }

type queuedMsg struct {
	msgType string
	payload interface{}
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []queuedMsg
	err  error
}

func (f *fakeQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, queuedMsg{msgType: msgType, payload: payload})
	return nil
}

func (f *fakeQueue) queued() []queuedMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queuedMsg, len(f.msgs))
	copy(out, f.msgs)
	return out
}

type apiFixture struct {
	zones    *fakeAPIZones
	candles  *fakeAPICandles
	universe *fakeAPIUniverse
	queue    *fakeQueue
	handler  *ZonesHandler
	echo     *echo.Echo
}

func newAPIFixture() *apiFixture {
	zones := &fakeAPIZones{byType: map[models.ZoneType]int{}}
	candles := &fakeAPICandles{}
	universe := &fakeAPIUniverse{instruments: []models.Instrument{
		{Token: 408065, TradingSymbol: "INFY", Exchange: "NSE"},
		{Token: 2953217, TradingSymbol: "TCS", Exchange: "NSE"},
	}}
	q := &fakeQueue{}
	chart := usecase.NewChartUseCase(candles, zones)
	h := NewZonesHandler(zones, chart, universe, q)
	e := echo.New()
	h.RegisterRoutes(e)
	return &apiFixture{zones: zones, candles: candles, universe: universe, queue: q, handler: h, echo: e}
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return rec, env
}

func storedZone(instrument string, mitigated bool) *models.StoredZone {
	return &models.StoredZone{
		ZoneKey:    instrument + "_demand_100.0000_2024-08-12T09:20:00",
		Instrument: instrument,
		Exchange:   "NSE",
		ZoneType:   models.ZoneDemand,
		ZoneHigh:   101,
		ZoneLow:    99,
		ZoneMid:    100,
		Score:      5.5,
		Mitigated:  mitigated,
	}
}

func TestListZonesNormalizesFilter(t *testing.T) {
	fx := newAPIFixture()
	fx.zones.rows = []*models.StoredZone{storedZone("INFY", false)}
	fx.zones.total = 1

	rec, env := doJSON(t, fx.echo, http.MethodGet, "/api/v1/zones?instrument=infy&active_only=true&min_score=4", "")
	if rec.Code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("status = %d/%d, want 200/200", rec.Code, env.Status)
	}

	var list struct {
		Rows  []*models.StoredZone `json:"rows"`
		Total int64                `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || len(list.Rows) != 1 {
		t.Fatalf("list = %d rows total %d, want 1/1", len(list.Rows), list.Total)
	}

	filter := fx.zones.lastFilter
	if filter.Instrument != "INFY" {
		t.Fatalf("filter instrument = %q, want INFY", filter.Instrument)
	}
	if !filter.ActiveOnly || filter.MinScore != 4 {
		t.Fatalf("filter = %+v, want active-only with min score 4", filter)
	}
	if filter.Limit != 100 {
		t.Fatalf("default limit = %d, want 100", filter.Limit)
	}
}

func TestListZonesRejectsBadType(t *testing.T) {
	fx := newAPIFixture()

	_, env := doJSON(t, fx.echo, http.MethodGet, "/api/v1/zones?type=sideways", "")
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", env.Status)
	}
	if fx.zones.listCalls() != 0 {
		t.Fatalf("store queried despite invalid request")
	}
}

func TestListZonesServesFromCache(t *testing.T) {
	fx := newAPIFixture()
	fx.handler.SetCache(cache.NewTTLCache())
	fx.zones.rows = []*models.StoredZone{storedZone("INFY", false)}
	fx.zones.total = 1

	first, _ := doJSON(t, fx.echo, http.MethodGet, "/api/v1/zones?instrument=INFY", "")
	second, _ := doJSON(t, fx.echo, http.MethodGet, "/api/v1/zones?instrument=INFY", "")

	if fx.zones.listCalls() != 1 {
		t.Fatalf("store hit %d times, want 1 (second response from cache)", fx.zones.listCalls())
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("cached body diverged from original")
	}
}

func TestActiveZonesRequiresInstrument(t *testing.T) {
	fx := newAPIFixture()

	_, env := doJSON(t, fx.echo, http.MethodGet, "/api/v1/zones/active", "")
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", env.Status)
	}
}

func TestActiveZonesReturnsRows(t *testing.T) {
	fx := newAPIFixture()
	fx.zones.active = []*models.StoredZone{storedZone("TCS", false)}

	_, env := doJSON(t, fx.echo, http.MethodGet, "/api/v1/zones/active?instrument=tcs", "")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var list struct {
		Rows  []*models.StoredZone `json:"rows"`
		Total int64                `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || list.Rows[0].Instrument != "TCS" {
		t.Fatalf("unexpected rows: %+v", list)
	}
}

func TestZoneCountsMath(t *testing.T) {
	fx := newAPIFixture()
	fx.zones.total = 5
	fx.zones.byType = map[models.ZoneType]int{models.ZoneDemand: 2, models.ZoneSupply: 1}

	_, env := doJSON(t, fx.echo, http.MethodGet, "/api/v1/zones/counts", "")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var counts models.ZoneCounts
	if err := json.Unmarshal(env.Data, &counts); err != nil {
		t.Fatalf("decode counts: %v", err)
	}
	if counts.Total != 5 || counts.Active != 3 || counts.Mitigated != 2 {
		t.Fatalf("counts = %+v, want total 5 active 3 mitigated 2", counts)
	}
	if counts.ActiveDemand != 2 || counts.ActiveSupply != 1 {
		t.Fatalf("per-type counts = %+v", counts)
	}
}

func TestChartReturnsCandlesAndZones(t *testing.T) {
	fx := newAPIFixture()
	now := time.Now().UTC().Truncate(time.Minute)
	fx.candles.series = []models.Candle{
		{Timestamp: now.Add(-5 * time.Minute), Open: 100, High: 101, Low: 99, Close: 100.5},
		{Timestamp: now, Open: 100.5, High: 102, Low: 100, Close: 101.5},
	}
	fx.zones.rows = []*models.StoredZone{storedZone("INFY", true)}
	fx.zones.total = 1

	_, env := doJSON(t, fx.echo, http.MethodGet, "/api/v1/chart?instrument=INFY&days_back=5", "")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var res usecase.ChartResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode chart: %v", err)
	}
	if res.Instrument != "INFY" || res.Count != 2 {
		t.Fatalf("chart = %s with %d candles, want INFY with 2", res.Instrument, res.Count)
	}
	if len(res.Zones) != 1 || !res.Zones[0].Mitigated {
		t.Fatalf("mitigated zones must stay on the chart: %+v", res.Zones)
	}
}

func TestChartRejectsUnknownInterval(t *testing.T) {
	fx := newAPIFixture()

	_, env := doJSON(t, fx.echo, http.MethodGet, "/api/v1/chart?instrument=INFY&interval=2minute", "")
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", env.Status)
	}
}

func TestTriggerScanFansOutUniverse(t *testing.T) {
	fx := newAPIFixture()

	_, env := doJSON(t, fx.echo, http.MethodPost, "/api/v1/scan", "")
	if env.Status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", env.Status)
	}
	var acc models.ScanAccepted
	if err := json.Unmarshal(env.Data, &acc); err != nil {
		t.Fatalf("decode accepted: %v", err)
	}
	if acc.Queued != 2 || acc.RunID == "" {
		t.Fatalf("accepted = %+v, want 2 queued jobs under a run id", acc)
	}

	msgs := fx.queue.queued()
	if len(msgs) != 2 {
		t.Fatalf("queued %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.msgType != usecase.ScanJobType {
			t.Fatalf("message type = %q, want %q", m.msgType, usecase.ScanJobType)
		}
		p, ok := m.payload.(usecase.ScanJobPayload)
		if !ok {
			t.Fatalf("payload type = %T", m.payload)
		}
		if p.RunID != acc.RunID {
			t.Fatalf("payload run id = %q, want %q", p.RunID, acc.RunID)
		}
	}
}

func TestTriggerScanExplicitSymbols(t *testing.T) {
	fx := newAPIFixture()

	_, env := doJSON(t, fx.echo, http.MethodPost, "/api/v1/scan", `{"instruments":[" infy "]}`)
	if env.Status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", env.Status)
	}

	msgs := fx.queue.queued()
	if len(msgs) != 1 {
		t.Fatalf("queued %d messages, want 1", len(msgs))
	}
	p := msgs[0].payload.(usecase.ScanJobPayload)
	if p.Instrument != "INFY" {
		t.Fatalf("payload instrument = %q, want INFY", p.Instrument)
	}
}

func TestTriggerScanRateLimited(t *testing.T) {
	fx := newAPIFixture()

	_, first := doJSON(t, fx.echo, http.MethodPost, "/api/v1/scan", `{"instruments":["INFY"]}`)
	_, second := doJSON(t, fx.echo, http.MethodPost, "/api/v1/scan", `{"instruments":["INFY"]}`)
	if first.Status != http.StatusAccepted {
		t.Fatalf("first status = %d, want 202", first.Status)
	}
	if second.Status != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Status)
	}
	if got := len(fx.queue.queued()); got != 1 {
		t.Fatalf("queued %d messages, want 1", got)
	}
}

func TestHealthAggregatesChecks(t *testing.T) {
	fx := newAPIFixture()
	fx.handler.SetHealthChecks(map[string]HealthChecker{
		"postgres": fx.zones,
		"redis":    HealthFunc(func(ctx context.Context) error { return nil }),
	})

	rec, env := doJSON(t, fx.echo, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("status = %d/%d, want 200/200", rec.Code, env.Status)
	}
	var status map[string]string
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["postgres"] != "ok" || status["redis"] != "ok" {
		t.Fatalf("status = %v, want all ok", status)
	}
}

func TestHealthReportsFailureWithRealStatusCode(t *testing.T) {
	fx := newAPIFixture()
	fx.zones.healthErr = context.DeadlineExceeded
	fx.handler.SetHealthChecks(map[string]HealthChecker{
		"postgres": fx.zones,
	})

	rec, env := doJSON(t, fx.echo, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("http status = %d, want 503", rec.Code)
	}
	if env.Status != http.StatusServiceUnavailable {
		t.Fatalf("envelope status = %d, want 503", env.Status)
	}
}
