package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	models "ZoneScan/internal/domain/models"
	domrepo "ZoneScan/internal/domain/repository"
	dsvc "ZoneScan/internal/domain/service"
	icache "ZoneScan/internal/service/cache"
	"ZoneScan/internal/service/metrics"
	"ZoneScan/internal/service/ratelimit"
	"ZoneScan/internal/usecase"
	xhttp "ZoneScan/pkg/http"
	applogger "ZoneScan/pkg/logger"
	"ZoneScan/pkg/queue"
	xutil "ZoneScan/pkg/util"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HealthChecker reports liveness of one backing store.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthFunc adapts a plain function into a HealthChecker.
type HealthFunc func(ctx context.Context) error

func (f HealthFunc) Health(ctx context.Context) error { return f(ctx) }

// ZonesHandler serves the zones REST API over echo. Successful
// responses are cached as raw envelope bytes so repeated chart polls
// skip the store and the re-encode.
type ZonesHandler struct {
	zones    domrepo.ZoneStore
	chart    *usecase.ChartUseCase
	universe dsvc.UniverseProvider
	queue    queue.QueueService
	health   map[string]HealthChecker
	cache    icache.BytesCache
	rl       *ratelimit.Limiter
	l        *applogger.Logger
}

// NewZonesHandler wires the API against the zone store and the scan
// queue. Cache, logger and health checks are optional injections.
func NewZonesHandler(zones domrepo.ZoneStore, chart *usecase.ChartUseCase, universe dsvc.UniverseProvider, q queue.QueueService) *ZonesHandler {
	metrics.Register()
	return &ZonesHandler{zones: zones, chart: chart, universe: universe, queue: q, rl: ratelimit.New()}
}

func (h *ZonesHandler) SetCache(c icache.BytesCache) { h.cache = c }

// SetLogger injects a structured logger.
func (h *ZonesHandler) SetLogger(l *applogger.Logger) { h.l = l }

// SetHealthChecks registers the named stores probed by GET /health.
func (h *ZonesHandler) SetHealthChecks(checks map[string]HealthChecker) { h.health = checks }

func (h *ZonesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/zones", h.ListZones)
	g.GET("/zones/active", h.ActiveZones)
	g.GET("/zones/counts", h.ZoneCounts)
	g.GET("/chart", h.Chart)
	g.POST("/scan", h.TriggerScan)
	g.GET("/health", h.HealthCheck)
}

func (h *ZonesHandler) ListZones(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("zones").Observe(time.Since(start).Seconds()) }()

	req := &models.ZonesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Instrument = xutil.NormalizeSymbol(req.Instrument)
	if !h.allow(c, "zones", 5, 2) {
		return xhttp.TooManyRequestsResponse(c, "rate limited")
	}
	key := fmt.Sprintf("zones:%s:%s:%g:%t:%d:%d", req.Instrument, req.Type, req.MinScore, req.ActiveOnly, req.Limit, req.Offset)
	if b, ok := h.lookup("zones", key); ok {
		return c.JSONBlob(http.StatusOK, b)
	}
	rows, total, err := h.zones.List(c.Request().Context(), domrepo.ZoneFilter{
		Instrument: req.Instrument,
		ZoneType:   models.ZoneType(req.Type),
		MinScore:   req.MinScore,
		ActiveOnly: req.ActiveOnly,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues("zones").Inc()
		if h.l != nil {
			h.l.Error("zones list error", applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return h.respond(c, "zones", key, &xhttp.ListDataResponse{Rows: rows, Total: total}, 30*time.Second)
}

func (h *ZonesHandler) ActiveZones(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("zones_active").Observe(time.Since(start).Seconds()) }()

	req := &models.ActiveZonesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Instrument = xutil.NormalizeSymbol(req.Instrument)
	if !h.allow(c, "zones_active", 5, 2) {
		return xhttp.TooManyRequestsResponse(c, "rate limited")
	}
	key := "zones:active:" + req.Instrument
	if b, ok := h.lookup("zones_active", key); ok {
		return c.JSONBlob(http.StatusOK, b)
	}
	rows, err := h.zones.ActiveZones(c.Request().Context(), req.Instrument)
	if err != nil {
		metrics.APIErrors.WithLabelValues("zones_active").Inc()
		if h.l != nil {
			h.l.Error("active zones error", applogger.String("instrument", req.Instrument), applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return h.respond(c, "zones_active", key, &xhttp.ListDataResponse{Rows: rows, Total: int64(len(rows))}, 15*time.Second)
}

func (h *ZonesHandler) ZoneCounts(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("zones_counts").Observe(time.Since(start).Seconds()) }()

	if !h.allow(c, "zones_counts", 5, 2) {
		return xhttp.TooManyRequestsResponse(c, "rate limited")
	}
	key := "zones:counts"
	if b, ok := h.lookup("zones_counts", key); ok {
		return c.JSONBlob(http.StatusOK, b)
	}
	ctx := c.Request().Context()
	byType, err := h.zones.CountActiveByType(ctx)
	if err != nil {
		metrics.APIErrors.WithLabelValues("zones_counts").Inc()
		if h.l != nil {
			h.l.Error("zone counts error", applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	// List with limit 1 is the cheapest way to the total under the
	// current store interface.
	_, total, err := h.zones.List(ctx, domrepo.ZoneFilter{Limit: 1})
	if err != nil {
		metrics.APIErrors.WithLabelValues("zones_counts").Inc()
		if h.l != nil {
			h.l.Error("zone counts error", applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	counts := models.ZoneCounts{
		Total:        total,
		ActiveDemand: byType[models.ZoneDemand],
		ActiveSupply: byType[models.ZoneSupply],
	}
	counts.Active = int64(counts.ActiveDemand + counts.ActiveSupply)
	counts.Mitigated = counts.Total - counts.Active
	return h.respond(c, "zones_counts", key, counts, 30*time.Second)
}

func (h *ZonesHandler) Chart(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("chart").Observe(time.Since(start).Seconds()) }()

	req := &models.ChartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Instrument = xutil.NormalizeSymbol(req.Instrument)
	if !h.allow(c, "chart", 3, 1) {
		return xhttp.TooManyRequestsResponse(c, "rate limited")
	}
	key := fmt.Sprintf("chart:%s:%s:%d", req.Instrument, req.Interval, req.DaysBack)
	if b, ok := h.lookup("chart", key); ok {
		return c.JSONBlob(http.StatusOK, b)
	}
	res, err := h.chart.GetChart(c.Request().Context(), usecase.ChartParams{
		Instrument: req.Instrument,
		Interval:   domrepo.Interval(req.Interval),
		Days:       req.DaysBack,
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues("chart").Inc()
		if h.l != nil {
			h.l.Error("chart error", applogger.String("instrument", req.Instrument), applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return h.respond(c, "chart", key, res, 30*time.Second)
}

func (h *ZonesHandler) TriggerScan(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("scan").Observe(time.Since(start).Seconds()) }()

	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.allow(c, "scan", 1, 0.2) {
		return xhttp.TooManyRequestsResponse(c, "rate limited")
	}
	ctx := c.Request().Context()
	symbols := req.Instruments
	if len(symbols) == 0 {
		instruments, err := h.universe.Instruments(ctx)
		if err != nil {
			metrics.APIErrors.WithLabelValues("scan").Inc()
			if h.l != nil {
				h.l.Error("scan universe error", applogger.Error(err))
			}
			return xhttp.AppErrorResponse(c, err)
		}
		symbols = make([]string, 0, len(instruments))
		for _, in := range instruments {
			symbols = append(symbols, in.TradingSymbol)
		}
	}
	runID := uuid.NewString()
	queued := 0
	for _, sym := range symbols {
		sym = xutil.NormalizeSymbol(sym)
		if sym == "" {
			continue
		}
		payload := usecase.ScanJobPayload{RunID: runID, Instrument: sym}
		if err := h.queue.PublishMessage(ctx, usecase.ScanJobType, payload); err != nil {
			metrics.APIErrors.WithLabelValues("scan").Inc()
			if h.l != nil {
				h.l.Error("scan enqueue error", applogger.String("instrument", sym), applogger.Error(err))
			}
			return xhttp.AppErrorResponse(c, err)
		}
		queued++
	}
	if h.l != nil {
		h.l.Info("scan run queued", applogger.String("run_id", runID), applogger.Int("jobs", queued))
	}
	return xhttp.AcceptedResponse(c, models.ScanAccepted{RunID: runID, Queued: queued})
}

func (h *ZonesHandler) HealthCheck(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("health").Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.health))
	healthy := true
	for name, check := range h.health {
		if err := check.Health(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	code := http.StatusOK
	if !healthy {
		metrics.APIErrors.WithLabelValues("health").Inc()
		code = http.StatusServiceUnavailable
	}
	// Probes read the HTTP status, not the envelope.
	return c.JSON(code, xhttp.APIResponse{Status: code, Message: http.StatusText(code), Data: status})
}

// respond writes the success envelope and keeps the encoded bytes so
// later hits on the same key skip the handler body entirely.
func (h *ZonesHandler) respond(c echo.Context, endpoint, key string, data interface{}, ttl time.Duration) error {
	b, err := json.Marshal(xhttp.APIResponse{Status: http.StatusOK, Message: http.StatusText(http.StatusOK), Data: data})
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		if h.l != nil {
			h.l.Error("zones api marshal_error", applogger.String("endpoint", endpoint), applogger.Error(err))
		}
		return xhttp.InternalServerErrorResponse(c)
	}
	if h.cache != nil {
		if err := h.cache.SetBytes(key, b, ttl); err != nil && h.l != nil {
			h.l.Warn("zones api cache_set_error", applogger.String("key", key), applogger.Error(err))
		}
	}
	return c.JSONBlob(http.StatusOK, b)
}

func (h *ZonesHandler) lookup(endpoint, key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	b, ok, err := h.cache.GetBytes(key)
	if err != nil {
		if h.l != nil {
			h.l.Warn("zones api cache_get_error", applogger.String("key", key), applogger.Error(err))
		}
		return nil, false
	}
	if !ok {
		return nil, false
	}
	metrics.APICacheHits.WithLabelValues(endpoint).Inc()
	return b, true
}

func (h *ZonesHandler) allow(c echo.Context, endpoint string, capacity, refill float64) bool {
	if h.rl.Allow(c.RealIP()+":"+endpoint, capacity, refill) {
		return true
	}
	metrics.APIRateLimited.WithLabelValues(endpoint).Inc()
	if h.l != nil {
		h.l.Warn("zones api rate_limited", applogger.String("endpoint", endpoint), applogger.String("remote", c.RealIP()))
	}
	return false
}
