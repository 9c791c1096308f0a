// Package kite implements the Zerodha Kite Connect market-data
// surface: REST historical candles and instrument dumps, and the
// streaming WebSocket ticker.
package kite

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"ZoneScan/internal/domain/models"
	"ZoneScan/pkg/breaker"
	xhttp "ZoneScan/pkg/http"
	"ZoneScan/pkg/ratelimit"
	"ZoneScan/pkg/util"
)

const (
	// DefaultBaseURL is the production REST endpoint.
	DefaultBaseURL = "https://api.kite.trade"

	kiteVersion = "3"
	// rangeFormat is the from/to query format for historical fetches.
	rangeFormat = "2006-01-02 15:04:05"
)

// Client is an authenticated Kite Connect REST client. Historical
// calls are capped per app key, so every request passes a token-bucket
// limiter and a circuit breaker before hitting the wire.
type Client struct {
	apiKey      string
	accessToken string
	baseURL     string
	http        *xhttp.Client
	limiter     *ratelimit.Limiter
	cb          *breaker.Breaker
	now         func() time.Time
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPTimeout replaces the underlying HTTP client timeout.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = xhttp.NewClient(xhttp.WithTimeout(d)) }
}

// WithRateLimit replaces the request budget. Kite allows 3 historical
// requests per second per app.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = ratelimit.NewLimiter(rps, burst) }
}

// NewClient builds a REST client for the given app credentials.
func NewClient(apiKey, accessToken string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		accessToken: accessToken,
		baseURL:     DefaultBaseURL,
		http:        xhttp.NewClient(xhttp.WithTimeout(15 * time.Second)),
		limiter:     ratelimit.NewLimiter(3, 3),
		now:         time.Now,
	}
	c.cb = breaker.New("kite", func(name string, from, to gobreaker.State) {
		log.Printf("kite: breaker %s %s -> %s", name, from, to)
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type historicalResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Candles [][]interface{} `json:"candles"`
	} `json:"data"`
}

// Historical fetches daysBack calendar days of candles up to now.
func (c *Client) Historical(ctx context.Context, inst models.Instrument, interval string, daysBack int) ([]models.Candle, error) {
	to := c.now()
	from := to.AddDate(0, 0, -daysBack)
	return c.HistoricalRange(ctx, inst, interval, from, to)
}

// HistoricalRange fetches candles for [from, to], sorted ascending.
func (c *Client) HistoricalRange(ctx context.Context, inst models.Instrument, interval string, from, to time.Time) ([]models.Candle, error) {
	path := fmt.Sprintf("/instruments/historical/%d/%s", inst.Token, interval)
	params := map[string][]string{
		"from":       {from.Format(rangeFormat)},
		"to":         {to.Format(rangeFormat)},
		"continuous": {"0"},
		"oi":         {"0"},
	}

	var resp historicalResponse
	if err := c.get(ctx, "historical", path, params, &resp); err != nil {
		return nil, fmt.Errorf("historical %s %s: %w", inst.TradingSymbol, interval, wrapTokenError(err))
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("historical %s %s: %s", inst.TradingSymbol, interval, resp.Message)
	}

	candles := make([]models.Candle, 0, len(resp.Data.Candles))
	for _, row := range resp.Data.Candles {
		candle, err := parseCandleRow(row, inst, interval)
		if err != nil {
			return nil, fmt.Errorf("historical %s %s: %w", inst.TradingSymbol, interval, err)
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(a, b int) bool {
		return candles[a].Timestamp.Before(candles[b].Timestamp)
	})
	return candles, nil
}

// Instruments downloads the full instrument dump for one exchange.
// The endpoint serves CSV and the dump only changes overnight, so
// callers should cache the result (see services/universe).
func (c *Client) Instruments(ctx context.Context, exchange string) ([]models.Instrument, error) {
	var raw []byte
	if err := c.get(ctx, "instruments", "/instruments/"+exchange, nil, &raw); err != nil {
		return nil, fmt.Errorf("instruments %s: %w", exchange, wrapTokenError(err))
	}
	instruments, err := parseInstrumentsCSV(raw)
	if err != nil {
		return nil, fmt.Errorf("instruments %s: %w", exchange, err)
	}
	return instruments, nil
}

func (c *Client) get(ctx context.Context, limitKey, path string, params map[string][]string, dest interface{}) error {
	if err := c.limiter.Wait(ctx, limitKey); err != nil {
		return err
	}
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         c.baseURL + path,
			Headers:     c.headers(),
			QueryParams: params,
		}, dest)
	})
	return err
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"X-Kite-Version": kiteVersion,
		"Authorization":  "token " + c.apiKey + ":" + c.accessToken,
	}
}

// wrapTokenError annotates auth failures: access tokens expire daily
// and must be regenerated through the login flow.
func wrapTokenError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "TokenException") || strings.Contains(msg, "status 403") {
		return fmt.Errorf("access token expired or invalid, regenerate it via the Kite login flow: %w", err)
	}
	return err
}

func parseCandleRow(row []interface{}, inst models.Instrument, interval string) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("malformed candle row: %d fields", len(row))
	}
	tsRaw, ok := row[0].(string)
	if !ok {
		return models.Candle{}, fmt.Errorf("malformed candle timestamp %v", row[0])
	}
	ts, ok := util.ParseTime(tsRaw)
	if !ok {
		return models.Candle{}, fmt.Errorf("parse candle timestamp %q", tsRaw)
	}

	nums := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, ok := row[i+1].(float64)
		if !ok {
			return models.Candle{}, fmt.Errorf("malformed candle field %v", row[i+1])
		}
		nums[i] = v
	}

	return models.Candle{
		Instrument: inst.TradingSymbol,
		Exchange:   inst.Exchange,
		Interval:   interval,
		Timestamp:  ts,
		Open:       nums[0],
		High:       nums[1],
		Low:        nums[2],
		Close:      nums[3],
		Volume:     int64(nums[4]),
	}, nil
}

func parseInstrumentsCSV(raw []byte) ([]models.Instrument, error) {
	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("empty instrument dump")
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"instrument_token", "tradingsymbol", "instrument_type", "exchange"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("instrument dump missing column %s", required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	instruments := make([]models.Instrument, 0, len(records)-1)
	for _, row := range records[1:] {
		token, err := strconv.ParseUint(field(row, "instrument_token"), 10, 32)
		if err != nil {
			continue
		}
		lotSize := int(util.ParseFloatDefault(field(row, "lot_size"), 0))
		instruments = append(instruments, models.Instrument{
			Token:          uint32(token),
			TradingSymbol:  field(row, "tradingsymbol"),
			Name:           field(row, "name"),
			Exchange:       field(row, "exchange"),
			Segment:        field(row, "segment"),
			InstrumentType: field(row, "instrument_type"),
			LotSize:        lotSize,
		})
	}
	return instruments, nil
}
