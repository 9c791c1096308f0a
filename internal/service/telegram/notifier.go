// Package telegram delivers zone lifecycle alerts through the Telegram
// Bot API. Sends are best effort: a Telegram outage must never stop a
// scan, so failures are logged and surfaced as errors the caller may
// ignore.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"ZoneScan/internal/domain/models"
	"ZoneScan/internal/domain/service"
	xhttp "ZoneScan/pkg/http"
)

// DefaultBaseURL is the Telegram Bot API endpoint prefix.
const DefaultBaseURL = "https://api.telegram.org"

const (
	sendTimeout = 10 * time.Second
	separator   = "━━━━━━━━━━━━━━━━━━━━"
)

// ErrNotConfigured is returned when bot token or chat id are missing.
// Callers treat it as "not sent" so alert bookkeeping stays pending.
var ErrNotConfigured = errors.New("telegram credentials not set")

// Notifier posts HTML-formatted messages to a single Telegram chat.
type Notifier struct {
	botToken string
	chatID   string
	exchange string
	interval string
	baseURL  string
	http     *xhttp.Client
}

var _ service.Notifier = (*Notifier)(nil)

// Option configures the Notifier.
type Option func(*Notifier)

// WithBaseURL overrides the Bot API endpoint, used in tests.
func WithBaseURL(u string) Option {
	return func(n *Notifier) { n.baseURL = strings.TrimRight(u, "/") }
}

// NewNotifier builds a notifier for one chat. Empty credentials are
// allowed; every send then skips with ErrNotConfigured.
func NewNotifier(botToken, chatID, exchange, interval string, opts ...Option) *Notifier {
	n := &Notifier{
		botToken: botToken,
		chatID:   chatID,
		exchange: exchange,
		interval: interval,
		baseURL:  DefaultBaseURL,
		http:     xhttp.NewClient(xhttp.WithTimeout(sendTimeout)),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Configured reports whether both bot token and chat id are set.
func (n *Notifier) Configured() bool {
	return n.botToken != "" && n.chatID != ""
}

// SendZoneAlert announces a freshly detected high-probability zone.
func (n *Notifier) SendZoneAlert(ctx context.Context, instrument string, zone *models.Zone, lastPrice float64) error {
	text := formatZoneAlert(instrument, n.exchange, intervalLabel(n.interval), zone, lastPrice, true)
	if err := n.send(ctx, text); err != nil {
		return err
	}
	log.Printf("telegram: alert sent %s %s %.2f-%.2f score %.1f",
		instrument, zone.Type, zone.Low, zone.High, zone.Score)
	return nil
}

// SendMitigationAlert announces that a tracked zone has been tagged by
// price.
func (n *Notifier) SendMitigationAlert(ctx context.Context, zone *models.StoredZone, lastPrice float64) error {
	text := formatMitigationAlert(zone, intervalLabel(n.interval), time.Now().UTC(), lastPrice)
	if err := n.send(ctx, text); err != nil {
		return err
	}
	log.Printf("telegram: mitigation alert sent %s %s %.2f-%.2f",
		zone.Instrument, zone.ZoneType, zone.ZoneLow, zone.ZoneHigh)
	return nil
}

// SendScanSummary reports one completed universe sweep.
func (n *Notifier) SendScanSummary(ctx context.Context, summary *models.ScanSummaryEvent) error {
	return n.send(ctx, formatScanSummary(summary))
}

// SendStartup announces the service coming online.
func (n *Notifier) SendStartup(ctx context.Context, instruments int, interval string) error {
	return n.send(ctx, formatStartup(instruments, intervalLabel(interval)))
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if !n.Configured() {
		log.Printf("telegram: credentials not set, skipping notification")
		return ErrNotConfigured
	}

	opts := &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken),
		Body: sendMessageRequest{
			ChatID:                n.chatID,
			Text:                  text,
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		},
	}

	if err := n.http.SendAndParse(ctx, opts, nil); err != nil {
		log.Printf("telegram: send failed: %v", err)
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func flag(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

// intervalLabel turns a Kite interval name into the short display form
// used in alerts, e.g. "5minute" into "5-Min".
func intervalLabel(interval string) string {
	switch interval {
	case "", "5minute":
		return "5-Min"
	case "minute":
		return "1-Min"
	case "day":
		return "Day"
	}
	if m, ok := strings.CutSuffix(interval, "minute"); ok {
		return m + "-Min"
	}
	return interval
}

func zoneHeader(zoneType models.ZoneType, isNew bool) string {
	emoji := "🔴"
	if zoneType == models.ZoneDemand {
		emoji = "🟢"
	}
	prefix := ""
	if isNew {
		prefix = "NEW "
	}
	return fmt.Sprintf("%s <b>%s%s ZONE</b>", emoji, prefix, strings.ToUpper(string(zoneType)))
}

func formatZoneAlert(instrument, exchange, interval string, zone *models.Zone, lastPrice float64, isNew bool) string {
	lines := []string{
		zoneHeader(zone.Type, isNew),
		separator,
		fmt.Sprintf("📊 <b>%s</b> | %s | %s", instrument, exchange, interval),
		fmt.Sprintf("💰 Zone: <code>%.2f – %.2f</code>", zone.Low, zone.High),
	}
	if lastPrice > 0 {
		lines = append(lines, fmt.Sprintf("💹 LTP: <code>%.2f</code>", lastPrice))
	}
	lines = append(lines,
		fmt.Sprintf("⭐ Score: <b>%.1f/6</b> | %s", zone.Score, zone.Probability),
		fmt.Sprintf("📈 Impulse: %.1f× ATR", zone.ImpulseRatio),
		fmt.Sprintf("🔍 Fresh: %s | FVG: %s | BOS: %s",
			flag(zone.Fresh()), flag(zone.FVGPresent), flag(zone.ScoreDetails[models.CriterionBOS] > 0)),
		fmt.Sprintf("📅 Formed: %s", zone.Start.Format("2006-01-02 15:04")),
	)
	return strings.Join(lines, "\n")
}

func formatMitigationAlert(zone *models.StoredZone, interval string, mitigatedAt time.Time, lastPrice float64) string {
	lines := []string{
		fmt.Sprintf("⚠️ <b>%s ZONE MITIGATED</b>", strings.ToUpper(string(zone.ZoneType))),
		separator,
		fmt.Sprintf("📊 <b>%s</b> | %s | %s", zone.Instrument, zone.Exchange, interval),
		fmt.Sprintf("💰 Zone: <code>%.2f – %.2f</code>", zone.ZoneLow, zone.ZoneHigh),
	}
	if lastPrice > 0 {
		lines = append(lines, fmt.Sprintf("💹 LTP: <code>%.2f</code>", lastPrice))
	}
	lines = append(lines,
		fmt.Sprintf("⭐ Score: %.1f/6 | %s", zone.Score, zone.Probability),
		fmt.Sprintf("📅 Formed: %s", zone.DatetimeStart.Format("2006-01-02 15:04")),
		fmt.Sprintf("🕐 Mitigated: %s", mitigatedAt.Format("2006-01-02 15:04")),
	)
	return strings.Join(lines, "\n")
}

func formatScanSummary(s *models.ScanSummaryEvent) string {
	duration := s.FinishedAt.Sub(s.StartedAt).Seconds()
	lines := []string{
		"📡 <b>F&amp;O Scan Complete</b>",
		separator,
		fmt.Sprintf("📈 Instruments scanned: %d", s.Instruments),
		fmt.Sprintf("🆕 New zones: %d", s.NewZones),
		fmt.Sprintf("⚠️ Mitigations: %d", s.Mitigations),
		fmt.Sprintf("❌ Errors: %d", s.Errors),
		fmt.Sprintf("⏱ Duration: %.1fs", duration),
	}
	return strings.Join(lines, "\n")
}

func formatStartup(instruments int, interval string) string {
	lines := []string{
		"🚀 <b>ZoneScan Online</b>",
		separator,
		fmt.Sprintf("📈 Instruments tracked: %d", instruments),
		fmt.Sprintf("🕯 Interval: %s", interval),
	}
	return strings.Join(lines, "\n")
}
