package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ZoneScan/internal/domain/models"
)

func TestFormatZoneAlertNewDemand(t *testing.T) {
	zone := &models.Zone{
		Type:         models.ZoneDemand,
		High:         101.25,
		Low:          100.5,
		Score:        5.5,
		Probability:  models.ProbabilityHigh,
		Mitigated:    false,
		FVGPresent:   true,
		ImpulseRatio: 4.2,
		ScoreDetails: map[string]float64{models.CriterionBOS: 1.0},
		Start:        time.Date(2024, 8, 12, 9, 35, 0, 0, time.UTC),
	}

	got := formatZoneAlert("RELIANCE", "NSE", "5-Min", zone, 0, true)
	want := "🟢 <b>NEW DEMAND ZONE</b>\n" +
		"━━━━━━━━━━━━━━━━━━━━\n" +
		"📊 <b>RELIANCE</b> | NSE | 5-Min\n" +
		"💰 Zone: <code>100.50 – 101.25</code>\n" +
		"⭐ Score: <b>5.5/6</b> | High\n" +
		"📈 Impulse: 4.2× ATR\n" +
		"🔍 Fresh: ✅ | FVG: ✅ | BOS: ✅\n" +
		"📅 Formed: 2024-08-12 09:35"
	if got != want {
		t.Fatalf("zone alert mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatZoneAlertSupplyWithLastPrice(t *testing.T) {
	zone := &models.Zone{
		Type:         models.ZoneSupply,
		High:         205.0,
		Low:          203.4,
		Score:        4.0,
		Probability:  models.ProbabilityMediumHigh,
		Mitigated:    true,
		FVGPresent:   false,
		ImpulseRatio: 3.6,
		ScoreDetails: map[string]float64{},
		Start:        time.Date(2024, 8, 12, 11, 0, 0, 0, time.UTC),
	}

	got := formatZoneAlert("TCS", "NSE", "5-Min", zone, 199.9, false)

	if !strings.HasPrefix(got, "🔴 <b>SUPPLY ZONE</b>\n") {
		t.Fatalf("supply header missing NEW-less form: %q", got)
	}
	if !strings.Contains(got, "💹 LTP: <code>199.90</code>") {
		t.Fatalf("last price line missing: %q", got)
	}
	if !strings.Contains(got, "🔍 Fresh: ❌ | FVG: ❌ | BOS: ❌") {
		t.Fatalf("flag line mismatch: %q", got)
	}
}

func TestFormatMitigationAlert(t *testing.T) {
	zone := &models.StoredZone{
		Instrument:    "TCS",
		Exchange:      "NSE",
		ZoneType:      models.ZoneSupply,
		ZoneHigh:      3920.75,
		ZoneLow:       3900.25,
		Score:         5.0,
		Probability:   models.ProbabilityHigh,
		DatetimeStart: time.Date(2024, 8, 12, 10, 15, 0, 0, time.UTC),
	}
	mitigatedAt := time.Date(2024, 8, 13, 11, 5, 0, 0, time.UTC)

	got := formatMitigationAlert(zone, "5-Min", mitigatedAt, 0)
	want := "⚠️ <b>SUPPLY ZONE MITIGATED</b>\n" +
		"━━━━━━━━━━━━━━━━━━━━\n" +
		"📊 <b>TCS</b> | NSE | 5-Min\n" +
		"💰 Zone: <code>3900.25 – 3920.75</code>\n" +
		"⭐ Score: 5.0/6 | High\n" +
		"📅 Formed: 2024-08-12 10:15\n" +
		"🕐 Mitigated: 2024-08-13 11:05"
	if got != want {
		t.Fatalf("mitigation alert mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatScanSummary(t *testing.T) {
	started := time.Date(2024, 8, 12, 9, 25, 30, 0, time.UTC)
	summary := &models.ScanSummaryEvent{
		Event:       models.EventScanSummary,
		Instruments: 185,
		NewZones:    3,
		Mitigations: 2,
		Errors:      1,
		StartedAt:   started,
		FinishedAt:  started.Add(95*time.Second + 500*time.Millisecond),
	}

	got := formatScanSummary(summary)
	want := "📡 <b>F&amp;O Scan Complete</b>\n" +
		"━━━━━━━━━━━━━━━━━━━━\n" +
		"📈 Instruments scanned: 185\n" +
		"🆕 New zones: 3\n" +
		"⚠️ Mitigations: 2\n" +
		"❌ Errors: 1\n" +
		"⏱ Duration: 95.5s"
	if got != want {
		t.Fatalf("summary mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestIntervalLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"5minute", "5-Min"},
		{"", "5-Min"},
		{"minute", "1-Min"},
		{"15minute", "15-Min"},
		{"60minute", "60-Min"},
		{"day", "Day"},
		{"week", "week"},
	}
	for _, c := range cases {
		if got := intervalLabel(c.in); got != c.want {
			t.Fatalf("intervalLabel(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSendPostsToBotEndpoint(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	n := NewNotifier("token123", "-10042", "NSE", "5minute", WithBaseURL(srv.URL))
	summary := &models.ScanSummaryEvent{
		Instruments: 10,
		StartedAt:   time.Now(),
		FinishedAt:  time.Now(),
	}
	if err := n.SendScanSummary(context.Background(), summary); err != nil {
		t.Fatalf("SendScanSummary: %v", err)
	}

	if gotPath != "/bottoken123/sendMessage" {
		t.Fatalf("path = %q, want /bottoken123/sendMessage", gotPath)
	}
	if gotBody.ChatID != "-10042" {
		t.Fatalf("chat_id = %q", gotBody.ChatID)
	}
	if gotBody.ParseMode != "HTML" {
		t.Fatalf("parse_mode = %q", gotBody.ParseMode)
	}
	if !gotBody.DisableWebPagePreview {
		t.Fatalf("disable_web_page_preview not set")
	}
	if !strings.Contains(gotBody.Text, "Scan Complete") {
		t.Fatalf("unexpected text: %q", gotBody.Text)
	}
}

func TestSendFailureIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"Bad Request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier("token123", "-10042", "NSE", "5minute", WithBaseURL(srv.URL))
	zone := &models.Zone{Type: models.ZoneDemand, Probability: models.ProbabilityHigh}
	if err := n.SendZoneAlert(context.Background(), "RELIANCE", zone, 0); err == nil {
		t.Fatal("expected error from failed send")
	}
}

func TestSendSkipsWhenUnconfigured(t *testing.T) {
	n := NewNotifier("", "", "NSE", "5minute")
	if n.Configured() {
		t.Fatal("notifier with empty credentials reports configured")
	}
	err := n.SendStartup(context.Background(), 5, "5minute")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}
