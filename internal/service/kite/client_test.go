package kite

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ZoneScan/internal/domain/models"
)

func TestHistoricalRangeParsesAndSorts(t *testing.T) {
	var gotPath, gotAuth, gotVersion string
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("X-Kite-Version")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","data":{"candles":[`+
			`["2024-08-20T09:20:00+0530",101,102,100.5,101.5,2000],`+
			`["2024-08-20T09:15:00+0530",100,101,99.5,100.75,1000]]}}`)
	}))
	defer srv.Close()

	c := NewClient("apikey", "token123", WithBaseURL(srv.URL))
	inst := models.Instrument{Token: 256265, TradingSymbol: "RELIANCE", Exchange: "NSE"}
	from := time.Date(2024, 8, 10, 9, 0, 0, 0, time.UTC)
	to := time.Date(2024, 8, 20, 16, 0, 0, 0, time.UTC)

	candles, err := c.HistoricalRange(context.Background(), inst, "5minute", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/instruments/historical/256265/5minute" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "token apikey:token123" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotVersion != "3" {
		t.Fatalf("unexpected version header %q", gotVersion)
	}
	if gotQuery.Get("from") != "2024-08-10 09:00:00" || gotQuery.Get("continuous") != "0" {
		t.Fatalf("unexpected query %v", gotQuery)
	}

	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	first := candles[0]
	if !first.Timestamp.Before(candles[1].Timestamp) {
		t.Fatalf("candles must sort ascending")
	}
	if first.Open != 100 || first.High != 101 || first.Low != 99.5 || first.Close != 100.75 {
		t.Fatalf("unexpected OHLC %+v", first)
	}
	if first.Volume != 1000 {
		t.Fatalf("unexpected volume %d", first.Volume)
	}
	if first.Instrument != "RELIANCE" || first.Interval != "5minute" {
		t.Fatalf("instrument identity not attached: %+v", first)
	}
}

func TestHistoricalTokenErrorIsAnnotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"status":"error","message":"Invalid token","error_type":"TokenException"}`)
	}))
	defer srv.Close()

	c := NewClient("apikey", "stale", WithBaseURL(srv.URL))
	_, err := c.Historical(context.Background(), models.Instrument{Token: 1, TradingSymbol: "X"}, "5minute", 5)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "access token expired") {
		t.Fatalf("auth failure not annotated: %v", err)
	}
}

func TestInstrumentsParsesCSV(t *testing.T) {
	csvBody := "instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange\n" +
		"738561,2885,RELIANCE,RELIANCE INDUSTRIES,0,,0,0.05,1,EQ,NSE,NSE\n" +
		"notanumber,1,BROKEN,,0,,0,0.05,1,EQ,NSE,NSE\n" +
		"5720322,22345,RELIANCE24SEPFUT,RELIANCE,0,2024-09-26,0,0.05,250,FUT,NFO-FUT,NFO\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instruments/NSE" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, csvBody)
	}))
	defer srv.Close()

	c := NewClient("apikey", "token123", WithBaseURL(srv.URL))
	instruments, err := c.Instruments(context.Background(), "NSE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The unparseable token row is skipped.
	if len(instruments) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(instruments))
	}
	eq := instruments[0]
	if eq.Token != 738561 || eq.TradingSymbol != "RELIANCE" || eq.InstrumentType != "EQ" {
		t.Fatalf("unexpected instrument %+v", eq)
	}
	fut := instruments[1]
	if fut.LotSize != 250 || fut.Exchange != "NFO" || fut.Name != "RELIANCE" {
		t.Fatalf("unexpected instrument %+v", fut)
	}
}

func TestInstrumentsMissingColumn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "foo,bar\n1,2\n")
	}))
	defer srv.Close()

	c := NewClient("apikey", "token123", WithBaseURL(srv.URL))
	if _, err := c.Instruments(context.Background(), "NSE"); err == nil {
		t.Fatalf("expected error on malformed dump")
	}
}
