package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
environment: test
backend:
  type: clickhouse
kite:
  api_key: k
`

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Detector.ATRPeriod != 14 {
		t.Fatalf("expected default atr period 14, got %d", c.Detector.ATRPeriod)
	}
	if c.Detector.MinScore != 4.0 {
		t.Fatalf("expected default min score 4.0, got %v", c.Detector.MinScore)
	}
	if c.Kite.Interval != "5minute" {
		t.Fatalf("expected default interval 5minute, got %q", c.Kite.Interval)
	}
	if c.Kite.BaseURL != "https://api.kite.trade" {
		t.Fatalf("unexpected base url %q", c.Kite.BaseURL)
	}
	if c.Scanner.Workers != 4 {
		t.Fatalf("expected default workers 4, got %d", c.Scanner.Workers)
	}
	if c.Backend.BatchSize != 500 || c.Backend.BatchTimeout != 2*time.Second {
		t.Fatalf("expected default batch 500/2s, got %d/%v", c.Backend.BatchSize, c.Backend.BatchTimeout)
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	c, err := Load(writeConfig(t, `
environment: test
backend:
  type: kafka
kafka:
  brokers: ["localhost:9092"]
kite:
  api_key: k
  interval: 15minute
detector:
  atr_period: 21
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Detector.ATRPeriod != 21 {
		t.Fatalf("explicit atr period overwritten: %d", c.Detector.ATRPeriod)
	}
	if c.Kite.Interval != "15minute" {
		t.Fatalf("explicit interval overwritten: %q", c.Kite.Interval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
backend:
  type: clickhouse
`))
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api_key error, got %v", err)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
backend:
  type: mysql
kite:
  api_key: k
`))
	if err == nil || !strings.Contains(err.Error(), "backend.type") {
		t.Fatalf("expected backend.type error, got %v", err)
	}
}

func TestLoadRejectsKafkaBackendWithoutBrokers(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
backend:
  type: kafka
kite:
  api_key: k
`))
	if err == nil || !strings.Contains(err.Error(), "brokers") {
		t.Fatalf("expected brokers error, got %v", err)
	}
}

func TestLoadRejectsUnknownInterval(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
backend:
  type: clickhouse
kite:
  api_key: k
  interval: 7minute
`))
	if err == nil || !strings.Contains(err.Error(), "interval") {
		t.Fatalf("expected interval error, got %v", err)
	}
}

func TestLoadRejectsMinScoreOutOfRange(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
backend:
  type: clickhouse
kite:
  api_key: k
detector:
  min_score: 7.5
`))
	if err == nil || !strings.Contains(err.Error(), "min_score") {
		t.Fatalf("expected min_score error, got %v", err)
	}
}

// The committed config file keeps secrets blank; they must be allowed
// to arrive through the environment before validation runs.
func TestLoadWithEnvValidatesAfterOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: test
backend:
  type: clickhouse
kite:
  api_key: ""
`)
	t.Setenv("KITE_API_KEY", "")
	if _, err := LoadWithEnv(path); err == nil {
		t.Fatalf("expected validation failure without env key")
	}

	t.Setenv("KITE_API_KEY", "from-env")
	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if c.Kite.APIKey != "from-env" {
		t.Fatalf("env override not applied: %q", c.Kite.APIKey)
	}
}

func TestLoadWithEnvListOverrides(t *testing.T) {
	t.Setenv("KITE_API_KEY", "k")
	t.Setenv("SYMBOLS", "INFY,TCS")
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("SERVER_PORT", "9090")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if len(c.Kite.Symbols) != 2 || c.Kite.Symbols[0] != "INFY" {
		t.Fatalf("unexpected symbols %v", c.Kite.Symbols)
	}
	if c.Backend.Type != "kafka" {
		t.Fatalf("backend override not applied: %q", c.Backend.Type)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", c.Kafka.Brokers)
	}
	if c.Server.Port != 9090 {
		t.Fatalf("server port override not applied: %d", c.Server.Port)
	}
}
