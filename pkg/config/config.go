package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ZoneScan/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logger struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logger"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Backend struct {
		Type         string        `yaml:"type"` // kafka | clickhouse
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		TicksTopic   string   `yaml:"ticks_topic"`
		ZonesTopic   string   `yaml:"zones_topic"`
		LogTopic     string   `yaml:"log_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Postgres struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		User         string `yaml:"user"`
		Password     string `yaml:"password"`
		Database     string `yaml:"database"`
		SSLMode      string `yaml:"ssl_mode"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
	} `yaml:"postgres"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Queue struct {
		Workers    int           `yaml:"workers"`
		QueueSize  int           `yaml:"queue_size"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
	Kite struct {
		APIKey         string        `yaml:"api_key"`
		AccessToken    string        `yaml:"access_token"`
		BaseURL        string        `yaml:"base_url"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Exchange       string        `yaml:"exchange"`
		Interval       string        `yaml:"interval"`
		DaysBack       int           `yaml:"days_back"`
		RateRPS        float64       `yaml:"rate_rps"`
		RateBurst      int           `yaml:"rate_burst"`
		Timeout        time.Duration `yaml:"timeout"`
		Symbols        []string      `yaml:"symbols"` // explicit universe override; empty = full F&O list
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"kite"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Scanner struct {
		Enabled         bool          `yaml:"enabled"`
		Workers         int           `yaml:"workers"`
		AlertMinScore   float64       `yaml:"alert_min_score"`
		ScanDelay       time.Duration `yaml:"scan_delay"`
		SendScanSummary bool          `yaml:"send_scan_summary"`
		LiveTicks       bool          `yaml:"live_ticks"`
	} `yaml:"scanner"`
	Detector struct {
		ATRPeriod       int     `yaml:"atr_period"`
		LookbackSwings  int     `yaml:"lookback_swings"`
		BaseMaxCandles  int     `yaml:"base_max_candles"`
		BaseRangeATRPct float64 `yaml:"base_range_atr_pct"`
		ImpulseATRMult  float64 `yaml:"impulse_atr_mult"`
		MinScore        float64 `yaml:"min_score"`
	} `yaml:"detector"`
	Archive struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
	} `yaml:"archive"`
}

var validIntervals = map[string]bool{
	"minute":   true,
	"3minute":  true,
	"5minute":  true,
	"10minute": true,
	"15minute": true,
	"30minute": true,
	"60minute": true,
	"day":      true,
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	return &c, nil
}

// LoadWithEnv loads config from YAML with .env and environment overrides.
// Secrets (Kite access token, Telegram credentials) normally arrive this way
// rather than sitting in the YAML file, so validation runs after the
// overrides land.
func LoadWithEnv(path string) (*Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	c, err := load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KITE_API_KEY"); v != "" {
		c.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		c.Kite.AccessToken = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Kite.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// applyDefaults fills zero values whose defaults are part of the detection
// contract, so a minimal config file still scans sensibly.
func (c *Config) applyDefaults() {
	if c.Detector.ATRPeriod == 0 {
		c.Detector.ATRPeriod = 14
	}
	if c.Detector.LookbackSwings == 0 {
		c.Detector.LookbackSwings = 5
	}
	if c.Detector.BaseMaxCandles == 0 {
		c.Detector.BaseMaxCandles = 5
	}
	if c.Detector.BaseRangeATRPct == 0 {
		c.Detector.BaseRangeATRPct = 1.2
	}
	if c.Detector.ImpulseATRMult == 0 {
		c.Detector.ImpulseATRMult = 3.5
	}
	if c.Detector.MinScore == 0 {
		c.Detector.MinScore = 4.0
	}
	if c.Kite.BaseURL == "" {
		c.Kite.BaseURL = "https://api.kite.trade"
	}
	if c.Kite.WebSocketURL == "" {
		c.Kite.WebSocketURL = "wss://ws.kite.trade"
	}
	if c.Kite.Exchange == "" {
		c.Kite.Exchange = "NSE"
	}
	if c.Kite.Interval == "" {
		c.Kite.Interval = "5minute"
	}
	if c.Kite.DaysBack == 0 {
		c.Kite.DaysBack = 10
	}
	if c.Kite.RateRPS == 0 {
		c.Kite.RateRPS = 3
	}
	if c.Kite.RateBurst == 0 {
		c.Kite.RateBurst = 1
	}
	if c.Kite.Timeout == 0 {
		c.Kite.Timeout = 10 * time.Second
	}
	if c.Scanner.Workers == 0 {
		c.Scanner.Workers = 4
	}
	if c.Scanner.AlertMinScore == 0 {
		c.Scanner.AlertMinScore = 5.0
	}
	if c.Backend.BatchSize == 0 {
		c.Backend.BatchSize = 500
	}
	if c.Backend.BatchTimeout == 0 {
		c.Backend.BatchTimeout = 2 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stdout"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("backend.type 'kafka' requires kafka.brokers")
	}
	if c.Kite.APIKey == "" {
		return fmt.Errorf("kite.api_key is required")
	}
	if !validIntervals[c.Kite.Interval] {
		return fmt.Errorf("kite.interval '%s' is not a recognized interval", c.Kite.Interval)
	}
	if c.Kite.DaysBack < 1 {
		return fmt.Errorf("kite.days_back must be >= 1")
	}
	if c.Detector.ATRPeriod < 1 {
		return fmt.Errorf("detector.atr_period must be >= 1")
	}
	if c.Detector.LookbackSwings < 0 {
		return fmt.Errorf("detector.lookback_swings must be >= 0")
	}
	if c.Detector.BaseMaxCandles < 1 {
		return fmt.Errorf("detector.base_max_candles must be >= 1")
	}
	if c.Detector.MinScore < 0 || c.Detector.MinScore > 6 {
		return fmt.Errorf("detector.min_score must be within [0, 6]")
	}
	if c.Scanner.Workers < 1 {
		return fmt.Errorf("scanner.workers must be >= 1")
	}
	return nil
}
