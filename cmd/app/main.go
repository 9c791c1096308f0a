package main

import (
	"flag"
	"log"
	"os"

	"ZoneScan/internal/di"
	"ZoneScan/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s backend=%s exchange=%s interval=%s",
		cfg.Environment, cfg.Backend.Type, cfg.Kite.Exchange, cfg.Kite.Interval)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	log.Printf("postgres: connected and schema ready - db: %s", cfg.Postgres.Database)
	log.Printf("clickhouse: connected and schema ready - db: %s", cfg.ClickHouse.Database)
	if len(cfg.Kafka.Brokers) > 0 {
		log.Printf("kafka: connected brokers=%v ticks=%s zones=%s",
			cfg.Kafka.Brokers, cfg.Kafka.TicksTopic, cfg.Kafka.ZonesTopic)
	}

	// Run blocks until SIGINT/SIGTERM.
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
