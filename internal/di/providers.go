package di

import (
	"context"
	"fmt"
	"time"

	segkafka "github.com/segmentio/kafka-go"

	domrepo "ZoneScan/internal/domain/repository"
	dsvc "ZoneScan/internal/domain/service"
	"ZoneScan/internal/handler/api"
	mid "ZoneScan/internal/middleware"
	internalrepo "ZoneScan/internal/repository"
	icache "ZoneScan/internal/service/cache"
	"ZoneScan/internal/service/kite"
	"ZoneScan/internal/service/telegram"
	"ZoneScan/internal/services/smc"
	"ZoneScan/internal/services/universe"
	"ZoneScan/internal/usecase"
	pkgcache "ZoneScan/pkg/cache"
	pkgch "ZoneScan/pkg/clickhouse"
	"ZoneScan/pkg/config"
	pkgkafka "ZoneScan/pkg/kafka"
	"ZoneScan/pkg/logger"
	"ZoneScan/pkg/metrics"
	pkgpg "ZoneScan/pkg/postgres"
	"ZoneScan/pkg/queue"
	"ZoneScan/pkg/server"
)

// ProvideLogger creates the shared structured logger. With Kafka and a
// log topic configured, warn/error lines also ship there in batches.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:   cfg.Logger.Level,
		Format:  cfg.Logger.Format,
		Output:  cfg.Logger.Output,
		Service: "zonescan",
	})
	if err != nil {
		return nil, err
	}
	if producer != nil && cfg.Kafka.LogTopic != "" {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvidePostgresClient creates a Postgres client.
func ProvidePostgresClient(cfg *config.Config) (*pkgpg.Client, error) {
	client, err := pkgpg.NewClient(
		pkgpg.WithHost(cfg.Postgres.Host),
		pkgpg.WithPort(cfg.Postgres.Port),
		pkgpg.WithCredentials(cfg.Postgres.User, cfg.Postgres.Password),
		pkgpg.WithDatabase(cfg.Postgres.Database),
		pkgpg.WithSSLMode(cfg.Postgres.SSLMode),
		pkgpg.WithMaxConnections(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	return client, nil
}

// ProvideRedisCache creates the Redis client shared by the universe
// day cache, the API response cache and the scan job queue.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideKafkaProducer creates a Kafka producer. Nil when no brokers
// are configured; tick publishing and zone events fall back to their
// non-Kafka paths.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the consumer for the ticks topic. Only
// the kafka backend reads ticks back out; otherwise nil and the app
// skips it.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != "kafka" || len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideTickStorage creates ClickHouse tick storage and runs schema
// setup.
func ProvideTickStorage(chClient *pkgch.Client) (domrepo.TickStorage, error) {
	s := internalrepo.NewCHTickStorage(chClient)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Init(ctx); err != nil {
		return nil, fmt.Errorf("tick storage schema: %w", err)
	}
	return s, nil
}

// ProvideCandleStore creates ClickHouse candle storage and runs schema
// setup.
func ProvideCandleStore(chClient *pkgch.Client) (domrepo.CandleStore, error) {
	s := internalrepo.NewCHCandleStore(chClient)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Init(ctx); err != nil {
		return nil, fmt.Errorf("candle store schema: %w", err)
	}
	return s, nil
}

// ProvideZoneStore creates the Postgres zone store and runs schema
// setup.
func ProvideZoneStore(pgClient *pkgpg.Client) (domrepo.ZoneStore, error) {
	s := internalrepo.NewPGZoneStore(pgClient)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Init(ctx); err != nil {
		return nil, fmt.Errorf("zone store schema: %w", err)
	}
	return s, nil
}

// ProvideTickPublisher creates the Kafka tick publisher. Nil without a
// producer; the clickhouse backend never calls it.
func ProvideTickPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.TicksTopic)
}

// ProvideZoneEvents creates the zone event publisher on the zones
// topic, or a no-op sink without Kafka.
func ProvideZoneEvents(producer *pkgkafka.Producer, cfg *config.Config) domrepo.ZoneEvents {
	if producer == nil {
		return internalrepo.NopZoneEvents{}
	}
	return internalrepo.NewKafkaZoneEvents(producer, cfg.Kafka.ZonesTopic)
}

// ProvideArchiver creates the parquet cold store for fetched candle
// windows, nil when archiving is off.
func ProvideArchiver(cfg *config.Config) domrepo.CandleArchiver {
	if !cfg.Archive.Enabled {
		return nil
	}
	return internalrepo.NewParquetArchiver(cfg.Archive.Dir)
}

// ProvideKiteClient creates the Kite REST client for instrument dumps
// and historical candles.
func ProvideKiteClient(cfg *config.Config) *kite.Client {
	opts := []kite.Option{
		kite.WithHTTPTimeout(cfg.Kite.Timeout),
		kite.WithRateLimit(cfg.Kite.RateRPS, cfg.Kite.RateBurst),
	}
	if cfg.Kite.BaseURL != "" {
		opts = append(opts, kite.WithBaseURL(cfg.Kite.BaseURL))
	}
	return kite.NewClient(cfg.Kite.APIKey, cfg.Kite.AccessToken, opts...)
}

// ProvideMarketStream creates the Kite WebSocket ticker.
func ProvideMarketStream(cfg *config.Config) domrepo.MarketStream {
	return kite.NewTicker(
		cfg.Kite.APIKey,
		cfg.Kite.AccessToken,
		cfg.Kite.WebSocketURL,
		cfg.Kite.ReconnectDelay,
		cfg.Kite.PingInterval,
	)
}

// ProvideUniverse creates the instrument universe resolver with its
// day cache, an in-memory layer over Redis.
func ProvideUniverse(kc *kite.Client, rc *pkgcache.RedisCache, cfg *config.Config) dsvc.UniverseProvider {
	day := pkgcache.NewLayeredCache(rc)
	return universe.New(kc, day, universe.WithSymbols(cfg.Kite.Symbols))
}

// ProvideDetector creates the zone detector from the configured
// tunables.
func ProvideDetector(cfg *config.Config) dsvc.ZoneDetector {
	return smc.NewDetector(smc.Settings{
		ATRPeriod:       cfg.Detector.ATRPeriod,
		LookbackSwings:  cfg.Detector.LookbackSwings,
		BaseMaxCandles:  cfg.Detector.BaseMaxCandles,
		BaseRangeATRPct: cfg.Detector.BaseRangeATRPct,
		ImpulseATRMult:  cfg.Detector.ImpulseATRMult,
		MinScore:        cfg.Detector.MinScore,
	})
}

// ProvideNotifier creates the Telegram alert channel. An empty token
// yields a notifier that reports ErrNotConfigured.
func ProvideNotifier(cfg *config.Config) dsvc.Notifier {
	return telegram.NewNotifier(
		cfg.Telegram.BotToken,
		cfg.Telegram.ChatID,
		cfg.Kite.Exchange,
		cfg.Kite.Interval,
	)
}

// ProvideTickProcessor creates the tick router for the configured
// backend.
func ProvideTickProcessor(
	pub domrepo.Publisher,
	storage domrepo.TickStorage,
	m domrepo.Metrics,
	cfg *config.Config,
) *usecase.TickProcessor {
	return usecase.NewTickProcessor(pub, storage, m, cfg.Backend.Type)
}

// ProvideTickCollector creates the live tick collector with its
// buffering and rate limiting pipeline.
func ProvideTickCollector(
	stream domrepo.MarketStream,
	proc *usecase.TickProcessor,
	u dsvc.UniverseProvider,
	m domrepo.Metrics,
	cfg *config.Config,
) *usecase.TickCollector {
	pipe := mid.NewTickPipeline(proc, m,
		mid.WithMaxRPS(200),
		mid.WithBufferSize(5000),
		mid.WithBatch(cfg.Backend.BatchSize, cfg.Backend.BatchTimeout),
	)
	return usecase.NewTickCollector(stream, proc, u, m, pipe, cfg.Kite.Exchange)
}

// ProvideKafkaTicksHandler creates the handler for the ticks topic.
func ProvideKafkaTicksHandler(storage domrepo.TickStorage, m domrepo.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, storage, m)
}

// ProvideScanner wires the zone sweep use case.
func ProvideScanner(
	cfg *config.Config,
	kc *kite.Client,
	u dsvc.UniverseProvider,
	detector dsvc.ZoneDetector,
	zones domrepo.ZoneStore,
	candles domrepo.CandleStore,
	notifier dsvc.Notifier,
	events domrepo.ZoneEvents,
	m domrepo.Metrics,
	archiver domrepo.CandleArchiver,
) *usecase.Scanner {
	s := usecase.NewScanner(
		usecase.ScannerConfig{
			Exchange:        cfg.Kite.Exchange,
			Interval:        cfg.Kite.Interval,
			DaysBack:        cfg.Kite.DaysBack,
			Workers:         cfg.Scanner.Workers,
			AlertMinScore:   cfg.Scanner.AlertMinScore,
			ScanDelay:       cfg.Scanner.ScanDelay,
			SendScanSummary: cfg.Scanner.SendScanSummary,
		},
		kc, u, detector, zones, candles, notifier, events, m,
	)
	if archiver != nil {
		s.WithArchiver(archiver)
	}
	return s
}

// ProvideScheduler creates the market-hours scan scheduler.
func ProvideScheduler(scanner *usecase.Scanner) *usecase.Scheduler {
	return usecase.NewScheduler(scanner)
}

// ProvideQueuePublisher creates the producer side of the scan job
// queue, used by the HTTP API.
func ProvideQueuePublisher(lgr *logger.Logger, rc *pkgcache.RedisCache, cfg *config.Config) queue.QueueService {
	return queue.NewRedisPublisher(lgr, rc.Client(), queueOpts(cfg)...)
}

// ProvideQueueConsumer creates the worker side of the scan job queue
// with the instrument scan job registered.
func ProvideQueueConsumer(
	lgr *logger.Logger,
	rc *pkgcache.RedisCache,
	scanner *usecase.Scanner,
	u dsvc.UniverseProvider,
	cfg *config.Config,
) *queue.RedisQueue {
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	jobs := []queue.Job{usecase.NewScanJob(scanner, u)}
	return queue.NewRedisConsumer(lgr, qc, rc.Client(), jobs, queueOpts(cfg)...)
}

// queueOpts keeps the publisher and the consumer on the same keys.
func queueOpts(cfg *config.Config) []queue.RedisQueueOption {
	if cfg.Redis.Prefix == "" {
		return nil
	}
	return []queue.RedisQueueOption{queue.WithKeyPrefix(cfg.Redis.Prefix + ":queue")}
}

// ProvideChartUseCase joins candles and zones for the chart endpoint.
func ProvideChartUseCase(candles domrepo.CandleStore, zones domrepo.ZoneStore) *usecase.ChartUseCase {
	return usecase.NewChartUseCase(candles, zones)
}

// ProvideZonesHandler creates the HTTP handler with response caching
// and dependency health checks attached.
func ProvideZonesHandler(
	zones domrepo.ZoneStore,
	chart *usecase.ChartUseCase,
	u dsvc.UniverseProvider,
	qpub queue.QueueService,
	lgr *logger.Logger,
	rc *pkgcache.RedisCache,
	chClient *pkgch.Client,
	pgClient *pkgpg.Client,
) *api.ZonesHandler {
	h := api.NewZonesHandler(zones, chart, u, qpub)
	h.SetLogger(lgr)
	h.SetCache(icache.NewRedisCache(rc.Client(), "api"))
	h.SetHealthChecks(map[string]api.HealthChecker{
		"postgres":   api.HealthFunc(pgClient.Health),
		"clickhouse": api.HealthFunc(chClient.Health),
		"redis": api.HealthFunc(func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}),
	})
	return h
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	scheduler *usecase.Scheduler,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	jobs *queue.RedisQueue,
	handler *api.ZonesHandler,
	chClient *pkgch.Client,
	pgClient *pkgpg.Client,
	notifier dsvc.Notifier,
	u dsvc.UniverseProvider,
	m domrepo.Metrics,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.HookFuncs{
			Err: func(_ context.Context, _ string, _ segkafka.Message, _ []byte, _ error) {
				m.RecordError("consumer")
			},
		})
	}
	app := server.New(cfg, scheduler, collector, consumer, kh, jobs, handler, chClient, pgClient)
	app.SetNotifier(notifier)
	app.SetUniverse(u)
	if collector != nil {
		app.TickProc = collector.Processor()
	}
	return app
}
