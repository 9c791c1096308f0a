package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	dsvc "ZoneScan/internal/domain/service"
	"ZoneScan/internal/handler/api"
	"ZoneScan/internal/usecase"
	pkgch "ZoneScan/pkg/clickhouse"
	"ZoneScan/pkg/config"
	xhttp "ZoneScan/pkg/http"
	pkgkafka "ZoneScan/pkg/kafka"
	applogger "ZoneScan/pkg/logger"
	pkgpg "ZoneScan/pkg/postgres"
	"ZoneScan/pkg/queue"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App owns the process lifecycle: scan scheduler, live tick collector,
// Kafka and Redis consumers and the HTTP API start together and stop
// in reverse order.
type App struct {
	cfg        *config.Config
	scheduler  *usecase.Scheduler
	collector  *usecase.TickCollector
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	jobs       *queue.RedisQueue
	handler    *api.ZonesHandler
	universe   dsvc.UniverseProvider
	notifier   dsvc.Notifier
	chClient   *pkgch.Client
	pgClient   *pkgpg.Client
	httpServer *xhttp.Server

	// TickProc is closed last so in-flight batches drain to the
	// backend.
	TickProc *usecase.TickProcessor
}

// New assembles the application from its wired components. Optional
// pieces (collector, consumer, jobs) may be nil depending on config.
func New(
	cfg *config.Config,
	scheduler *usecase.Scheduler,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	jobs *queue.RedisQueue,
	handler *api.ZonesHandler,
	chClient *pkgch.Client,
	pgClient *pkgpg.Client,
) *App {
	return &App{
		cfg:       cfg,
		scheduler: scheduler,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		jobs:      jobs,
		handler:   handler,
		chClient:  chClient,
		pgClient:  pgClient,
	}
}

// SetNotifier injects the alert channel used for the startup notice.
func (a *App) SetNotifier(n dsvc.Notifier) { a.notifier = n }

// SetUniverse injects the universe provider for the startup notice.
func (a *App) SetUniverse(u dsvc.UniverseProvider) { a.universe = u }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, _ := applogger.New(&applogger.Config{
		Level:   a.cfg.Logger.Level,
		Format:  a.cfg.Logger.Format,
		Output:  a.cfg.Logger.Output,
		Service: "zonescan",
	})

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if a.cfg.Metrics.Enabled {
		a.httpServer.Echo().GET(a.cfg.Metrics.Path, echo.WrapHandler(promhttp.Handler()))
	}

	if a.cfg.Scanner.Enabled && a.scheduler != nil {
		go func() {
			if err := a.scheduler.Run(ctx); err != nil && ctx.Err() == nil {
				l.Error("scheduler error", applogger.Error(err))
			}
		}()
		l.Info("scan scheduler started",
			applogger.String("interval", a.cfg.Kite.Interval),
			applogger.Int("workers", a.cfg.Scanner.Workers))
	}

	if a.cfg.Scanner.LiveTicks && a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				l.Error("tick collector error", applogger.Error(err))
			}
		}()
		l.Info("tick collector started", applogger.String("backend", a.cfg.Backend.Type))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			l.Error("queue start error", applogger.Error(err))
			return err
		}
		l.Info("scan job queue started", applogger.Int("workers", a.cfg.Queue.Workers))
	}

	if a.cfg.Scanner.Enabled && a.notifier != nil && a.universe != nil {
		// Universe resolution hits the broker; keep it off the boot
		// path.
		go func() {
			instruments, err := a.universe.Instruments(ctx)
			if err != nil {
				l.Warn("startup universe error", applogger.Error(err))
				return
			}
			if err := a.notifier.SendStartup(ctx, len(instruments), a.cfg.Kite.Interval); err != nil {
				l.Warn("startup notice error", applogger.Error(err))
			}
		}()
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	cancel()
	return a.shutdown(l)
}

// shutdown stops services in reverse start order: scheduler and
// collector first (already cancelled via context), then HTTP, then
// consumers, then infrastructure clients.
func (a *App) shutdown(l *applogger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			l.Warn("queue stop error", applogger.Error(err))
		}
	}

	if a.TickProc != nil {
		a.TickProc.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	if a.pgClient != nil {
		if err := a.pgClient.Close(); err != nil {
			l.Warn("postgres close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
