// Command taskd runs the task tracking daemon: an in-memory task store with
// an HTTP API, statistics engine, audit journal, and event stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/basket/taskd/internal/api"
	"github.com/basket/taskd/internal/audit"
	"github.com/basket/taskd/internal/bus"
	"github.com/basket/taskd/internal/config"
	"github.com/basket/taskd/internal/cron"
	"github.com/basket/taskd/internal/notify"
	otelPkg "github.com/basket/taskd/internal/otel"
	"github.com/basket/taskd/internal/stats"
	"github.com/basket/taskd/internal/store"
	"github.com/basket/taskd/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

DAEMON MODE (default):
  %s                          Start the daemon

SUBCOMMANDS:
  %s status                   Show daemon health (/health)
  %s version                  Print version

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  TASKD_HOME              Data directory (default: ~/.taskd)
  TASKD_BIND_ADDR         Override bind_addr from config.yaml
  TASKD_LOG_LEVEL         Override log_level from config.yaml
`)
	os.Exit(2)
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
		case "status":
			os.Exit(runStatusCommand(ctx, args[1:]))
		case "version":
			fmt.Println(Version)
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
			os.Exit(2)
		}
		return
	}

	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	logging, err := telemetry.Setup(cfg.HomeDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup: %v\n", err)
		return 1
	}
	defer logging.Close()
	logger := logging.Logger

	logger.Info("taskd starting",
		"version", Version,
		"bind_addr", cfg.BindAddr,
		"config", cfg.Fingerprint(),
	)

	provider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:     cfg.Otel.Enabled,
		Exporter:    cfg.Otel.Exporter,
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
		SampleRate:  cfg.Otel.SampleRate,
	})
	if err != nil {
		logger.Error("otel init failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	metrics, err := otelPkg.NewMetrics(provider.Meter)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		return 1
	}

	journal, err := audit.Open(audit.Config{
		HomeDir: cfg.HomeDir,
		DSN:     cfg.Audit.DSN,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("audit journal init failed", "error", err)
		return 1
	}
	defer journal.Close()

	eventBus := bus.New()

	taskStore := store.New(store.Config{
		Bus:     eventBus,
		Journal: journal,
	})

	engine := stats.NewEngine(stats.Config{
		Source: taskStore,
		TTL:    cfg.CacheTTL(),
		OnHit:  func() { metrics.CacheHits.Add(context.Background(), 1) },
		OnMiss: func() { metrics.CacheMisses.Add(context.Background(), 1) },
	})
	taskStore.SetCache(engine)

	notifier := notify.New(notify.Config{
		Bus:        eventBus,
		Engine:     engine,
		Logger:     logger,
		OnDispatch: func() { metrics.NotifyDispatched.Add(context.Background(), 1) },
	})
	notifier.Start(ctx)
	defer notifier.Stop()

	scheduler := cron.NewScheduler(cron.Config{
		Schedules:     cfg.Schedules,
		Refresher:     engine,
		Pruner:        journal,
		RetentionDays: cfg.Audit.RetentionDays,
		Logger:        logger,
	})
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := api.New(api.Config{
		Store:        taskStore,
		Engine:       engine,
		Journal:      journal,
		Bus:          eventBus,
		Logger:       logger,
		Metrics:      metrics,
		BindAddr:     cfg.BindAddr,
		Fingerprint:  cfg.Fingerprint(),
		MaxBodyBytes: cfg.MaxBodyBytes,
		CORS:         cfg.CORS,
		RateLimit:    cfg.RateLimit,
		AllowOrigins: cfg.CORS.AllowedOrigins,
	})
	if err := server.Start(ctx); err != nil {
		logger.Error("api start failed", "error", err)
		return 1
	}

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		defer watcher.Stop()
		go consumeReloads(ctx, watcher, logging, logger)
	}

	logger.Info("taskd ready")
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "error", err)
	}
	return 0
}

// consumeReloads applies the subset of config that can change at runtime.
// Everything else (bind address, schedules) needs a restart.
func consumeReloads(ctx context.Context, watcher *config.Watcher, logging *telemetry.Logging, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events():
			if !ok {
				return
			}
			logging.SetLevel(ev.Config.LogLevel)
			logger.Info("log level applied", "log_level", ev.Config.LogLevel)
		}
	}
}
