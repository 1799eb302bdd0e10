// Prefetch worker entry point. It consumes exploration events and warms the
// citation cache for the next expansion step.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/application/prefetch"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/bootstrap"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/config"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/tracing"
	httpserver "github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http/handlers"
)

// Version is injected via ldflags.
var Version = "dev"

const serviceName = "family-explorer-worker"

func main() {
	configPath := flag.String("config", "", "path to configuration file (empty: environment only)")
	concurrency := flag.Int("workers", 0, "concurrent neighbour lookups (overrides config)")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *concurrency > 0 {
		cfg.Worker.Concurrency = *concurrency
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka.enabled is false: the prefetch worker has no event source")
	}
	logger.Info("Starting prefetch worker",
		logging.String("version", Version),
		logging.String("topic", cfg.Kafka.Topic),
		logging.String("group_id", cfg.Worker.GroupID),
		logging.Int("concurrency", cfg.Worker.Concurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	collector, metrics, err := bootstrap.NewMetrics(cfg, serviceName, logger)
	if err != nil {
		return err
	}

	infra, err := bootstrap.Open(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	gwOpts := bootstrap.GatewayOptions(cfg)
	warmer, err := prefetch.NewWarmer(infra.Explorations, infra.Gateway, prefetch.Config{
		Concurrency:      cfg.Worker.Concurrency,
		NeighbourLimit:   cfg.Worker.NeighbourLimit,
		ItemTimeout:      cfg.Gateway.LiveTimeout,
		BreakerThreshold: gwOpts.BreakerThreshold,
		BreakerCooldown:  gwOpts.BreakerCooldown,
	}, metrics, logger.Named("prefetch"))
	if err != nil {
		return err
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Worker.GroupID,
	}, logger.Named("consumer"))
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	gin.SetMode(cfg.Server.Mode)
	probeCfg := cfg.Server
	probeCfg.Port = cfg.Worker.HealthPort
	probes := httpserver.NewServer(probeCfg, httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:    handlers.NewHealthHandler(Version, infra.HealthChecks()...),
		Logger:           logger.Named("probe"),
		MetricsCollector: collector,
		MetricsPath:      cfg.Metrics.Path,
	}), logger.Named("probe"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(probes.Start)
	g.Go(func() error {
		return consumer.Run(gctx, warmer.Handler(cfg.Worker.EventTimeout))
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down worker")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return probes.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("Worker stopped")
	return nil
}
