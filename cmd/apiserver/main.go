// API server entry point for the family explorer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	appexploration "github.com/turtacn/KeyIP-FamilyExplorer/internal/application/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/bootstrap"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/config"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/tracing"
	grpcserver "github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/grpc"
	httpserver "github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http/middleware"
)

// Version is injected via ldflags.
var Version = "dev"

const (
	serviceName         = "family-explorer-api"
	healthWatchInterval = 15 * time.Second
	limiterCleanup      = 5 * time.Minute
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (empty: environment only)")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	grpcPort := flag.Int("grpc-port", -1, "gRPC health port, 0 disables (overrides config)")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.Server.Port = *httpPort
	}
	if *grpcPort >= 0 {
		cfg.Server.GRPCPort = *grpcPort
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *configPath != "" {
		config.Watch(*configPath, logger.Named("config"), func(c *config.Config) {
			if logging.SetLevel(logger, c.Log.Level) {
				logger.Info("log level applied", logging.String("level", c.Log.Level))
			}
		}, nil)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("API server exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	logger.Info("Starting family explorer API server",
		logging.String("version", Version),
		logging.Int("http_port", cfg.Server.Port),
		logging.Int("grpc_port", cfg.Server.GRPCPort),
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
	checks := infra.HealthChecks()

	deps := appexploration.Dependencies{
		Gateway: infra.Gateway,
		Repo:    infra.Explorations,
		Metrics: metrics,
		Logger:  logger.Named("exploration"),
	}

	snapshots, minioCheck, err := bootstrap.OpenSnapshots(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if snapshots != nil {
		deps.Snapshots = snapshots
		checks = append(checks, minioCheck)
	}

	publisher, closePublisher, err := bootstrap.OpenPublisher(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closePublisher()
	if publisher != nil {
		deps.Events = publisher
	}

	svc, err := appexploration.NewService(deps, appexploration.ConfigFrom(cfg.Explorer))
	if err != nil {
		return fmt.Errorf("exploration service: %w", err)
	}

	health := handlers.NewHealthHandler(Version, checks...)
	routerCfg := httpserver.RouterConfig{
		ExplorationHandler: handlers.NewExplorationHandler(svc, logger.Named("http"), cfg.Explorer.DefaultPreset),
		HealthHandler:      health,
		APIKey:             cfg.Server.APIKey,
		MaxBodySize:        cfg.Server.MaxBodySize,
		Logger:             logger.Named("http"),
		Metrics:            metrics,
		MetricsCollector:   collector,
		MetricsPath:        cfg.Metrics.Path,
	}
	if cfg.Server.RateLimitRPS > 0 {
		limiter := middleware.NewTokenBucketLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, limiterCleanup)
		defer limiter.Stop()
		routerCfg.RateLimiter = limiter
	}

	gin.SetMode(cfg.Server.Mode)
	srv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger.Named("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var grpcSrv *grpcserver.Server
	if cfg.Server.GRPCPort > 0 {
		grpcSrv, err = grpcserver.NewServer(fmt.Sprintf(":%d", cfg.Server.GRPCPort),
			grpcserver.WithLogger(logger.Named("grpc")),
			grpcserver.WithReflection(cfg.Server.Mode == gin.DebugMode),
		)
		if err != nil {
			return err
		}
		g.Go(grpcSrv.Start)
		g.Go(func() error {
			grpcSrv.WatchHealth(gctx, healthWatchInterval, func(ctx context.Context) bool {
				ok, _ := health.Ready(ctx)
				return ok
			})
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if grpcSrv != nil {
			_ = grpcSrv.Stop(shutdownCtx)
		}
		return srv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Servers stopped")
	return nil
}
