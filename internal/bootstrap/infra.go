// Package bootstrap opens the backing stores from the service configuration
// and assembles them into the gateway, repositories and sinks shared by the
// API server and the prefetch worker.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/config"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/neo4j"
	neo4jrepo "github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/postgres"
	pgrepo "github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/gateway"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http/handlers"
)

const closeTimeout = 10 * time.Second

// Infrastructure holds the open store clients. Close releases them in reverse
// opening order.
type Infrastructure struct {
	Postgres     *postgres.Connection
	Neo4j        *neo4j.Driver
	Redis        *redis.Client
	Cache        redis.Cache
	Explorations exploration.Repository
	Gateway      *gateway.CachedGateway

	logger  logging.Logger
	closers []func()
}

// Open connects PostgreSQL, Neo4j and Redis and builds the cache-first
// gateway over them. Pending migrations are applied when
// database.auto_migrate is set. On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, metrics *prometheus.ExplorerMetrics, log logging.Logger) (*Infrastructure, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	infra := &Infrastructure{logger: log}

	pg, err := postgres.NewConnection(cfg.Database, log.Named("postgres"))
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	infra.Postgres = pg
	infra.onClose(func() { _ = pg.Close() })

	if cfg.Database.AutoMigrate {
		if err := pg.Migrate(cfg.Database.MigrationPath); err != nil {
			infra.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("Database schema migrated", logging.String("path", cfg.Database.MigrationPath))
	}

	drv, err := neo4j.NewDriver(Neo4jConfig(cfg), log.Named("neo4j"))
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("neo4j: %w", err)
	}
	infra.Neo4j = drv
	infra.onClose(func() {
		cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = drv.Close(cctx)
	})

	rc, err := redis.NewClient(RedisConfig(cfg), log.Named("redis"))
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	infra.Redis = rc
	infra.onClose(func() { _ = rc.Close() })

	infra.Cache = redis.NewRedisCache(rc, log.Named("cache"), CacheOptions(cfg)...)
	infra.Explorations = pgrepo.NewPostgresExplorationRepo(pg, log.Named("explorations"))
	infra.Gateway = gateway.NewCachedGateway(
		infra.Cache,
		neo4jrepo.NewNeo4jCitationRepo(drv, log.Named("citations")),
		pgrepo.NewPostgresPatentRepo(pg, log.Named("patents")),
		metrics,
		log.Named("gateway"),
		GatewayOptions(cfg),
	)

	log.Info("Infrastructure initialized")
	return infra, nil
}

func (i *Infrastructure) onClose(fn func()) { i.closers = append(i.closers, fn) }

// Close releases every client. It is safe to call more than once.
func (i *Infrastructure) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
	i.closers = nil
}

// HealthChecks returns one readiness check per store.
func (i *Infrastructure) HealthChecks() []handlers.HealthChecker {
	var checks []handlers.HealthChecker
	if i.Postgres != nil {
		checks = append(checks, handlers.NewCheck("postgres", i.Postgres.HealthCheck))
	}
	if i.Neo4j != nil {
		checks = append(checks, handlers.NewCheck("neo4j", i.Neo4j.HealthCheck))
	}
	if i.Redis != nil {
		checks = append(checks, handlers.NewCheck("redis", i.Redis.Ping))
	}
	return checks
}

// OpenSnapshots connects MinIO and ensures the archive bucket. It returns a
// nil store and no error when minio.enabled is false.
func OpenSnapshots(ctx context.Context, cfg *config.Config, log logging.Logger) (*minio.SnapshotStore, handlers.HealthChecker, error) {
	if !cfg.MinIO.Enabled {
		return nil, nil, nil
	}
	client, err := minio.NewClient(ctx, MinIOConfig(cfg), log.Named("minio"))
	if err != nil {
		return nil, nil, fmt.Errorf("minio: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("minio bucket: %w", err)
	}
	return minio.NewSnapshotStore(client, log.Named("snapshots")), handlers.NewCheck("minio", client.HealthCheck), nil
}

// OpenPublisher ensures the event topic and returns a publisher with its
// close function. It returns a nil publisher when kafka.enabled is false.
func OpenPublisher(ctx context.Context, cfg *config.Config, metrics *prometheus.ExplorerMetrics, log logging.Logger) (*kafka.EventPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	log = log.Named("kafka")

	tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, log)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka: %w", err)
	}
	err = tm.EnsureTopic(ctx, kafka.DefaultTopicConfig(cfg.Kafka.Topic))
	_ = tm.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("kafka topic: %w", err)
	}

	producer, err := kafka.NewProducer(ProducerConfig(cfg), log)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return kafka.NewEventPublisher(producer, metrics, log), func() { _ = producer.Close() }, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Config mapping
// ─────────────────────────────────────────────────────────────────────────────

// Neo4jConfig maps the neo4j section onto the driver config.
func Neo4jConfig(cfg *config.Config) neo4j.Neo4jConfig {
	return neo4j.Neo4jConfig{
		URI:                          cfg.Neo4j.URI,
		Username:                     cfg.Neo4j.User,
		Password:                     cfg.Neo4j.Password,
		Database:                     cfg.Neo4j.Database,
		MaxConnectionPoolSize:        cfg.Neo4j.MaxConnectionPoolSize,
		ConnectionAcquisitionTimeout: cfg.Neo4j.ConnectionTimeout,
	}
}

// RedisConfig maps the redis section onto a standalone client config.
func RedisConfig(cfg *config.Config) *redis.RedisConfig {
	return &redis.RedisConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}
}

// CacheOptions applies the key prefix and the negative-lookup TTL.
func CacheOptions(cfg *config.Config) []redis.CacheOption {
	opts := []redis.CacheOption{redis.WithPrefix(cfg.Redis.KeyPrefix)}
	if cfg.Gateway.NegativeTTL > 0 {
		opts = append(opts, redis.WithNullTTL(cfg.Gateway.NegativeTTL))
	}
	return opts
}

// GatewayOptions maps the gateway section, keeping the breaker defaults.
func GatewayOptions(cfg *config.Config) gateway.Options {
	opts := gateway.DefaultOptions()
	opts.CitationTTL = cfg.Gateway.CitationTTL
	opts.DetailTTL = cfg.Gateway.DetailTTL
	opts.ReferenceTTL = cfg.Gateway.ReferenceTTL
	opts.LiveTimeout = cfg.Gateway.LiveTimeout
	opts.LiveRetries = cfg.Gateway.LiveRetries
	return opts
}

// ProducerConfig maps the kafka section onto the producer config.
func ProducerConfig(cfg *config.Config) kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		MaxAttempts:  cfg.Kafka.MaxAttempts,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
	}
}

// MinIOConfig maps the minio section onto the storage client config.
func MinIOConfig(cfg *config.Config) minio.Config {
	return minio.Config{
		Endpoint:      cfg.MinIO.Endpoint,
		AccessKey:     cfg.MinIO.AccessKey,
		SecretKey:     cfg.MinIO.SecretKey,
		UseSSL:        cfg.MinIO.UseSSL,
		Region:        cfg.MinIO.Region,
		Bucket:        cfg.MinIO.Bucket,
		RetentionDays: cfg.MinIO.RetentionDays,
	}
}

// CollectorConfig maps the metrics section onto the collector config.
func CollectorConfig(cfg *config.Config, service string) prometheus.CollectorConfig {
	return prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
		ConstLabels:          map[string]string{"service": service},
	}
}

// NewMetrics builds the collector and the explorer metrics on it. With
// metrics disabled both are no-ops.
func NewMetrics(cfg *config.Config, service string, log logging.Logger) (prometheus.MetricsCollector, *prometheus.ExplorerMetrics, error) {
	if !cfg.Metrics.Enabled {
		return nil, prometheus.NewNoopExplorerMetrics(), nil
	}
	c, err := prometheus.NewMetricsCollector(CollectorConfig(cfg, service), log)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}
	return c, prometheus.NewExplorerMetrics(c), nil
}
