package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultGRPCPort   = 9090
	DefaultServerMode = "release"

	DefaultDBHost = "localhost"
	DefaultDBPort = 5432
	DefaultDBUser = "keyip"
	DefaultDBName = "family_explorer"

	DefaultNeo4jURI = "bolt://localhost:7687"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "fx:"

	DefaultKafkaBroker = "localhost:9092"
	DefaultKafkaTopic  = "family-explorer.events"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "exploration-archive"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "keyip"

	DefaultFetchConcurrency     = 32
	DefaultMaxCandidates        = 500
	DefaultMembershipThreshold  = 60.0
	DefaultExpansionThreshold   = 30.0
	DefaultPreset               = "balanced"
	DefaultCompetitorProbeLimit = 10
	DefaultSeedProbeLimit       = 50

	DefaultWorkerGroupID        = "family-explorer-prefetch"
	DefaultWorkerConcurrency    = 16
	DefaultWorkerNeighbourLimit = 200
	DefaultWorkerHealthPort     = 8081
)

// ApplyDefaults fills every zero-value field in cfg with the default.
// Fields that have already been set (non-zero values) are left unchanged so
// that explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = DefaultGRPCPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 4 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = int(cfg.Server.RateLimitRPS) * 2
		if cfg.Server.RateLimitBurst < 1 {
			cfg.Server.RateLimitBurst = 1
		}
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "file://migrations"
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.User == "" {
		cfg.Neo4j.User = "neo4j"
	}
	if cfg.Neo4j.MaxConnectionPoolSize == 0 {
		cfg.Neo4j.MaxConnectionPoolSize = 50
	}
	if cfg.Neo4j.ConnectionTimeout == 0 {
		cfg.Neo4j.ConnectionTimeout = 5 * time.Second
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 64
	}
	// DB 0 is a valid explicit value and also the default.

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = 100
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.Kafka.MaxAttempts == 0 {
		cfg.Kafka.MaxAttempts = 3
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Metrics / Tracing ─────────────────────────────────────────────────────
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "family-explorer"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}

	// ── Gateway ───────────────────────────────────────────────────────────────
	if cfg.Gateway.CitationTTL == 0 {
		cfg.Gateway.CitationTTL = 24 * time.Hour
	}
	if cfg.Gateway.DetailTTL == 0 {
		cfg.Gateway.DetailTTL = 24 * time.Hour
	}
	if cfg.Gateway.ReferenceTTL == 0 {
		cfg.Gateway.ReferenceTTL = time.Hour
	}
	if cfg.Gateway.NegativeTTL == 0 {
		cfg.Gateway.NegativeTTL = 5 * time.Minute
	}
	if cfg.Gateway.LiveTimeout == 0 {
		cfg.Gateway.LiveTimeout = 10 * time.Second
	}
	if cfg.Gateway.LiveRetries == 0 {
		cfg.Gateway.LiveRetries = 2
	}

	// ── Explorer ──────────────────────────────────────────────────────────────
	if cfg.Explorer.FetchConcurrency == 0 {
		cfg.Explorer.FetchConcurrency = DefaultFetchConcurrency
	}
	if cfg.Explorer.ScoreConcurrency == 0 {
		cfg.Explorer.ScoreConcurrency = 8
	}
	if cfg.Explorer.DefaultMaxCandidates == 0 {
		cfg.Explorer.DefaultMaxCandidates = DefaultMaxCandidates
	}
	if cfg.Explorer.MembershipThreshold == 0 {
		cfg.Explorer.MembershipThreshold = DefaultMembershipThreshold
	}
	if cfg.Explorer.ExpansionThreshold == 0 {
		cfg.Explorer.ExpansionThreshold = DefaultExpansionThreshold
	}
	if cfg.Explorer.DefaultPreset == "" {
		cfg.Explorer.DefaultPreset = DefaultPreset
	}
	if cfg.Explorer.CompetitorProbeLimit == 0 {
		cfg.Explorer.CompetitorProbeLimit = DefaultCompetitorProbeLimit
	}
	if cfg.Explorer.SeedProbeLimit == 0 {
		cfg.Explorer.SeedProbeLimit = DefaultSeedProbeLimit
	}
	if cfg.Explorer.StepTimeout == 0 {
		cfg.Explorer.StepTimeout = 2 * time.Minute
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.GroupID == "" {
		cfg.Worker.GroupID = DefaultWorkerGroupID
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.NeighbourLimit == 0 {
		cfg.Worker.NeighbourLimit = DefaultWorkerNeighbourLimit
	}
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = DefaultWorkerHealthPort
	}
	if cfg.Worker.EventTimeout == 0 {
		cfg.Worker.EventTimeout = time.Minute
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
