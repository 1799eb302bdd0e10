package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "KEYIP"

// newViper builds a Viper instance with YAML file type, the KEYIP_ env prefix,
// automatic env binding and a "." → "_" key replacer so that "explorer.fetch_concurrency"
// resolves to KEYIP_EXPLORER_FETCH_CONCURRENCY.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys(v)
	v.SetDefault("metrics.enabled", true)
	return v
}

// bindEnvKeys registers every leaf key so that env-only overrides are seen by
// Unmarshal even when the key is absent from the file.
func bindEnvKeys(v *viper.Viper) {
	for _, k := range []string{
		"server.port", "server.grpc_port", "server.mode", "server.api_key",
		"server.rate_limit_rps", "server.rate_limit_burst",
		"database.host", "database.port", "database.user", "database.password", "database.db_name",
		"database.ssl_mode", "database.auto_migrate", "database.migration_path",
		"neo4j.uri", "neo4j.user", "neo4j.password", "neo4j.database",
		"redis.addr", "redis.password", "redis.db", "redis.key_prefix",
		"kafka.enabled", "kafka.brokers", "kafka.topic",
		"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket", "minio.use_ssl",
		"log.level", "log.format",
		"metrics.enabled", "tracing.enabled", "tracing.sample_ratio",
		"gateway.citation_ttl", "gateway.detail_ttl", "gateway.live_timeout",
		"explorer.fetch_concurrency", "explorer.score_concurrency", "explorer.default_max_candidates",
		"explorer.membership_threshold", "explorer.expansion_threshold", "explorer.default_preset",
		"explorer.competitor_probe_limit", "explorer.seed_probe_limit", "explorer.step_timeout",
		"worker.group_id", "worker.concurrency", "worker.neighbour_limit", "worker.health_port",
	} {
		_ = v.BindEnv(k)
	}
}

// Load reads the YAML file at configPath, merges KEYIP_* environment
// overrides, applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from KEYIP_* environment variables and
// defaults. Used for containerised deployments without a config file.
//
//	KEYIP_<SECTION>_<FIELD>   e.g.  KEYIP_DATABASE_HOST, KEYIP_EXPLORER_FETCH_CONCURRENCY
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOrEnv loads configPath when it is non-empty and falls back to LoadFromEnv.
func LoadOrEnv(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the re-parsed Config
// whenever the file is written. Read and parse failures are logged and
// reported to onError (when non-nil); they never reach onChange. Only the log
// level and the explorer defaults are safe to apply at runtime.
func Watch(configPath string, log logging.Logger, onChange func(*Config), onError func(error)) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	fail := func(msg string, err error) {
		log.Warn(msg, logging.String("path", configPath), logging.Err(err))
		if onError != nil {
			onError(err)
		}
	}

	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		fail("config watch: initial read failed", fmt.Errorf("config: failed to read %s: %w", configPath, err))
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			fail("config watch: reload rejected", err)
			return
		}
		log.Info("configuration reloaded", logging.String("path", configPath))
		onChange(cfg)
	})
	v.WatchConfig()
}

// MustLoad wraps LoadOrEnv and panics on any error. For main() only.
func MustLoad(configPath string) *Config {
	cfg, err := LoadOrEnv(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
