// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Volatile store backends.
const (
	VolatileRedis  = "redis"
	VolatileBadger = "badger"
)

// Raw-event queue backends.
const (
	QueueVolatile = "volatile"
	QueueKafka    = "kafka"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address of the ingest and read API (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// VolatileBackend selects the counter/cooldown store: "redis" (shared) or "badger" (single process).
	VolatileBackend string `mapstructure:"VOLATILE_BACKEND"`
	// RedisURL is a redis:// URL; required for the redis backend.
	RedisURL string `mapstructure:"REDIS_URL"`
	// BadgerPath is the Badger data directory; required for the badger backend.
	BadgerPath string `mapstructure:"BADGER_PATH"`
	// BadgerMaxMemoryMB bounds Badger's memtables (0 = library default).
	BadgerMaxMemoryMB int64 `mapstructure:"BADGER_MAX_MEMORY_MB"`

	// QueueBackend selects where raw log entries wait: "volatile" or "kafka".
	QueueBackend string `mapstructure:"QUEUE_BACKEND"`
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// ActivityKafkaTopic is the topic carrying raw activity entries.
	ActivityKafkaTopic string `mapstructure:"ACTIVITY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of the log-sync worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// Worker intervals, as Go durations.
	CounterSyncInterval    string `mapstructure:"COUNTER_SYNC_INTERVAL"`
	LogSyncInterval        string `mapstructure:"LOG_SYNC_INTERVAL"`
	XPSyncInterval         string `mapstructure:"XP_SYNC_INTERVAL"`
	RoleSyncInterval       string `mapstructure:"ROLE_SYNC_INTERVAL"`
	PartitionCheckInterval string `mapstructure:"PARTITION_CHECK_INTERVAL"`

	// LogSyncBatchSize is the number of raw entries per bulk insert.
	LogSyncBatchSize int `mapstructure:"LOG_SYNC_BATCH_SIZE"`
	// RoleSyncBatchSize is the number of members reconciled per batch.
	RoleSyncBatchSize int `mapstructure:"ROLE_SYNC_BATCH_SIZE"`
	// PartitionMonthsAhead is how many months past the current one get a partition.
	PartitionMonthsAhead int `mapstructure:"PARTITION_MONTHS_AHEAD"`
	// PartitionRetentionMonths is how many whole months of raw log are kept.
	PartitionRetentionMonths int `mapstructure:"PARTITION_RETENTION_MONTHS"`

	// BufferTTL is the safety TTL on volatile counters and XP buckets.
	BufferTTL string `mapstructure:"BUFFER_TTL"`
	// GuildConfigCacheTTL is how long a guild's activity config is cached.
	GuildConfigCacheTTL string `mapstructure:"GUILD_CONFIG_CACHE_TTL"`

	// SubmitQueueSize is the total in-process submit capacity, split across workers.
	SubmitQueueSize int `mapstructure:"SUBMIT_QUEUE_SIZE"`
	// SubmitWorkers is the number of submit shards (and goroutines).
	SubmitWorkers int `mapstructure:"SUBMIT_WORKERS"`
	// MessageXP is granted per qualifying message.
	MessageXP int64 `mapstructure:"MESSAGE_XP"`
	// VoiceXP is granted per voice activity event.
	VoiceXP int64 `mapstructure:"VOICE_XP"`

	// DiscordBotToken enables role reconciliation against Discord. Empty means dry run (logged only).
	DiscordBotToken string `mapstructure:"DISCORD_BOT_TOKEN"`

	// OTLPEndpoint is the OTLP gRPC collector (e.g. localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("VOLATILE_BACKEND", VolatileRedis)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("BADGER_PATH", "")
	v.SetDefault("BADGER_MAX_MEMORY_MB", 0)
	v.SetDefault("QUEUE_BACKEND", QueueVolatile)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("ACTIVITY_KAFKA_TOPIC", "activity-log")
	v.SetDefault("KAFKA_GROUP_ID", "activity-log-sync")
	v.SetDefault("COUNTER_SYNC_INTERVAL", "5m")
	v.SetDefault("LOG_SYNC_INTERVAL", "5m")
	v.SetDefault("XP_SYNC_INTERVAL", "5m")
	v.SetDefault("ROLE_SYNC_INTERVAL", "30m")
	v.SetDefault("PARTITION_CHECK_INTERVAL", "24h")
	v.SetDefault("LOG_SYNC_BATCH_SIZE", 1000)
	v.SetDefault("ROLE_SYNC_BATCH_SIZE", 200)
	v.SetDefault("PARTITION_MONTHS_AHEAD", 2)
	v.SetDefault("PARTITION_RETENTION_MONTHS", 6)
	v.SetDefault("BUFFER_TTL", "48h")
	v.SetDefault("GUILD_CONFIG_CACHE_TTL", "5m")
	v.SetDefault("SUBMIT_QUEUE_SIZE", 4096)
	v.SetDefault("SUBMIT_WORKERS", 8)
	v.SetDefault("MESSAGE_XP", 20)
	v.SetDefault("VOICE_XP", 10)
	v.SetDefault("DISCORD_BOT_TOKEN", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("SERVICE_NAME", "community-bot-activity")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	c.VolatileBackend = strings.ToLower(strings.TrimSpace(c.VolatileBackend))
	switch c.VolatileBackend {
	case VolatileRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when VOLATILE_BACKEND=redis")
		}
	case VolatileBadger:
		if c.BadgerPath == "" {
			return errors.New("config: BADGER_PATH must be set when VOLATILE_BACKEND=badger")
		}
	default:
		return fmt.Errorf("config: VOLATILE_BACKEND must be %q or %q, got %q", VolatileRedis, VolatileBadger, c.VolatileBackend)
	}
	c.QueueBackend = strings.ToLower(strings.TrimSpace(c.QueueBackend))
	switch c.QueueBackend {
	case QueueVolatile:
	case QueueKafka:
		if len(c.KafkaBrokersList()) == 0 {
			return errors.New("config: KAFKA_BROKERS must be set when QUEUE_BACKEND=kafka")
		}
		if c.ActivityKafkaTopic == "" || c.KafkaGroupID == "" {
			return errors.New("config: ACTIVITY_KAFKA_TOPIC and KAFKA_GROUP_ID must be set when QUEUE_BACKEND=kafka")
		}
	default:
		return fmt.Errorf("config: QUEUE_BACKEND must be %q or %q, got %q", QueueVolatile, QueueKafka, c.QueueBackend)
	}
	if c.PartitionMonthsAhead < 0 {
		return errors.New("config: PARTITION_MONTHS_AHEAD must not be negative")
	}
	if c.PartitionRetentionMonths < 1 {
		return errors.New("config: PARTITION_RETENTION_MONTHS must be at least 1")
	}
	if c.SubmitWorkers < 0 || c.SubmitQueueSize < 0 {
		return errors.New("config: SUBMIT_WORKERS and SUBMIT_QUEUE_SIZE must not be negative")
	}
	if c.SubmitWorkers > 0 && c.SubmitQueueSize > 0 && c.SubmitQueueSize < c.SubmitWorkers {
		return errors.New("config: SUBMIT_QUEUE_SIZE must be at least SUBMIT_WORKERS")
	}
	return nil
}

// duration parses s as a time.Duration, returning def if s is unset, invalid, or not positive.
func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// CounterSyncEvery returns the counter-sync interval. Returns 5m if unset or invalid.
func (c *Config) CounterSyncEvery() time.Duration {
	return duration(c.CounterSyncInterval, 5*time.Minute)
}

// LogSyncEvery returns the log-sync interval. Returns 5m if unset or invalid.
func (c *Config) LogSyncEvery() time.Duration {
	return duration(c.LogSyncInterval, 5*time.Minute)
}

// XPSyncEvery returns the xp-sync interval. Returns 5m if unset or invalid.
func (c *Config) XPSyncEvery() time.Duration {
	return duration(c.XPSyncInterval, 5*time.Minute)
}

// RoleSyncEvery returns the role reconciliation interval. Returns 30m if unset or invalid.
func (c *Config) RoleSyncEvery() time.Duration {
	return duration(c.RoleSyncInterval, 30*time.Minute)
}

// PartitionCheckEvery returns the partition maintenance interval. Returns 24h if unset or invalid.
func (c *Config) PartitionCheckEvery() time.Duration {
	return duration(c.PartitionCheckInterval, 24*time.Hour)
}

// BufferTTLDuration returns the volatile key TTL. Returns 48h if unset or invalid.
func (c *Config) BufferTTLDuration() time.Duration {
	return duration(c.BufferTTL, 48*time.Hour)
}

// GuildConfigCacheTTLDuration returns the guild config cache TTL. Returns 5m if unset or invalid.
func (c *Config) GuildConfigCacheTTLDuration() time.Duration {
	return duration(c.GuildConfigCacheTTL, 5*time.Minute)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
