// Package bootstrap builds the backends selected by config for cmd/server and cmd/worker.
package bootstrap

import (
	"context"
	"fmt"
	"log"

	"community-bot/backend/internal/activity/queue"
	"community-bot/backend/internal/config"
	"community-bot/backend/internal/platform"
	"community-bot/backend/internal/platform/discord"
	"community-bot/backend/internal/telemetry"
	telemetryotel "community-bot/backend/internal/telemetry/otel"
	"community-bot/backend/internal/volatile"
	"community-bot/backend/internal/volatile/badgerstore"
	"community-bot/backend/internal/volatile/redisstore"
)

// Volatile is the opened volatile store. GC is set only for the embedded backend.
type Volatile struct {
	Store volatile.Store
	GC    *badgerstore.Store
}

// OpenVolatile opens the store named by cfg.VolatileBackend.
func OpenVolatile(ctx context.Context, cfg *config.Config) (*Volatile, error) {
	switch cfg.VolatileBackend {
	case config.VolatileBadger:
		s, err := badgerstore.New(badgerstore.Config{Path: cfg.BadgerPath, MaxMemoryMB: cfg.BadgerMaxMemoryMB})
		if err != nil {
			return nil, err
		}
		log.Printf("bootstrap: volatile store badger at %s", cfg.BadgerPath)
		return &Volatile{Store: s, GC: s}, nil
	case config.VolatileRedis, "":
		s, err := redisstore.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Println("bootstrap: volatile store redis")
		return &Volatile{Store: s}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown volatile backend %q", cfg.VolatileBackend)
	}
}

// OpenQueue returns the raw-event queue named by cfg.QueueBackend. metrics may be nil.
func OpenQueue(cfg *config.Config, store volatile.Store, metrics *telemetry.Metrics) (queue.Queue, error) {
	switch cfg.QueueBackend {
	case config.QueueKafka:
		q, err := queue.NewKafkaQueue(cfg.KafkaBrokersList(), cfg.ActivityKafkaTopic, cfg.KafkaGroupID, metrics)
		if err != nil {
			return nil, err
		}
		log.Printf("bootstrap: raw event queue kafka topic %s", cfg.ActivityKafkaTopic)
		return q, nil
	case config.QueueVolatile, "":
		return queue.NewVolatileQueue(store), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown queue backend %q", cfg.QueueBackend)
	}
}

// RoleManager returns the Discord role manager, or a dry-run manager when no bot token is set.
func RoleManager(cfg *config.Config) (platform.RoleManager, error) {
	if cfg.DiscordBotToken == "" {
		log.Println("bootstrap: DISCORD_BOT_TOKEN not set; role changes are logged only")
		return platform.LogRoleManager{}, nil
	}
	rm, err := discord.New(cfg.DiscordBotToken)
	if err != nil {
		return nil, err
	}
	return rm, nil
}

// Telemetry holds the OTel providers and what the pipeline derives from them.
type Telemetry struct {
	Providers *telemetryotel.Providers
	Metrics   *telemetry.Metrics
	Emitter   telemetry.RunEmitter
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.Providers == nil || t.Providers.Shutdown == nil {
		return nil
	}
	return t.Providers.Shutdown(ctx)
}

// OpenTelemetry sets up providers for cfg.OTLPEndpoint, installs them globally, and builds metrics
// and the job-run emitter. An empty endpoint yields working no-export providers.
func OpenTelemetry(ctx context.Context, cfg *config.Config, serviceName string) (*Telemetry, error) {
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return nil, err
	}
	providers.SetGlobal()
	metrics, err := providers.Metrics()
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, err
	}
	return &Telemetry{
		Providers: providers,
		Metrics:   metrics,
		Emitter:   telemetryotel.NewRunEmitter(providers.LoggerProvider),
	}, nil
}
