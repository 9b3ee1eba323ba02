// Worker drains the volatile buffers into Postgres, reconciles reward roles and maintains the
// monthly activity_log partitions. Run exactly one scheduler per deployment; partition DDL is
// additionally serialised with a Postgres advisory lock.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"community-bot/backend/internal/activity/buffer"
	activityrepo "community-bot/backend/internal/activity/repository"
	"community-bot/backend/internal/bootstrap"
	"community-bot/backend/internal/config"
	"community-bot/backend/internal/db"
	"community-bot/backend/internal/guildconfig"
	guildconfigrepo "community-bot/backend/internal/guildconfig/repository"
	"community-bot/backend/internal/leveling"
	levelingrepo "community-bot/backend/internal/leveling/repository"
	"community-bot/backend/internal/partition"
	"community-bot/backend/internal/scheduler"
	"community-bot/backend/internal/telemetry"
	"community-bot/backend/internal/worker"
)

const stopTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := bootstrap.OpenTelemetry(ctx, cfg, cfg.ServiceName+"-worker")
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	vol, err := bootstrap.OpenVolatile(ctx, cfg)
	if err != nil {
		log.Fatalf("volatile: %v", err)
	}
	defer vol.Store.Close()

	rawQueue, err := bootstrap.OpenQueue(cfg, vol.Store, tel.Metrics)
	if err != nil {
		log.Fatalf("queue: %v", err)
	}
	defer rawQueue.Close()

	roles, err := bootstrap.RoleManager(cfg)
	if err != nil {
		log.Fatalf("discord: %v", err)
	}

	instance := "worker-" + uuid.NewString()
	activity := activityrepo.NewPostgresRepository(database)
	levels := levelingrepo.NewPostgresRepository(database)
	configs := guildconfig.NewProvider(vol.Store, guildconfigrepo.NewPostgresRepository(database), cfg.GuildConfigCacheTTLDuration())
	buf := buffer.New(vol.Store, cfg.BufferTTLDuration())
	manager := partition.NewManager(partition.NewPostgresCatalog(database, instance), tel.Metrics)

	deps := worker.Deps{
		Counters:    buf,
		CounterSink: activity,
		Logs:        rawQueue,
		LogSink:     activity,
		XP:          buf,
		XPSink:      levels,
		Roles:       leveling.NewRoleSync(levels, roles, configs, tel.Metrics, cfg.RoleSyncBatchSize),
		Partitions:  manager,
		Retention:   partition.NewMonthlyRetention(manager, vol.Store, cfg.PartitionRetentionMonths),
		Metrics:     tel.Metrics,
	}
	if vol.GC != nil {
		deps.GC = vol.GC
	}
	if err := deps.Validate(); err != nil {
		log.Fatal(err)
	}

	sched := scheduler.New(tel.Metrics, tel.Emitter)
	for _, job := range worker.Jobs(worker.Config{
		CounterSyncEvery:    cfg.CounterSyncEvery(),
		LogSyncEvery:        cfg.LogSyncEvery(),
		XPSyncEvery:         cfg.XPSyncEvery(),
		RoleSyncEvery:       cfg.RoleSyncEvery(),
		PartitionCheckEvery: cfg.PartitionCheckEvery(),
		LogBatchSize:        cfg.LogSyncBatchSize,
		MonthsAhead:         cfg.PartitionMonthsAhead,
	}, deps) {
		sched.Register(job)
	}
	sched.Start(ctx)
	log.Printf("worker: %s started", instance)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("worker: shutting down...")
	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(stopTimeout):
		log.Println("worker: jobs did not stop in time")
	}

	// One last drain so a deploy does not leave counters waiting in the volatile store.
	finalCtx, finalCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer finalCancel()
	for _, job := range worker.Jobs(worker.Config{LogBatchSize: cfg.LogSyncBatchSize}, worker.Deps{
		Counters: buf, CounterSink: activity, Logs: rawQueue, LogSink: activity, XP: buf, XPSink: levels, Metrics: tel.Metrics,
	}) {
		if err := job.Run(finalCtx); err != nil {
			log.Printf("worker: final %s: %v", job.Name, err)
		}
	}
	for name, st := range sched.Status() {
		log.Printf("worker: %s runs=%d skipped=%d last_error=%q", name, st.Runs, st.Skipped, st.LastError)
	}

	// Run records are emitted asynchronously; give the last ones time to leave.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := tel.Shutdown(finalCtx); err != nil {
		log.Printf("telemetry: shutdown: %v", err)
	}
	log.Println("worker: stopped")
}
