// Server accepts activity events (in-process producers and POST /v1/events), buffers them in the
// volatile store, and serves the read API and gRPC health.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"community-bot/backend/internal/activity/buffer"
	"community-bot/backend/internal/activity/cooldown"
	activityhandler "community-bot/backend/internal/activity/handler"
	"community-bot/backend/internal/activity/pipeline"
	activityrepo "community-bot/backend/internal/activity/repository"
	"community-bot/backend/internal/bootstrap"
	"community-bot/backend/internal/config"
	"community-bot/backend/internal/db"
	"community-bot/backend/internal/guildconfig"
	guildconfighandler "community-bot/backend/internal/guildconfig/handler"
	guildconfigrepo "community-bot/backend/internal/guildconfig/repository"
	healthhandler "community-bot/backend/internal/health/handler"
	levelingrepo "community-bot/backend/internal/leveling/repository"
	"community-bot/backend/internal/partition"
	"community-bot/backend/internal/server"
	"community-bot/backend/internal/stats"
	statshandler "community-bot/backend/internal/stats/handler"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := bootstrap.OpenTelemetry(ctx, cfg, cfg.ServiceName)
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

	activity := activityrepo.NewPostgresRepository(database)
	leveling := levelingrepo.NewPostgresRepository(database)
	configs := guildconfig.NewProvider(vol.Store, guildconfigrepo.NewPostgresRepository(database), cfg.GuildConfigCacheTTLDuration())

	p := pipeline.New(pipeline.Config{
		Workers:   cfg.SubmitWorkers,
		QueueSize: cfg.SubmitQueueSize,
		MessageXP: cfg.MessageXP,
		VoiceXP:   cfg.VoiceXP,
	}, buffer.New(vol.Store, cfg.BufferTTLDuration()), cooldown.NewGate(vol.Store), rawQueue, configs, activity, tel.Metrics)

	partitions := partition.NewManager(partition.NewPostgresCatalog(database, "server-"+uuid.NewString()), tel.Metrics)
	statsSvc := stats.NewService(activity, leveling, partitions)

	health := healthhandler.NewServer(map[string]healthhandler.Pinger{
		"postgres": database,
		"volatile": healthhandler.PingFunc(vol.Store.Ping),
	}, "activity")
	go health.Run(ctx, healthhandler.DefaultProbeInterval)

	router := server.NewRouter(health.Serving,
		activityhandler.NewHandler(p),
		statshandler.NewHandler(statsSvc),
		guildconfighandler.NewHandler(configs),
	)
	httpServer := server.NewHTTPServer(cfg.HTTPAddr, router)
	go func() {
		log.Printf("http: listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: serve: %v", err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	grpcServer := server.NewGRPCServer()
	server.RegisterServices(grpcServer, server.Deps{Health: health, Reflection: cfg.Env != "production"})
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	health.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http: shutdown: %v", err)
	}
	grpcServer.GracefulStop()
	cancel()

	// Stop accepting events, then apply whatever is already in the shards.
	p.Close()
	if n := p.Dropped(); n > 0 {
		log.Printf("pipeline: %d events dropped since start", n)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry: shutdown: %v", err)
	}
	log.Println("server stopped")
}
