package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/caresync/internal/config"
	"github.com/prudhvinik1/caresync/internal/database"
	"github.com/prudhvinik1/caresync/internal/logging"
	"github.com/prudhvinik1/caresync/internal/repositories"
	"github.com/prudhvinik1/caresync/internal/services"
	"github.com/prudhvinik1/caresync/internal/transport"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	slog.SetDefault(logger)

	// Redis carries outbound messages and presence for every backend
	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	var kv repositories.KVStore
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			log.Fatalf("Failed to create postgres pool: %v", err)
		}
		defer postgresPool.Close()

		postgresKV := repositories.NewPostgresKVStore(postgresPool)
		if err := postgresKV.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare postgres schema: %v", err)
		}
		kv = postgresKV
	case config.BackendMemory:
		kv = repositories.NewMemoryKVStore()
	default:
		kv = repositories.NewRedisKVStore(redisClient)
	}

	// Sync and reset wiring
	store := repositories.NewJSONEventStore(kv, logging.Component(logger, "store"))
	resetState := &services.ResetState{}

	engine := services.NewSyncEngine(store, resetState, logging.Component(logger, "sync"))
	if err := engine.Start(ctx); err != nil {
		log.Fatalf("Failed to start sync engine: %v", err)
	}

	sender := transport.NewRedisSender(redisClient, cfg.DeviceChannel)
	resets := services.NewResetCoordinator(engine, sender, resetState,
		logging.Component(logger, "reset"),
		services.WithRetryInterval(cfg.ResetRetryInterval),
		services.WithSendTimeout(cfg.SendTimeout),
	)

	var presenceRepo repositories.PresenceRepository = repositories.NewRedisPresenceRepository(redisClient)
	dispatcher := services.NewDispatcher(engine, resets, presenceRepo, logging.Component(logger, "dispatch"))

	var tokens *services.TokenService
	if cfg.JWTSecret != "" {
		tokens = services.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	} else {
		logger.Warn("JWT_SECRET not set, device messages are not authenticated")
	}

	handler := transport.NewHandler(dispatcher, tokens, presenceRepo, cfg.ConfigPageURL, logging.Component(logger, "http"))

	// Start Server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler.Routes(),
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Info("starting server", "port", cfg.ServerPort, "store", cfg.StoreBackend)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	logger.Info("server stopped gracefully")
}
