// strym ingestion and streaming server — accepts log events over HTTP,
// serves queries and stats, and streams live events over WebSocket.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/strym-io/strym/pkg/api"
	"github.com/strym-io/strym/pkg/cache"
	"github.com/strym-io/strym/pkg/config"
	"github.com/strym-io/strym/pkg/database"
	"github.com/strym-io/strym/pkg/repository"
	"github.com/strym-io/strym/pkg/services"
	"github.com/strym-io/strym/pkg/stream"
	"github.com/strym-io/strym/pkg/version"
)

func main() {
	// Load .env if present; production supplies real environment variables.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.SetupLogging()

	slog.Info("Starting strym",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"debug", cfg.Debug)

	ctx := context.Background()

	// 2. Connect to PostgreSQL (runs embedded migrations)
	dbClient, err := database.NewClient(ctx, database.NewConfig(cfg.DatabaseURL, cfg.DatabasePoolSize))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()
	slog.Info("Connected to Redis")

	// 4. Initialize streaming infrastructure
	registry := stream.NewRegistry(5*time.Second, 30*time.Second)
	listener := stream.NewListener(rdb, registry)
	if err := listener.Start(ctx); err != nil {
		slog.Error("Failed to start event bus listener", "error", err)
		os.Exit(1)
	}
	publisher := stream.NewPublisher(rdb, registry)
	slog.Info("Streaming infrastructure initialized")

	// 5. Initialize services
	queryCache := cache.New(rdb)
	logRepo := repository.NewLogRepository(dbClient.DB())
	statsRepo := repository.NewStatsRepository(dbClient.DB())

	ingestService := services.NewIngestionService(logRepo, queryCache, publisher)
	queryService := services.NewQueryService(logRepo, queryCache)
	statsService := services.NewStatsService(statsRepo)
	slog.Info("Services initialized")

	// 6. Create and start the HTTP server (non-blocking)
	httpServer := api.NewServer(&cfg, dbClient, queryCache,
		ingestService, queryService, statsService, registry)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("strym started successfully")

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: drain HTTP first so no new events arrive,
	// then stop the bus listener.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	listenerCtx, listenerCancel := context.WithTimeout(ctx, 5*time.Second)
	defer listenerCancel()
	listener.Stop(listenerCtx)

	slog.Info("Shutdown complete")
}
