package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/schedq/schedq/internal/api"
	"github.com/schedq/schedq/internal/codec"
	"github.com/schedq/schedq/internal/config"
	"github.com/schedq/schedq/internal/notify"
	"github.com/schedq/schedq/internal/scheduler"
	"github.com/schedq/schedq/internal/storage/sqlite"
	"github.com/schedq/schedq/internal/tasks"
)

func main() {
	// Load the dotenv if exists
	_ = godotenv.Load()

	var env config.Server
	err := envconfig.Process("", &env)
	if err != nil {
		log.Fatal("Cannot load env:", err)
	}

	// Setup structured logging
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	slog.Info("Starting scheduler server", "db_path", env.Database.Path)

	// Open the database and run migrations
	database, err := sqlite.Open(env.Database.DSN(), env.Database.MaxOpenConns)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer database.Close()

	if err := sqlite.Migrate(database); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	slog.Info("Migrations ran successfully")

	// Register payload types and build the storage layer
	jsonCodec := codec.NewJSON()
	tasks.Register(jsonCodec)

	store := sqlite.NewStore(database, jsonCodec,
		sqlite.WithRetryDelayCap(env.Scheduler.RetryDelayCap))

	// Notifications are delivered on a dedicated goroutine so subscribers
	// never run on a queue worker.
	executor := notify.NewSerialExecutor()
	defer executor.Close()

	manager := scheduler.NewManager(store, jsonCodec,
		scheduler.WithExecutor(executor))
	defer manager.Close()

	ctx := context.Background()
	for _, name := range env.Scheduler.InitialQueues {
		if err := manager.InitializeQueue(ctx, name); err != nil {
			log.Fatal("Failed to initialize queue:", err)
		}
	}
	// Recover queues persisted by earlier runs
	if err := manager.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}

	// Setup HTTP routes
	apiHandler := api.NewHandler(manager, jsonCodec)
	r := gin.Default()
	apiHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + env.ServerPort,
		Handler: r,
	}

	// Start HTTP server in goroutine
	go func() {
		slog.Info("HTTP server listening", "port", env.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error:", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down scheduler server...")

	// Shutdown HTTP server with timeout, then stop the workers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	manager.Close()

	slog.Info("Scheduler server exited gracefully")
}
