package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"allhall/internal/config"
	"allhall/internal/database"
	"allhall/internal/logger"
	"allhall/internal/server"
	"allhall/internal/tracing"

	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *server.Server, logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// Open event streams only end when their clients go away, so shutdown
	// gets a bounded wait before connections are dropped.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")
	done <- true
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	if err := run(context.Background(), cfg, log, os.Stdout); err != nil {
		log.Error("AllHall API stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

// run starts the API and blocks until it shuts down. Deferred cleanup, trace
// flushing included, runs on every return path.
func run(ctx context.Context, cfg *config.Config, log *zap.Logger, traceOut io.Writer) error {
	if cfg.JWT.Secret == "" {
		return errors.New("JWT_SECRET must be set")
	}

	log.Info("Starting AllHall API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(cfg.Tracing.ServiceName, traceOut)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Error("Failed to flush traces", zap.Error(err))
			}
		}()
	}

	startCtx, span := tracing.StartSpan(ctx, "startup")
	srv, err := start(startCtx, cfg, log)
	span.End()
	if err != nil {
		return err
	}

	done := make(chan bool, 1)
	go gracefulShutdown(srv, log, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = srv.Close()
		return fmt.Errorf("http server: %w", err)
	}

	<-done
	log.Info("Graceful shutdown complete")
	return nil
}

func start(ctx context.Context, cfg *config.Config, log *zap.Logger) (*server.Server, error) {
	dbService, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	log.Info("Database health check", zap.Any("health", dbService.Health()))

	if err := database.RunMigrations(ctx, dbService.DB(), "migrations", log); err != nil {
		_ = dbService.Close()
		return nil, err
	}
	log.Info("Database migrations completed successfully")

	srv, err := server.NewServer(ctx, cfg, log, dbService)
	if err != nil {
		_ = dbService.Close()
		return nil, fmt.Errorf("failed to build server: %w", err)
	}
	return srv, nil
}
