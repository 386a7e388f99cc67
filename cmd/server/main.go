package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aqi-pipeline/internal/anomaly"
	"aqi-pipeline/internal/api"
	"aqi-pipeline/internal/collector"
	"aqi-pipeline/internal/config"
	"aqi-pipeline/internal/forecast"
	"aqi-pipeline/internal/pipeline"
	"aqi-pipeline/internal/scheduler"
	"aqi-pipeline/internal/store"
	"aqi-pipeline/pkg/client"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting Air Quality Pipeline Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: Postgres when DATABASE_URL is set, in-memory otherwise
	st, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer cleanup()

	// Open-Meteo client with retries and circuit breaker
	meteo := client.NewOpenMeteoClientWithURLs(
		cfg.OpenMeteo.WeatherURL,
		cfg.OpenMeteo.PollutantURL,
		client.ClientConfig{
			Timeout:        cfg.Server.ReadTimeout,
			MaxRetries:     cfg.Retry.MaxRetries,
			RetryDelay:     cfg.Retry.Delay,
			Multiplier:     cfg.Retry.Multiplier,
			BreakerTimeout: cfg.CircuitBreaker.Timeout,
		},
		logger,
	)

	// Pipeline stages
	col := collector.New(meteo, st, logger)
	adapter := forecast.NewAdapter(forecast.Config{
		ModelsDir: cfg.Forecast.ModelsDir,
		MinRows:   cfg.Forecast.MinRows,
		Window:    cfg.Forecast.Window,
	}, logger)
	detector := anomaly.New(anomaly.Config{
		Threshold:     cfg.Anomaly.Threshold,
		MinPoints:     cfg.Anomaly.MinPoints,
		AbsoluteLimit: cfg.Anomaly.AbsoluteLimit,
	}, logger)
	pipe := pipeline.New(pipeline.Config{
		Cities:         cfg.Scheduler.Cities,
		Lookback:       cfg.Pipeline.Lookback,
		BaselinePoints: cfg.Pipeline.BaselinePoints,
	}, col, st, adapter, detector, logger)

	// Scheduler
	sched := scheduler.NewScheduler(pipe, logger)
	if err := sched.Start(ctx, cfg.Scheduler.CronSpec); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: errorHandler,
	})

	// Setup handlers and routes
	cache := api.NewResultCache(cfg.Cache.Duration, logger)
	handler := api.NewHandler(st, cache, cfg.Scheduler.Cities, logger)
	api.SetupRoutes(app, handler, logger)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop scheduler
	sched.Stop()

	// Shutdown Fiber app
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	pg := store.NewPostgres(pool)
	if err := pg.RunMigrations(ctx, cfg.Database.MigrationsDir); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("Connected to database")
	return pg, pool.Close, nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	zap.L().Error("HTTP error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))

	// Default to 500 status code
	code := fiber.StatusInternalServerError

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   err.Error(),
		"success": false,
	})
}
