// Command pipeline runs a single collection and scoring cycle and exits.
// Exit code is nonzero when any result row failed to persist, so external
// schedulers can alert on lost data.
package main

import (
	"context"
	"os"
	"time"

	"aqi-pipeline/internal/anomaly"
	"aqi-pipeline/internal/collector"
	"aqi-pipeline/internal/config"
	"aqi-pipeline/internal/forecast"
	"aqi-pipeline/internal/pipeline"
	"aqi-pipeline/internal/store"
	"aqi-pipeline/pkg/client"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting one-shot pipeline run")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Database.URL == "" {
		logger.Fatal("DATABASE_URL is required for batch runs")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	pg := store.NewPostgres(pool)
	if err := pg.RunMigrations(ctx, cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

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

	pipe := pipeline.New(pipeline.Config{
		Cities:         cfg.Scheduler.Cities,
		Lookback:       cfg.Pipeline.Lookback,
		BaselinePoints: cfg.Pipeline.BaselinePoints,
	},
		collector.New(meteo, pg, logger),
		pg,
		forecast.NewAdapter(forecast.Config{
			ModelsDir: cfg.Forecast.ModelsDir,
			MinRows:   cfg.Forecast.MinRows,
			Window:    cfg.Forecast.Window,
		}, logger),
		anomaly.New(anomaly.Config{
			Threshold:     cfg.Anomaly.Threshold,
			MinPoints:     cfg.Anomaly.MinPoints,
			AbsoluteLimit: cfg.Anomaly.AbsoluteLimit,
		}, logger),
		logger,
	)

	if err := pipe.Run(ctx); err != nil {
		logger.Error("Pipeline run failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
