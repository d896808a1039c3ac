/**
 * @description
 * Entry point for the payments service.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookline/payments-service/internal/api"
	"github.com/bookline/payments-service/internal/app"
	"github.com/bookline/payments-service/internal/config"
	"github.com/bookline/payments-service/internal/store"
	"github.com/bookline/payments-service/pkg/gatewayclient"
	"github.com/bookline/payments-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 100
	pgConfig.MinConns = 20
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	repository := store.NewRepository(dbpool)
	gateway := gatewayclient.NewClient(cfg.PaymentGatewayURL, cfg.PaymentGatewayAPIKey)

	var publisher app.EventPublisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}

	policies := app.Policies{
		FeePolicy:                app.FlatPercentPolicy(cfg.PlatformFeePercent),
		DefaultSessionRate:       cfg.DefaultSessionRate,
		MaxChargeAttempts:        cfg.MaxChargeAttempts,
		RetryBackoff:             time.Duration(cfg.RetryBackoffHours) * time.Hour,
		StuckProcessingThreshold: time.Duration(cfg.StuckProcessingThresholdMinutes) * time.Minute,
	}

	service := app.NewService(repository, gateway, publisher, logger, policies)
	handler := api.NewHandler(service, logger)
	router := api.NewRouter(handler, cfg.JWKSURL, cfg.InternalAPIKey)

	scheduler := app.NewScheduler(service, logger, cfg.PaymentRunSchedule, cfg.ReclaimJobSchedule)
	scheduler.Start()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	// Wait for any in-flight cron jobs before exiting.
	<-scheduler.Stop().Done()

	logger.Info("server stopped")
}
