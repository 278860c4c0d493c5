package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"hermes/internal/adapters/config"
	"hermes/internal/adapters/errors/noop"
	"hermes/internal/adapters/errors/sentry"
	kafkaadapter "hermes/internal/adapters/kafka"
	"hermes/internal/adapters/postgres"
	redisadapter "hermes/internal/adapters/redis"
	"hermes/internal/consumers"
	"hermes/internal/metrics"
	"hermes/internal/registry"
	"hermes/internal/services/accounting"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Databases
	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pgClient.Close()

	redisClient, err := redisadapter.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Accounting engine
	reg := registry.NewDBRegistry(pgClient.DB())
	snapshots := redisadapter.NewSnapshotStore(
		redisClient,
		time.Duration(cfg.Trading.SnapshotTTLHours)*time.Hour,
	)
	producer := kafkaadapter.NewProducer(kafkaadapter.ProducerConfig{Brokers: cfg.Kafka.Brokers})
	defer producer.Close()

	svc := accounting.NewService(reg, snapshots, producer, accounting.Config{
		StopLossPct:  cfg.Trading.StopLoss(),
		TrailingStop: cfg.Trading.TrailingStop,
		FeeOpen:      decimal.NewFromFloat(cfg.Trading.FeeOpen),
		FeeClose:     decimal.NewFromFloat(cfg.Trading.FeeClose),
		InterestRate: decimal.NewFromFloat(cfg.Trading.InterestRate),
	}, log)

	// Metrics
	if cfg.Metrics.Enabled {
		metrics.Init()
		prometheus.MustRegister(metrics.NewAccountingCollector(log, pgClient.DB(), redisClient.Client()))
		startMetricsServer(cfg.Metrics.Addr, log)
	}

	log.Info("System initialized successfully")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consumers
	fillConsumer := consumers.NewFillConsumer(
		newConsumer(cfg, kafkaadapter.TopicOrderFills), svc, log,
	)
	defer fillConsumer.Close()

	stopConsumer := consumers.NewStopConsumer(
		newConsumer(cfg, kafkaadapter.TopicStopUpdates), svc, log,
	)
	defer stopConsumer.Close()

	go func() {
		if err := fillConsumer.Start(ctx); err != nil && err != context.Canceled {
			log.Errorf("Fill consumer stopped: %v", err)
		}
	}()
	go func() {
		if err := stopConsumer.Start(ctx); err != nil && err != context.Canceled {
			log.Errorf("Stop consumer stopped: %v", err)
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

func newConsumer(cfg *config.Config, topic string) *kafkaadapter.Consumer {
	return kafkaadapter.NewConsumer(kafkaadapter.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   topic,
	})
}

// startMetricsServer exposes the Prometheus endpoint
func startMetricsServer(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	go func() {
		log.Infof("Metrics server listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server stopped: %v", err)
		}
	}()
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	cancel()

	// Flush error tracker
	if errorTracker != nil {
		if err := errorTracker.Flush(ctx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
