package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/smart-survey/internal/config"
	"github.com/benvon/smart-survey/internal/database"
	"github.com/benvon/smart-survey/internal/logger"
	"github.com/benvon/smart-survey/internal/queue"
	"github.com/benvon/smart-survey/internal/submission"
	"github.com/benvon/smart-survey/internal/workers"
	"go.uber.org/zap"
)

const dlqSweepInterval = time.Hour

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(cfg.Environment, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	if cfg.RabbitMQURL == "" {
		zapLogger.Fatal("rabbitmq_url_required", zap.String("variable", "RABBITMQ_URL"))
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Duration("reconcile_interval", cfg.ReconcileInterval),
		zap.Duration("dlq_retention", cfg.DLQRetention),
	)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	resultRepo := database.NewResultRepository(db)
	logRepo := database.NewLogRepository(db)
	imageRatingRepo := database.NewImageRatingRepository(db)
	imageDropoutRepo := database.NewImageDropoutRepository(db)

	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	propagator := workers.NewEmailPropagator(logRepo, imageRatingRepo, imageDropoutRepo, zapLogger)
	processor := workers.NewJobProcessor(propagator, jobQueue, zapLogger)
	reconciler := submission.NewReconciler(resultRepo, zapLogger)
	scheduler := workers.NewReconcileScheduler(reconciler, cfg.ReconcileInterval, zapLogger)
	dlqGC := queue.NewGarbageCollector(jobQueue, dlqSweepInterval, cfg.DLQRetention, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming_messages", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(ctx, msgChan, errChan)
	}()
	go scheduler.Start(ctx)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	zapLogger.Info("worker_started")

	select {
	case <-sigChan:
		zapLogger.Info("worker_shutdown_signal_received")
	case <-done:
		zapLogger.Warn("worker_consumer_stopped")
	}

	cancel()
	<-done

	zapLogger.Info("worker_stopped")
}
