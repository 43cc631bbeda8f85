package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"milestone-service/internal/config"
	"milestone-service/internal/escrow"
	"milestone-service/internal/handler"
	"milestone-service/internal/httpserver"
	"milestone-service/internal/repository"
	milestonesvc "milestone-service/internal/service/milestone"
	"milestone-service/pkg/db"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/mq"
	"milestone-service/pkg/outbox"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting milestone-service...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("escrow_base_url", cfg.Escrow.BaseURL),
	)

	log.Info("Initializing database connection...")
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	log.Info("Initializing MQ publisher...")
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Outbox dispatcher drains committed events to the broker.
	outboxRepo := outbox.NewRepository(dbConn)
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithMaxRetries(cfg.Outbox.MaxRetries).
		WithInterval(time.Duration(cfg.Outbox.IntervalSeconds) * time.Second).
		WithBatchSize(cfg.Outbox.BatchSize)

	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()
	go dispatcher.Start(dispatcherCtx)
	log.Info("Outbox dispatcher started",
		zap.Int("max_retries", cfg.Outbox.MaxRetries),
		zap.Int("interval_seconds", cfg.Outbox.IntervalSeconds),
	)

	milestoneRepo := repository.NewMilestoneRepository(dbConn, log)
	projectRepo := repository.NewProjectRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, log)

	ledger := escrow.NewClient(cfg.Escrow.BaseURL, time.Duration(cfg.Escrow.TimeoutSeconds)*time.Second)

	svc := milestonesvc.NewService(milestoneRepo, projectRepo, ledger, log)

	milestoneHandler := handler.NewMilestoneHandler(svc, log)
	notificationHandler := handler.NewNotificationHandler(notificationRepo, log)
	adminHandler := handler.NewAdminHandler(outbox.NewReplayService(outboxRepo, publisher), log)

	router := httpserver.NewRouter(
		milestoneHandler,
		notificationHandler,
		adminHandler,
		cfg.JWT.Secret,
		log,
		dbConn,
		publisher,
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("milestone-service is fully initialized and running",
		zap.String("http_port", cfg.Server.Port),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down milestone-service gracefully...")

	dispatcherCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("Closing database connection...")
	dbConn.Close()

	log.Info("milestone-service shutdown complete")
}
