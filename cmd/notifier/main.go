package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/config"
	"milestone-service/internal/mqhandler"
	"milestone-service/internal/repository"
	"milestone-service/pkg/db"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/mq"
	"milestone-service/pkg/redis"
	"milestone-service/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting milestone-notifier...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("queue", cfg.Notifier.QueueName),
		zap.String("routing_key", cfg.Notifier.RoutingKey),
	)

	log.Info("Initializing database connection...")
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redis.NewClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduperWithLogger(rdb, time.Duration(cfg.Notifier.DedupeTTLSecond)*time.Second, log)

	projectRepo := repository.NewProjectRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, log)

	transitionedHandler := mqhandler.NewMilestoneTransitionedHandler(projectRepo, notificationRepo, deduper, log)

	log.Info("Initializing MQ consumer...",
		zap.String("queue", cfg.Notifier.QueueName),
		zap.String("routing_key", cfg.Notifier.RoutingKey),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.Notifier.QueueName, cfg.Notifier.RoutingKey, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Stop()

	consumer.SetHandler(transitionedHandler.Handle)

	go func() {
		log.Info("Starting milestone event consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Milestone consumer failed", zap.Error(err))
		}
	}()

	// Minimal health surface for the orchestrator.
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := dbConn.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		if !consumer.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Info("Health server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Health server failed", zap.Error(err))
		}
	}()

	log.Info("milestone-notifier is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down milestone-notifier gracefully...")

	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Health server shutdown error", zap.Error(err))
	}

	dbConn.Close()

	log.Info("milestone-notifier shutdown complete")
}
