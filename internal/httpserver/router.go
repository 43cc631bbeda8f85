package httpserver

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"milestone-service/internal/handler"
	"milestone-service/internal/workflow"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/mq"
)

// NewRouter wires the milestone API. The lifecycle surface is
// command-shaped: one POST per action, the engine decides the rest.
func NewRouter(
	milestoneHandler *handler.MilestoneHandler,
	notificationHandler *handler.NotificationHandler,
	adminHandler *handler.AdminHandler,
	jwtSecret string,
	logger *zap.Logger,
	db *pgxpool.Pool,
	publisher *mq.Publisher,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())

	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status()), latency)
		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	})

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}

		if publisher != nil && !publisher.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/milestones", milestoneHandler.Propose)
		auth.GET("/milestones/:id", milestoneHandler.Get)
		auth.PATCH("/milestones/:id", milestoneHandler.Edit)
		auth.DELETE("/milestones/:id", milestoneHandler.Delete)
		auth.GET("/milestones/:id/permissions", milestoneHandler.Permissions)
		auth.GET("/projects/:project_id/milestones", milestoneHandler.ListByProject)

		auth.POST("/milestones/:id/accept", milestoneHandler.Accept())
		auth.POST("/milestones/:id/finalize", milestoneHandler.Finalize())
		auth.POST("/milestones/:id/fund", milestoneHandler.Fund())
		auth.POST("/milestones/:id/begin-work", milestoneHandler.BeginWork())
		auth.POST("/milestones/:id/submit", milestoneHandler.Submit())
		auth.POST("/milestones/:id/supervisor-approve", milestoneHandler.SupervisorApprove())
		auth.POST("/milestones/:id/supervisor-reject", milestoneHandler.SupervisorReject())
		auth.POST("/milestones/:id/approve-release", milestoneHandler.ApproveAndRelease())
		auth.POST("/milestones/:id/disapprove", milestoneHandler.Disapprove())
		auth.POST("/milestones/:id/request-changes", milestoneHandler.RequestChanges())
		auth.POST("/milestones/:id/dispute", milestoneHandler.Dispute())
		auth.POST("/milestones/:id/complete", milestoneHandler.MarkComplete())
		auth.POST("/milestones/:id/uncomplete", milestoneHandler.UnmarkComplete())

		auth.GET("/notifications", notificationHandler.List)
		auth.POST("/notifications/:id/read", notificationHandler.MarkRead)
	}

	admin := r.Group("/admin")
	admin.Use(AuthMiddleware(jwtSecret), RequireRole(workflow.RoleAdmin))
	{
		admin.POST("/outbox/replay", adminHandler.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", adminHandler.ReplayFailedEvents)
	}

	return r
}
