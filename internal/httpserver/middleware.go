package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"milestone-service/internal/workflow"
	"milestone-service/pkg/trace"
	"milestone-service/pkg/util"
)

const actorKey = "actor"

// AuthMiddleware authenticates the bearer token and stores the caller's
// identity and role for the handlers.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		role := workflow.Role(claims.Role)
		if !workflow.IsValidRole(role) {
			c.JSON(http.StatusForbidden, gin.H{"error": "unknown role"})
			c.Abort()
			return
		}

		c.Set(actorKey, workflow.Actor{ID: claims.UserID, Role: role})
		c.Next()
	}
}

// ActorFromContext returns the authenticated actor stored by AuthMiddleware.
func ActorFromContext(c *gin.Context) (workflow.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return workflow.Actor{}, false
	}
	actor, ok := v.(workflow.Actor)
	return actor, ok
}

// TraceMiddleware propagates the inbound trace id, minting one when the
// caller did not send it, and echoes it on the response.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName)
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}

		ctx := trace.WithContext(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(trace.HeaderName, traceID)

		c.Next()
	}
}

// RequireRole gates a route group to one role, on top of AuthMiddleware.
func RequireRole(role workflow.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			c.Abort()
			return
		}
		if actor.Role != role {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			c.Abort()
			return
		}
		c.Next()
	}
}
