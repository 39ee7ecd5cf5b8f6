package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"voice-agent-platform/internal/httpapi"
	"voice-agent-platform/internal/rbac"
	"voice-agent-platform/internal/voice"
	"voice-agent-platform/pkg/utils"
)

type registerDeps struct {
	db     *sql.DB
	rdb    *redis.Client
	authMW gin.HandlerFunc
	voice  *voice.Handlers
	api    httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps registerDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"postgres": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := utils.PingPostgres(ctx, deps.db, 2*time.Second); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := deps.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, checks)
	})

	// Provider webhooks. Signature validation happens inside the handlers
	// so that 403s are indistinguishable across routes.
	wh := r.Group("/webhooks/voice")
	{
		wh.POST("/events", deps.voice.Events())
		wh.POST("/init", deps.voice.Answer())
		wh.POST("/process", deps.voice.Process())
		wh.POST("/end", deps.voice.End())
		wh.POST("/transfer", deps.voice.Transfer())
	}

	// Token issuance is public; everything else under /v1 requires a token.
	r.POST("/v1/auth/login", deps.api.Login)

	v1 := r.Group("/v1")
	v1.Use(deps.authMW, rbac.RequireTenant())
	{
		v1.POST("/voice/call/initiate", deps.voice.Initiate)

		sessions := v1.Group("/voice/sessions")
		sessions.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleMember, rbac.RoleAnalyst))
		{
			sessions.GET("", deps.api.ListSessions)
			sessions.GET("/:session_id", deps.api.GetSession)
			sessions.GET("/:session_id/stats", deps.api.GetSessionStats)
		}
	}
}
