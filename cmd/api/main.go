package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/callsession"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/conversation"
	"voice-agent-platform/internal/httpapi"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/internal/voice"
	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	adapter, err := conversation.NewOpenAIAdapter(cfg.OpenAI)
	if err != nil {
		log.Error("model adapter init failed", "err", err)
		os.Exit(1)
	}

	sessionStore := callsession.NewPostgresStore(db)
	agentRepo := agents.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	processor := conversation.NewProcessor(sessionStore, adapter, cfg.Voice)
	builder := telephony.NewBuilder(cfg.Voice.GatherTimeoutSeconds)
	provider := telephony.NewTwilioProvider(cfg.Twilio)
	locker := voice.NewRedisSessionLocker(rdb)

	// Bad provider credentials only surface on the first outbound call
	// otherwise, so verify them now. Outages are not fatal at boot.
	checkCtx, cancelCheck := context.WithTimeout(rootCtx, 5*time.Second)
	if err := provider.HealthCheck(checkCtx); err != nil {
		log.Warn("telephony provider check failed", "provider", provider.Name(), "err", err)
	}
	cancelCheck()

	dispatcher := voice.NewDispatcher(sessionStore, agentRepo, processor, builder, locker, auditSvc, cfg.App.PublicBaseURL)
	initiator := voice.NewInitiator(provider, agentRepo, sessionStore, auditSvc, cfg.Twilio.PhoneNumber, cfg.App.PublicBaseURL)

	voiceHandlers := voice.NewHandlers(dispatcher, initiator, authManager, cfg.Twilio, cfg.App.PublicBaseURL)
	apiHandlers := httpapi.Handlers{Auth: authManager, Store: sessionStore}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, registerDeps{
		db:     db,
		rdb:    rdb,
		authMW: auth.RequireAccessToken(authManager),
		voice:  voiceHandlers,
		api:    apiHandlers,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
