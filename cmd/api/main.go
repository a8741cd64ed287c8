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

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"voiceline-platform/internal/audit"
	"voiceline-platform/internal/auth"
	"voiceline-platform/internal/calls"
	"voiceline-platform/internal/config"
	"voiceline-platform/internal/httpapi"
	"voiceline-platform/internal/livekit"
	"voiceline-platform/internal/numbers"
	"voiceline-platform/internal/projects"
	"voiceline-platform/internal/provisioning"
	"voiceline-platform/internal/telnyx"
	"voiceline-platform/pkg/logger"
	"voiceline-platform/pkg/utils"
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

	orchestrator := provisioning.NewService(provisioning.Deps{
		Numbers:   numbers.NewPostgresStore(db),
		Projects:  projects.NewPostgresStore(db),
		Calls:     calls.NewPostgresStore(db),
		Audit:     audit.NewService(audit.NewPostgresRepo(db)),
		Telephony: telnyx.NewClient(cfg.Telnyx),
		Media:     livekit.NewClient(cfg.LiveKit),
		Locker:    provisioning.NewRedisLocker(rdb),
		Logger:    log,
		SIPHost:   cfg.Telnyx.SIPHost,
		AgentName: cfg.LiveKit.AgentName,
	})

	handlers := httpapi.Handlers{
		Auth:         authManager,
		Provisioning: orchestrator,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, auth.RequireAccessToken(authManager), db)

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

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
