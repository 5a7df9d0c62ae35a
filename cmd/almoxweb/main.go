package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/almoxweb/almoxweb/internal/app"
	"github.com/almoxweb/almoxweb/internal/audit"
	"github.com/almoxweb/almoxweb/internal/auth"
	"github.com/almoxweb/almoxweb/internal/credential"
	"github.com/almoxweb/almoxweb/internal/httpapi"
	"github.com/almoxweb/almoxweb/internal/observability"
	"github.com/almoxweb/almoxweb/internal/permissions"
	"github.com/almoxweb/almoxweb/internal/sessions"
	"github.com/almoxweb/almoxweb/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	hasher := credential.NewHasher(cfg.BcryptCost)
	directory := users.NewDirectory(
		users.NewRepository(dbpool),
		hasher,
		users.PasswordPolicy{MinLength: cfg.PasswordMinLength},
	)

	sessionCache := sessions.NewCache(redisClient, cfg.SessionCacheTTL)
	sessionStore := sessions.NewStore(sessions.NewRepository(dbpool), sessionCache, cfg.SessionTTL, logger)

	engine := permissions.NewEngine(permissions.NewRepository(dbpool), permissions.DefaultRolePolicy())

	trail := audit.NewLog(audit.NewRepository(dbpool), logger, metrics, cfg.AuditQueryLimit)

	service := auth.NewService(directory, sessionStore, engine, trail, logger, metrics)
	api := httpapi.NewHandler(logger, service, app.LoginRateLimit(cfg))

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		API:     api,
		Metrics: metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
