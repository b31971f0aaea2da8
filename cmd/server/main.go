package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackbelt-platform/core/config"
	"github.com/blackbelt-platform/core/internal/health"
	"github.com/blackbelt-platform/core/internal/infrastructure/postgres"
	"github.com/blackbelt-platform/core/internal/infrastructure/redis"
	applog "github.com/blackbelt-platform/core/internal/log"
	"github.com/blackbelt-platform/core/internal/metrics"
	"github.com/blackbelt-platform/core/internal/notify"
	httptransport "github.com/blackbelt-platform/core/internal/transport/http"
	"github.com/blackbelt-platform/core/internal/transport/http/handler"
	"github.com/blackbelt-platform/core/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := applog.New(os.Stdout, cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool); err != nil {
			stop()
			log.Fatalf("migrate: %v", err)
		}
		logger.Info("migrations applied")
	}

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	if cfg.RedisURL != "" {
		lease, err := redis.NewLease(ctx, cfg.RedisURL, logger)
		if err != nil {
			stop()
			log.Fatalf("redis: %v", err)
		}
		defer lease.Close()
		checker.Add("redis", lease)
	}

	sender := notify.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, cfg.NotifyWebhookURL, logger)

	// Auth
	userRepo := postgres.NewUserRepository(pool)
	tokenRepo := postgres.NewTokenRepository(pool)
	authUsecase := usecase.NewAuthUsecase(userRepo, tokenRepo, sender, []byte(cfg.JWTSecret), cfg.SessionTTL, cfg.AppBaseURL, logger)

	// Invitations and reminders
	invitationRepo := postgres.NewInvitationRepository(pool, logger)
	reminderRepo := postgres.NewReminderRepository(pool)
	invitationUsecase := usecase.NewInvitationUsecase(invitationRepo, sender, cfg.AppBaseURL, logger)
	reminderUsecase := usecase.NewReminderUsecase(invitationRepo, reminderRepo, sender, cfg.AppBaseURL, logger)

	router := httptransport.NewRouter(logger, authUsecase, httptransport.Handlers{
		Auth:        handler.NewAuthHandler(authUsecase, logger),
		Users:       handler.NewUserHandler(authUsecase, logger),
		Invitations: handler.NewInvitationHandler(invitationUsecase, reminderUsecase, logger),
	})

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}
