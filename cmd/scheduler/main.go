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
	"github.com/blackbelt-platform/core/internal/scheduler"
	"github.com/blackbelt-platform/core/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := applog.New(os.Stdout, cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	metrics.SchedulerStartTime.SetToCurrentTime()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	// Without Redis every replica runs the pass; row locks still keep each
	// reminder to one send.
	var locker scheduler.Locker
	if cfg.RedisURL != "" {
		lease, err := redis.NewLease(ctx, cfg.RedisURL, logger)
		if err != nil {
			stop()
			log.Fatalf("redis: %v", err)
		}
		defer lease.Close()
		checker.Add("redis", lease)
		locker = lease
	}

	sender := notify.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, cfg.NotifyWebhookURL, logger)

	invitationRepo := postgres.NewInvitationRepository(pool, logger)
	reminderRepo := postgres.NewReminderRepository(pool)
	tokenRepo := postgres.NewTokenRepository(pool)

	reminders := usecase.NewReminderUsecase(invitationRepo, reminderRepo, sender, cfg.AppBaseURL, logger)
	pass := scheduler.NewPass(invitationRepo, reminders, logger, cfg.WorkerCount)
	trigger := scheduler.NewTrigger(pass, locker, cfg.ReminderCron, logger)

	if cfg.RunOnce {
		trigger.Fire(ctx)
		scheduler.NewSweeper(tokenRepo, logger, cfg.SweepInterval()).Sweep(ctx)
		stop()
		logger.Info("single pass complete")
		return
	}

	sweeper := scheduler.NewSweeper(tokenRepo, logger, cfg.SweepInterval())
	go sweeper.Start(ctx)

	triggerDone := make(chan struct{})
	go func() {
		defer close(triggerDone)
		if err := trigger.Start(ctx); err != nil {
			logger.Error("trigger", "error", err)
			stop()
		}
	}()

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	<-triggerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}
