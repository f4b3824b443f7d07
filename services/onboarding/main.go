package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/agency-portal/pkg/approval"
	"github.com/diagnosis/agency-portal/pkg/config"
	"github.com/diagnosis/agency-portal/pkg/database"
	"github.com/diagnosis/agency-portal/pkg/events"
	"github.com/diagnosis/agency-portal/pkg/logger"
	mw "github.com/diagnosis/agency-portal/pkg/middleware"
	"github.com/diagnosis/agency-portal/pkg/ratelimit"
	"github.com/diagnosis/agency-portal/pkg/store"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/handlers"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/repository"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/service"
	"github.com/go-chi/chi/v5"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if cfg.Approval.UsingDevSecret() {
		logger.Warn("TOKEN_SECRET_KEY is not set, approval links are signed with the development key")
	}
	if cfg.Auth.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH is not set, admin login is disabled")
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := store.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "onboarding")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	submissionRepo := repository.NewSubmissionRepository(pool)
	proposalStore := repository.NewRedisProposalStore(rdb)
	limiter := ratelimit.NewPostgresLimiter(pool, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	tokens := approval.NewService(cfg.Approval.TokenSecret)
	onboardingService := service.NewOnboardingService(submissionRepo, eventBus)
	adminService := service.NewAdminService(cfg.Auth)
	approvalService := service.NewApprovalService(tokens, proposalStore, submissionRepo, eventBus, cfg.Approval.PublicBaseURL, cfg.Stripe.Currency)

	h := handlers.New(onboardingService, adminService, approvalService, cfg.Auth.JWTSecret)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("onboarding"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(mw.Health)

	h.Mount(r, limiter)

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	go cleanupRateLimits(cleanupCtx, limiter, cfg.RateLimit.Window)

	srv := &http.Server{
		Addr:         ":8082",
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down onboarding service...")
		stopCleanup()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Onboarding service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting onboarding service", "port", "8082")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Onboarding service error", "error", err)
		os.Exit(1)
	}
}

func cleanupRateLimits(ctx context.Context, limiter *ratelimit.PostgresLimiter, every time.Duration) {
	if every < time.Minute {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := limiter.CleanupExpired(ctx)
			if err != nil {
				logger.Error("Rate limit cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("Rate limit rows cleaned", "deleted", n)
			}
		}
	}
}
