package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/agency-portal/pkg/config"
	"github.com/diagnosis/agency-portal/pkg/database"
	"github.com/diagnosis/agency-portal/pkg/events"
	"github.com/diagnosis/agency-portal/pkg/logger"
	mw "github.com/diagnosis/agency-portal/pkg/middleware"
	"github.com/diagnosis/agency-portal/pkg/store"
	"github.com/diagnosis/agency-portal/services/payments/internal/handlers"
	"github.com/diagnosis/agency-portal/services/payments/internal/repository"
	"github.com/diagnosis/agency-portal/services/payments/internal/service"
	"github.com/go-chi/chi/v5"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

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

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "payments")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	var sessions service.SessionCreator
	if cfg.Stripe.SecretKey != "" {
		sessions = service.NewStripeSessions(cfg.Stripe.SecretKey, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL)
	} else {
		logger.Warn("STRIPE_SECRET_KEY is not set, checkout is disabled")
	}
	if cfg.Stripe.WebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET is not set, webhooks will be rejected")
	}

	orderRepo := repository.NewOrderRepository(pool)
	dedup := store.NewDedupStore(rdb, "stripe:event:", cfg.Stripe.DedupTTL)

	paymentService := service.NewPaymentService(orderRepo, sessions, dedup, eventBus, service.Options{
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
	})

	h := handlers.New(paymentService)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("payments"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(mw.Health)

	h.Mount(r, mw.Idempotency(store.NewIdempotencyStore(rdb)))

	srv := &http.Server{
		Addr:         ":8085",
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down payments service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Payments service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting payments service", "port", "8085")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Payments service error", "error", err)
		os.Exit(1)
	}
}
