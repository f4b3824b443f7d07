package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/agency-portal/pkg/config"
	"github.com/diagnosis/agency-portal/pkg/crm"
	"github.com/diagnosis/agency-portal/pkg/events"
	"github.com/diagnosis/agency-portal/pkg/logger"
	"github.com/diagnosis/agency-portal/pkg/mailer"
	mw "github.com/diagnosis/agency-portal/pkg/middleware"
	"github.com/diagnosis/agency-portal/pkg/whatsapp"
	"github.com/diagnosis/agency-portal/services/notify/internal/dispatcher"
	"github.com/go-chi/chi/v5"
)

const handleTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "notify")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	d := dispatcher.New(
		mailer.New(cfg.Email),
		whatsapp.New(cfg.WhatsApp),
		crm.New(cfg.CRM),
		dispatcher.Config{
			AdminEmail:    cfg.Email.AdminEmail,
			PublicBaseURL: cfg.Approval.PublicBaseURL,
		},
	)

	for _, subject := range events.Subjects {
		if err := eventBus.QueueSubscribe(subject, cfg.NATS.Queue, func(msg *events.Message) {
			ctx := context.WithValue(context.Background(), logger.ServiceKey, "notify")
			ctx = context.WithValue(ctx, logger.RequestIDKey, msg.ID)
			ctx, cancel := context.WithTimeout(ctx, handleTimeout)
			defer cancel()

			if err := d.Handle(ctx, msg); err != nil {
				logger.ErrorContext(ctx, "Event handled with errors", "subject", msg.Subject, "error", err)
			}
		}); err != nil {
			logger.Error("Failed to subscribe", "subject", subject, "error", err)
			os.Exit(1)
		}
		logger.Info("Subscribed", "subject", subject, "queue", cfg.NATS.Queue)
	}

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Health)

	srv := &http.Server{
		Addr:         ":8086",
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down notify service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Notify service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting notify service", "port", "8086")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Notify service error", "error", err)
		os.Exit(1)
	}
}
