package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/diagnosis/agency-portal/pkg/config"
	"github.com/diagnosis/agency-portal/pkg/logger"
	mw "github.com/diagnosis/agency-portal/pkg/middleware"
	"github.com/diagnosis/agency-portal/services/gateway/internal/handlers"
	"github.com/diagnosis/agency-portal/services/gateway/internal/proxy"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.Load()

	var (
		paymentsBaseURL   = getServiceURL("PAYMENTS_SERVICE_URL", "http://localhost:8085")
		onboardingBaseURL = getServiceURL("ONBOARDING_SERVICE_URL", "http://localhost:8082")
	)

	h := handlers.New(
		proxy.NewServiceProxy("payments", paymentsBaseURL),
		proxy.NewServiceProxy("onboarding", onboardingBaseURL),
		cfg.Auth.JWTSecret,
	)

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("gateway"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(mw.Health)

	h.Mount(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gateway service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Gateway shutdown error", "error", err)
		}
	}()

	logger.Info("Starting gateway service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Gateway server error", "error", err)
		os.Exit(1)
	}
}

func getServiceURL(envKey, fallback string) string {
	if url := os.Getenv(envKey); url != "" {
		return strings.TrimRight(url, "/")
	}
	return fallback
}

// allowedOrigins reads CORS_ALLOWED_ORIGINS as a comma separated list.
func allowedOrigins() []string {
	raw := os.Getenv("CORS_ALLOWED_ORIGINS")
	if raw == "" {
		return []string{"http://localhost:5173", "http://localhost:3000"}
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
