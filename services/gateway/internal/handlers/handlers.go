package handlers

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/diagnosis/agency-portal/pkg/auth"
	"github.com/diagnosis/agency-portal/pkg/logger"
	"github.com/diagnosis/agency-portal/pkg/response"
	"github.com/diagnosis/agency-portal/services/gateway/internal/proxy"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	paymentsProxy   *proxy.ServiceProxy
	onboardingProxy *proxy.ServiceProxy
	jwtSecret       string
}

func New(paymentsProxy, onboardingProxy *proxy.ServiceProxy, jwtSecret string) *Handlers {
	return &Handlers{
		paymentsProxy:   paymentsProxy,
		onboardingProxy: onboardingProxy,
		jwtSecret:       jwtSecret,
	}
}

// Mount registers the public /v1 API.
func (h *Handlers) Mount(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		// Payments: /v1/payments/plans -> payments:/plans
		r.Handle("/payments/*", h.Forward(h.paymentsProxy, "/v1/payments"))

		r.Post("/onboarding", h.Forward(h.onboardingProxy, "/v1"))
		r.Post("/contact", h.Forward(h.onboardingProxy, "/v1"))
		r.Handle("/approvals/*", h.Forward(h.onboardingProxy, "/v1"))

		r.Post("/admin/login", h.Forward(h.onboardingProxy, "/v1"))
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAdmin)
			r.Handle("/admin/submissions", h.Forward(h.onboardingProxy, "/v1"))
			r.Handle("/admin/submissions/*", h.Forward(h.onboardingProxy, "/v1"))
		})
	})
}

// Forward relays the request to p with stripPrefix removed from the path. The body is forwarded
// byte for byte so webhook signatures still verify downstream.
func (h *Handlers) Forward(p *proxy.ServiceProxy, stripPrefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", response.CodeInvalidInput)
				return
			}
			response.BadRequest(w, "Failed to read request body")
			return
		}
		defer r.Body.Close()

		path := strings.TrimPrefix(r.URL.Path, stripPrefix)
		if path == "" {
			path = "/"
		}
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}

		headers := make(http.Header)
		for key, values := range r.Header {
			if shouldCopyHeader(key) {
				headers[key] = values
			}
		}
		// Services rate limit on these, so only the peer the gateway saw may set them.
		peer := peerIP(r)
		headers.Set("X-Forwarded-For", peer)
		headers.Set("X-Real-IP", peer)

		resp, err := p.ProxyRequest(r.Context(), r.Method, path, body, headers)
		if err != nil {
			logger.ErrorContext(r.Context(), "Service proxy error", "error", err, "service", p.Name(), "path", path)
			response.Unavailable(w, "Service unavailable")
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			if !shouldCopyHeader(key) {
				continue
			}
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}

		w.WriteHeader(resp.StatusCode)

		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.ErrorContext(r.Context(), "Failed to copy response body", "error", err)
		}
	}
}

// shouldCopyHeader drops hop-by-hop headers and anything the gateway sets itself.
func shouldCopyHeader(key string) bool {
	switch strings.ToLower(key) {
	case "host",
		"connection",
		"upgrade",
		"proxy-connection",
		"proxy-authenticate",
		"proxy-authorization",
		"te",
		"trailers",
		"transfer-encoding",
		"keep-alive",
		"content-length",
		"x-request-id",
		"x-gateway-forwarded",
		"x-forwarded-for",
		"x-real-ip",
		"access-control-allow-origin",
		"access-control-allow-credentials":
		return false
	}
	return true
}

func peerIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RequireAdmin rejects admin API calls without a valid admin session before they reach a service.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(w, "Missing or invalid authorization header")
			return
		}

		claims, err := auth.Parse(strings.TrimPrefix(authHeader, "Bearer "), h.jwtSecret)
		if err != nil {
			response.Unauthorized(w, "Invalid session")
			return
		}
		if claims.Role != auth.RoleAdmin {
			response.Forbidden(w, "Admin access required")
			return
		}

		ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
