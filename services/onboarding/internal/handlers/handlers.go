package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/diagnosis/agency-portal/pkg/auth"
	"github.com/diagnosis/agency-portal/pkg/logger"
	"github.com/diagnosis/agency-portal/pkg/ratelimit"
	"github.com/diagnosis/agency-portal/pkg/response"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/domain"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/service"
	"github.com/go-chi/chi/v5"
)

type ctxKey string

const claimsKey ctxKey = "claims"

type Handlers struct {
	onboardingService service.OnboardingService
	adminService      service.AdminService
	approvalService   service.ApprovalService
	jwtSecret         string
}

func New(
	onboardingService service.OnboardingService,
	adminService service.AdminService,
	approvalService service.ApprovalService,
	jwtSecret string,
) *Handlers {
	return &Handlers{
		onboardingService: onboardingService,
		adminService:      adminService,
		approvalService:   approvalService,
		jwtSecret:         jwtSecret,
	}
}

// Mount registers every onboarding route. Public form and approval endpoints are limited per IP
// when limiter is non-nil.
func (h *Handlers) Mount(r chi.Router, limiter ratelimit.Limiter) {
	limit := func(scope string) func(http.Handler) http.Handler {
		if limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return ratelimit.ByIP(limiter, scope)
	}

	r.With(limit("onboarding")).Post("/onboarding", h.SubmitOnboarding)
	r.With(limit("contact")).Post("/contact", h.SubmitContact)

	r.Route("/approvals/{proposalID}", func(r chi.Router) {
		r.Use(limit("approval"))
		r.Get("/", h.InspectProposal)
		r.Post("/approve", h.Decide(domain.DecisionApprove))
		r.Post("/reject", h.Decide(domain.DecisionReject))
	})

	r.With(limit("admin_login")).Post("/admin/login", h.AdminLogin)
	r.Route("/admin/submissions", func(r chi.Router) {
		r.Use(h.RequireAdmin)
		r.Get("/", h.ListSubmissions)
		r.Get("/{id}", h.GetSubmission)
		r.Patch("/{id}", h.UpdateSubmission)
		r.Delete("/{id}", h.DeleteSubmission)
		r.Post("/{id}/approval-request", h.RequestApproval)
	})
}

// RequireAdmin accepts only admin session tokens.
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
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", response.CodeInvalidInput, err.Error())
	case errors.Is(err, service.ErrSuspiciousContent):
		response.WriteError(w, http.StatusBadRequest, "Submission rejected", response.CodeSuspiciousContent)
	case errors.Is(err, service.ErrInvalidToken):
		response.InvalidToken(w)
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, "Not found")
	case errors.Is(err, domain.ErrInvalidState):
		response.Conflict(w, err.Error())
	default:
		logger.ErrorContext(r.Context(), "Failed to "+action, "error", err)
		response.InternalError(w, "Failed to "+action)
	}
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
