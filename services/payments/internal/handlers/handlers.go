package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/diagnosis/agency-portal/pkg/logger"
	"github.com/diagnosis/agency-portal/pkg/response"
	"github.com/diagnosis/agency-portal/services/payments/internal/domain"
	"github.com/diagnosis/agency-portal/services/payments/internal/service"
	"github.com/go-chi/chi/v5"
)

// maxWebhookBytes caps webhook bodies. Stripe events are far smaller.
const maxWebhookBytes = 64 << 10

type Handlers struct {
	paymentService service.PaymentService
}

func New(paymentService service.PaymentService) *Handlers {
	return &Handlers{paymentService: paymentService}
}

// Mount registers the payment routes. checkoutMW wraps only POST /checkout.
func (h *Handlers) Mount(r chi.Router, checkoutMW ...func(http.Handler) http.Handler) {
	r.Get("/plans", h.ListPlans)
	r.With(checkoutMW...).Post("/checkout", h.CreateCheckout)
	r.Get("/checkout/{sessionID}", h.GetCheckout)
	r.Post("/webhook", h.Webhook)
}

func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]any{"plans": h.paymentService.Plans()})
}

func (h *Handlers) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutReq
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	res, err := h.paymentService.CreateCheckout(r.Context(), &req)
	switch {
	case err == nil:
		response.WriteJSON(w, http.StatusCreated, res)
	case errors.Is(err, domain.ErrUnknownPlan):
		response.BadRequest(w, "Unknown plan")
	case errors.Is(err, domain.ErrValidation):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", response.CodeInvalidInput, err.Error())
	case errors.Is(err, service.ErrCheckoutDisabled):
		response.Unavailable(w, "Checkout is temporarily unavailable")
	default:
		logger.ErrorContext(r.Context(), "Failed to create checkout session", "error", err, "plan_id", req.PlanID)
		response.WriteError(w, http.StatusBadGateway, "Payment provider error", response.CodeInternalError)
	}
}

func (h *Handlers) GetCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		response.BadRequest(w, "Missing session id")
		return
	}

	order, err := h.paymentService.GetOrder(r.Context(), sessionID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to load order", "error", err, "session_id", sessionID)
		response.InternalError(w, "Failed to load order")
		return
	}
	if order == nil {
		response.NotFound(w, "Order not found")
		return
	}
	response.WriteJSON(w, http.StatusOK, order)
}

func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		response.WriteError(w, http.StatusRequestEntityTooLarge, "Payload too large", response.CodeInvalidInput)
		return
	}

	err = h.paymentService.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		response.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, service.ErrWebhookDisabled):
		response.Unavailable(w, "Webhook not configured")
	case errors.Is(err, service.ErrInvalidSignature):
		response.WriteError(w, http.StatusBadRequest, "Invalid signature", response.CodeInvalidSignature)
	default:
		logger.ErrorContext(r.Context(), "Webhook processing failed", "error", err)
		response.InternalError(w, "Webhook processing failed")
	}
}
