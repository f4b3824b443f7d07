package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/agency-portal/pkg/approval"
	"github.com/diagnosis/agency-portal/pkg/events"
	"github.com/diagnosis/agency-portal/pkg/logger"
	"github.com/diagnosis/agency-portal/pkg/validate"
	"github.com/diagnosis/agency-portal/services/payments/internal/domain"
	"github.com/diagnosis/agency-portal/services/payments/internal/repository"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	ErrCheckoutDisabled = errors.New("checkout is not configured")
	ErrWebhookDisabled  = errors.New("webhook secret is not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// EventDeduper remembers webhook event ids already handled.
type EventDeduper interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type PaymentService interface {
	Plans() []domain.Plan
	CreateCheckout(ctx context.Context, req *domain.CheckoutReq) (*domain.CheckoutRes, error)
	GetOrder(ctx context.Context, sessionID string) (*domain.Order, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type Options struct {
	WebhookSecret string
	Currency      string
	Now           func() time.Time
}

type paymentService struct {
	orders   repository.OrderRepository
	sessions SessionCreator
	dedup    EventDeduper
	bus      events.Publisher
	opts     Options
}

// NewPaymentService wires the checkout and webhook flows. sessions may be nil when no Stripe key
// is configured; checkout then reports ErrCheckoutDisabled.
func NewPaymentService(
	orders repository.OrderRepository,
	sessions SessionCreator,
	dedup EventDeduper,
	bus events.Publisher,
	opts Options,
) PaymentService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	return &paymentService{orders: orders, sessions: sessions, dedup: dedup, bus: bus, opts: opts}
}

func (s *paymentService) Plans() []domain.Plan {
	plans := make([]domain.Plan, len(domain.Plans))
	for i, p := range domain.Plans {
		p.Currency = s.opts.Currency
		plans[i] = p
	}
	return plans
}

func (s *paymentService) CreateCheckout(ctx context.Context, req *domain.CheckoutReq) (*domain.CheckoutRes, error) {
	req.PlanID = validate.NormalizeString(req.PlanID)
	req.Email = validate.NormalizeEmail(req.Email)
	req.Name = validate.NormalizeString(req.Name)

	plan, ok := domain.FindPlan(req.PlanID)
	if !ok {
		return nil, domain.ErrUnknownPlan
	}
	if !validate.IsValidEmail(req.Email) {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrValidation)
	}
	if !validate.MaxLen(req.Name, 200) {
		return nil, fmt.Errorf("%w: name too long", domain.ErrValidation)
	}
	if s.sessions == nil {
		return nil, ErrCheckoutDisabled
	}
	plan.Currency = s.opts.Currency

	customerID := approval.DeriveCustomerID(req.Email)
	res, err := s.sessions.CreateSession(ctx, SessionInput{
		Plan:       plan,
		Email:      req.Email,
		Name:       req.Name,
		CustomerID: customerID,
	})
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		SessionID:     res.SessionID,
		CustomerID:    customerID,
		CustomerEmail: req.Email,
		CustomerName:  req.Name,
		PlanID:        plan.ID,
		AmountCents:   plan.PriceCents,
		Currency:      plan.Currency,
		Status:        domain.OrderPending,
	}
	if err := s.orders.CreatePending(ctx, order); err != nil {
		// The webhook upsert recreates the row, so the customer can still pay.
		logger.ErrorContext(ctx, "Failed to store pending order", "error", err, "session_id", res.SessionID)
	}

	logger.InfoContext(ctx, "Checkout session created", "session_id", res.SessionID, "plan_id", plan.ID, "customer_id", customerID)
	return res, nil
}

func (s *paymentService) GetOrder(ctx context.Context, sessionID string) (*domain.Order, error) {
	return s.orders.GetBySessionID(ctx, sessionID)
}

func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.opts.WebhookSecret == "" {
		logger.ErrorContext(ctx, "Rejecting webhook, STRIPE_WEBHOOK_SECRET is not set")
		return ErrWebhookDisabled
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.opts.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		logger.SecurityContext(ctx, "webhook_signature", "error", err)
		return ErrInvalidSignature
	}

	first, err := s.dedup.FirstSeen(ctx, event.ID)
	if err != nil {
		// Handlers below are idempotent, so processing twice beats dropping the event.
		logger.ErrorContext(ctx, "Webhook dedup check failed", "error", err, "event_id", event.ID)
		first = true
	}
	if !first {
		logger.InfoContext(ctx, "Duplicate webhook event ignored", "event_id", event.ID, "type", event.Type)
		return nil
	}

	if err := s.dispatch(ctx, event); err != nil {
		if ferr := s.dedup.Forget(ctx, event.ID); ferr != nil {
			logger.ErrorContext(ctx, "Failed to clear webhook dedup mark", "error", ferr, "event_id", event.ID)
		}
		return err
	}
	return nil
}

func (s *paymentService) dispatch(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case "checkout.session.completed":
		return s.checkoutCompleted(ctx, event)
	case "checkout.session.expired":
		return s.checkoutExpired(ctx, event)
	case "payment_intent.payment_failed":
		return s.paymentFailed(ctx, event)
	default:
		logger.DebugContext(ctx, "Unhandled webhook event", "event_id", event.ID, "type", event.Type)
		return nil
	}
}

func (s *paymentService) checkoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		logger.InfoContext(ctx, "Checkout completed without payment yet", "session_id", sess.ID)
		return nil
	}

	order := &domain.Order{
		SessionID:   sess.ID,
		PlanID:      sess.Metadata["plan_id"],
		CustomerID:  sess.Metadata["customer_id"],
		AmountCents: sess.AmountTotal,
		Currency:    string(sess.Currency),
	}
	order.CustomerEmail = sess.CustomerEmail
	order.CustomerName = sess.Metadata["customer_name"]
	if d := sess.CustomerDetails; d != nil {
		if d.Email != "" {
			order.CustomerEmail = d.Email
		}
		if d.Name != "" {
			order.CustomerName = d.Name
		}
		order.CustomerPhone = d.Phone
	}
	order.CustomerEmail = validate.NormalizeEmail(order.CustomerEmail)
	if order.CustomerID == "" {
		order.CustomerID = approval.DeriveCustomerID(order.CustomerEmail)
	}

	saved, err := s.orders.MarkPaid(ctx, order)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}

	planName := saved.PlanID
	if plan, ok := domain.FindPlan(saved.PlanID); ok {
		planName = plan.Name
	}
	paidAt := s.opts.Now()
	if saved.PaidAt != nil {
		paidAt = *saved.PaidAt
	}

	evt := events.PaymentCompletedEvent{
		SessionID:     saved.SessionID,
		CustomerID:    saved.CustomerID,
		CustomerEmail: saved.CustomerEmail,
		CustomerName:  saved.CustomerName,
		CustomerPhone: saved.CustomerPhone,
		PlanID:        saved.PlanID,
		PlanName:      planName,
		AmountTotal:   saved.AmountCents,
		Currency:      saved.Currency,
		PaidAt:        paidAt,
	}
	if err := s.bus.Publish(ctx, events.PaymentCompleted, evt); err != nil {
		logger.ErrorContext(ctx, "Failed to publish payment completed event", "error", err, "session_id", saved.SessionID)
	}

	logger.InfoContext(ctx, "Payment completed", "session_id", saved.SessionID, "customer_id", saved.CustomerID, "amount", saved.AmountCents)
	return nil
}

func (s *paymentService) checkoutExpired(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	changed, err := s.orders.MarkExpired(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("mark order expired: %w", err)
	}
	logger.InfoContext(ctx, "Checkout session expired", "session_id", sess.ID, "updated", changed)
	return nil
}

func (s *paymentService) paymentFailed(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("decode payment intent: %w", err)
	}

	reason := "unknown"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		reason = pi.LastPaymentError.Msg
	}

	evt := events.PaymentFailedEvent{
		PaymentIntentID: pi.ID,
		CustomerEmail:   pi.ReceiptEmail,
		Reason:          reason,
		FailedAt:        s.opts.Now(),
	}
	if err := s.bus.Publish(ctx, events.PaymentFailed, evt); err != nil {
		logger.ErrorContext(ctx, "Failed to publish payment failed event", "error", err, "payment_intent", pi.ID)
	}

	logger.WarnContext(ctx, "Payment failed", "payment_intent", pi.ID, "reason", reason)
	return nil
}
