package service

import (
	"context"
	"fmt"

	"github.com/diagnosis/agency-portal/services/payments/internal/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
)

type SessionInput struct {
	Plan       domain.Plan
	Email      string
	Name       string
	CustomerID string
}

// SessionCreator opens a hosted checkout page for one plan.
type SessionCreator interface {
	CreateSession(ctx context.Context, in SessionInput) (*domain.CheckoutRes, error)
}

type stripeSessions struct {
	client     *session.Client
	successURL string
	cancelURL  string
}

func NewStripeSessions(secretKey, successURL, cancelURL string) SessionCreator {
	return &stripeSessions{
		client:     &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

func (s *stripeSessions) CreateSession(ctx context.Context, in SessionInput) (*domain.CheckoutRes, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(in.Email),
		ClientReferenceID: stripe.String(in.CustomerID),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(in.Plan.Currency),
					UnitAmount: stripe.Int64(in.Plan.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(in.Plan.Name),
					},
				},
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("plan_id", in.Plan.ID)
	params.AddMetadata("customer_id", in.CustomerID)
	if in.Name != "" {
		params.AddMetadata("customer_name", in.Name)
	}

	sess, err := s.client.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &domain.CheckoutRes{SessionID: sess.ID, URL: sess.URL}, nil
}
