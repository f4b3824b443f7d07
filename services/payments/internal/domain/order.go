package domain

import (
	"errors"
	"time"
)

var (
	ErrUnknownPlan = errors.New("unknown plan")
	ErrValidation  = errors.New("validation failed")
)

type Plan struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	PriceCents int64    `json:"price_cents"`
	Currency   string   `json:"currency"`
	Features   []string `json:"features"`
}

// Plans is the catalog checkout charges against. Clients only ever send a plan id.
var Plans = []Plan{
	{
		ID:         "starter",
		Name:       "Starter Website",
		PriceCents: 49900,
		Currency:   "usd",
		Features:   []string{"Up to 5 pages", "Responsive design", "Contact form", "Basic SEO setup"},
	},
	{
		ID:         "business",
		Name:       "Business Website",
		PriceCents: 149900,
		Currency:   "usd",
		Features:   []string{"Up to 15 pages", "CMS integration", "Booking or lead forms", "Analytics", "30 days support"},
	},
	{
		ID:         "ecommerce",
		Name:       "E-commerce Store",
		PriceCents: 299900,
		Currency:   "usd",
		Features:   []string{"Product catalog", "Online payments", "Inventory management", "Order emails", "90 days support"},
	},
}

func FindPlan(id string) (Plan, bool) {
	for _, p := range Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
	OrderExpired OrderStatus = "expired"
)

type Order struct {
	ID            int64       `json:"id"`
	SessionID     string      `json:"session_id"`
	CustomerID    string      `json:"customer_id"`
	CustomerEmail string      `json:"customer_email"`
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	PlanID        string      `json:"plan_id"`
	AmountCents   int64       `json:"amount_cents"`
	Currency      string      `json:"currency"`
	Status        OrderStatus `json:"status"`
	PaidAt        *time.Time  `json:"paid_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type CheckoutReq struct {
	PlanID string `json:"plan_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type CheckoutRes struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}
