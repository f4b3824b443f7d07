// Package crm pushes customer and deal updates to the CRM's inbound webhook.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/diagnosis/agency-portal/pkg/config"
)

type Contact struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Company    string `json:"company,omitempty"`
	Source     string `json:"source"`
}

type DealStage string

const (
	StagePaid          DealStage = "paid"
	StageOnboarding    DealStage = "onboarding"
	StageProposalSent  DealStage = "proposal_sent"
	StageWon           DealStage = "won"
	StageLost          DealStage = "lost"
	StagePaymentFailed DealStage = "payment_failed"
)

type Deal struct {
	CustomerID  string    `json:"customer_id"`
	Email       string    `json:"email"`
	Title       string    `json:"title"`
	Stage       DealStage `json:"stage"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Currency    string    `json:"currency,omitempty"`
}

type Syncer interface {
	UpsertContact(ctx context.Context, c Contact) error
	UpsertDeal(ctx context.Context, d Deal) error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type WebhookClient struct {
	url    string
	apiKey string
	http   *http.Client
}

// New returns Noop when no webhook URL is configured.
func New(cfg config.CRMConfig) Syncer {
	if cfg.WebhookURL == "" {
		return Noop{}
	}
	return NewWebhookClient(cfg.WebhookURL, cfg.APIKey, &http.Client{Timeout: cfg.Timeout})
}

func NewWebhookClient(url, apiKey string, httpClient *http.Client) *WebhookClient {
	return &WebhookClient{url: url, apiKey: apiKey, http: httpClient}
}

func (c *WebhookClient) UpsertContact(ctx context.Context, contact Contact) error {
	return c.post(ctx, envelope{Type: "contact", Data: contact})
}

func (c *WebhookClient) UpsertDeal(ctx context.Context, deal Deal) error {
	return c.post(ctx, envelope{Type: "deal", Data: deal})
}

func (c *WebhookClient) post(ctx context.Context, body envelope) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal crm %s: %w", body.Type, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build crm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("crm error: type=%s status=%d body=%s", body.Type, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

type Noop struct{}

func (Noop) UpsertContact(context.Context, Contact) error { return nil }
func (Noop) UpsertDeal(context.Context, Deal) error       { return nil }
