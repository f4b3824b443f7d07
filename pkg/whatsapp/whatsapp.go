package whatsapp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/agency-portal/pkg/config"
	"github.com/google/go-querystring/query"
)

// Notifier sends a short text to the agency's WhatsApp number.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type params struct {
	Phone  string `url:"phone"`
	Text   string `url:"text"`
	APIKey string `url:"apikey"`
}

// Client talks to a CallMeBot-style gateway: GET {base}?phone=..&text=..&apikey=..
type Client struct {
	baseURL string
	phone   string
	apiKey  string
	http    *http.Client
}

// New returns a Noop notifier when the phone or key is missing.
func New(cfg config.WhatsAppConfig) Notifier {
	if cfg.Phone == "" || cfg.APIKey == "" {
		return Noop{}
	}
	return NewClient(cfg.BaseURL, cfg.Phone, cfg.APIKey, &http.Client{Timeout: 10 * time.Second})
}

func NewClient(baseURL, phone, apiKey string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, phone: phone, apiKey: apiKey, http: httpClient}
}

func (c *Client) Notify(ctx context.Context, text string) error {
	v, err := query.Values(params{Phone: c.phone, Text: text, APIKey: c.apiKey})
	if err != nil {
		return fmt.Errorf("encode whatsapp query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+v.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("whatsapp error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type Noop struct{}

func (Noop) Notify(context.Context, string) error { return nil }
