package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/agency-portal/pkg/approval"
	"github.com/diagnosis/agency-portal/pkg/events"
	"github.com/diagnosis/agency-portal/services/payments/internal/domain"
	"github.com/diagnosis/agency-portal/services/payments/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test_secret"

type fakeOrders struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	failPay bool
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[string]*domain.Order{}}
}

func (f *fakeOrders) CreatePending(_ context.Context, o *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[o.SessionID]; !ok {
		cp := *o
		cp.Status = domain.OrderPending
		f.orders[o.SessionID] = &cp
	}
	return nil
}

func (f *fakeOrders) MarkPaid(_ context.Context, o *domain.Order) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPay {
		return nil, errors.New("db down")
	}
	cp := *o
	cp.Status = domain.OrderPaid
	now := time.Now()
	cp.PaidAt = &now
	f.orders[o.SessionID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeOrders) MarkExpired(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[sessionID]
	if !ok || o.Status != domain.OrderPending {
		return false, nil
	}
	o.Status = domain.OrderExpired
	return true, nil
}

func (f *fakeOrders) GetBySessionID(_ context.Context, sessionID string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeDedup) FirstSeen(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[id] {
		return false, nil
	}
	f.seen[id] = true
	return true, nil
}

func (f *fakeDedup) Forget(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, id)
	return nil
}

type published struct {
	subject string
	data    any
}

type fakeBus struct {
	mu     sync.Mutex
	events []published
}

func (b *fakeBus) Publish(_ context.Context, subject string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{subject, data})
	return nil
}

func (b *fakeBus) Close() error { return nil }

type fakeSessions struct {
	got []service.SessionInput
}

func (f *fakeSessions) CreateSession(_ context.Context, in service.SessionInput) (*domain.CheckoutRes, error) {
	f.got = append(f.got, in)
	return &domain.CheckoutRes{SessionID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

type fixture struct {
	router   http.Handler
	orders   *fakeOrders
	dedup    *fakeDedup
	bus      *fakeBus
	sessions *fakeSessions
}

func newFixture(t *testing.T, webhookSecret string, withStripe bool) *fixture {
	t.Helper()
	f := &fixture{
		orders:   newFakeOrders(),
		dedup:    &fakeDedup{seen: map[string]bool{}},
		bus:      &fakeBus{},
		sessions: &fakeSessions{},
	}
	var sessions service.SessionCreator
	if withStripe {
		sessions = f.sessions
	}
	svc := service.NewPaymentService(f.orders, sessions, f.dedup, f.bus, service.Options{
		WebhookSecret: webhookSecret,
		Currency:      "usd",
	})
	r := chi.NewRouter()
	New(svc).Mount(r)
	f.router = r
	return f
}

func (f *fixture) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) webhook(payload string) *httptest.ResponseRecorder {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return f.do(http.MethodPost, "/webhook", payload, map[string]string{"Stripe-Signature": signed.Header})
}

const completedEvent = `{
  "id": "evt_completed_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "amount_total": 149900,
    "currency": "usd",
    "payment_status": "paid",
    "customer_details": {"email": "Jane@Example.com", "name": "Jane Doe", "phone": "+15551234567"},
    "metadata": {"plan_id": "business"}
  }}
}`

func TestListPlans(t *testing.T) {
	f := newFixture(t, testWebhookSecret, true)

	rec := f.do(http.MethodGet, "/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Plans []domain.Plan `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Plans, len(domain.Plans))
	for _, p := range body.Plans {
		assert.Positive(t, p.PriceCents)
		assert.Equal(t, "usd", p.Currency)
	}
}

func TestCreateCheckout(t *testing.T) {
	f := newFixture(t, testWebhookSecret, true)

	rec := f.do(http.MethodPost, "/checkout", `{"plan_id":"business","email":" Jane@Example.com ","name":"Jane"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res domain.CheckoutRes
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "cs_test_1", res.SessionID)
	assert.NotEmpty(t, res.URL)

	require.Len(t, f.sessions.got, 1)
	in := f.sessions.got[0]
	assert.Equal(t, int64(149900), in.Plan.PriceCents)
	assert.Equal(t, "jane@example.com", in.Email)
	assert.Equal(t, approval.DeriveCustomerID("jane@example.com"), in.CustomerID)

	order, _ := f.orders.GetBySessionID(context.Background(), "cs_test_1")
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, "business", order.PlanID)
}

func TestCreateCheckoutRejectsBadInput(t *testing.T) {
	f := newFixture(t, testWebhookSecret, true)

	cases := map[string]string{
		"unknown plan":  `{"plan_id":"platinum","email":"a@b.co"}`,
		"invalid email": `{"plan_id":"starter","email":"nope"}`,
		"bad json":      `{`,
	}
	for name, body := range cases {
		rec := f.do(http.MethodPost, "/checkout", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	assert.Empty(t, f.sessions.got)
}

func TestCreateCheckoutWithoutStripeKey(t *testing.T) {
	f := newFixture(t, testWebhookSecret, false)

	rec := f.do(http.MethodPost, "/checkout", `{"plan_id":"starter","email":"a@b.co"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetCheckout(t *testing.T) {
	f := newFixture(t, testWebhookSecret, true)

	rec := f.do(http.MethodGet, "/checkout/cs_missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.do(http.MethodPost, "/checkout", `{"plan_id":"starter","email":"a@b.co"}`, nil)
	rec = f.do(http.MethodGet, "/checkout/cs_test_1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)
}

func TestWebhookWithoutSecretFailsClosed(t *testing.T) {
	f := newFixture(t, "", true)

	rec := f.webhook(completedEvent)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, f.orders.orders)
	assert.Empty(t, f.bus.events)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, testWebhookSecret, true)

	rec := f.do(http.MethodPost, "/webhook", completedEvent, map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_SIGNATURE")

	rec = f.do(http.MethodPost, "/webhook", completedEvent, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.bus.events)
}

func TestWebhookCheckoutCompleted(t *testing.T) {
	f := newFixture(t, testWebhookSecret, true)

	rec := f.webhook(completedEvent)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	order, _ := f.orders.GetBySessionID(context.Background(), "cs_test_1")
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderPaid, order.Status)
	assert.Equal(t, "jane@example.com", order.CustomerEmail)
	assert.Equal(t, approval.DeriveCustomerID("jane@example.com"), order.CustomerID)

	require.Len(t, f.bus.events, 1)
	assert.Equal(t, events.PaymentCompleted, f.bus.events[0].subject)
	evt := f.bus.events[0].data.(events.PaymentCompletedEvent)
	assert.Equal(t, "Business Website", evt.PlanName)
	assert.Equal(t, int64(149900), evt.AmountTotal)
	assert.Equal(t, "Jane Doe", evt.CustomerName)

	// Stripe retries deliver the same event id again.
	rec = f.webhook(completedEvent)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.bus.events, 1)
}

func TestWebhookProcessingFailureAllowsRetry(t *testing.T) {
	f := newFixture(t, testWebhookSecret, true)
	f.orders.failPay = true

	rec := f.webhook(completedEvent)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.dedup.seen)

	f.orders.failPay = false
	rec = f.webhook(completedEvent)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.bus.events, 1)
}

func TestWebhookCheckoutExpired(t *testing.T) {
	f := newFixture(t, testWebhookSecret, true)
	f.do(http.MethodPost, "/checkout", `{"plan_id":"starter","email":"a@b.co"}`, nil)

	rec := f.webhook(`{"id":"evt_exp_1","object":"event","type":"checkout.session.expired",
		"data":{"object":{"id":"cs_test_1","object":"checkout.session"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	order, _ := f.orders.GetBySessionID(context.Background(), "cs_test_1")
	assert.Equal(t, domain.OrderExpired, order.Status)
	assert.Empty(t, f.bus.events)
}

func TestWebhookPaymentFailed(t *testing.T) {
	f := newFixture(t, testWebhookSecret, true)

	rec := f.webhook(`{"id":"evt_fail_1","object":"event","type":"payment_intent.payment_failed",
		"data":{"object":{"id":"pi_1","object":"payment_intent","receipt_email":"a@b.co",
		"last_payment_error":{"message":"Your card was declined."}}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.bus.events, 1)
	assert.Equal(t, events.PaymentFailed, f.bus.events[0].subject)
	evt := f.bus.events[0].data.(events.PaymentFailedEvent)
	assert.Equal(t, "pi_1", evt.PaymentIntentID)
	assert.Equal(t, "Your card was declined.", evt.Reason)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t, testWebhookSecret, true)

	rec := f.webhook(`{"id":"evt_other","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.bus.events)
}
