package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagnosis/agency-portal/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s event: %w", m.Subject, err)
	}
	return nil
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "bytes", len(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

func (n *NATSEventBus) Close() error {
	return n.conn.Drain()
}

func toMessage(msg *nats.Msg) *Message {
	return &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: time.Now(),
		ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
	}
}

// Event types and subjects
const (
	// Payment events
	PaymentCompleted = "payment.completed"
	PaymentFailed    = "payment.failed"

	// Onboarding events
	OnboardingSubmitted = "onboarding.submitted"
	ContactReceived     = "contact.received"

	// Approval events
	ApprovalRequested = "approval.requested"
	ApprovalDecided   = "approval.decided"
)

// Subjects lists every subject the notify service consumes.
var Subjects = []string{
	PaymentCompleted,
	PaymentFailed,
	OnboardingSubmitted,
	ContactReceived,
	ApprovalRequested,
	ApprovalDecided,
}

// Event payloads
type PaymentCompletedEvent struct {
	SessionID     string    `json:"session_id"`
	CustomerID    string    `json:"customer_id"`
	CustomerEmail string    `json:"customer_email"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	PlanID        string    `json:"plan_id"`
	PlanName      string    `json:"plan_name"`
	AmountTotal   int64     `json:"amount_total"`
	Currency      string    `json:"currency"`
	PaidAt        time.Time `json:"paid_at"`
}

type PaymentFailedEvent struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	CustomerEmail   string    `json:"customer_email,omitempty"`
	Reason          string    `json:"reason"`
	FailedAt        time.Time `json:"failed_at"`
}

type OnboardingSubmittedEvent struct {
	SubmissionID int64     `json:"submission_id"`
	CustomerID   string    `json:"customer_id"`
	BusinessName string    `json:"business_name"`
	ContactName  string    `json:"contact_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PlanID       string    `json:"plan_id"`
	ProjectType  string    `json:"project_type"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

type ContactReceivedEvent struct {
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Subject    string    `json:"subject"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
}

type ApprovalRequestedEvent struct {
	ProposalID   string    `json:"proposal_id"`
	SubmissionID int64     `json:"submission_id"`
	CustomerID   string    `json:"customer_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	ProjectType  string    `json:"project_type"`
	Summary      string    `json:"summary"`
	PriceCents   int64     `json:"price_cents"`
	Currency     string    `json:"currency"`
	ApproveURL   string    `json:"approve_url"`
	RejectURL    string    `json:"reject_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type ApprovalDecidedEvent struct {
	ProposalID   string    `json:"proposal_id"`
	SubmissionID int64     `json:"submission_id"`
	CustomerID   string    `json:"customer_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	ProjectType  string    `json:"project_type"`
	Decision     string    `json:"decision"`
	Comment      string    `json:"comment,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}
