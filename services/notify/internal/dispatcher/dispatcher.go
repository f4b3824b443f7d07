// Package dispatcher turns bus events into customer emails, admin alerts and CRM updates.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/diagnosis/agency-portal/pkg/approval"
	"github.com/diagnosis/agency-portal/pkg/crm"
	"github.com/diagnosis/agency-portal/pkg/events"
	"github.com/diagnosis/agency-portal/pkg/logger"
	"github.com/diagnosis/agency-portal/pkg/mailer"
	"github.com/diagnosis/agency-portal/pkg/whatsapp"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	AdminEmail    string
	PublicBaseURL string
}

type Dispatcher struct {
	mail     mailer.Sender
	whatsapp whatsapp.Notifier
	crm      crm.Syncer
	cfg      Config
}

func New(mail mailer.Sender, wa whatsapp.Notifier, syncer crm.Syncer, cfg Config) *Dispatcher {
	return &Dispatcher{mail: mail, whatsapp: wa, crm: syncer, cfg: cfg}
}

// maxParallel bounds the outbound calls a single event can have in flight.
const maxParallel = 4

type task struct {
	channel string
	run     func(ctx context.Context) error
}

// Handle decodes one event and delivers every notification it implies in parallel. A failing
// channel does not stop the others; the joined error is returned for logging.
func (d *Dispatcher) Handle(ctx context.Context, msg *events.Message) error {
	tasks, err := d.plan(msg)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		logger.DebugContext(ctx, "No notifications for event", "subject", msg.Subject)
		return nil
	}

	errs := make([]error, len(tasks))
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, t := range tasks {
		g.Go(func() error {
			if err := t.run(ctx); err != nil {
				logger.ErrorContext(ctx, "Notification failed", "channel", t.channel, "subject", msg.Subject, "error", err)
				errs[i] = fmt.Errorf("%s: %w", t.channel, err)
				return errs[i]
			}
			return nil
		})
	}
	// Wait only reports the first failure; every channel's error is returned.
	if err := g.Wait(); err != nil {
		return errors.Join(errs...)
	}
	return nil
}

func (d *Dispatcher) plan(msg *events.Message) ([]task, error) {
	switch msg.Subject {
	case events.PaymentCompleted:
		var e events.PaymentCompletedEvent
		if err := msg.Decode(&e); err != nil {
			return nil, err
		}
		return d.paymentCompleted(e), nil
	case events.PaymentFailed:
		var e events.PaymentFailedEvent
		if err := msg.Decode(&e); err != nil {
			return nil, err
		}
		return d.paymentFailed(e), nil
	case events.OnboardingSubmitted:
		var e events.OnboardingSubmittedEvent
		if err := msg.Decode(&e); err != nil {
			return nil, err
		}
		return d.onboardingSubmitted(e), nil
	case events.ContactReceived:
		var e events.ContactReceivedEvent
		if err := msg.Decode(&e); err != nil {
			return nil, err
		}
		return d.contactReceived(e), nil
	case events.ApprovalRequested:
		var e events.ApprovalRequestedEvent
		if err := msg.Decode(&e); err != nil {
			return nil, err
		}
		return d.approvalRequested(e), nil
	case events.ApprovalDecided:
		var e events.ApprovalDecidedEvent
		if err := msg.Decode(&e); err != nil {
			return nil, err
		}
		return d.approvalDecided(e), nil
	default:
		return nil, nil
	}
}

func (d *Dispatcher) email(channel string, m mailer.Message) task {
	return task{channel: channel, run: func(ctx context.Context) error {
		if m.To == "" {
			return nil
		}
		id, err := d.mail.Send(ctx, m)
		if err == nil {
			logger.DebugContext(ctx, "Email sent", "channel", channel, "message_id", id)
		}
		return err
	}}
}

func (d *Dispatcher) alert(title string, rows [][2]string) []task {
	return []task{
		d.email("admin_email", adminAlert(d.cfg.AdminEmail, title, rows)),
		{channel: "whatsapp", run: func(ctx context.Context) error {
			return d.whatsapp.Notify(ctx, whatsAppText(title, rows))
		}},
	}
}

func (d *Dispatcher) crmTask(run func(ctx context.Context) error) task {
	return task{channel: "crm", run: run}
}

func (d *Dispatcher) paymentCompleted(e events.PaymentCompletedEvent) []task {
	onboardingURL := d.cfg.PublicBaseURL + "/onboarding?session_id=" + url.QueryEscape(e.SessionID)
	rows := [][2]string{
		{"Customer", e.CustomerName},
		{"Email", e.CustomerEmail},
		{"Phone", e.CustomerPhone},
		{"Plan", e.PlanName},
		{"Amount", money(e.AmountTotal, e.Currency)},
		{"Session", e.SessionID},
	}

	tasks := []task{d.email("customer_email", paymentReceipt(e, onboardingURL))}
	tasks = append(tasks, d.alert("New payment received", rows)...)
	return append(tasks, d.crmTask(func(ctx context.Context) error {
		if err := d.crm.UpsertContact(ctx, crm.Contact{
			CustomerID: e.CustomerID,
			Email:      e.CustomerEmail,
			Name:       e.CustomerName,
			Phone:      e.CustomerPhone,
			Source:     "checkout",
		}); err != nil {
			return err
		}
		return d.crm.UpsertDeal(ctx, crm.Deal{
			CustomerID:  e.CustomerID,
			Email:       e.CustomerEmail,
			Title:       e.PlanName,
			Stage:       crm.StagePaid,
			AmountCents: e.AmountTotal,
			Currency:    e.Currency,
		})
	}))
}

func (d *Dispatcher) paymentFailed(e events.PaymentFailedEvent) []task {
	tasks := d.alert("Payment failed", [][2]string{
		{"Email", e.CustomerEmail},
		{"Reason", e.Reason},
		{"Payment intent", e.PaymentIntentID},
	})
	if e.CustomerEmail == "" {
		return tasks
	}
	return append(tasks, d.crmTask(func(ctx context.Context) error {
		return d.crm.UpsertDeal(ctx, crm.Deal{
			CustomerID: approval.DeriveCustomerID(e.CustomerEmail),
			Email:      e.CustomerEmail,
			Title:      "Checkout",
			Stage:      crm.StagePaymentFailed,
		})
	}))
}

func (d *Dispatcher) onboardingSubmitted(e events.OnboardingSubmittedEvent) []task {
	tasks := []task{d.email("customer_email", submissionConfirmation(e))}
	tasks = append(tasks, d.alert("New onboarding submission", [][2]string{
		{"Business", e.BusinessName},
		{"Contact", e.ContactName},
		{"Email", e.Email},
		{"Phone", e.Phone},
		{"Plan", e.PlanID},
		{"Project", e.ProjectType},
		{"Submission", strconv.FormatInt(e.SubmissionID, 10)},
	})...)
	return append(tasks, d.crmTask(func(ctx context.Context) error {
		if err := d.crm.UpsertContact(ctx, crm.Contact{
			CustomerID: e.CustomerID,
			Email:      e.Email,
			Name:       e.ContactName,
			Phone:      e.Phone,
			Company:    e.BusinessName,
			Source:     "onboarding",
		}); err != nil {
			return err
		}
		return d.crm.UpsertDeal(ctx, crm.Deal{
			CustomerID: e.CustomerID,
			Email:      e.Email,
			Title:      e.BusinessName + " " + e.ProjectType,
			Stage:      crm.StageOnboarding,
		})
	}))
}

func (d *Dispatcher) contactReceived(e events.ContactReceivedEvent) []task {
	tasks := []task{d.email("customer_email", contactAutoReply(e))}
	tasks = append(tasks, d.alert("New contact request", [][2]string{
		{"Name", e.Name},
		{"Email", e.Email},
		{"Phone", e.Phone},
		{"Subject", e.Subject},
		{"Message", e.Message},
	})...)
	return append(tasks, d.crmTask(func(ctx context.Context) error {
		return d.crm.UpsertContact(ctx, crm.Contact{
			CustomerID: approval.DeriveCustomerID(e.Email),
			Email:      e.Email,
			Name:       e.Name,
			Phone:      e.Phone,
			Source:     "contact_form",
		})
	}))
}

func (d *Dispatcher) approvalRequested(e events.ApprovalRequestedEvent) []task {
	return []task{
		d.email("customer_email", approvalRequest(e)),
		d.crmTask(func(ctx context.Context) error {
			return d.crm.UpsertDeal(ctx, crm.Deal{
				CustomerID:  e.CustomerID,
				Email:       e.Email,
				Title:       e.ProjectType,
				Stage:       crm.StageProposalSent,
				AmountCents: e.PriceCents,
				Currency:    e.Currency,
			})
		}),
	}
}

func (d *Dispatcher) approvalDecided(e events.ApprovalDecidedEvent) []task {
	title := "Proposal approved"
	stage := crm.StageWon
	if e.Decision == "reject" {
		title = "Proposal rejected"
		stage = crm.StageLost
	}

	tasks := []task{d.email("customer_email", decisionConfirmation(e))}
	tasks = append(tasks, d.alert(title, [][2]string{
		{"Customer", e.Name},
		{"Email", e.Email},
		{"Project", e.ProjectType},
		{"Comment", e.Comment},
		{"Proposal", e.ProposalID},
	})...)
	return append(tasks, d.crmTask(func(ctx context.Context) error {
		return d.crm.UpsertDeal(ctx, crm.Deal{
			CustomerID: e.CustomerID,
			Email:      e.Email,
			Title:      e.ProjectType,
			Stage:      stage,
		})
	}))
}
