package dispatcher

import (
	"fmt"
	"html"
	"strings"

	"github.com/diagnosis/agency-portal/pkg/events"
	"github.com/diagnosis/agency-portal/pkg/mailer"
)

// All interpolated values are escaped: they come from public forms.
var esc = html.EscapeString

func money(cents int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", strings.ToUpper(currency), cents/100, cents%100)
}

func layout(title, body string) string {
	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2>%s</h2>
			%s
			<p style="color: #888; font-size: 12px;">You are receiving this email because of your project with us.</p>
		</div>
	`, esc(title), body)
}

func button(href, label, color string) string {
	return fmt.Sprintf(`<a href="%s" style="background-color: %s; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; margin-right: 8px;">%s</a>`,
		esc(href), color, esc(label))
}

func paymentReceipt(e events.PaymentCompletedEvent, onboardingURL string) mailer.Message {
	subject := "Payment received: " + e.PlanName
	text := fmt.Sprintf("Hi %s,\n\nThanks for your purchase of %s (%s).\n\nNext step: tell us about your project: %s\n",
		e.CustomerName, e.PlanName, money(e.AmountTotal, e.Currency), onboardingURL)
	body := fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>Thanks for your purchase of <strong>%s</strong> (%s).</p>
			<p>Next step: tell us about your project so we can get started.</p>
			<p>%s</p>`,
		esc(e.CustomerName), esc(e.PlanName), esc(money(e.AmountTotal, e.Currency)),
		button(onboardingURL, "Start onboarding", "#4CAF50"))
	return mailer.Message{To: e.CustomerEmail, ToName: e.CustomerName, Subject: subject, Text: text, HTML: layout(subject, body)}
}

func submissionConfirmation(e events.OnboardingSubmittedEvent) mailer.Message {
	subject := "We received your project details"
	text := fmt.Sprintf("Hi %s,\n\nThanks for telling us about %s. We will review it and send you a proposal shortly.\n",
		e.ContactName, e.BusinessName)
	body := fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>Thanks for telling us about <strong>%s</strong>. We will review it and send you a proposal shortly.</p>`,
		esc(e.ContactName), esc(e.BusinessName))
	return mailer.Message{To: e.Email, ToName: e.ContactName, Subject: subject, Text: text, HTML: layout(subject, body)}
}

func contactAutoReply(e events.ContactReceivedEvent) mailer.Message {
	subject := "Thanks for reaching out"
	text := fmt.Sprintf("Hi %s,\n\nWe got your message and will reply within one business day.\n", e.Name)
	body := fmt.Sprintf(`<p>Hi %s,</p><p>We got your message and will reply within one business day.</p>`, esc(e.Name))
	return mailer.Message{To: e.Email, ToName: e.Name, Subject: subject, Text: text, HTML: layout(subject, body)}
}

func approvalRequest(e events.ApprovalRequestedEvent) mailer.Message {
	subject := "Your project proposal is ready"
	expires := e.ExpiresAt.Format("January 2, 2006")
	text := fmt.Sprintf("Hi %s,\n\n%s\n\nPrice: %s\n\nApprove: %s\nReject: %s\n\nThese links expire on %s.\n",
		e.Name, e.Summary, money(e.PriceCents, e.Currency), e.ApproveURL, e.RejectURL, expires)
	body := fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>Here is our proposal for your %s project:</p>
			<blockquote style="border-left: 3px solid #ccc; padding-left: 12px;">%s</blockquote>
			<p>Price: <strong>%s</strong></p>
			<p>%s %s</p>
			<p>These links expire on %s.</p>`,
		esc(e.Name), esc(e.ProjectType), esc(e.Summary), esc(money(e.PriceCents, e.Currency)),
		button(e.ApproveURL, "Approve", "#4CAF50"), button(e.RejectURL, "Reject", "#f44336"), esc(expires))
	return mailer.Message{To: e.Email, ToName: e.Name, Subject: subject, Text: text, HTML: layout(subject, body)}
}

func decisionConfirmation(e events.ApprovalDecidedEvent) mailer.Message {
	subject := "Thanks for your decision"
	line := "We will be in touch shortly to schedule the kickoff."
	if e.Decision == "reject" {
		line = "We will reach out to understand what we can change."
	}
	text := fmt.Sprintf("Hi %s,\n\nWe recorded your decision: %s.\n%s\n", e.Name, e.Decision, line)
	body := fmt.Sprintf(`<p>Hi %s,</p><p>We recorded your decision: <strong>%s</strong>.</p><p>%s</p>`,
		esc(e.Name), esc(e.Decision), esc(line))
	return mailer.Message{To: e.Email, ToName: e.Name, Subject: subject, Text: text, HTML: layout(subject, body)}
}

// adminAlert renders the internal notification: a title plus key/value rows.
func adminAlert(to, title string, rows [][2]string) mailer.Message {
	var text, cells strings.Builder
	for _, kv := range rows {
		if kv[1] == "" {
			continue
		}
		fmt.Fprintf(&text, "%s: %s\n", kv[0], kv[1])
		fmt.Fprintf(&cells, `<tr><td style="padding: 4px 12px 4px 0;"><strong>%s</strong></td><td>%s</td></tr>`, esc(kv[0]), esc(kv[1]))
	}
	body := fmt.Sprintf(`<table>%s</table>`, cells.String())
	return mailer.Message{To: to, Subject: "[Agency] " + title, Text: text.String(), HTML: layout(title, body)}
}

// whatsAppText is the plain-text version of an admin alert.
func whatsAppText(title string, rows [][2]string) string {
	var b strings.Builder
	b.WriteString(title)
	for _, kv := range rows {
		if kv[1] != "" {
			fmt.Fprintf(&b, "\n%s: %s", kv[0], kv[1])
		}
	}
	return b.String()
}
