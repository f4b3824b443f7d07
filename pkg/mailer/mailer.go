package mailer

import (
	"context"

	"github.com/diagnosis/agency-portal/pkg/config"
	"github.com/diagnosis/agency-portal/pkg/logger"
)

type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a pre-rendered message and returns the provider's message id when it has one.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// New picks the transport: dev logging, MailerSend when an API key is set, SMTP otherwise.
func New(cfg config.EmailConfig) Sender {
	switch {
	case cfg.DevMode:
		logger.Info("Email dev mode enabled, messages are logged only")
		return NewDevMailer()
	case cfg.MailerSendKey != "":
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.FromEmail)
	default:
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	}
}
