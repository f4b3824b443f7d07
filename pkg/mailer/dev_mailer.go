package mailer

import (
	"context"

	"github.com/diagnosis/agency-portal/pkg/logger"
	"github.com/google/uuid"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(ctx context.Context, msg Message) (string, error) {
	id := "dev-" + uuid.NewString()
	logger.InfoContext(ctx, "[DEV MAIL] Email",
		"message_id", id,
		"to", msg.To,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return id, nil
}
