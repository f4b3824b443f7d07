package mailer

import "github.com/diagnosis/agency-portal/pkg/config"

func configWith(dev bool, mailerSendKey string) config.EmailConfig {
	return config.EmailConfig{
		DevMode:       dev,
		MailerSendKey: mailerSendKey,
		FromEmail:     "noreply@studio.io",
		SMTPHost:      "localhost",
		SMTPPort:      1025,
	}
}
