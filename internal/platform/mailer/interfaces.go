package mailer

import "context"

type Service interface {
	SendAlertEmail(ctx context.Context, toEmail, toName, subject, text string) error
}
