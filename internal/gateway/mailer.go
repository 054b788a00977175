package gateway

import (
	"context"

	"helpdesk/internal/logger"
)

// Mailer delivers confirmation links.
type Mailer interface {
	SendConfirmation(ctx context.Context, email, link string) error
}

// LogMailer writes confirmation links to the log instead of sending mail.
type LogMailer struct{}

func (LogMailer) SendConfirmation(_ context.Context, email, link string) error {
	logger.Info("confirmation email", map[string]any{
		"to":   email,
		"link": link,
	})
	return nil
}
