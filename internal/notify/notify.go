package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Sender delivers one message to one recipient. A nil error means delivered.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender logs messages instead of sending them, used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "notify")}
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("email (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends emails via the Resend API, used in staging/production.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// Fanout delivers through every channel and reports success if at least one
// channel delivered.
type Fanout []Sender

func (f Fanout) Send(ctx context.Context, to, subject, body string) error {
	var errs []error
	for _, s := range f {
		if err := s.Send(ctx, to, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(f) && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// NewSender returns a LogSender for ENV=local, ResendSender otherwise. When
// webhookURL is set the webhook channel is added alongside.
func NewSender(env, apiKey, from, webhookURL string, logger *slog.Logger) Sender {
	var primary Sender
	if env == "local" {
		primary = NewLogSender(logger)
	} else {
		primary = NewResendSender(apiKey, from)
	}
	if webhookURL == "" {
		return primary
	}
	return Fanout{primary, NewWebhookSender(webhookURL)}
}
