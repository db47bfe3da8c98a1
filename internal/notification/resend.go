package notification

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"
)

type ResendProvider struct {
	client *resend.Client
	from   string
	logger *logrus.Logger
}

func NewResendProvider(apiKey, fromEmail, fromName string, logger *logrus.Logger) *ResendProvider {
	return &ResendProvider{
		client: resend.NewClient(apiKey),
		from:   fmt.Sprintf("%s <%s>", fromName, fromEmail),
		logger: logger,
	}
}

func (p *ResendProvider) Name() string {
	return "resend"
}

func (p *ResendProvider) Send(ctx context.Context, msg *Message) error {
	res, err := p.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    p.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}

	p.logger.WithField("message_id", res.Id).Debug("Email sent via Resend")
	return nil
}
