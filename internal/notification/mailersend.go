package notification

import (
	"context"
	"fmt"

	"github.com/mailersend/mailersend-go"
	"github.com/sirupsen/logrus"
)

type MailerSendProvider struct {
	client *mailersend.Mailersend
	from   mailersend.From
	logger *logrus.Logger
}

func NewMailerSendProvider(apiKey, fromEmail, fromName string, logger *logrus.Logger) *MailerSendProvider {
	return &MailerSendProvider{
		client: mailersend.NewMailersend(apiKey),
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
		logger: logger,
	}
}

func (p *MailerSendProvider) Name() string {
	return "mailersend"
}

func (p *MailerSendProvider) Send(ctx context.Context, msg *Message) error {
	message := p.client.Email.NewMessage()
	message.SetFrom(p.from)
	message.SetRecipients([]mailersend.Recipient{
		{
			Name:  msg.ToName,
			Email: msg.To,
		},
	})
	message.SetSubject(msg.Subject)
	message.SetHTML(msg.HTML)
	message.SetText(msg.Text)

	res, err := p.client.Email.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("mailersend: failed to send email: %w", err)
	}

	p.logger.WithField("message_id", res.Header.Get("X-Message-Id")).Debug("Email sent via MailerSend")
	return nil
}
