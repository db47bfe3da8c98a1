package notification

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogProvider writes messages to the log instead of sending them. Development only.
type LogProvider struct {
	logger *logrus.Logger
}

func NewLogProvider(logger *logrus.Logger) *LogProvider {
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Name() string {
	return "log"
}

func (p *LogProvider) Send(ctx context.Context, msg *Message) error {
	p.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Text,
	}).Info("Email (log provider)")
	return nil
}
