// Package notification delivers account emails through a fallback chain of providers.
package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/qcom/accounts/internal/metrics"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// ErrNoProviders is returned by an empty chain.
var ErrNoProviders = errors.New("no email providers configured")

type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// Provider sends a rendered message through one email service.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// Multi tries each provider in order until one succeeds.
type Multi struct {
	providers []Provider
	logger    *logrus.Logger
}

func NewMulti(providers []Provider, logger *logrus.Logger) *Multi {
	return &Multi{providers: providers, logger: logger}
}

func (m *Multi) Name() string {
	return "multi"
}

func (m *Multi) Send(ctx context.Context, msg *Message) error {
	if len(m.providers) == 0 {
		return ErrNoProviders
	}

	var errs error
	for _, provider := range m.providers {
		err := provider.Send(ctx, msg)
		if err == nil {
			return nil
		}

		metrics.NotificationFailures.WithLabelValues(provider.Name()).Inc()
		m.logger.WithError(err).WithField("provider", provider.Name()).Warn("Email provider failed, trying next")
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
	}

	return fmt.Errorf("all email providers failed: %w", errs)
}
