package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/qcom/accounts/internal/config"
	"github.com/qcom/accounts/internal/lazy"
	"github.com/qcom/accounts/internal/models"
	"github.com/sirupsen/logrus"
)

// Mailer renders account emails and hands them to a provider chain that is
// built on first use. If building the chain fails, every send fails until Reset.
type Mailer struct {
	provider    *lazy.Value[Provider]
	otpValidity time.Duration
	sendTimeout time.Duration
	logger      *logrus.Logger
}

func NewMailer(build func(ctx context.Context) (Provider, error), otpValidity, sendTimeout time.Duration, logger *logrus.Logger) *Mailer {
	return &Mailer{
		provider:    lazy.New(build),
		otpValidity: otpValidity,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

func (m *Mailer) DeliverOTP(ctx context.Context, address, code, displayName string, purpose models.OTPPurpose) error {
	msg := otpMessage(address, code, displayName, purpose, int(m.otpValidity.Minutes()))
	return m.send(ctx, msg)
}

func (m *Mailer) SendWelcome(ctx context.Context, address, displayName string) error {
	return m.send(ctx, welcomeMessage(address, displayName))
}

func (m *Mailer) State() lazy.State {
	return m.provider.State()
}

// Reset drops the provider chain so the next send rebuilds it.
func (m *Mailer) Reset() {
	m.provider.Reset()
}

func (m *Mailer) send(ctx context.Context, msg *Message) error {
	provider, err := m.provider.Get(ctx)
	if err != nil {
		return err
	}

	if m.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.sendTimeout)
		defer cancel()
	}

	return provider.Send(ctx, msg)
}

// ProvidersFromConfig returns a builder for the provider chain named in cfg.
func ProvidersFromConfig(cfg *config.EmailConfig, logger *logrus.Logger) func(ctx context.Context) (Provider, error) {
	return func(ctx context.Context) (Provider, error) {
		var providers []Provider
		for _, name := range cfg.Providers {
			switch name {
			case "resend":
				if cfg.ResendAPIKey == "" {
					return nil, fmt.Errorf("RESEND_API_KEY is required for the resend provider")
				}
				providers = append(providers, NewResendProvider(cfg.ResendAPIKey, cfg.FromEmail, cfg.FromName, logger))
			case "mailersend":
				if cfg.MailerSendAPIKey == "" {
					return nil, fmt.Errorf("MAILERSEND_API_KEY is required for the mailersend provider")
				}
				providers = append(providers, NewMailerSendProvider(cfg.MailerSendAPIKey, cfg.FromEmail, cfg.FromName, logger))
			case "log":
				providers = append(providers, NewLogProvider(logger))
			default:
				return nil, fmt.Errorf("unknown email provider %q", name)
			}
		}

		if len(providers) == 0 {
			return nil, ErrNoProviders
		}
		if len(providers) == 1 {
			return providers[0], nil
		}

		logger.WithField("providers", cfg.Providers).Info("Email provider chain initialized")
		return NewMulti(providers, logger), nil
	}
}
