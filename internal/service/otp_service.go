package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qcom/accounts/internal/metrics"
	"github.com/qcom/accounts/internal/models"
	"github.com/sirupsen/logrus"
)

// OTPLifetime is how long an issued code stays valid. It is never extended.
const OTPLifetime = 5 * time.Minute

// OTPStore persists OTP records. FindOne returns nil, nil when nothing matches.
type OTPStore interface {
	Create(ctx context.Context, otp *models.OTPRecord) error
	FindOne(ctx context.Context, userID, code string, purpose models.OTPPurpose) (*models.OTPRecord, error)
	DeleteMany(ctx context.Context, userID string, purpose models.OTPPurpose) error
	DeleteOne(ctx context.Context, userID, id string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) error
}

// Notifier delivers an issued code to its owner.
type Notifier interface {
	DeliverOTP(ctx context.Context, address, code, displayName string, purpose models.OTPPurpose) error
}

// OTPOption customises the OTPService.
type OTPOption func(*OTPService)

// WithClock injects a custom time source.
func WithClock(now func() time.Time) OTPOption {
	return func(s *OTPService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCodeGenerator replaces the crypto/rand generator.
func WithCodeGenerator(g CodeGenerator) OTPOption {
	return func(s *OTPService) {
		if g != nil {
			s.generator = g
		}
	}
}

// OTPService owns the lifecycle of one-time codes: issue, verify, resend and purge.
// It keeps no state of its own; the store is the single source of truth.
type OTPService struct {
	store     OTPStore
	notifier  Notifier
	generator CodeGenerator
	now       func() time.Time
	logger    *logrus.Logger
}

func NewOTPService(store OTPStore, notifier Notifier, logger *logrus.Logger, opts ...OTPOption) *OTPService {
	s := &OTPService{
		store:     store,
		notifier:  notifier,
		generator: NewRandomCodeGenerator(),
		now:       time.Now,
		logger:    logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Issue creates a fresh code for (userID, purpose), invalidating any outstanding
// one, and delivers it to email. A delivery failure leaves the new record in place.
func (s *OTPService) Issue(ctx context.Context, userID, email, displayName string, purpose models.OTPPurpose) error {
	if !purpose.Valid() {
		return ErrInvalidPurpose
	}

	code, err := s.generator.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate OTP: %w", err)
	}

	now := s.now()
	otp := &models.OTPRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(OTPLifetime),
	}

	if err := s.store.DeleteMany(ctx, userID, purpose); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if err := s.store.Create(ctx, otp); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	metrics.OTPIssued.WithLabelValues(string(purpose)).Inc()

	if err := s.notifier.DeliverOTP(ctx, email, code, displayName, purpose); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"purpose": purpose,
		}).Error("Failed to deliver OTP")
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"purpose":    purpose,
		"expires_at": otp.ExpiresAt,
	}).Info("OTP issued")

	return nil
}

// Resend reissues a code. The previous code stops working.
func (s *OTPService) Resend(ctx context.Context, userID, email, displayName string, purpose models.OTPPurpose) error {
	return s.Issue(ctx, userID, email, displayName, purpose)
}

// Verify consumes a matching live code. Wrong, missing and already used codes all
// yield ErrInvalidOrExpiredCode; a matching code past its expiry yields ErrCodeExpired.
func (s *OTPService) Verify(ctx context.Context, userID, code string, purpose models.OTPPurpose) error {
	if !purpose.Valid() {
		return ErrInvalidPurpose
	}

	if code == "" {
		s.observe(purpose, "invalid")
		return ErrInvalidOrExpiredCode
	}

	otp, err := s.store.FindOne(ctx, userID, code, purpose)
	if err != nil {
		s.observe(purpose, "error")
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if otp == nil {
		s.observe(purpose, "invalid")
		return ErrInvalidOrExpiredCode
	}

	if s.now().After(otp.ExpiresAt) {
		if _, err := s.store.DeleteOne(ctx, userID, otp.ID); err != nil {
			s.observe(purpose, "error")
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		s.observe(purpose, "expired")
		return ErrCodeExpired
	}

	deleted, err := s.store.DeleteOne(ctx, userID, otp.ID)
	if err != nil {
		s.observe(purpose, "error")
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	// A concurrent verify consumed it between lookup and delete.
	if !deleted {
		s.observe(purpose, "invalid")
		return ErrInvalidOrExpiredCode
	}

	s.observe(purpose, "success")
	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"purpose": purpose,
	}).Info("OTP verified")

	return nil
}

// PurgeUser deletes every code of the user across all purposes.
func (s *OTPService) PurgeUser(ctx context.Context, userID string) error {
	if err := s.store.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *OTPService) observe(purpose models.OTPPurpose, result string) {
	metrics.OTPVerifications.WithLabelValues(string(purpose), result).Inc()
}
