package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/qcom/accounts/internal/models"
	"github.com/qcom/accounts/internal/repository"
	"github.com/sirupsen/logrus"
)

// UserStore persists user profiles. Lookups return nil, nil for unknown users.
type UserStore interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, user *models.User) error
	SetEmailVerified(ctx context.Context, userID string, verified bool) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateRole(ctx context.Context, userID string, role models.Role) error
	Delete(ctx context.Context, user *models.User) error
}

// RefreshTokenStore tracks issued refresh tokens.
type RefreshTokenStore interface {
	Store(ctx context.Context, tokenData models.RefreshTokenData) error
	Get(ctx context.Context, userID, jti string) (*models.RefreshTokenData, error)
	Revoke(ctx context.Context, userID, jti string) error
	IsRevoked(ctx context.Context, userID, jti string) (bool, error)
	RevokeFamily(ctx context.Context, userID, familyID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// WelcomeNotifier sends the greeting that follows a successful email verification.
type WelcomeNotifier interface {
	SendWelcome(ctx context.Context, address, displayName string) error
}

type RegisterInput struct {
	Email       string
	Password    string
	Name        string
	PhoneNumber string
}

// ProfileUpdate carries the fields a user may change. Nil fields are left untouched.
type ProfileUpdate struct {
	Name        *string
	PhoneNumber *string
}

// AccountService implements the account flows on top of the user store, the
// OTP lifecycle and the token services.
type AccountService struct {
	users   UserStore
	otp     *OTPService
	jwt     *JWTService
	tokens  RefreshTokenStore
	welcome WelcomeNotifier
	logger  *logrus.Logger
}

func NewAccountService(
	users UserStore,
	otp *OTPService,
	jwt *JWTService,
	tokens RefreshTokenStore,
	welcome WelcomeNotifier,
	logger *logrus.Logger,
) *AccountService {
	return &AccountService{
		users:   users,
		otp:     otp,
		jwt:     jwt,
		tokens:  tokens,
		welcome: welcome,
		logger:  logger,
	}
}

// Register creates an unverified account and issues an email verification code.
// When only the delivery fails the created user is returned together with the error.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        models.NormalizeEmail(in.Email),
		PhoneNumber:  in.PhoneNumber,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	s.logger.WithField("user_id", user.ID).Info("User registered")

	if err := s.otp.Issue(ctx, user.ID, user.Email, user.DisplayName(), models.PurposeEmailVerification); err != nil {
		return user, err
	}

	return user, nil
}

func (s *AccountService) Login(ctx context.Context, email, password string) (*models.TokenPair, *models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}

	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokens(ctx, user, "")
	if err != nil {
		return nil, nil, err
	}

	return pair, user, nil
}

// VerifyEmail consumes an email verification code and marks the address verified.
func (s *AccountService) VerifyEmail(ctx context.Context, userID, code string) (*models.User, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.verifyEmail(ctx, user, code)
}

// VerifyEmailByAddress is VerifyEmail for callers without a session. Unknown
// and already verified addresses are indistinguishable from a wrong code.
func (s *AccountService) VerifyEmailByAddress(ctx context.Context, email, code string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if user == nil || user.IsEmailVerified {
		return nil, ErrInvalidOrExpiredCode
	}
	return s.verifyEmail(ctx, user, code)
}

func (s *AccountService) verifyEmail(ctx context.Context, user *models.User, code string) (*models.User, error) {
	if user.IsEmailVerified {
		return nil, ErrAlreadyVerified
	}

	if err := s.otp.Verify(ctx, user.ID, code, models.PurposeEmailVerification); err != nil {
		return nil, err
	}

	if err := s.users.SetEmailVerified(ctx, user.ID, true); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	user.IsEmailVerified = true

	if err := s.welcome.SendWelcome(ctx, user.Email, user.DisplayName()); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to send welcome email")
	}

	s.logger.WithField("user_id", user.ID).Info("Email verified")

	return user, nil
}

// ResendVerification reissues the email verification code of a signed in user.
func (s *AccountService) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.resendVerification(ctx, user)
}

// ResendVerificationByEmail silently ignores unknown and already verified addresses.
func (s *AccountService) ResendVerificationByEmail(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if user == nil || user.IsEmailVerified {
		return nil
	}
	return s.resendVerification(ctx, user)
}

func (s *AccountService) resendVerification(ctx context.Context, user *models.User) error {
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}
	return s.otp.Resend(ctx, user.ID, user.Email, user.DisplayName(), models.PurposeEmailVerification)
}

// ForgotPassword issues a password reset code. Unknown addresses succeed silently.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if user == nil {
		s.logger.Debug("Password reset requested for unknown email")
		return nil
	}

	return s.otp.Issue(ctx, user.ID, user.Email, user.DisplayName(), models.PurposePasswordReset)
}

// ResetPassword consumes a password reset code, stores the new password and
// signs the user out everywhere.
func (s *AccountService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if user == nil {
		return ErrInvalidOrExpiredCode
	}

	if err := s.otp.Verify(ctx, user.ID, code, models.PurposePasswordReset); err != nil {
		return err
	}

	return s.setPassword(ctx, user, newPassword)
}

// Refresh rotates a refresh token. Presenting an already rotated token revokes
// its whole family.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.jwt.VerifyToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeRefresh {
		return nil, ErrInvalidToken
	}

	revoked, err := s.tokens.IsRevoked(ctx, claims.UserID(), claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if revoked {
		s.logger.WithFields(logrus.Fields{
			"user_id":   claims.UserID(),
			"family_id": claims.FamilyID,
		}).Warn("Refresh token reuse detected, revoking family")
		if err := s.tokens.RevokeFamily(ctx, claims.UserID(), claims.FamilyID); err != nil {
			s.logger.WithError(err).Error("Failed to revoke token family")
		}
		return nil, ErrTokenRevoked
	}

	tokenData, err := s.tokens.Get(ctx, claims.UserID(), claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if tokenData == nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	if err := s.tokens.Revoke(ctx, claims.UserID(), claims.ID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	return s.issueTokens(ctx, user, tokenData.FamilyID)
}

func (s *AccountService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.jwt.VerifyToken(refreshToken)
	if err != nil {
		return err
	}
	if claims.Type != TokenTypeRefresh {
		return ErrInvalidToken
	}

	if err := s.tokens.Revoke(ctx, claims.UserID(), claims.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *AccountService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.loadUser(ctx, userID)
}

// UpdateProfile requires a verified email or phone.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*models.User, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := RequireVerifiedChannel(user); err != nil {
		return nil, err
	}

	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.PhoneNumber != nil {
		user.PhoneNumber = *update.PhoneNumber
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, s.userWriteError(err)
	}

	return user, nil
}

// ChangePassword requires a verified email or phone and the current password.
func (s *AccountService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := RequireVerifiedChannel(user); err != nil {
		return err
	}

	if err := CheckPassword(user.PasswordHash, currentPassword); err != nil {
		return err
	}

	return s.setPassword(ctx, user, newPassword)
}

// DeleteAccount removes the caller's account, its codes and its sessions.
func (s *AccountService) DeleteAccount(ctx context.Context, userID string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.deleteUser(ctx, user)
}

// DeleteUser is the administrative variant of DeleteAccount.
func (s *AccountService) DeleteUser(ctx context.Context, actor *Claims, userID string) error {
	if actor == nil || actor.Role != models.RoleAdmin {
		return ErrForbidden
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"admin_id": actor.UserID(),
		"user_id":  userID,
	}).Info("Admin deleting user")

	return s.deleteUser(ctx, user)
}

func (s *AccountService) SetRole(ctx context.Context, actor *Claims, userID string, role models.Role) (*models.User, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		return nil, s.userWriteError(err)
	}
	user.Role = role

	return user, nil
}

func (s *AccountService) deleteUser(ctx context.Context, user *models.User) error {
	if err := s.otp.PurgeUser(ctx, user.ID); err != nil {
		return err
	}

	if err := s.tokens.RevokeAllForUser(ctx, user.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if err := s.users.Delete(ctx, user); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	s.logger.WithField("user_id", user.ID).Info("User deleted")

	return nil
}

func (s *AccountService) setPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return s.userWriteError(err)
	}
	user.PasswordHash = hash

	if err := s.tokens.RevokeAllForUser(ctx, user.ID); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Error("Failed to revoke sessions after password change")
	}

	return nil
}

func (s *AccountService) issueTokens(ctx context.Context, user *models.User, familyID string) (*models.TokenPair, error) {
	pair, refreshClaims, err := s.jwt.GenerateTokenPair(user, familyID)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Store(ctx, refreshClaims.RefreshTokenData()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	return pair, nil
}

func (s *AccountService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AccountService) userWriteError(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
