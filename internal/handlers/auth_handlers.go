package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/qcom/accounts/internal/middleware"
	"github.com/qcom/accounts/internal/models"
	"github.com/qcom/accounts/internal/service"
	"github.com/sirupsen/logrus"
)

// Accounts is the account service as seen by the HTTP layer.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.TokenPair, *models.User, error)
	VerifyEmail(ctx context.Context, userID, code string) (*models.User, error)
	VerifyEmailByAddress(ctx context.Context, email, code string) (*models.User, error)
	ResendVerification(ctx context.Context, userID string) error
	ResendVerificationByEmail(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, update service.ProfileUpdate) (*models.User, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	DeleteAccount(ctx context.Context, userID string) error
	DeleteUser(ctx context.Context, actor *service.Claims, userID string) error
	SetRole(ctx context.Context, actor *service.Claims, userID string, role models.Role) (*models.User, error)
}

type AuthHandlers struct {
	accounts Accounts
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewAuthHandlers(accounts Accounts, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		accounts: accounts,
		validate: newValidator(),
		logger:   logger,
	}
}

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	Name        string `json:"name" validate:"omitempty,max=100"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
}

type RegisterResponse struct {
	User             UserResponse `json:"user"`
	VerificationSent bool         `json:"verification_sent"`
	Message          string       `json:"message"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyEmailRequest identifies the user by bearer token or, without one, by email.
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type ResendOTPRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	user, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil && user != nil && errors.Is(err, service.ErrDeliveryFailed) {
		h.logger.WithError(err).WithField("user_id", user.ID).Warn("Registered without delivering verification code")
		respondWithJSON(w, http.StatusCreated, RegisterResponse{
			User:             newUserResponse(user),
			VerificationSent: false,
			Message:          "Account created, but the verification code could not be sent. Request a new one.",
		})
		return
	}
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, RegisterResponse{
		User:             newUserResponse(user),
		VerificationSent: true,
		Message:          "Account created, check your email for the verification code",
	})
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	pair, user, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newTokenResponse(pair, user))
}

func (h *AuthHandlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	var (
		user *models.User
		err  error
	)
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		user, err = h.accounts.VerifyEmail(r.Context(), claims.UserID(), req.OTP)
	} else if req.Email != "" {
		user, err = h.accounts.VerifyEmailByAddress(r.Context(), req.Email, req.OTP)
	} else {
		respondWithError(w, http.StatusBadRequest, "VALIDATION_FAILED", "email is required when not signed in")
		return
	}
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *AuthHandlers) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req ResendOTPRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	var err error
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		err = h.accounts.ResendVerification(r.Context(), claims.UserID())
	} else if req.Email != "" {
		err = h.accounts.ResendVerificationByEmail(r.Context(), req.Email)
	} else {
		respondWithError(w, http.StatusBadRequest, "VALIDATION_FAILED", "email is required when not signed in")
		return
	}
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "If the account exists, a new code has been sent"})
}

func (h *AuthHandlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if err := h.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "If the account exists, a reset code has been sent"})
}

func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Password updated"})
}

func (h *AuthHandlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	pair, err := h.accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newTokenResponse(pair, nil))
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if err := h.accounts.Logout(r.Context(), req.RefreshToken); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}
