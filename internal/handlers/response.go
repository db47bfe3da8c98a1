package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/qcom/accounts/internal/models"
	"github.com/qcom/accounts/internal/service"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UserResponse struct {
	ID              string      `json:"id"`
	Email           string      `json:"email"`
	Name            string      `json:"name,omitempty"`
	PhoneNumber     string      `json:"phone_number,omitempty"`
	Role            models.Role `json:"role"`
	IsEmailVerified bool        `json:"is_email_verified"`
	IsPhoneVerified bool        `json:"is_phone_verified"`
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		PhoneNumber:     u.PhoneNumber,
		Role:            u.Role,
		IsEmailVerified: u.IsEmailVerified,
		IsPhoneVerified: u.IsPhoneVerified,
	}
}

type TokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	User         *UserResponse `json:"user,omitempty"`
}

func newTokenResponse(pair *models.TokenPair, user *models.User) TokenResponse {
	resp := TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	}
	if user != nil {
		u := newUserResponse(user)
		resp.User = &u
	}
	return resp
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{service.ErrCodeExpired, http.StatusBadRequest, "OTP_EXPIRED", "The code has expired, request a new one"},
	{service.ErrInvalidOrExpiredCode, http.StatusBadRequest, "INVALID_OTP", "Invalid or expired code"},
	{service.ErrInvalidPurpose, http.StatusBadRequest, "INVALID_PURPOSE", "Invalid code purpose"},
	{service.ErrDeliveryFailed, http.StatusBadGateway, "DELIVERY_FAILED", "The code could not be delivered"},
	{service.ErrVerificationRequired, http.StatusForbidden, "VERIFICATION_REQUIRED", "A verified email or phone is required"},
	{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Permission denied"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"},
	{service.ErrTokenRevoked, http.StatusUnauthorized, "TOKEN_REVOKED", "Token has been revoked"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token"},
	{service.ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN", "Email is already registered"},
	{service.ErrAlreadyVerified, http.StatusConflict, "ALREADY_VERIFIED", "Email is already verified"},
	{service.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND", "User not found"},
	{service.ErrStorageUnavailable, http.StatusInternalServerError, "STORAGE_UNAVAILABLE", "Storage is temporarily unavailable"},
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// respondWithServiceError maps a service error to its HTTP response. Server
// side failures are logged.
func respondWithServiceError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				logger.WithError(err).Error("Request failed")
			}
			respondWithError(w, m.status, m.code, m.message)
			return
		}
	}

	logger.WithError(err).Error("Unhandled error")
	respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}
