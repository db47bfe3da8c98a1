package service

import "errors"

var (
	// ErrStorageUnavailable wraps backend I/O failures of the OTP or user store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrDeliveryFailed means the code was stored but could not be delivered.
	ErrDeliveryFailed = errors.New("otp delivery failed")
	// ErrInvalidOrExpiredCode covers a wrong code, no pending code and an already used code alike.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired otp")
	// ErrCodeExpired is returned when a matching code was found past its expiry.
	ErrCodeExpired = errors.New("otp expired")
	// ErrVerificationRequired is returned by the verification gate.
	ErrVerificationRequired = errors.New("a verified email or phone is required")

	ErrInvalidPurpose     = errors.New("invalid otp purpose")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrForbidden          = errors.New("permission denied")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token revoked")
)
