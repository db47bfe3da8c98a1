package service

import "github.com/qcom/accounts/internal/models"

// RequireVerifiedChannel guards sensitive profile operations. It only inspects
// the already loaded flags, which are set after a successful Verify.
func RequireVerifiedChannel(user *models.User) error {
	if user == nil || !(user.IsEmailVerified || user.IsPhoneVerified) {
		return ErrVerificationRequired
	}
	return nil
}
