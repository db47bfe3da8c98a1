package models

import "time"

// OTPPurpose partitions OTP records of the same user into independent streams.
type OTPPurpose string

const (
	PurposeEmailVerification OTPPurpose = "email_verification"
	PurposePasswordReset     OTPPurpose = "password_reset"
	PurposePhoneVerification OTPPurpose = "phone_verification"
)

func (p OTPPurpose) Valid() bool {
	switch p {
	case PurposeEmailVerification, PurposePasswordReset, PurposePhoneVerification:
		return true
	}
	return false
}

// OTPRecord is a single issued code. Email is pinned to the address the code was sent to.
type OTPRecord struct {
	ID        string     `json:"id" dynamodbav:"id"`
	UserID    string     `json:"user_id" dynamodbav:"user_id"`
	Email     string     `json:"email" dynamodbav:"email"`
	Code      string     `json:"code" dynamodbav:"code"`
	Purpose   OTPPurpose `json:"purpose" dynamodbav:"purpose"`
	Consumed  bool       `json:"consumed" dynamodbav:"consumed"`
	CreatedAt time.Time  `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt time.Time  `json:"expires_at" dynamodbav:"expires_at"`
}

// Live reports whether the record can still satisfy a verification at now.
func (o *OTPRecord) Live(now time.Time) bool {
	return !o.Consumed && !now.After(o.ExpiresAt)
}

func (o *OTPRecord) GetPK() string {
	return UserPK(o.UserID)
}

func (o *OTPRecord) GetSK() string {
	return "OTP#" + o.ID
}
