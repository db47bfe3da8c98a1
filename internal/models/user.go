package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID              string    `json:"id" dynamodbav:"id"`
	TenantID        string    `json:"tenant_id,omitempty" dynamodbav:"tenant_id,omitempty"`
	Email           string    `json:"email" dynamodbav:"email"`
	PhoneNumber     string    `json:"phone_number,omitempty" dynamodbav:"phone_number,omitempty"`
	Name            string    `json:"name,omitempty" dynamodbav:"name,omitempty"`
	PasswordHash    string    `json:"-" dynamodbav:"password_hash"`
	Role            Role      `json:"role" dynamodbav:"role"`
	IsEmailVerified bool      `json:"is_email_verified" dynamodbav:"is_email_verified"`
	IsPhoneVerified bool      `json:"is_phone_verified" dynamodbav:"is_phone_verified"`
	CreatedAt       time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// DisplayName is the name used in outgoing mail.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return "there"
}

func (u *User) GetPK() string {
	return UserPK(u.ID)
}

func (u *User) GetSK() string {
	return "PROFILE"
}

func UserPK(userID string) string {
	return "USER#" + userID
}

// EmailLockPK keys the item that reserves an email address for exactly one user.
func EmailLockPK(email string) string {
	return "EMAIL#" + NormalizeEmail(email)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
