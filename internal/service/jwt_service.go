package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/qcom/accounts/internal/config"
	"github.com/qcom/accounts/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type JWTService struct {
	secretKey     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
	logger        *logrus.Logger
}

func NewJWTService(cfg *config.JWTConfig, logger *logrus.Logger) (*JWTService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &JWTService{
		secretKey:     secretKey,
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		now:           time.Now,
		logger:        logger,
	}, nil
}

type Claims struct {
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
	TenantID string      `json:"tenant_id,omitempty"`
	Type     string      `json:"type"`
	FamilyID string      `json:"family_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID is the subject of the token.
func (c *Claims) UserID() string {
	return c.Subject
}

// RefreshTokenData is the server-side record kept for a refresh token.
func (c *Claims) RefreshTokenData() models.RefreshTokenData {
	data := models.RefreshTokenData{
		JTI:      c.ID,
		UserID:   c.Subject,
		FamilyID: c.FamilyID,
	}
	if c.IssuedAt != nil {
		data.CreatedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		data.ExpiresAt = c.ExpiresAt.Time
	}
	return data
}

// GenerateTokenPair signs an access and a refresh token for the user. An empty
// familyID starts a new refresh family.
func (s *JWTService) GenerateTokenPair(user *models.User, familyID string) (*models.TokenPair, *Claims, error) {
	now := s.now()
	if familyID == "" {
		familyID = uuid.New().String()
	}

	accessClaims := s.claims(user, TokenTypeAccess, "", now, s.accessExpiry)
	accessToken, err := s.sign(accessClaims)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign access token")
		return nil, nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshClaims := s.claims(user, TokenTypeRefresh, familyID, now, s.refreshExpiry)
	refreshToken, err := s.sign(refreshClaims)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign refresh token")
		return nil, nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessExpiry.Seconds()),
	}, refreshClaims, nil
}

func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *JWTService) claims(user *models.User, tokenType, familyID string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		Email:    user.Email,
		Role:     user.Role,
		TenantID: user.TenantID,
		Type:     tokenType,
		FamilyID: familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}
}

func (s *JWTService) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}
