package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/qcom/accounts/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RefreshTokenService tracks issued refresh tokens in Redis so they can be
// rotated and revoked, individually, per family or per user.
type RefreshTokenService struct {
	client *redis.Client
	now    func() time.Time
	logger *logrus.Logger
}

func NewRefreshTokenService(client *redis.Client, logger *logrus.Logger) *RefreshTokenService {
	return &RefreshTokenService{
		client: client,
		now:    time.Now,
		logger: logger,
	}
}

func refreshTokenKey(jti string) string     { return fmt.Sprintf("refresh_token:%s", jti) }
func revokedTokenKey(jti string) string     { return fmt.Sprintf("revoked_token:%s", jti) }
func refreshFamilyKey(family string) string { return fmt.Sprintf("refresh_family:%s", family) }
func refreshUserKey(userID string) string   { return fmt.Sprintf("refresh_user:%s", userID) }

func (s *RefreshTokenService) Store(ctx context.Context, tokenData models.RefreshTokenData) error {
	dataJSON, err := json.Marshal(tokenData)
	if err != nil {
		return fmt.Errorf("failed to marshal token data: %w", err)
	}

	ttl := tokenData.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("refresh token already expired")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, refreshTokenKey(tokenData.JTI), dataJSON, ttl)
		pipe.SAdd(ctx, refreshFamilyKey(tokenData.FamilyID), tokenData.JTI)
		pipe.Expire(ctx, refreshFamilyKey(tokenData.FamilyID), ttl)
		pipe.SAdd(ctx, refreshUserKey(tokenData.UserID), tokenData.JTI)
		pipe.Expire(ctx, refreshUserKey(tokenData.UserID), ttl)
		return nil
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to store refresh token")
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

// Get returns nil, nil when the token is unknown, expired or owned by another user.
func (s *RefreshTokenService) Get(ctx context.Context, userID, jti string) (*models.RefreshTokenData, error) {
	dataJSON, err := s.client.Get(ctx, refreshTokenKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	var tokenData models.RefreshTokenData
	if err := json.Unmarshal([]byte(dataJSON), &tokenData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token data: %w", err)
	}

	if tokenData.UserID != userID {
		return nil, nil
	}

	return &tokenData, nil
}

// Revoke marks the token revoked. Unknown tokens are ignored.
func (s *RefreshTokenService) Revoke(ctx context.Context, userID, jti string) error {
	tokenData, err := s.Get(ctx, userID, jti)
	if err != nil {
		return err
	}
	if tokenData == nil {
		return nil
	}

	ttl := tokenData.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.client.Del(ctx, refreshTokenKey(jti)).Err()
	}

	tokenData.Revoked = true
	dataJSON, err := json.Marshal(tokenData)
	if err != nil {
		return fmt.Errorf("failed to marshal token data: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, refreshTokenKey(jti), dataJSON, ttl)
		pipe.Set(ctx, revokedTokenKey(jti), "1", ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return nil
}

func (s *RefreshTokenService) IsRevoked(ctx context.Context, userID, jti string) (bool, error) {
	exists, err := s.client.Exists(ctx, revokedTokenKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// RevokeFamily revokes every token rotated from the same login.
func (s *RefreshTokenService) RevokeFamily(ctx context.Context, userID, familyID string) error {
	return s.revokeSet(ctx, userID, refreshFamilyKey(familyID))
}

// RevokeAllForUser revokes every refresh token issued to the user.
func (s *RefreshTokenService) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.revokeSet(ctx, userID, refreshUserKey(userID))
}

func (s *RefreshTokenService) revokeSet(ctx context.Context, userID, setKey string) error {
	jtis, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list refresh tokens: %w", err)
	}

	for _, jti := range jtis {
		if err := s.Revoke(ctx, userID, jti); err != nil {
			return err
		}
	}

	return nil
}
