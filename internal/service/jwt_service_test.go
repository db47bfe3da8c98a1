package service

import (
	"testing"
	"time"

	"github.com/qcom/accounts/internal/config"
	"github.com/qcom/accounts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	_, err := NewJWTService(&config.JWTConfig{SecretKey: "short"}, testLogger())
	require.Error(t, err)
}

func TestGenerateAndVerifyTokenPair(t *testing.T) {
	svc := newTestJWTService(t)
	user := &models.User{ID: "user-1", Email: "ada@example.com", Role: models.RoleAdmin}

	pair, refreshClaims, err := svc.GenerateTokenPair(user, "")
	require.NoError(t, err)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.NotEmpty(t, refreshClaims.FamilyID)

	access, err := svc.VerifyToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", access.UserID())
	assert.Equal(t, TokenTypeAccess, access.Type)
	assert.Equal(t, models.RoleAdmin, access.Role)
	assert.Empty(t, access.FamilyID)

	refresh, err := svc.VerifyToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.Type)
	assert.Equal(t, refreshClaims.ID, refresh.ID)
	assert.Equal(t, refreshClaims.FamilyID, refresh.FamilyID)

	_, next, err := svc.GenerateTokenPair(user, refresh.FamilyID)
	require.NoError(t, err)
	assert.Equal(t, refresh.FamilyID, next.FamilyID)
	assert.NotEqual(t, refresh.ID, next.ID)
}

func TestVerifyTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := newTestJWTService(t)
	user := &models.User{ID: "user-1", Email: "ada@example.com", Role: models.RoleUser}

	pair, _, err := svc.GenerateTokenPair(user, "")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = svc.VerifyToken(pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewJWTService(&config.JWTConfig{
		SecretKey:     "ffffffffffffffffffffffffffffffff",
		AccessExpiry:  time.Minute,
		RefreshExpiry: time.Hour,
	}, testLogger())
	require.NoError(t, err)
	_, err = other.VerifyToken(pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}
