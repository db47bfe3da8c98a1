package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/qcom/accounts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUser(id, email string) *models.User {
	return &models.User{
		ID:           id,
		Email:        email,
		Name:         "Ada",
		PasswordHash: "hash",
		Role:         models.RoleUser,
	}
}

func TestUserRepositoryCreateAndLookup(t *testing.T) {
	db := newFakeDynamoDB()
	repo := NewUserRepository(db, "Accounts", testLogger())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestUser("user-1", " Ada@Example.com")))
	require.Len(t, db.transactions, 1)
	assert.Len(t, db.transactions[0].TransactItems, 2)

	user, err := repo.GetByID(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "hash", user.PasswordHash)
	assert.False(t, user.CreatedAt.IsZero())

	byEmail, err := repo.GetByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "user-1", byEmail.ID)

	missing, err := repo.GetByID(ctx, "user-2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = repo.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepositoryCreateRejectsDuplicateEmail(t *testing.T) {
	db := newFakeDynamoDB()
	repo := NewUserRepository(db, "Accounts", testLogger())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestUser("user-1", "ada@example.com")))

	err := repo.Create(ctx, newTestUser("user-2", "ADA@example.com"))
	require.ErrorIs(t, err, ErrUserExists)

	missing, err := repo.GetByID(ctx, "user-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepositoryUpdates(t *testing.T) {
	db := newFakeDynamoDB()
	repo := NewUserRepository(db, "Accounts", testLogger())
	ctx := context.Background()

	user := newTestUser("user-1", "ada@example.com")
	require.NoError(t, repo.Create(ctx, user))

	user.Name = "Ada Lovelace"
	user.PhoneNumber = "+15550100"
	require.NoError(t, repo.UpdateProfile(ctx, user))
	require.NoError(t, repo.SetEmailVerified(ctx, "user-1", true))
	require.NoError(t, repo.UpdatePassword(ctx, "user-1", "new-hash"))
	require.NoError(t, repo.UpdateRole(ctx, "user-1", models.RoleAdmin))

	stored, err := repo.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", stored.Name)
	assert.Equal(t, "+15550100", stored.PhoneNumber)
	assert.True(t, stored.IsEmailVerified)
	assert.Equal(t, "new-hash", stored.PasswordHash)
	assert.Equal(t, models.RoleAdmin, stored.Role)

	require.ErrorIs(t, repo.SetEmailVerified(ctx, "missing", true), ErrUserNotFound)
}

func TestUserRepositoryDeleteReleasesEmail(t *testing.T) {
	db := newFakeDynamoDB()
	repo := NewUserRepository(db, "Accounts", testLogger())
	ctx := context.Background()

	user := newTestUser("user-1", "ada@example.com")
	require.NoError(t, repo.Create(ctx, user))
	require.NoError(t, repo.Delete(ctx, user))

	missing, err := repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Create(ctx, newTestUser("user-2", "ada@example.com")))
}

func TestUserRepositoryBackendError(t *testing.T) {
	db := newFakeDynamoDB()
	db.err = errors.New("throttled")
	repo := NewUserRepository(db, "Accounts", testLogger())

	_, err := repo.GetByID(context.Background(), "user-1")
	require.Error(t, err)
	require.Error(t, repo.Create(context.Background(), newTestUser("user-1", "ada@example.com")))
}
