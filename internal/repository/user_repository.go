package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/qcom/accounts/internal/models"
	"github.com/sirupsen/logrus"
)

const emailLockSK = "LOOKUP"

var (
	// ErrUserExists is returned when the email address is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by writes that target a missing user.
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository stores profiles under USER#<id>/PROFILE and reserves each
// email address with an EMAIL#<email>/LOOKUP item written in the same transaction.
type UserRepository struct {
	client    DynamoDBAPI
	tableName string
	logger    *logrus.Logger
}

func NewUserRepository(client DynamoDBAPI, tableName string, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// GetByID returns nil, nil when the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(models.UserPK(userID), (&models.User{}).GetSK()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get user from DynamoDB")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(result.Item, &user); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal user from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &user, nil
}

// GetByEmail resolves the email reservation and loads the owning user.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(models.EmailLockPK(email), emailLockSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get email lookup from DynamoDB")
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	userID, ok := result.Item["user_id"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("email lookup for %s has no user_id", models.NormalizeEmail(email))
	}

	return r.GetByID(ctx, userID.Value)
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.Email = models.NormalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal user for DynamoDB")
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: user.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: user.GetSK()}

	lock := itemKey(models.EmailLockPK(user.Email), emailLockSK)
	lock["user_id"] = &types.AttributeValueMemberS{Value: user.ID}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                lock,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrUserExists
		}
		r.logger.WithError(err).Error("Failed to create user in DynamoDB")
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// UpdateProfile writes the mutable profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	return r.updateFields(ctx, user.ID, map[string]types.AttributeValue{
		"name":         &types.AttributeValueMemberS{Value: user.Name},
		"phone_number": &types.AttributeValueMemberS{Value: user.PhoneNumber},
	}, user.UpdatedAt)
}

func (r *UserRepository) SetEmailVerified(ctx context.Context, userID string, verified bool) error {
	return r.updateFields(ctx, userID, map[string]types.AttributeValue{
		"is_email_verified": &types.AttributeValueMemberBOOL{Value: verified},
	}, time.Now().UTC())
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return r.updateFields(ctx, userID, map[string]types.AttributeValue{
		"password_hash": &types.AttributeValueMemberS{Value: passwordHash},
	}, time.Now().UTC())
}

func (r *UserRepository) UpdateRole(ctx context.Context, userID string, role models.Role) error {
	return r.updateFields(ctx, userID, map[string]types.AttributeValue{
		"role": &types.AttributeValueMemberS{Value: string(role)},
	}, time.Now().UTC())
}

// Delete removes the profile and releases its email reservation.
func (r *UserRepository) Delete(ctx context.Context, user *models.User) error {
	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       itemKey(user.GetPK(), user.GetSK()),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       itemKey(models.EmailLockPK(user.Email), emailLockSK),
			}},
		},
	})
	if err != nil {
		r.logger.WithError(err).WithField("user_id", user.ID).Error("Failed to delete user in DynamoDB")
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return nil
}

func (r *UserRepository) updateFields(ctx context.Context, userID string, fields map[string]types.AttributeValue, updatedAt time.Time) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	assignments := make([]string, 0, len(names)+1)
	expressionAttributeNames := make(map[string]string, len(names)+1)
	expressionAttributeValues := make(map[string]types.AttributeValue, len(names)+1)
	for i, name := range names {
		placeholder := fmt.Sprintf("f%d", i)
		assignments = append(assignments, fmt.Sprintf("#%s = :%s", placeholder, placeholder))
		expressionAttributeNames["#"+placeholder] = name
		expressionAttributeValues[":"+placeholder] = fields[name]
	}
	assignments = append(assignments, "#updated_at = :updated_at")
	expressionAttributeNames["#updated_at"] = "updated_at"
	expressionAttributeValues[":updated_at"] = &types.AttributeValueMemberS{Value: updatedAt.Format(time.RFC3339Nano)}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       itemKey(models.UserPK(userID), (&models.User{}).GetSK()),
		UpdateExpression:          aws.String("SET " + strings.Join(assignments, ", ")),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames:  expressionAttributeNames,
		ExpressionAttributeValues: expressionAttributeValues,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrUserNotFound
		}
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to update user in DynamoDB")
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}
