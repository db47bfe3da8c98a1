package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/qcom/accounts/internal/models"
	"github.com/sirupsen/logrus"
)

const refreshSKPrefix = "REFRESH#"

// RefreshTokenRepository keeps refresh token records next to the user profile:
// PK = USER#<userID>, SK = REFRESH#<jti>. Revocation flips the revoked flag and
// leaves the row for DynamoDB TTL to collect at token expiry, so reuse of a
// rotated token stays detectable for its whole lifetime.
type RefreshTokenRepository struct {
	client    DynamoDBAPI
	tableName string
	now       func() time.Time
	logger    *logrus.Logger
}

func NewRefreshTokenRepository(client DynamoDBAPI, tableName string, logger *logrus.Logger) *RefreshTokenRepository {
	return &RefreshTokenRepository{
		client:    client,
		tableName: tableName,
		now:       time.Now,
		logger:    logger,
	}
}

// Store stores refresh token in DynamoDB with TTL
func (r *RefreshTokenRepository) Store(ctx context.Context, tokenData models.RefreshTokenData) error {
	item, err := attributevalue.MarshalMap(tokenData)
	if err != nil {
		return fmt.Errorf("failed to marshal token data: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: tokenData.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: tokenData.GetSK()}
	item["TTL"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(tokenData.ExpiresAt.Unix(), 10)}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).WithField("user_id", tokenData.UserID).Error("Failed to store refresh token in DynamoDB")
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

// Get returns nil, nil for unknown tokens and for rows past expiry that TTL
// has not collected yet.
func (r *RefreshTokenRepository) Get(ctx context.Context, userID, jti string) (*models.RefreshTokenData, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(models.UserPK(userID), refreshSKPrefix+jti),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var tokenData models.RefreshTokenData
	if err := attributevalue.UnmarshalMap(result.Item, &tokenData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token data: %w", err)
	}

	if !r.now().Before(tokenData.ExpiresAt) {
		return nil, nil
	}

	return &tokenData, nil
}

func (r *RefreshTokenRepository) IsRevoked(ctx context.Context, userID, jti string) (bool, error) {
	tokenData, err := r.Get(ctx, userID, jti)
	if err != nil {
		return false, err
	}
	return tokenData != nil && tokenData.Revoked, nil
}

// Revoke marks the token revoked. Unknown tokens are ignored.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, userID, jti string) error {
	return r.markRevoked(ctx, itemKey(models.UserPK(userID), refreshSKPrefix+jti))
}

// RevokeFamily revokes every token of the user rotated from the same login.
func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, userID, familyID string) error {
	keys, err := queryAllKeys(ctx, r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk_prefix)"),
		FilterExpression:       aws.String("#family_id = :family_id"),
		ExpressionAttributeNames: map[string]string{
			"#family_id": "family_id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":        &types.AttributeValueMemberS{Value: models.UserPK(userID)},
			":sk_prefix": &types.AttributeValueMemberS{Value: refreshSKPrefix},
			":family_id": &types.AttributeValueMemberS{Value: familyID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to query tokens by family ID: %w", err)
	}

	return r.revokeKeys(ctx, keys)
}

// RevokeAllForUser revokes every refresh token issued to the user.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	keys, err := queryAllKeys(ctx, r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk_prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":        &types.AttributeValueMemberS{Value: models.UserPK(userID)},
			":sk_prefix": &types.AttributeValueMemberS{Value: refreshSKPrefix},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to query tokens by user: %w", err)
	}

	if err := r.revokeKeys(ctx, keys); err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"count":   len(keys),
	}).Info("Revoked refresh tokens for user")
	return nil
}

func (r *RefreshTokenRepository) revokeKeys(ctx context.Context, keys []map[string]types.AttributeValue) error {
	for _, key := range keys {
		if err := r.markRevoked(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (r *RefreshTokenRepository) markRevoked(ctx context.Context, key map[string]types.AttributeValue) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 key,
		UpdateExpression:    aws.String("SET #revoked = :revoked"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#revoked": "revoked",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":revoked": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil
		}
		return fmt.Errorf("failed to mark token as revoked: %w", err)
	}
	return nil
}
