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

const otpSKPrefix = "OTP#"

// OTPRepository stores OTP records in the user's partition of the single table:
// PK = USER#<userID>, SK = OTP#<id>. The TTL attribute lets DynamoDB evict rows
// once ExpiresAt plus the retention grace has passed.
type OTPRepository struct {
	client    DynamoDBAPI
	tableName string
	grace     time.Duration
	logger    *logrus.Logger
}

func NewOTPRepository(client DynamoDBAPI, tableName string, grace time.Duration, logger *logrus.Logger) *OTPRepository {
	return &OTPRepository{
		client:    client,
		tableName: tableName,
		grace:     grace,
		logger:    logger,
	}
}

// Create stores a new OTP record with TTL
func (r *OTPRepository) Create(ctx context.Context, otp *models.OTPRecord) error {
	item, err := attributevalue.MarshalMap(otp)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: otp.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: otp.GetSK()}
	item["TTL"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(otp.ExpiresAt.Add(r.grace).Unix(), 10)}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("OTP %s already exists", otp.ID)
		}
		r.logger.WithError(err).WithField("user_id", otp.UserID).Error("Failed to store OTP in DynamoDB")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

// FindOne returns the unconsumed record matching user, code and purpose, or nil
// when there is none. Expiry is not filtered here.
func (r *OTPRepository) FindOne(ctx context.Context, userID, code string, purpose models.OTPPurpose) (*models.OTPRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk_prefix)"),
		FilterExpression:       aws.String("#purpose = :purpose AND #code = :code AND #consumed = :false"),
		ExpressionAttributeNames: map[string]string{
			"#purpose":  "purpose",
			"#code":     "code",
			"#consumed": "consumed",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":        &types.AttributeValueMemberS{Value: models.UserPK(userID)},
			":sk_prefix": &types.AttributeValueMemberS{Value: otpSKPrefix},
			":purpose":   &types.AttributeValueMemberS{Value: string(purpose)},
			":code":      &types.AttributeValueMemberS{Value: code},
			":false":     &types.AttributeValueMemberBOOL{Value: false},
		},
	}

	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			r.logger.WithError(err).WithField("user_id", userID).Error("Failed to query OTP from DynamoDB")
			return nil, fmt.Errorf("failed to get OTP: %w", err)
		}

		if len(out.Items) > 0 {
			var otp models.OTPRecord
			if err := attributevalue.UnmarshalMap(out.Items[0], &otp); err != nil {
				return nil, fmt.Errorf("failed to unmarshal OTP data: %w", err)
			}
			return &otp, nil
		}

		if len(out.LastEvaluatedKey) == 0 {
			return nil, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// DeleteMany removes every unconsumed record for the user and purpose.
func (r *OTPRepository) DeleteMany(ctx context.Context, userID string, purpose models.OTPPurpose) error {
	keys, err := queryAllKeys(ctx, r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk_prefix)"),
		FilterExpression:       aws.String("#purpose = :purpose AND #consumed = :false"),
		ExpressionAttributeNames: map[string]string{
			"#purpose":  "purpose",
			"#consumed": "consumed",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":        &types.AttributeValueMemberS{Value: models.UserPK(userID)},
			":sk_prefix": &types.AttributeValueMemberS{Value: otpSKPrefix},
			":purpose":   &types.AttributeValueMemberS{Value: string(purpose)},
			":false":     &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to query OTPs for invalidation: %w", err)
	}

	if err := batchDelete(ctx, r.client, r.tableName, keys); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to invalidate OTPs in DynamoDB")
		return fmt.Errorf("failed to delete OTPs: %w", err)
	}

	return nil
}

// DeleteOne removes a single record and reports whether this call removed it.
// Deleting a missing record is not an error.
func (r *OTPRepository) DeleteOne(ctx context.Context, userID, id string) (bool, error) {
	out, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(r.tableName),
		Key:          itemKey(models.UserPK(userID), otpSKPrefix+id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete OTP: %w", err)
	}

	return len(out.Attributes) > 0, nil
}

// DeleteAllForUser removes every OTP record of the user regardless of purpose.
func (r *OTPRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	keys, err := queryAllKeys(ctx, r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk_prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":        &types.AttributeValueMemberS{Value: models.UserPK(userID)},
			":sk_prefix": &types.AttributeValueMemberS{Value: otpSKPrefix},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to query OTPs for purge: %w", err)
	}

	if err := batchDelete(ctx, r.client, r.tableName, keys); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to purge OTPs in DynamoDB")
		return fmt.Errorf("failed to purge OTPs: %w", err)
	}

	return nil
}
