package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qcom/accounts/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisOTPRepository keeps each record under otp:record:<id> and indexes the
// ids of a user in the set otp:user:<userID>. Keys expire once the record's
// lifetime plus the retention grace has elapsed.
type RedisOTPRepository struct {
	client *redis.Client
	grace  time.Duration
	logger *logrus.Logger
}

func NewRedisOTPRepository(client *redis.Client, grace time.Duration, logger *logrus.Logger) *RedisOTPRepository {
	return &RedisOTPRepository{
		client: client,
		grace:  grace,
		logger: logger,
	}
}

func otpRecordKey(id string) string {
	return fmt.Sprintf("otp:record:%s", id)
}

func otpUserIndexKey(userID string) string {
	return fmt.Sprintf("otp:user:%s", userID)
}

func (r *RedisOTPRepository) Create(ctx context.Context, otp *models.OTPRecord) error {
	dataJSON, err := json.Marshal(otp)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP data: %w", err)
	}

	ttl := otp.ExpiresAt.Sub(otp.CreatedAt) + r.grace
	if ttl <= 0 {
		ttl = time.Second
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, otpRecordKey(otp.ID), dataJSON, ttl)
		pipe.SAdd(ctx, otpUserIndexKey(otp.UserID), otp.ID)
		pipe.Expire(ctx, otpUserIndexKey(otp.UserID), ttl)
		return nil
	})
	if err != nil {
		r.logger.WithError(err).WithField("user_id", otp.UserID).Error("Failed to store OTP in Redis")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *RedisOTPRepository) FindOne(ctx context.Context, userID, code string, purpose models.OTPPurpose) (*models.OTPRecord, error) {
	records, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, otp := range records {
		if otp.Purpose == purpose && otp.Code == code && !otp.Consumed {
			return otp, nil
		}
	}

	return nil, nil
}

func (r *RedisOTPRepository) DeleteMany(ctx context.Context, userID string, purpose models.OTPPurpose) error {
	records, err := r.load(ctx, userID)
	if err != nil {
		return err
	}

	var ids []string
	for _, otp := range records {
		if otp.Purpose == purpose && !otp.Consumed {
			ids = append(ids, otp.ID)
		}
	}

	return r.remove(ctx, userID, ids)
}

func (r *RedisOTPRepository) DeleteOne(ctx context.Context, userID, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, otpRecordKey(id))
		pipe.SRem(ctx, otpUserIndexKey(userID), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete OTP: %w", err)
	}

	return del.Val() > 0, nil
}

func (r *RedisOTPRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	ids, err := r.client.SMembers(ctx, otpUserIndexKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list OTPs: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, otpRecordKey(id))
	}
	keys = append(keys, otpUserIndexKey(userID))

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to purge OTPs in Redis")
		return fmt.Errorf("failed to purge OTPs: %w", err)
	}

	return nil
}

// load returns the user's stored records and drops index entries whose record expired.
func (r *RedisOTPRepository) load(ctx context.Context, userID string) ([]*models.OTPRecord, error) {
	ids, err := r.client.SMembers(ctx, otpUserIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list OTPs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = otpRecordKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get OTPs: %w", err)
	}

	var (
		records []*models.OTPRecord
		stale   []any
	)
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}

		var otp models.OTPRecord
		if err := json.Unmarshal([]byte(raw), &otp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OTP data: %w", err)
		}
		records = append(records, &otp)
	}

	if len(stale) > 0 {
		if err := r.client.SRem(ctx, otpUserIndexKey(userID), stale...).Err(); err != nil {
			r.logger.WithError(err).WithField("user_id", userID).Warn("Failed to prune stale OTP index entries")
		}
	}

	return records, nil
}

func (r *RedisOTPRepository) remove(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	members := make([]any, len(ids))
	keys := make([]string, len(ids))
	for i, id := range ids {
		members[i] = id
		keys[i] = otpRecordKey(id)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, otpUserIndexKey(userID), members...)
		return nil
	})
	if err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to delete OTPs in Redis")
		return fmt.Errorf("failed to delete OTPs: %w", err)
	}

	return nil
}
