package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stowbox/stowbox/internal/model"
)

const otpKeyPrefix = "otp:"

// SaveChallenge stores a pending OTP challenge, replacing any previous one for the account.
// The key expires with the challenge.
func (c *Cache) SaveChallenge(ctx context.Context, ch *model.OTPChallenge) error {
	ttl := time.Until(ch.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("challenge for %s already expired", ch.AccountID)
	}

	key := otpKeyPrefix + ch.AccountID
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		"email":        ch.Email,
		"code_hash":    ch.CodeHash,
		"requested_at": ch.RequestedAt.UTC().Format(time.RFC3339Nano),
		"expires_at":   ch.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"attempts":     ch.Attempts,
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save otp challenge: %w", err)
	}
	return nil
}

// GetChallenge returns the pending challenge for an account. Returns ErrCacheMiss if absent.
func (c *Cache) GetChallenge(ctx context.Context, accountID string) (*model.OTPChallenge, error) {
	fields, err := c.client.HGetAll(ctx, otpKeyPrefix+accountID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall otp: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrCacheMiss
	}
	return decodeChallenge(accountID, fields)
}

// reserveAttemptScript counts one verification attempt against the challenge
// holding the expected code hash. Returns -1 when that challenge is gone or
// has been replaced by a resend.
var reserveAttemptScript = redis.NewScript(`
	if redis.call('HGET', KEYS[1], 'code_hash') ~= ARGV[1] then
		return -1
	end
	return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

// consumeChallengeScript deletes the challenge only if it still holds the
// expected code hash. Exactly one caller sees 1.
var consumeChallengeScript = redis.NewScript(`
	if redis.call('HGET', KEYS[1], 'code_hash') ~= ARGV[1] then
		return 0
	end
	return redis.call('DEL', KEYS[1])
`)

// ReserveAttempt counts a verification attempt before the code is checked and
// returns the attempt number. Concurrent callers get distinct numbers.
// Returns ErrCacheMiss if the challenge with codeHash no longer exists.
func (c *Cache) ReserveAttempt(ctx context.Context, accountID, codeHash string) (int, error) {
	n, err := reserveAttemptScript.Run(ctx, c.client, []string{otpKeyPrefix + accountID}, codeHash).Int64()
	if err != nil {
		return 0, fmt.Errorf("reserve otp attempt: %w", err)
	}
	if n < 0 {
		return 0, ErrCacheMiss
	}
	return int(n), nil
}

// ConsumeChallenge removes the challenge with codeHash and reports whether
// this call removed it.
func (c *Cache) ConsumeChallenge(ctx context.Context, accountID, codeHash string) (bool, error) {
	n, err := consumeChallengeScript.Run(ctx, c.client, []string{otpKeyPrefix + accountID}, codeHash).Int64()
	if err != nil {
		return false, fmt.Errorf("consume otp challenge: %w", err)
	}
	return n == 1, nil
}

// DeleteChallenge discards a challenge unconditionally.
func (c *Cache) DeleteChallenge(ctx context.Context, accountID string) error {
	return c.client.Del(ctx, otpKeyPrefix+accountID).Err()
}

func decodeChallenge(accountID string, fields map[string]string) (*model.OTPChallenge, error) {
	requestedAt, err := time.Parse(time.RFC3339Nano, fields["requested_at"])
	if err != nil {
		return nil, ErrCacheMiss
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, ErrCacheMiss
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, ErrCacheMiss
	}
	if fields["code_hash"] == "" {
		return nil, ErrCacheMiss
	}

	return &model.OTPChallenge{
		AccountID:   accountID,
		Email:       fields["email"],
		CodeHash:    fields["code_hash"],
		RequestedAt: requestedAt,
		ExpiresAt:   expiresAt,
		Attempts:    attempts,
	}, nil
}
