package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stowbox/stowbox/internal/model"
)

const (
	sessionKeyPrefix = "session:"
	// maxSessionCacheTTL bounds how long a revoked session can linger on another replica.
	maxSessionCacheTTL = 5 * time.Minute
)

type cachedSession struct {
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// GetSession returns a cached session record. Returns ErrCacheMiss if absent.
func (c *Cache) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	data, err := c.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var cached cachedSession
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, ErrCacheMiss
	}

	return &model.Session{
		ID:        sessionID,
		AccountID: cached.AccountID,
		ExpiresAt: cached.ExpiresAt,
		CreatedAt: cached.CreatedAt,
	}, nil
}

// SetSession caches a session record without its secret.
func (c *Cache) SetSession(ctx context.Context, s *model.Session) error {
	ttl := sessionCacheTTL(time.Until(s.ExpiresAt))
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(cachedSession{
		AccountID: s.AccountID,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return c.client.Set(ctx, sessionKeyPrefix+s.ID, data, ttl).Err()
}

// DeleteSession drops a cached session record.
func (c *Cache) DeleteSession(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}

func sessionCacheTTL(remaining time.Duration) time.Duration {
	if remaining > maxSessionCacheTTL {
		return maxSessionCacheTTL
	}
	return remaining
}
