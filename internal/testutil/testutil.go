// Package testutil holds shared helpers for package tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stowbox/stowbox/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// TruncateAll empties every application table.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE orphaned_blobs, files, sessions, users, accounts`)
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// NewTestUser creates a user with sensible defaults.
func NewTestUser(t testing.TB, email string) *model.User {
	t.Helper()
	id := UniqueID("user")
	return &model.User{
		ID:        id,
		AccountID: "acc-" + id,
		FullName:  "Test User",
		Email:     email,
		AvatarURL: "https://example.com/avatar.png",
		CreatedAt: time.Now().UTC(),
	}
}

// NewTestFile creates a file owned by owner.
func NewTestFile(t testing.TB, owner *model.User, name string, size int64) *model.File {
	t.Helper()
	now := time.Now().UTC()
	typ, ext := model.ClassifyName(name)
	id := UniqueID("file")
	return &model.File{
		ID:             id,
		Name:           name,
		Type:           typ,
		Extension:      ext,
		SizeBytes:      size,
		URL:            "https://blobs.example.com/" + id,
		OwnerID:        owner.ID,
		AccountID:      owner.AccountID,
		BucketObjectID: "blob-" + id,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

var idSeq atomic.Uint64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idSeq.Add(1))
}
