package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "token:blacklist:"

// Blacklist revokes tokens before they expire.
type Blacklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	RevokeUser(ctx context.Context, userID int64, ttl time.Duration) error
	UserRevokedSince(ctx context.Context, userID int64, issuedAt time.Time) (bool, error)
}

// RedisBlacklist implements Blacklist on Redis keys with TTLs matching token lifetimes.
type RedisBlacklist struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisBlacklist wraps an existing client.
func NewRedisBlacklist(client redis.Cmdable) *RedisBlacklist {
	return &RedisBlacklist{client: client, now: time.Now}
}

func jtiKey(jti string) string { return blacklistPrefix + "jti:" + jti }

func userKey(id int64) string { return blacklistPrefix + "user:" + strconv.FormatInt(id, 10) }

// Revoke blacklists a token id for ttl.
func (b *RedisBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti was blacklisted.
func (b *RedisBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("auth: check blacklist: %w", err)
	}
	return n > 0, nil
}

// RevokeUser invalidates every token of the user issued up to now.
func (b *RedisBlacklist) RevokeUser(ctx context.Context, userID int64, ttl time.Duration) error {
	if err := b.client.Set(ctx, userKey(userID), b.now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoke user tokens: %w", err)
	}
	return nil
}

// UserRevokedSince reports whether a token issued at issuedAt predates a user revocation.
func (b *RedisBlacklist) UserRevokedSince(ctx context.Context, userID int64, issuedAt time.Time) (bool, error) {
	at, err := b.client.Get(ctx, userKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auth: check user revocation: %w", err)
	}
	return issuedAt.Unix() <= at, nil
}
