// Package redisstore keeps revoked bearer token ids in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tt360.co/crm/internal/auth"
)

const keyPrefix = "crm:revoked:"

var _ auth.Denylist = (*Denylist)(nil)

// Denylist stores one key per revoked jti that expires with the token.
type Denylist struct {
	client redis.UniversalClient
	now    func() time.Time
}

func New(client redis.UniversalClient) *Denylist {
	return &Denylist{client: client, now: time.Now}
}

// Dial connects to addr and pings it once.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func key(jti string) string { return keyPrefix + jti }

// Revoke is a no-op for tokens that have already expired.
func (d *Denylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	if jti == "" {
		return errors.New("revoke: empty token id")
	}
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke %s: %w", jti, err)
	}
	return nil
}

func (d *Denylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := d.client.Exists(ctx, key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation lookup %s: %w", jti, err)
	}
	return n > 0, nil
}
