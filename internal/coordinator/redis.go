package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "fluxgen:lease"

// compare-and-delete / compare-and-expire keyed on the holder token
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

type RedisCoordinator struct {
	client redis.UniversalClient
	prefix string
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	name   string
	token  string
}

// NewRedisCoordinator connects to redisURL and verifies it with PING.
func NewRedisCoordinator(ctx context.Context, redisURL string, prefix string) (*RedisCoordinator, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisCoordinatorFromClient(client, prefix), nil
}

func NewRedisCoordinatorFromClient(client redis.UniversalClient, prefix string) *RedisCoordinator {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisCoordinator{client: client, prefix: prefix}
}

func (c *RedisCoordinator) Close() error { return c.client.Close() }

func (c *RedisCoordinator) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	fullKey := c.prefix + ":" + key
	token, err := randomToken()
	if err != nil {
		return nil, err
	}

	for {
		ok, err := c.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("acquire redis lease %s: %w", key, ctx.Err())
			}
			return nil, fmt.Errorf("redis setnx failed: %w", err)
		}
		if ok {
			return &redisLease{client: c.client, key: fullKey, name: key, token: token}, nil
		}
		if err := waitPoll(ctx); err != nil {
			return nil, fmt.Errorf("acquire redis lease %s: %w", key, err)
		}
	}
}

func (l *redisLease) Key() string { return l.name }

func (l *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend redis lease: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("extend lease %s: %w", l.name, ErrLeaseLost)
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release redis lease: %w", err)
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
