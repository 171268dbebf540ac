package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// unlockScript deletes the key only while it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a compare-and-delete
// release, so a lock that expired and was re-acquired elsewhere is never
// released by its previous owner.
type RedisLocker struct {
	client     redis.UniversalClient
	logger     zerolog.Logger
	RetryDelay time.Duration
}

func NewRedisLocker(client redis.UniversalClient, logger zerolog.Logger) *RedisLocker {
	return &RedisLocker{client: client, logger: logger, RetryDelay: 50 * time.Millisecond}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l.releaser(key, token), true, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	ticker := time.NewTicker(l.RetryDelay)
	defer ticker.Stop()
	for {
		release, ok, err := l.TryAcquire(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) releaser(key, token string) Release {
	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			var n int64
			n, err = unlockScript.Run(ctx, l.client, []string{key}, token).Int64()
			if err != nil {
				err = fmt.Errorf("redis unlock %s: %w", key, err)
				return
			}
			if n == 0 {
				l.logger.Warn().Str("key", key).Msg("lock expired before release")
				err = ErrNotHeld
			}
		})
		return err
	}
}
