package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

const redisKeyPrefix = "scheduling:lock:"

// deletes the key only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extends the expiry only while the key still holds the caller's token
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker holds locks as SET NX PX keys shared by every replica. While a
// lock is held its expiry is pushed back every third of the TTL, so the TTL
// only bounds how long a crashed holder blocks others.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *logging.Logger
}

// NewRedisLocker creates a locker on client. Non-positive ttl and retry
// default to 10s and 25ms.
func NewRedisLocker(client *redis.Client, ttl, retry time.Duration, logger *logging.Logger) *RedisLocker {
	if client == nil {
		panic("locking: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &RedisLocker{client: client, ttl: ttl, retry: retry, logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("locking: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, redisKey, token, stop, done)

	released := false
	return func() {
		if released {
			return
		}
		released = true
		close(stop)
		<-done
		if err := l.release(redisKey, token); err != nil {
			l.logger.Warn("redis lock release failed", "key", key, "error", err)
		}
	}, nil
}

func (l *RedisLocker) keepAlive(key, redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := l.renew(redisKey, token)
			switch {
			case errors.Is(err, ErrNotHeld):
				l.logger.Error("redis lock expired while held", "key", key)
				return
			case err != nil:
				l.logger.Warn("redis lock renewal failed", "key", key, "error", err)
			}
		}
	}
}

func (l *RedisLocker) renew(redisKey, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
	defer cancel()
	n, err := renewScript.Run(ctx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("locking: renew: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *RedisLocker) release(redisKey, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
	if err != nil {
		return fmt.Errorf("locking: release: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
