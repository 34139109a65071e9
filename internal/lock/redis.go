package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLeaseTTL   = 10 * time.Second
	defaultRetryEvery = 25 * time.Millisecond
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired lease taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a lease lock shared by every instance using the same Redis.
type RedisLocker struct {
	client     *redis.Client
	leaseTTL   time.Duration
	retryEvery time.Duration
	log        *zap.Logger
}

func NewRedisLocker(client *redis.Client, leaseTTL time.Duration, log *zap.Logger) *RedisLocker {
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	return &RedisLocker{
		client:     client,
		leaseTTL:   leaseTTL,
		retryEvery: defaultRetryEvery,
		log:        log,
	}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(r.retryEvery)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.leaseTTL).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go r.renew(redisKey, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped

			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil {
				r.log.Warn("failed to release session lock", zap.String("key", redisKey), zap.Error(err))
			}
		})
	}, nil
}

// renew extends the lease every third of its TTL until stop is closed or the
// key no longer holds token.
func (r *RedisLocker) renew(redisKey, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	every := r.leaseTTL / 3
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), every)
		n, err := renewScript.Run(ctx, r.client, []string{redisKey}, token, r.leaseTTL.Milliseconds()).Int()
		cancel()
		if err != nil {
			r.log.Warn("failed to renew session lock", zap.String("key", redisKey), zap.Error(err))
			continue
		}
		if n == 0 {
			r.log.Warn("session lock lost before release", zap.String("key", redisKey))
			return
		}
	}
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:cart:%s", key)
}
