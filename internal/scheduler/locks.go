package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker serializes a named job across scheduler instances.
type Locker interface {
	// Acquire returns a release func and whether the lock was won.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), acquired bool, err error)
}

// releaseScript deletes the lock only when the token still matches, so
// a slow job cannot release a lock a newer holder re-acquired.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type redisLocker struct {
	client *redis.Client
	log    *zap.Logger
}

// NewLocker builds a redis-backed job locker. Without redis the process
// is assumed to be the only scheduler and every acquire succeeds.
func NewLocker(client *redis.Client, log *zap.Logger) Locker {
	if client == nil {
		return noopLocker{}
	}

	return &redisLocker{
		client: client,
		log:    log.Named("scheduler.locks"),
	}
}

func (l *redisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := "ledgerline:scheduler:lock:" + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// Release outlives the job context so a timed-out job still
		// frees its lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
			l.log.Warn("lock release failed", zap.String("job", name), zap.Error(err))
		}
	}

	return release, true, nil
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
