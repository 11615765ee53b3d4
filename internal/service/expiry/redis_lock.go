package expiry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// releaseScript удаляет ключ, только если в нём наш токен.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker реализует Locker через SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	logger *log.Entry
}

// NewRedisLocker создаёт блокировку поверх клиента Redis.
func NewRedisLocker(client redis.UniversalClient, logger *log.Entry) *RedisLocker {
	if logger == nil {
		logger = log.WithField("component", "redis-lock")
	}
	return &RedisLocker{client: client, logger: logger}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// ctx прохода мог быть отменён, снимаем блокировку отдельным таймаутом
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.WithError(err).WithField("key", key).Warn("release lock failed")
		}
	}
	return release, true, nil
}

var _ Locker = (*RedisLocker)(nil)
