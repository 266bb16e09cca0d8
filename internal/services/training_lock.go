package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/internal/ml"
)

const trainingLockKey = "seasonrec:training:lock"

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTrainingLock is a SET NX PX lock shared by every process that writes
// the snapshot store.
type RedisTrainingLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisTrainingLock(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisTrainingLock {
	return &RedisTrainingLock{client: client, ttl: ttl, logger: logger}
}

func (l *RedisTrainingLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, trainingLockKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire training lock: %w", err)
	}
	if !ok {
		return nil, ml.ErrTrainingConflict
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{trainingLockKey}, token).Err(); err != nil {
			l.logger.WithError(err).Warn("Failed to release training lock")
		}
	}
	return release, nil
}
