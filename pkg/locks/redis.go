package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger ectologger.Logger) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Infof("Connected to Redis at %s", addr)
	return rdb, nil
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisClient is the subset of *redis.Client the locker needs.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker provides distributed locks with SET NX.
type RedisLocker struct {
	rdb       RedisClient
	keyPrefix string
	logger    ectologger.Logger
}

type redisLock struct {
	locker *RedisLocker
	key    string
	value  string
}

// NewRedisLocker creates a new RedisLocker
func NewRedisLocker(rdb RedisClient, keyPrefix string, logger ectologger.Logger) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "willow:lock:"
	}
	return &RedisLocker{rdb: rdb, keyPrefix: keyPrefix, logger: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lockKey := l.keyPrefix + key
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.logger.WithContext(ctx).Debugf("Acquired lock: %s", lockKey)
	return &redisLock{locker: l, key: lockKey, value: token}, nil
}

func (lock *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lock.locker.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	lock.locker.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}
