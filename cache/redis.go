package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"medialookup/logger"
)

// RedisBackend - настоящий общий кэш: один на все процессы хоста и
// переживающий их рестарты. Все ключи живут под общим префиксом, чтобы
// Flush не задевал чужие данные в той же базе.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend подключается к серверу и проверяет соединение.
// Первый PING повторяется с экспоненциальной паузой: на старте хоста
// кэш нередко поднимается позже нас.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second

	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}

	if err := backoff.Retry(ping, policy); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Connected to redis cache at %s (db %d)", cfg.Addr, cfg.DB)

	return &RedisBackend{
		client: client,
		prefix: cfg.KeyPrefix,
	}, nil
}

// Name возвращает имя реализации
func (r *RedisBackend) Name() string { return BackendRedis }

// Get возвращает идентификатор по ключу
func (r *RedisBackend) Get(ctx context.Context, key string) (uint64, bool, error) {
	data, found, err := r.GetRaw(ctx, key)
	if err != nil || !found {
		return 0, false, err
	}
	id, err := decodeID(data)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Set сохраняет идентификатор с указанным временем жизни
func (r *RedisBackend) Set(ctx context.Context, key string, id uint64, ttl time.Duration) error {
	return r.SetRaw(ctx, key, encodeID(id), ttl)
}

// Delete удаляет одну запись
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Flush удаляет все записи нашего пространства имен и фиксирует время
// очистки. Проход по SCAN, а не FLUSHDB: база может быть общей.
func (r *RedisBackend) Flush(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	markCleared(ctx, r, time.Now())
	return nil
}

// GetRaw возвращает сырое значение по ключу
func (r *RedisBackend) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, true, nil
}

// SetRaw сохраняет сырое значение; ttl == 0 означает "без срока"
func (r *RedisBackend) SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SelfTestPersistence проверяет удержание записанного значения
func (r *RedisBackend) SelfTestPersistence(ctx context.Context) bool {
	return runSelfTest(ctx, r)
}

// Close закрывает соединение с сервером
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
