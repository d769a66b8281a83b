package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"medialookup/logger"
)

var entriesBucket = []byte("entries")

// BoltBackend - медленное, но долговременное хранилище на файле bbolt.
// Используется, когда общий кэш не сконфигурирован: медленнее redis,
// но записи переживают рестарт процесса. Срок жизни проверяется при
// чтении; просроченная запись удаляется лениво.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend открывает (или создает) файл базы
func NewBoltBackend(cfg BoltConfig) (*BoltBackend, error) {
	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt cache %s: %w", cfg.Path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init bolt cache: %w", err)
	}

	logger.Info("Opened bolt cache at %s", cfg.Path)
	return &BoltBackend{db: db}, nil
}

// Name возвращает имя реализации
func (b *BoltBackend) Name() string { return BackendBolt }

// Get возвращает идентификатор по ключу
func (b *BoltBackend) Get(ctx context.Context, key string) (uint64, bool, error) {
	data, found, err := b.GetRaw(ctx, key)
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
func (b *BoltBackend) Set(ctx context.Context, key string, id uint64, ttl time.Duration) error {
	return b.SetRaw(ctx, key, encodeID(id), ttl)
}

// Delete удаляет одну запись
func (b *BoltBackend) Delete(ctx context.Context, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Flush уничтожает все записи и фиксирует время очистки
func (b *BoltBackend) Flush(ctx context.Context) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(entriesBucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	markCleared(ctx, b, time.Now())
	return nil
}

// GetRaw возвращает сырое значение по ключу с проверкой срока жизни
func (b *BoltBackend) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	expired := false

	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(entriesBucket).Get([]byte(key))
		if raw == nil || len(raw) < 8 {
			return nil
		}
		expiresAt := int64(binary.BigEndian.Uint64(raw[:8]))
		if expiresAt != 0 && time.Now().UnixNano() > expiresAt {
			expired = true
			return nil
		}
		value = append([]byte(nil), raw[8:]...)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if expired {
		// Ленивое удаление: лучшей попыткой, промах уже возвращен
		if derr := b.Delete(ctx, key); derr != nil {
			logger.Debug("Failed to evict expired bolt entry %s: %v", key, derr)
		}
		return nil, false, nil
	}

	if value == nil {
		return nil, false, nil
	}
	return value, true, nil
}

// SetRaw сохраняет сырое значение; первые 8 байт записи - срок жизни
func (b *BoltBackend) SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}

	raw := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(raw[:8], uint64(expiresAt))
	copy(raw[8:], value)

	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SelfTestPersistence проверяет удержание записанного значения
func (b *BoltBackend) SelfTestPersistence(ctx context.Context) bool {
	return runSelfTest(ctx, b)
}

// Close закрывает файл базы
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
