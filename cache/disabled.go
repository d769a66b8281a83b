package cache

import (
	"context"
	"time"
)

// DisabledBackend - заглушка, у которой никогда ничего нет в кэше.
// Конвейер при ней работает напрямую через индекс и авторитетный резолвер.
type DisabledBackend struct{}

// NewDisabledBackend создает заглушку
func NewDisabledBackend() *DisabledBackend {
	return &DisabledBackend{}
}

// Name возвращает имя реализации
func (d *DisabledBackend) Name() string { return BackendDisabled }

// Get для заглушки всегда возвращает "не найдено"
func (d *DisabledBackend) Get(ctx context.Context, key string) (uint64, bool, error) {
	return 0, false, nil
}

// Set ничего не сохраняет
func (d *DisabledBackend) Set(ctx context.Context, key string, id uint64, ttl time.Duration) error {
	return nil
}

// Delete ничего не делает
func (d *DisabledBackend) Delete(ctx context.Context, key string) error { return nil }

// Flush ничего не делает
func (d *DisabledBackend) Flush(ctx context.Context) error { return nil }

// GetRaw всегда возвращает "не найдено"
func (d *DisabledBackend) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

// SetRaw ничего не сохраняет
func (d *DisabledBackend) SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

// SelfTestPersistence у заглушки всегда неуспешен
func (d *DisabledBackend) SelfTestPersistence(ctx context.Context) bool { return false }

// Close ничего не делает
func (d *DisabledBackend) Close() error { return nil }
