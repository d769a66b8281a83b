package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryBackend - кэш в памяти процесса. Не переживает рестарт, поэтому
// подходит для однопроцессных установок и тестов; в многопроцессной
// конфигурации его место занимает redis или bolt.
type MemoryBackend struct {
	store *gocache.Cache
}

// NewMemoryBackend создает пустой кэш в памяти
func NewMemoryBackend() *MemoryBackend {
	// Просроченные записи подметаются раз в минуту; чтение и так
	// проверяет срок жизни, так что подметание лишь экономит память
	return &MemoryBackend{
		store: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

// Name возвращает имя реализации
func (m *MemoryBackend) Name() string { return BackendMemory }

// Get возвращает идентификатор по ключу
func (m *MemoryBackend) Get(ctx context.Context, key string) (uint64, bool, error) {
	data, found, err := m.GetRaw(ctx, key)
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
func (m *MemoryBackend) Set(ctx context.Context, key string, id uint64, ttl time.Duration) error {
	return m.SetRaw(ctx, key, encodeID(id), ttl)
}

// Delete удаляет одну запись
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

// Flush уничтожает все записи и фиксирует время очистки
func (m *MemoryBackend) Flush(ctx context.Context) error {
	m.store.Flush()
	markCleared(ctx, m, time.Now())
	return nil
}

// GetRaw возвращает сырое значение по ключу
func (m *MemoryBackend) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	v, found := m.store.Get(key)
	if !found {
		return nil, false, nil
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return data, true, nil
}

// SetRaw сохраняет сырое значение; ttl == 0 означает "без срока"
func (m *MemoryBackend) SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.store.Set(key, value, ttl)
	return nil
}

// SelfTestPersistence проверяет удержание записанного значения
func (m *MemoryBackend) SelfTestPersistence(ctx context.Context) bool {
	return runSelfTest(ctx, m)
}

// Close освобождает ресурсы
func (m *MemoryBackend) Close() error { return nil }
