package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"medialookup/logger"
)

// ErrUnavailable сигнализирует о недоступности хранилища кэша.
// Конвейер разрешения трактует ее как промах, а не как отказ.
var ErrUnavailable = errors.New("cache backend unavailable")

// Зарезервированные ключи служебных записей. Бэкенды хранят их в том же
// пространстве имен, что и записи URL -> ID.
const (
	lastClearedKey = "cache:last_cleared"
	selfTestKey    = "cache:selftest:probe"
)

// Backend - общее долговременное хранилище ключ -> идентификатор.
// Все реализации безопасны для конкурентного использования.
type Backend interface {
	// Name возвращает имя реализации для логов и метрик
	Name() string

	// Get возвращает идентификатор по нормализованному ключу
	Get(ctx context.Context, key string) (uint64, bool, error)

	// Set сохраняет идентификатор с ограниченным временем жизни
	Set(ctx context.Context, key string, id uint64, ttl time.Duration) error

	// Delete удаляет одну запись (вызывается инвалидатором)
	Delete(ctx context.Context, key string) error

	// Flush уничтожает все записи и фиксирует время очистки.
	// Операция O(все ключи) и выполняется только по явной команде.
	Flush(ctx context.Context) error

	// GetRaw и SetRaw - байтовые примитивы, на которых построены
	// типизированные операции; ими же пользуются служебные записи
	GetRaw(ctx context.Context, key string) ([]byte, bool, error)
	SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SelfTestPersistence проверяет, что бэкенд удерживает записанное
	// значение. Результат используется только для диагностики.
	SelfTestPersistence(ctx context.Context) bool

	// Close освобождает ресурсы бэкенда
	Close() error
}

// encodeID сериализует идентификатор в байты хранилища
func encodeID(id uint64) []byte {
	return []byte(strconv.FormatUint(id, 10))
}

// decodeID разбирает байты хранилища обратно в идентификатор
func decodeID(data []byte) (uint64, error) {
	id, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt cache entry: %w", err)
	}
	return id, nil
}

// runSelfTest выполняет общую процедуру проверки живучести: пишет пробное
// значение и немедленно читает его обратно. Несовпадение означает, что
// бэкенд не удерживает данные; система продолжает работать, но пишет
// предупреждение о деградированном режиме.
func runSelfTest(ctx context.Context, b Backend) bool {
	probe := []byte(fmt.Sprintf("probe-%d", time.Now().UnixNano()))

	if err := b.SetRaw(ctx, selfTestKey, probe, time.Minute); err != nil {
		logger.Warn("Cache backend %s failed persistence self-test (write): %v", b.Name(), err)
		return false
	}

	got, found, err := b.GetRaw(ctx, selfTestKey)
	if err != nil || !found || string(got) != string(probe) {
		logger.Warn("Cache backend %s failed persistence self-test (read back): found=%v err=%v",
			b.Name(), found, err)
		return false
	}

	return true
}

// markCleared записывает отметку времени полной очистки
func markCleared(ctx context.Context, b Backend, now time.Time) {
	value := []byte(strconv.FormatInt(now.Unix(), 10))
	if err := b.SetRaw(ctx, lastClearedKey, value, 0); err != nil {
		logger.Warn("Failed to record cache clear timestamp: %v", err)
	}
}

// LastCleared возвращает время последней полной очистки бэкенда
func LastCleared(ctx context.Context, b Backend) (time.Time, bool) {
	data, found, err := b.GetRaw(ctx, lastClearedKey)
	if err != nil || !found {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
