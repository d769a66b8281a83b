package resolver

import (
	"context"
	"fmt"
	"time"
)

// Tier - ступень конвейера разрешения, обслужившая результат
type Tier string

const (
	TierRequestCache  Tier = "request_cache" // кэш текущего запроса
	TierIndex         Tier = "index"         // выделенный точный индекс
	TierCache         Tier = "cache"         // общее долговременное хранилище
	TierAuthoritative Tier = "authoritative" // медленный авторитетный резолвер
	TierNotFound      Tier = "not_found"     // ресурс не найден
)

// String возвращает строковое представление тира
func (t Tier) String() string {
	return string(t)
}

// Result - итог одного разрешения. Заполняется целиком при создании
// и дальше не меняется.
type Result struct {
	ID            uint64 `json:"id"`
	Found         bool   `json:"found"`
	Tier          Tier   `json:"tier"`
	LatencyMicros uint64 `json:"latency_micros"`
}

// Authoritative - внешний медленный, но всегда корректный резолвер.
// Вызывается повторно-входимо и не должен рекурсивно обращаться
// обратно в конвейер.
type Authoritative interface {
	// Resolve возвращает идентификатор по нормализованному ключу
	Resolve(ctx context.Context, key string) (uint64, bool, error)
}

// IndexLookup - внешний точный индекс; конвейер его только читает
type IndexLookup interface {
	// Exists сообщает, достроен ли индекс внешним владельцем
	Exists() bool

	// GetByPath возвращает идентификатор по нормализованному пути
	GetByPath(path string) (uint64, bool)
}

// DebugSink - внешний приемник отладочных записей. Сбой приемника
// никогда не срывает разрешение.
type DebugSink interface {
	Log(url, tier string, id uint64, found bool, latencyMicros uint64)
}

// Config содержит конфигурацию конвейера разрешения
type Config struct {
	// NativeFallbackEnabled разрешает проваливание до авторитетного
	// резолвера, когда быстрые тиры промахнулись
	NativeFallbackEnabled bool `yaml:"native_fallback_enabled"`

	// CacheTTL - время жизни записи, записываемой обратно в общий кэш
	// после авторитетного разрешения; выставляется из конфигурации кэша
	CacheTTL time.Duration `yaml:"-"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		NativeFallbackEnabled: true,
		CacheTTL:              12 * time.Hour,
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	return nil
}
