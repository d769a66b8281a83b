package cache

import (
	"fmt"
	"time"
)

// Имена реализаций бэкенда
const (
	BackendRedis    = "redis"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
	BackendDisabled = "disabled"
)

// Границы времени жизни записи
const (
	MinTTLSeconds     = 60
	MaxTTLSeconds     = 86400
	DefaultTTLSeconds = 43200 // 12 часов
)

// RedisConfig содержит параметры подключения к общему кэшу
type RedisConfig struct {
	Addr     string `yaml:"addr"`     // адрес сервера (например, "localhost:6379")
	Password string `yaml:"password"` // пароль (опционально)
	DB       int    `yaml:"db"`       // номер базы

	// DialTimeout - таймаут установки соединения; таймауты операций
	// задаются клиентом, у конвейера собственных таймаутов нет
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// KeyPrefix - пространство имен ключей в общей базе
	KeyPrefix string `yaml:"key_prefix"`
}

// BoltConfig содержит параметры медленного долговременного хранилища,
// используемого когда общий кэш не сконфигурирован
type BoltConfig struct {
	Path string `yaml:"path"` // путь к файлу базы
}

// Config содержит конфигурацию слоя кэширования
type Config struct {
	// Backend - имя реализации: redis, bolt, memory или disabled
	Backend string `yaml:"backend"`

	// TTLSeconds - время жизни записи URL -> ID [60, 86400]
	TTLSeconds int `yaml:"cache_ttl_seconds"`

	Redis RedisConfig `yaml:"redis"`
	Bolt  BoltConfig  `yaml:"bolt"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Backend:    BackendMemory,
		TTLSeconds: DefaultTTLSeconds,
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DialTimeout: 5 * time.Second,
			KeyPrefix:   "medialookup:",
		},
		Bolt: BoltConfig{
			Path: "medialookup-cache.db",
		},
	}
}

// TTL возвращает время жизни записи как Duration
func (c *Config) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr cannot be empty")
		}
		if c.Redis.DialTimeout <= 0 {
			return fmt.Errorf("redis.dial_timeout must be positive")
		}
	case BackendBolt:
		if c.Bolt.Path == "" {
			return fmt.Errorf("bolt.path cannot be empty")
		}
	case BackendMemory, BackendDisabled:
		// дополнительных параметров нет
	default:
		return fmt.Errorf("backend must be one of: redis, bolt, memory, disabled")
	}

	if c.TTLSeconds < MinTTLSeconds || c.TTLSeconds > MaxTTLSeconds {
		return fmt.Errorf("cache_ttl_seconds must be in range [%d, %d]", MinTTLSeconds, MaxTTLSeconds)
	}

	return nil
}

// NewBackend создает бэкенд, выбранный конфигурацией
func NewBackend(cfg Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	switch cfg.Backend {
	case BackendRedis:
		return NewRedisBackend(cfg.Redis)
	case BackendBolt:
		return NewBoltBackend(cfg.Bolt)
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendDisabled:
		return NewDisabledBackend(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
