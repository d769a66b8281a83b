package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"medialookup/api"
	"medialookup/cache"
	"medialookup/index"
	"medialookup/monitoring"
	"medialookup/origin"
	"medialookup/resolver"
	"medialookup/watchdog"
)

// AppConfig содержит полную конфигурацию приложения
type AppConfig struct {
	// Конфигурация HTTP-поверхности хоста
	Server ServerConfig `yaml:"server"`

	// Конфигурация логирования
	Logging LoggingConfig `yaml:"logging"`

	// Конфигурация мониторинга
	Monitoring monitoring.Config `yaml:"monitoring"`

	// Конфигурация слоя кэширования
	Cache cache.Config `yaml:"cache"`

	// Конфигурация сторожевого механизма
	Watchdog watchdog.Config `yaml:"watchdog"`

	// Конфигурация конвейера разрешения
	Resolver resolver.Config `yaml:"resolver"`

	// Конфигурация авторитетного SQL-резолвера
	SQLResolver resolver.SQLResolverConfig `yaml:"sql_resolver"`

	// Конфигурация точного индекса
	Index index.Config `yaml:"index"`

	// Конфигурация хранилища ресурсов для инвалидации
	Origin origin.Config `yaml:"origin"`

	// Конфигурация инвалидации кэша
	Invalidation InvalidationConfig `yaml:"invalidation"`

	// Конфигурация отладочного лога разрешений
	DebugLog DebugLogConfig `yaml:"debug_log"`

	// Конфигурация сохранения статистики
	Stats StatsConfig `yaml:"stats"`
}

// ServerConfig содержит конфигурацию HTTP сервера
type ServerConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	TLSCertFile   string        `yaml:"tls_cert_file"`
	TLSKeyFile    string        `yaml:"tls_key_file"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

// LoggingConfig содержит конфигурацию логирования
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// InvalidationConfig содержит конфигурацию инвалидации кэша
type InvalidationConfig struct {
	// LocationAttributes - атрибуты ресурса, изменение которых меняет
	// расположение файла; пустой список означает {"attached_file"}
	LocationAttributes []string `yaml:"location_attributes"`
}

// DebugLogConfig содержит конфигурацию отладочного лога разрешений
type DebugLogConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// StatsConfig содержит конфигурацию сохранения статистики
type StatsConfig struct {
	// PersistSchedule - выражение cron для периодического сохранения
	// снимка статистики (по умолчанию "@every 1m")
	PersistSchedule string `yaml:"persist_schedule"`
}

// DefaultAppConfig возвращает конфигурацию по умолчанию
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			ListenAddress: ":8080",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Monitoring:  *monitoring.DefaultConfig(),
		Cache:       cache.DefaultConfig(),
		Watchdog:    watchdog.DefaultConfig(),
		Resolver:    resolver.DefaultConfig(),
		SQLResolver: resolver.DefaultSQLResolverConfig(),
		Index:       index.DefaultConfig(),
		Origin:      origin.DefaultConfig(),
		DebugLog: DebugLogConfig{
			Enabled:  false,
			Path:     "medialookup-debug.log",
			MaxBytes: 64 << 20,
		},
		Stats: StatsConfig{
			PersistSchedule: "@every 1m",
		},
	}
}

// LoadConfig загружает конфигурацию из файла
func LoadConfig(filename string) (*AppConfig, error) {
	// Читаем файл
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	// Начинаем с конфигурации по умолчанию
	config := DefaultAppConfig()

	// Парсим YAML
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	// TTL конвейера наследуется из конфигурации кэша
	config.Resolver.CacheTTL = config.Cache.TTL()

	// Валидируем конфигурацию
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate проверяет корректность конфигурации
func (c *AppConfig) Validate() error {
	// Валидируем server конфигурацию
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	// Проверяем TLS конфигурацию
	if (c.Server.TLSCertFile != "" && c.Server.TLSKeyFile == "") ||
		(c.Server.TLSCertFile == "" && c.Server.TLSKeyFile != "") {
		return fmt.Errorf("both tls_cert_file and tls_key_file must be specified for TLS")
	}

	// Валидируем уровень логирования
	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	// Валидируем конфигурации модулей
	if err := c.Monitoring.Validate(); err != nil {
		return fmt.Errorf("monitoring config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.Watchdog.Validate(); err != nil {
		return fmt.Errorf("watchdog config: %w", err)
	}

	if err := c.Resolver.Validate(); err != nil {
		return fmt.Errorf("resolver config: %w", err)
	}

	if err := c.SQLResolver.Validate(); err != nil {
		return fmt.Errorf("sql_resolver config: %w", err)
	}

	if err := c.Origin.Validate(); err != nil {
		return fmt.Errorf("origin config: %w", err)
	}

	if c.DebugLog.Enabled && c.DebugLog.Path == "" {
		return fmt.Errorf("debug_log.path cannot be empty when debug log is enabled")
	}

	return nil
}

// ToAPIConfig преобразует в конфигурацию HTTP-поверхности
func (c *AppConfig) ToAPIConfig() api.Config {
	return api.Config{
		ListenAddress: c.Server.ListenAddress,
		TLSCertFile:   c.Server.TLSCertFile,
		TLSKeyFile:    c.Server.TLSKeyFile,
		ReadTimeout:   c.Server.ReadTimeout,
		WriteTimeout:  c.Server.WriteTimeout,
	}
}

// isValidLogLevel проверяет корректность уровня логирования
func isValidLogLevel(level string) bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return true
		}
	}
	return false
}

// SaveConfig сохраняет конфигурацию в файл (для генерации примера)
func (c *AppConfig) SaveConfig(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}
