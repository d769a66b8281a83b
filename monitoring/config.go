package monitoring

import (
	"fmt"
	"time"
)

// Config содержит конфигурацию модуля мониторинга
type Config struct {
	// Enabled определяет, включен ли мониторинг
	Enabled bool `yaml:"enabled"`

	// ListenAddress - адрес HTTP сервера метрик (например, ":9091")
	ListenAddress string `yaml:"listen_address"`

	// MetricsPath - путь эндпоинта метрик (по умолчанию "/metrics")
	MetricsPath string `yaml:"metrics_path"`

	// ReadTimeout - таймаут чтения HTTP сервера метрик
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout - таймаут записи HTTP сервера метрик
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		ListenAddress: ":9091",
		MetricsPath:   "/metrics",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // выключенный мониторинг не проверяем
	}

	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address cannot be empty when monitoring is enabled")
	}

	if c.MetricsPath == "" {
		return fmt.Errorf("metrics_path cannot be empty")
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	return nil
}
