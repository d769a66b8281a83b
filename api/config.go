package api

import (
	"fmt"
	"time"
)

// Config содержит конфигурацию HTTP-поверхности хоста
type Config struct {
	// ListenAddress - адрес и порт для прослушивания (например, ":8080")
	ListenAddress string `yaml:"listen_address"`

	// TLSCertFile - путь к SSL-сертификату (опционально, включает HTTPS)
	TLSCertFile string `yaml:"tls_cert_file"`

	// TLSKeyFile - путь к приватному ключу SSL (опционально)
	TLSKeyFile string `yaml:"tls_key_file"`

	// ReadTimeout - таймаут чтения всего запроса, включая тело
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout - таймаут записи всего ответа
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		ListenAddress: ":8080",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address cannot be empty")
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("tls_cert_file and tls_key_file must be set together")
	}

	return nil
}
