package origin

import "fmt"

// Config содержит конфигурацию хранилища ресурсов (S3-совместимого
// бакета, куда выгружены медиафайлы)
type Config struct {
	// Enabled определяет, сконфигурировано ли хранилище ресурсов
	Enabled bool `yaml:"enabled"`

	Endpoint  string `yaml:"endpoint"`   // URL эндпоинта S3 (пусто - AWS)
	Region    string `yaml:"region"`     // регион (например, us-east-1)
	Bucket    string `yaml:"bucket"`     // имя бакета с медиафайлами
	AccessKey string `yaml:"access_key"` // Access Key для аутентификации
	SecretKey string `yaml:"secret_key"` // Secret Key для аутентификации

	// KeyTemplate - шаблон ключа объекта по идентификатору ресурса,
	// например "media/%d/". Под этим префиксом лежат канонический файл
	// и его производные варианты.
	KeyTemplate string `yaml:"key_template"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Region:      "us-east-1",
		KeyTemplate: "media/%d/",
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Region == "" {
		return fmt.Errorf("region cannot be empty")
	}

	if c.Bucket == "" {
		return fmt.Errorf("bucket cannot be empty")
	}

	if c.AccessKey == "" {
		return fmt.Errorf("access_key cannot be empty")
	}

	if c.SecretKey == "" {
		return fmt.Errorf("secret_key cannot be empty")
	}

	if c.KeyTemplate == "" {
		return fmt.Errorf("key_template cannot be empty")
	}

	return nil
}
