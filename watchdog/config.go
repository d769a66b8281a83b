package watchdog

import (
	"fmt"
	"time"
)

// Config содержит конфигурацию трекера сбоев
type Config struct {
	// Enabled определяет, ведется ли учет сбоев вообще
	Enabled bool `yaml:"enabled"`

	// WatchlistThreshold - количество сбоев одного ключа в пределах окна,
	// после которого ключ попадает в watchlist
	WatchlistThreshold int `yaml:"watchlist_threshold"`

	// Window - скользящее окно учета сбоев одного ключа
	Window time.Duration `yaml:"window"`

	// FallbackAlertThresholdPerHour - сколько проваливаний до медленного
	// авторитетного резолвера в час допустимо до оповещения оператора
	FallbackAlertThresholdPerHour int `yaml:"fallback_alert_threshold_per_hour"`

	// SuppressFallback включает режим реального circuit breaker:
	// ключи с открытым breaker не ходят в авторитетный резолвер.
	// По умолчанию выключен - watchlist только для наблюдения.
	SuppressFallback bool `yaml:"suppress_fallback"`

	// SuppressionCooldown - время, которое breaker остается открытым
	SuppressionCooldown time.Duration `yaml:"suppression_cooldown"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Enabled:                       true,
		WatchlistThreshold:            3,
		Window:                        24 * time.Hour,
		FallbackAlertThresholdPerHour: 10,
		SuppressFallback:              false,
		SuppressionCooldown:           60 * time.Second,
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.WatchlistThreshold <= 0 {
		return fmt.Errorf("watchlist_threshold must be positive")
	}

	if c.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}

	if c.FallbackAlertThresholdPerHour <= 0 {
		return fmt.Errorf("fallback_alert_threshold_per_hour must be positive")
	}

	if c.SuppressFallback && c.SuppressionCooldown <= 0 {
		return fmt.Errorf("suppression_cooldown must be positive when suppress_fallback is enabled")
	}

	return nil
}
