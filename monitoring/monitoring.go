package monitoring

import (
	"context"
	"fmt"

	"medialookup/logger"
)

// Monitor - основной интерфейс модуля мониторинга
type Monitor struct {
	config *Config
	server *Server
}

// New создает экземпляр Monitor. readiness может быть nil.
func New(config *Config, readiness ReadinessCheck) (*Monitor, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitoring config: %w", err)
	}

	monitor := &Monitor{
		config: config,
		server: NewServer(config, readiness),
	}

	logger.Info("Monitoring module initialized")
	logger.Debug("Monitoring config: enabled=%v, listen=%s, path=%s",
		config.Enabled, config.ListenAddress, config.MetricsPath)

	return monitor, nil
}

// Start запускает модуль мониторинга
func (m *Monitor) Start() error {
	if !m.config.Enabled {
		logger.Info("Monitoring is disabled")
		return nil
	}

	if err := m.server.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	logger.Info("Monitoring module started")
	return nil
}

// Stop останавливает модуль мониторинга
func (m *Monitor) Stop(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}

	if err := m.server.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}

	logger.Info("Monitoring module stopped")
	return nil
}

// IsEnabled возвращает true, если мониторинг включен
func (m *Monitor) IsEnabled() bool {
	return m.config.Enabled
}
