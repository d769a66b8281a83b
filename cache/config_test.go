package cache

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config must validate, got: %v", err)
	}

	if config.TTLSeconds != DefaultTTLSeconds {
		t.Errorf("Expected default TTL %d, got %d", DefaultTTLSeconds, config.TTLSeconds)
	}

	if config.TTL() != 12*time.Hour {
		t.Errorf("Expected 12h TTL, got %v", config.TTL())
	}
}

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "Valid default config",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "Unknown backend",
			mutate:      func(c *Config) { c.Backend = "memcached" },
			expectError: true,
		},
		{
			name:        "TTL below minimum",
			mutate:      func(c *Config) { c.TTLSeconds = 59 },
			expectError: true,
		},
		{
			name:        "TTL at minimum",
			mutate:      func(c *Config) { c.TTLSeconds = 60 },
			expectError: false,
		},
		{
			name:        "TTL at maximum",
			mutate:      func(c *Config) { c.TTLSeconds = 86400 },
			expectError: false,
		},
		{
			name:        "TTL above maximum",
			mutate:      func(c *Config) { c.TTLSeconds = 86401 },
			expectError: true,
		},
		{
			name: "Redis without address",
			mutate: func(c *Config) {
				c.Backend = BackendRedis
				c.Redis.Addr = ""
			},
			expectError: true,
		},
		{
			name: "Bolt without path",
			mutate: func(c *Config) {
				c.Backend = BackendBolt
				c.Bolt.Path = ""
			},
			expectError: true,
		},
		{
			name:        "Disabled backend",
			mutate:      func(c *Config) { c.Backend = BackendDisabled },
			expectError: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(&config)

			err := config.Validate()
			if tc.expectError && err == nil {
				t.Error("Expected validation error, but got none")
			}
			if !tc.expectError && err != nil {
				t.Errorf("Expected no validation error, but got: %v", err)
			}
		})
	}
}
