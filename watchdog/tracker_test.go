package watchdog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:        "Valid default config",
			config:      DefaultConfig(),
			expectError: false,
		},
		{
			name:        "Disabled config skips validation",
			config:      Config{Enabled: false},
			expectError: false,
		},
		{
			name: "Zero threshold",
			config: Config{
				Enabled:                       true,
				WatchlistThreshold:            0,
				Window:                        24 * time.Hour,
				FallbackAlertThresholdPerHour: 10,
			},
			expectError: true,
		},
		{
			name: "Zero window",
			config: Config{
				Enabled:                       true,
				WatchlistThreshold:            3,
				Window:                        0,
				FallbackAlertThresholdPerHour: 10,
			},
			expectError: true,
		},
		{
			name: "Suppression without cooldown",
			config: Config{
				Enabled:                       true,
				WatchlistThreshold:            3,
				Window:                        24 * time.Hour,
				FallbackAlertThresholdPerHour: 10,
				SuppressFallback:              true,
				SuppressionCooldown:           0,
			},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.expectError && err == nil {
				t.Error("Expected validation error, but got none")
			}
			if !tc.expectError && err != nil {
				t.Errorf("Expected no validation error, but got: %v", err)
			}
		})
	}
}

func TestWatchlistThreshold(t *testing.T) {
	tracker := NewTracker(DefaultConfig())

	tracker.RecordFailure("/up/2024/a.jpg")
	tracker.RecordFailure("/up/2024/a.jpg")
	assert.Empty(t, tracker.Watchlist(), "two failures must stay below the default threshold")

	tracker.RecordFailure("/up/2024/a.jpg")
	list := tracker.Watchlist()
	require.Len(t, list, 1)
	assert.Equal(t, "/up/2024/a.jpg", list[0].Key)
	assert.Equal(t, uint32(3), list[0].Count)
}

func TestSuccessResetsRecordCompletely(t *testing.T) {
	tracker := NewTracker(DefaultConfig())

	tracker.RecordFailure("/a.jpg")
	tracker.RecordFailure("/a.jpg")
	tracker.RecordSuccess("/a.jpg")

	// Успех стирает запись, поэтому следующие два сбоя начинают с нуля
	tracker.RecordFailure("/a.jpg")
	tracker.RecordFailure("/a.jpg")
	assert.Empty(t, tracker.Watchlist())
	assert.Equal(t, 1, tracker.TrackedCount())
}

func TestLazyWindowExpiry(t *testing.T) {
	tracker := NewTracker(DefaultConfig())

	current := time.Unix(100000, 0)
	tracker.now = func() time.Time { return current }

	tracker.RecordFailure("/a.jpg")
	tracker.RecordFailure("/a.jpg")
	tracker.RecordFailure("/a.jpg")
	require.Len(t, tracker.Watchlist(), 1)

	// Спустя сутки запись трактуется как чистая при следующем обращении
	current = current.Add(24*time.Hour + time.Minute)
	assert.Empty(t, tracker.Watchlist())
	assert.Equal(t, 0, tracker.TrackedCount())

	// Новый сбой открывает свежее окно со счетчиком 1
	tracker.RecordFailure("/a.jpg")
	assert.Empty(t, tracker.Watchlist())
}

func TestClearWatchlistKeepsLowCounters(t *testing.T) {
	tracker := NewTracker(DefaultConfig())

	for i := 0; i < 3; i++ {
		tracker.RecordFailure("/hot.jpg")
	}
	tracker.RecordFailure("/warm.jpg")

	tracker.ClearWatchlist()

	assert.Empty(t, tracker.Watchlist())
	assert.Equal(t, 1, tracker.TrackedCount(), "keys below the threshold keep their counters")
}

func TestDisabledTrackerIsNoop(t *testing.T) {
	tracker := NewTracker(Config{Enabled: false})

	tracker.RecordFailure("/a.jpg")
	tracker.RecordFallback()

	assert.Empty(t, tracker.Watchlist())
	assert.Equal(t, 0, tracker.TrackedCount())
	assert.Equal(t, 0, tracker.FallbackCount())
	assert.False(t, tracker.ShouldSuppressFallback("/a.jpg"))
}

func TestAdvisoryModeNeverSuppresses(t *testing.T) {
	tracker := NewTracker(DefaultConfig())

	for i := 0; i < 10; i++ {
		tracker.RecordFailure("/a.jpg")
	}

	// Watchlist наполняется, но подавление в базовом режиме не включается
	assert.NotEmpty(t, tracker.Watchlist())
	assert.False(t, tracker.ShouldSuppressFallback("/a.jpg"))
}

func TestSuppressionModeOpensBreaker(t *testing.T) {
	config := DefaultConfig()
	config.SuppressFallback = true
	tracker := NewTracker(config)

	assert.False(t, tracker.ShouldSuppressFallback("/a.jpg"))

	for i := 0; i < 3; i++ {
		tracker.RecordFailure("/a.jpg")
	}

	assert.True(t, tracker.ShouldSuppressFallback("/a.jpg"),
		"breaker must open after threshold consecutive failures")
	assert.False(t, tracker.ShouldSuppressFallback("/b.jpg"),
		"suppression is per-key")
}

func TestSuppressionModeSuccessKeepsBreakerClosed(t *testing.T) {
	config := DefaultConfig()
	config.SuppressFallback = true
	tracker := NewTracker(config)

	tracker.RecordFailure("/a.jpg")
	tracker.RecordFailure("/a.jpg")
	tracker.RecordSuccess("/a.jpg")
	tracker.RecordFailure("/a.jpg")
	tracker.RecordFailure("/a.jpg")

	assert.False(t, tracker.ShouldSuppressFallback("/a.jpg"))
}

func TestFallbackAlertFiresOncePerWindow(t *testing.T) {
	config := DefaultConfig()
	config.FallbackAlertThresholdPerHour = 3
	tracker := NewTracker(config)

	current := time.Unix(200000, 0)
	tracker.now = func() time.Time { return current }

	alerts := 0
	tracker.OnAlert = func(count int) { alerts++ }

	for i := 0; i < 10; i++ {
		tracker.RecordFallback()
	}
	assert.Equal(t, 1, alerts, "alert must fire exactly once per window")
	assert.Equal(t, 10, tracker.FallbackCount())

	// Новое окно - счетчик обнуляется и оповещение может сработать снова
	current = current.Add(time.Hour + time.Minute)
	assert.Equal(t, 0, tracker.FallbackCount())
	for i := 0; i < 4; i++ {
		tracker.RecordFallback()
	}
	assert.Equal(t, 2, alerts)
}

func TestConcurrentFailures(t *testing.T) {
	tracker := NewTracker(DefaultConfig())

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				tracker.RecordFailure(fmt.Sprintf("/img-%d-%d.jpg", g, i%10))
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}

	// 4 горутины по 10 уникальных ключей, каждый получил 10 сбоев
	assert.Equal(t, 40, tracker.TrackedCount())
	assert.Len(t, tracker.Watchlist(), 40)
}
