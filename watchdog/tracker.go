package watchdog

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"medialookup/logger"
)

// Tracker ведет учет сбоев быстрых путей по ключам и глобальную частоту
// проваливаний до авторитетного резолвера. Watchlist сам по себе не меняет
// поведение разрешения - это инструмент наблюдения; реальное подавление
// включается отдельно (SuppressFallback).
type Tracker struct {
	config Config

	mu      sync.RWMutex
	records map[string]*FailureRecord

	// Circuit breaker на ключ, создается лениво и только в режиме подавления
	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.TwoStepCircuitBreaker

	// Глобальный счетчик проваливаний в скользящем часовом окне
	fallbackMu          sync.Mutex
	fallbackWindowStart time.Time
	fallbackCount       int
	alertFired          bool

	// OnAlert вызывается один раз за окно при превышении порога проваливаний
	OnAlert func(count int)

	// now подменяется в тестах
	now func() time.Time
}

// NewTracker создает трекер с указанной конфигурацией
func NewTracker(config Config) *Tracker {
	return &Tracker{
		config:   config,
		records:  make(map[string]*FailureRecord),
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker),
		now:      time.Now,
	}
}

// RecordFailure регистрирует сбой быстрых путей для ключа.
// Первый сбой создает запись и фиксирует начало окна; последующие только
// инкрементируют счетчик. Просроченная запись считается чистой.
func (t *Tracker) RecordFailure(key string) {
	if !t.config.Enabled {
		return
	}

	now := t.now()

	t.mu.Lock()
	rec, ok := t.records[key]
	if ok && rec.expired(now, t.config.Window) {
		ok = false
	}
	if !ok {
		rec = &FailureRecord{Key: key, WindowStart: now}
		t.records[key] = rec
	}
	rec.Count++
	count := rec.Count
	t.mu.Unlock()

	if int(count) == t.config.WatchlistThreshold {
		logger.Warn("Lookup key entered watchlist after %d failures: %s", count, key)
	}

	t.feedBreaker(key, false)
}

// RecordSuccess удаляет запись о сбоях ключа целиком
func (t *Tracker) RecordSuccess(key string) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	delete(t.records, key)
	t.mu.Unlock()

	t.feedBreaker(key, true)
}

// ShouldSuppressFallback сообщает, стоит ли пропускать авторитетный
// резолвер для ключа. В базовом режиме всегда false - цель наблюдение,
// а не размыкание цепи. В режиме SuppressFallback ответ определяет
// состояние circuit breaker ключа.
func (t *Tracker) ShouldSuppressFallback(key string) bool {
	if !t.config.Enabled || !t.config.SuppressFallback {
		return false
	}

	t.breakersMu.Lock()
	b, ok := t.breakers[key]
	t.breakersMu.Unlock()
	if !ok {
		return false
	}

	return b.State() == gobreaker.StateOpen
}

// Watchlist возвращает записи, чей счетчик достиг порога.
// Просроченные записи отбрасываются (и попутно удаляются).
func (t *Tracker) Watchlist() []FailureRecord {
	if !t.config.Enabled {
		return nil
	}

	now := t.now()

	t.mu.Lock()
	out := make([]FailureRecord, 0)
	for key, rec := range t.records {
		if rec.expired(now, t.config.Window) {
			delete(t.records, key)
			continue
		}
		if rec.Watchlisted(t.config.WatchlistThreshold) {
			out = append(out, *rec)
		}
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ClearWatchlist удаляет записи, попавшие в watchlist.
// Ключи ниже порога продолжают отслеживаться.
func (t *Tracker) ClearWatchlist() {
	t.mu.Lock()
	for key, rec := range t.records {
		if rec.Watchlisted(t.config.WatchlistThreshold) {
			delete(t.records, key)
		}
	}
	t.mu.Unlock()
}

// TrackedCount возвращает количество отслеживаемых ключей
func (t *Tracker) TrackedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// RecordFallback регистрирует одно проваливание до авторитетного
// резолвера. При превышении часового порога один раз за окно пишется
// оповещение оператору; резолвер при этом не троттлится.
func (t *Tracker) RecordFallback() {
	if !t.config.Enabled {
		return
	}

	now := t.now()

	t.fallbackMu.Lock()
	if t.fallbackWindowStart.IsZero() || now.Sub(t.fallbackWindowStart) > time.Hour {
		t.fallbackWindowStart = now
		t.fallbackCount = 0
		t.alertFired = false
	}
	t.fallbackCount++
	count := t.fallbackCount
	fire := !t.alertFired && count > t.config.FallbackAlertThresholdPerHour
	if fire {
		t.alertFired = true
	}
	onAlert := t.OnAlert
	t.fallbackMu.Unlock()

	if fire {
		logger.Warn("Authoritative fallback rate exceeded %d/hour (current: %d) - fast lookup tiers may be degraded",
			t.config.FallbackAlertThresholdPerHour, count)
		if onAlert != nil {
			onAlert(count)
		}
	}
}

// FallbackCount возвращает счетчик проваливаний текущего часового окна
func (t *Tracker) FallbackCount() int {
	t.fallbackMu.Lock()
	defer t.fallbackMu.Unlock()

	if t.fallbackWindowStart.IsZero() || t.now().Sub(t.fallbackWindowStart) > time.Hour {
		return 0
	}
	return t.fallbackCount
}

// feedBreaker передает исход разрешения в breaker ключа (режим подавления)
func (t *Tracker) feedBreaker(key string, success bool) {
	if !t.config.SuppressFallback {
		return
	}

	b := t.breaker(key)
	done, err := b.Allow()
	if err != nil {
		// Breaker открыт - исход пришел не через него, пропускаем
		return
	}
	done(success)
}

// breaker лениво создает circuit breaker для ключа
func (t *Tracker) breaker(key string) *gobreaker.TwoStepCircuitBreaker {
	t.breakersMu.Lock()
	defer t.breakersMu.Unlock()

	if b, ok := t.breakers[key]; ok {
		return b
	}

	threshold := uint32(t.config.WatchlistThreshold)
	b := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     t.config.SuppressionCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Fallback breaker for %s: %s -> %s", name, from, to)
		},
	})
	t.breakers[key] = b
	return b
}
