package resolver

import (
	"context"
	"sync"
	"time"

	"medialookup/cache"
	"medialookup/logger"
	"medialookup/monitoring"
	"medialookup/stats"
	"medialookup/watchdog"
)

// Pipeline - конвейер разрешения URL контента в идентификатор хранимого
// ресурса. Тиры опрашиваются в фиксированном порядке с коротким
// замыканием: кэш запроса -> индекс -> общий кэш -> авторитетный
// резолвер. Результат продвигается вверх по пропущенным тирам.
//
// Порядок тиров одновременно решает конфликт индекса и кэша: индекс
// опрашивается раньше и потому всегда побеждает - он детерминированно
// пересобирается из хранилища, а не ограничен сроком жизни записи.
type Pipeline struct {
	config  Config
	backend cache.Backend
	index   IndexLookup   // nil, если индекс не сконфигурирован
	auth    Authoritative // nil, если фолбэк недоступен
	tracker *watchdog.Tracker
	agg     *stats.Aggregator
	metrics *monitoring.Metrics // nil в тестах
	sink    DebugSink           // nil, если отладочный лог выключен

	// Недоступность бэкенда логируется один раз на инцидент,
	// иначе лежащий кэш устроит шторм в логах
	incidentMu  sync.Mutex
	backendDown bool
}

// New создает конвейер. index и auth могут быть nil.
func New(
	config Config,
	backend cache.Backend,
	index IndexLookup,
	auth Authoritative,
	tracker *watchdog.Tracker,
	agg *stats.Aggregator,
) *Pipeline {
	return &Pipeline{
		config:  config,
		backend: backend,
		index:   index,
		auth:    auth,
		tracker: tracker,
		agg:     agg,
	}
}

// SetDebugSink подключает приемник отладочных записей
func (p *Pipeline) SetDebugSink(sink DebugSink) {
	p.sink = sink
}

// SetMetrics подключает метрики Prometheus
func (p *Pipeline) SetMetrics(m *monitoring.Metrics) {
	p.metrics = m
}

// Resolve разрешает URL в идентификатор. Вызывающий всегда получает либо
// идентификатор, либо определенное "не найдено" - ошибки бэкендов наружу
// не выходят. rc - кэш текущего запроса; nil допустим (тир пропускается).
func (p *Pipeline) Resolve(ctx context.Context, rc *cache.RequestCache, rawURL string) Result {
	start := time.Now()

	key, err := NormalizeURL(rawURL)
	if err != nil {
		// Мусорный вход не касается ни одного тира и учитывается
		// отдельным счетчиком
		logger.Debug("Rejected lookup input %q: %v", rawURL, err)
		p.agg.Increment(stats.TotalLookups)
		p.agg.Increment(stats.InvalidInputCount)
		if p.metrics != nil {
			p.metrics.InvalidInputTotal.Inc()
		}
		return p.finish(rawURL, start, TierNotFound, 0, false)
	}

	// Тир 1: кэш текущего запроса
	if rc != nil {
		if id, found := rc.Get(key); found {
			return p.complete(rawURL, key, start, TierRequestCache, id)
		}
	}

	// Тир 2: точный индекс, только если внешний владелец его достроил.
	// Промах индекса не кэшируется как отрицательный: индекс может
	// просто не покрывать этот тип ресурса.
	if p.index != nil && p.index.Exists() {
		if id, found := p.index.GetByPath(key); found {
			if rc != nil {
				rc.Set(key, id)
			}
			return p.complete(rawURL, key, start, TierIndex, id)
		}
	}

	// Тир 3: общее долговременное хранилище; попадание продвигается
	// в кэш запроса. Недоступность хранилища - промах, не отказ.
	id, found, err := p.backend.Get(ctx, key)
	if err != nil {
		p.noteBackendIncident(err)
	} else {
		p.clearBackendIncident()
		if found {
			if rc != nil {
				rc.Set(key, id)
			}
			return p.complete(rawURL, key, start, TierCache, id)
		}
	}

	// Тир 4: авторитетный резолвер
	return p.fallback(ctx, rc, rawURL, key, start)
}

// fallback проваливается до медленного авторитетного резолвера
func (p *Pipeline) fallback(ctx context.Context, rc *cache.RequestCache, rawURL, key string, start time.Time) Result {
	if !p.config.NativeFallbackEnabled || p.auth == nil {
		// Фолбэк выключен конфигурацией: результат быстрых тиров
		// остается как есть, продолжается только инструментирование
		p.agg.Increment(stats.TotalLookups)
		p.agg.Increment(stats.NotFoundCount)
		p.agg.MarkLookup(start)
		return p.finish(rawURL, start, TierNotFound, 0, false)
	}

	if p.tracker.ShouldSuppressFallback(key) {
		logger.Debug("Fallback suppressed for %s (open breaker)", key)
		if p.metrics != nil {
			p.metrics.FallbackSuppressedTotal.Inc()
		}
		p.agg.Increment(stats.TotalLookups)
		p.agg.Increment(stats.NotFoundCount)
		p.agg.MarkLookup(start)
		return p.finish(rawURL, start, TierNotFound, 0, false)
	}

	p.tracker.RecordFallback()

	id, found, err := p.auth.Resolve(ctx, key)
	if err != nil {
		// Ошибка авторитетного резолвера наружу не выходит:
		// вызывающий получает "не найдено", сторож - сбой
		logger.Warn("Authoritative resolver failed for %s: %v", key, err)
		p.tracker.RecordFailure(key)
		p.agg.Increment(stats.TotalLookups)
		p.agg.Increment(stats.NotFoundCount)
		p.agg.MarkLookup(start)
		return p.finish(rawURL, start, TierNotFound, 0, false)
	}

	if !found {
		// Отрицательный результат не кэшируется: ресурсы нередко
		// появляются после первой пробы, и кэш минусов давал бы
		// протухшие промахи. Сбой при этом фиксируется.
		p.tracker.RecordFailure(key)
		p.agg.Increment(stats.TotalLookups)
		p.agg.Increment(stats.NotFoundCount)
		p.agg.MarkLookup(start)
		return p.finish(rawURL, start, TierNotFound, 0, false)
	}

	// Найденный идентификатор продвигается во все пропущенные тиры
	if err := p.backend.Set(ctx, key, id, p.config.CacheTTL); err != nil {
		p.noteBackendIncident(err)
	}
	if rc != nil {
		rc.Set(key, id)
	}

	return p.complete(rawURL, key, start, TierAuthoritative, id)
}

// complete оформляет успешное разрешение: статистика, сторож, результат
func (p *Pipeline) complete(rawURL, key string, start time.Time, tier Tier, id uint64) Result {
	p.agg.Increment(stats.TotalLookups)
	p.agg.Increment(stats.SuccessfulLookups)
	p.agg.MarkLookup(start)

	switch tier {
	case TierRequestCache:
		p.agg.Increment(stats.RequestCacheHits)
	case TierIndex:
		p.agg.Increment(stats.IndexHits)
	case TierCache:
		p.agg.Increment(stats.CacheHits)
	case TierAuthoritative:
		p.agg.Increment(stats.AuthoritativeHits)
	}

	// Один успех стирает запись о сбоях ключа целиком
	p.tracker.RecordSuccess(key)

	return p.finish(rawURL, start, tier, id, true)
}

// finish собирает результат и отдает его во внешние приемники
func (p *Pipeline) finish(rawURL string, start time.Time, tier Tier, id uint64, found bool) Result {
	latency := time.Since(start)

	result := Result{
		ID:            id,
		Found:         found,
		Tier:          tier,
		LatencyMicros: uint64(latency.Microseconds()),
	}

	if p.metrics != nil {
		p.metrics.ResolutionsTotal.WithLabelValues(tier.String()).Inc()
		p.metrics.ResolutionLatency.Observe(latency.Seconds())
	}

	if p.sink != nil {
		p.sink.Log(rawURL, tier.String(), id, found, result.LatencyMicros)
	}

	logger.Debug("Resolved %s -> tier=%s found=%v id=%d (%dus)",
		rawURL, tier, found, id, result.LatencyMicros)

	return result
}

// noteBackendIncident фиксирует начало инцидента недоступности бэкенда
func (p *Pipeline) noteBackendIncident(err error) {
	p.incidentMu.Lock()
	defer p.incidentMu.Unlock()

	if !p.backendDown {
		logger.Error("Cache backend %s is unavailable, degrading to slower tiers: %v",
			p.backend.Name(), err)
		p.backendDown = true
	}
}

// clearBackendIncident закрывает инцидент после первой успешной операции
func (p *Pipeline) clearBackendIncident() {
	p.incidentMu.Lock()
	defer p.incidentMu.Unlock()

	if p.backendDown {
		logger.Info("Cache backend %s is reachable again", p.backend.Name())
		p.backendDown = false
	}
}
