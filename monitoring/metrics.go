package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - единая структура для всех метрик приложения.
// Создается один раз при старте и передается в модули, которым нужно
// обновлять метрики; в тестах модули получают nil и работают без них.
type Metrics struct {
	// Метрики конвейера разрешения
	ResolutionsTotal  *prometheus.CounterVec // количество разрешений по тирам
	ResolutionLatency prometheus.Histogram   // латентность разрешения
	InvalidInputTotal prometheus.Counter     // количество некорректных URL на входе

	// Метрики сторожевого механизма
	FallbackSuppressedTotal prometheus.Counter // разрешения, не дошедшие до медленного резолвера
	FallbackAlertsTotal     prometheus.Counter // срабатывания оповещения о частоте проваливаний

	// Метрики слоя кэширования
	CacheDegraded prometheus.Gauge // 1, если бэкенд не прошел self-test живучести

	// Метрики HTTP-поверхности хоста
	HTTPRequestsTotal *prometheus.CounterVec   // количество запросов по пути и коду
	HTTPLatency       *prometheus.HistogramVec // латентность запросов по пути
}

// NewMetrics создает и регистрирует все метрики в Prometheus.
// promauto регистрирует их в default registry, поэтому функция должна
// вызываться не более одного раза за процесс.
func NewMetrics() *Metrics {
	return &Metrics{
		ResolutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medialookup_resolutions_total",
				Help: "Total number of URL resolutions by serving tier",
			},
			[]string{"tier"},
		),
		ResolutionLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "medialookup_resolution_latency_seconds",
				Help:    "Latency of URL resolutions in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		InvalidInputTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "medialookup_invalid_input_total",
				Help: "Total number of malformed lookup URLs rejected before any tier",
			},
		),
		FallbackSuppressedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "medialookup_fallback_suppressed_total",
				Help: "Total number of lookups that skipped the authoritative resolver due to an open breaker",
			},
		),
		FallbackAlertsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "medialookup_fallback_alerts_total",
				Help: "Total number of fallback-rate operator alerts",
			},
		),
		CacheDegraded: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "medialookup_cache_degraded",
				Help: "1 when the cache backend failed its persistence self-test",
			},
		),
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medialookup_http_requests_total",
				Help: "Total number of processed HTTP requests",
			},
			[]string{"path", "code"},
		),
		HTTPLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "medialookup_http_request_latency_seconds",
				Help:    "Latency of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
	}
}

// WatchlistSource - источник показателей сторожевого механизма
type WatchlistSource interface {
	TrackedCount() int
	FallbackCount() int
}

// RegisterTrackerGauges публикует текущие показатели трекера как gauge.
// Вызывается один раз после создания трекера.
func RegisterTrackerGauges(source WatchlistSource) {
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "medialookup_watchdog_tracked_keys",
			Help: "Number of lookup keys currently tracked by the watchdog",
		},
		func() float64 { return float64(source.TrackedCount()) },
	)
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "medialookup_fallback_window_count",
			Help: "Authoritative fallbacks observed in the current hourly window",
		},
		func() float64 { return float64(source.FallbackCount()) },
	)
}
