package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"medialookup/cache"
	"medialookup/logger"
	"medialookup/monitoring"
	"medialookup/resolver"
	"medialookup/stats"
	"medialookup/watchdog"
)

// Server - HTTP-поверхность хоста. Отдает разрешение URL, живую
// статистику и административные операции над кэшем и сторожем.
type Server struct {
	config      Config
	pipeline    *resolver.Pipeline
	invalidator *resolver.Invalidator
	tracker     *watchdog.Tracker
	agg         *stats.Aggregator
	backend     cache.Backend
	metrics     *monitoring.Metrics // nil в тестах

	mux    *http.ServeMux
	server *http.Server
}

// New создает сервер поверх собранного конвейера разрешения
func New(
	config Config,
	pipeline *resolver.Pipeline,
	invalidator *resolver.Invalidator,
	tracker *watchdog.Tracker,
	agg *stats.Aggregator,
	backend cache.Backend,
) *Server {
	s := &Server{
		config:      config,
		pipeline:    pipeline,
		invalidator: invalidator,
		tracker:     tracker,
		agg:         agg,
		backend:     backend,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/resolve", s.handleResolve)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/stats/reset", s.handleStatsReset)
	mux.HandleFunc("/watchlist", s.handleWatchlist)
	mux.HandleFunc("/flush", s.handleFlush)
	mux.HandleFunc("/invalidate", s.handleInvalidate)
	s.mux = mux

	return s
}

// SetMetrics подключает метрики Prometheus
func (s *Server) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// ServeHTTP реализует интерфейс http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.Debug("Incoming request: %s %s", r.Method, r.URL.Path)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	latency := time.Since(start)
	logger.Info("%s %s -> %d, %.3f ms", r.Method, r.URL.Path, rec.status,
		float64(latency.Microseconds())/1000.0)

	if s.metrics != nil {
		path := s.routeLabel(r.URL.Path)
		s.metrics.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
		s.metrics.HTTPLatency.WithLabelValues(path).Observe(latency.Seconds())
	}
}

// routeLabel ограничивает кардинальность метрик известными маршрутами
func (s *Server) routeLabel(path string) string {
	switch path {
	case "/resolve", "/stats", "/stats/reset", "/watchlist", "/flush", "/invalidate":
		return path
	}
	return "other"
}

// resolveResponse - ответ на пакетное разрешение нескольких URL
type resolveResponse struct {
	Results []resolver.Result `json:"results"`

	// Счетчики дедупликации кэша этого запроса
	RequestLookups uint64 `json:"request_lookups"`
	RequestHits    uint64 `json:"request_hits"`
}

// handleResolve разрешает один или несколько URL из параметров запроса.
// Кэш запроса создается здесь и умирает вместе с ответом.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	urls := r.URL.Query()["url"]
	if len(urls) == 0 {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	rc := cache.NewRequestCache()

	if len(urls) == 1 {
		result := s.pipeline.Resolve(r.Context(), rc, urls[0])
		writeJSON(w, http.StatusOK, result)
		return
	}

	resp := resolveResponse{Results: make([]resolver.Result, 0, len(urls))}
	for _, u := range urls {
		resp.Results = append(resp.Results, s.pipeline.Resolve(r.Context(), rc, u))
	}
	resp.RequestLookups, resp.RequestHits = rc.Stats()

	writeJSON(w, http.StatusOK, resp)
}

// statsResponse - живая статистика плюс состояние смежных подсистем
type statsResponse struct {
	stats.LiveStats

	// Unix-время последней полной очистки кэша; 0 - очисток не было
	CacheLastClearedAt int64 `json:"cache_last_cleared_at"`

	// Показатели сторожевого механизма
	WatchdogTrackedKeys int `json:"watchdog_tracked_keys"`
	FallbackWindowCount int `json:"fallback_window_count"`
}

// handleStats отдает снимок счетчиков с производными показателями
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := statsResponse{
		LiveStats:           s.agg.Snapshot(),
		WatchdogTrackedKeys: s.tracker.TrackedCount(),
		FallbackWindowCount: s.tracker.FallbackCount(),
	}

	if cleared, ok := cache.LastCleared(r.Context(), s.backend); ok {
		resp.CacheLastClearedAt = cleared.Unix()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStatsReset обнуляет счетчики агрегатора
func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.agg.Reset()
	logger.Info("Lookup statistics reset by operator request")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// watchlistResponse - содержимое watchlist сторожевого механизма
type watchlistResponse struct {
	Watchlist   []watchdog.FailureRecord `json:"watchlist"`
	TrackedKeys int                      `json:"tracked_keys"`
}

// handleWatchlist отдает или очищает список проблемных ключей
func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records := s.tracker.Watchlist()
		if records == nil {
			records = []watchdog.FailureRecord{}
		}
		writeJSON(w, http.StatusOK, watchlistResponse{
			Watchlist:   records,
			TrackedKeys: s.tracker.TrackedCount(),
		})

	case http.MethodDelete:
		s.tracker.ClearWatchlist()
		logger.Info("Watchlist cleared by operator request")
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleFlush полностью очищает общий кэш разрешений
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.backend.Flush(r.Context()); err != nil {
		logger.Error("Cache flush failed: %v", err)
		writeError(w, http.StatusInternalServerError, "cache flush failed")
		return
	}

	logger.Info("Lookup cache flushed by operator request")
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

// invalidateRequest - событие изменения ресурса от хранилища
type invalidateRequest struct {
	ResourceID  uint64 `json:"resource_id"`
	ChangedAttr string `json:"changed_attr"`

	// CanonicalURL - канонический URL из события; используется, когда
	// хранилище ресурсов не сконфигурировано
	CanonicalURL string `json:"canonical_url"`
}

// invalidateResponse - отчет о вычищенных записях
type invalidateResponse struct {
	Evicted []string `json:"evicted"`
	Count   int      `json:"count"`
}

// handleInvalidate вычищает записи кэша, затронутые изменением ресурса
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResourceID == 0 {
		writeError(w, http.StatusBadRequest, "resource_id is required")
		return
	}

	evicted, err := s.invalidator.OnResourceChanged(r.Context(), req.ResourceID, req.ChangedAttr, req.CanonicalURL)
	if err != nil {
		// Частичная очистка уже произошла, поэтому результат отдается
		// вместе с кодом ошибки не выше предупреждающего
		logger.Warn("Invalidation of resource %d finished with errors: %v", req.ResourceID, err)
	}
	if evicted == nil {
		evicted = []string{}
	}

	writeJSON(w, http.StatusOK, invalidateResponse{Evicted: evicted, Count: len(evicted)})
}

// Start запускает сервер
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	logger.Info("Starting lookup API on %s", s.config.ListenAddress)

	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		logger.Info("Starting HTTPS server with TLS")
		return s.server.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	}

	return s.server.ListenAndServe()
}

// Stop останавливает сервер
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	logger.Info("Stopping lookup API...")
	return s.server.Shutdown(ctx)
}

// statusRecorder запоминает код ответа для логов и метрик
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// writeJSON сериализует ответ в JSON
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write response: %v", err)
	}
}

// writeError сериализует ошибку в JSON
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
