package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"medialookup/api"
	"medialookup/cache"
	"medialookup/index"
	"medialookup/resolver"
	"medialookup/stats"
	"medialookup/watchdog"
)

// testResourceStore - хранилище ресурсов с фиксированными ключами
type testResourceStore struct {
	canonical map[uint64]string
	variants  map[uint64][]string
}

func (s *testResourceStore) CanonicalKey(ctx context.Context, resourceID uint64) (string, error) {
	return s.canonical[resourceID], nil
}

func (s *testResourceStore) VariantKeys(ctx context.Context, resourceID uint64) ([]string, error) {
	return s.variants[resourceID], nil
}

// newIntegrationServer собирает сервис целиком: sqlite-резолвер, bolt-кэш,
// достроенный индекс и HTTP-поверхность поверх них
func newIntegrationServer(t *testing.T) *api.Server {
	t.Helper()

	dir := t.TempDir()

	// Фикстура медиатеки для авторитетного резолвера
	dsn := filepath.Join(dir, "media.db")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("Failed to open fixture database: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE media_files (id INTEGER PRIMARY KEY, path TEXT)`); err != nil {
		t.Fatalf("Failed to create fixture table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO media_files (id, path) VALUES
		(42, '/media/2024/photo.jpg'),
		(7, '/media/2023/song.mp3')`); err != nil {
		t.Fatalf("Failed to insert fixture rows: %v", err)
	}
	db.Close()

	// Достроенный индекс покрывает песню и дает другой идентификатор,
	// чем общий кэш: конфликт должен решаться в пользу индекса
	indexPath := filepath.Join(dir, "lookup.idx")
	if err := index.WriteFile(indexPath, map[string]uint64{"/media/2023/song.mp3": 700}, true); err != nil {
		t.Fatalf("Failed to write index fixture: %v", err)
	}

	backendCfg := cache.DefaultConfig()
	backendCfg.Backend = cache.BackendBolt
	backendCfg.Bolt.Path = filepath.Join(dir, "cache.db")
	backendCfg.TTLSeconds = 60
	backend, err := cache.NewBackend(backendCfg)
	if err != nil {
		t.Fatalf("Failed to create cache backend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	// Конфликтующая запись кэша для проверки приоритета индекса
	if err := backend.Set(context.Background(), "/media/2023/song.mp3", 999, time.Minute); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	idx, err := index.Open(index.Config{Path: indexPath})
	if err != nil {
		t.Fatalf("Failed to open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	sqlCfg := resolver.DefaultSQLResolverConfig()
	sqlCfg.DSN = dsn
	auth, err := resolver.NewSQLResolver(sqlCfg)
	if err != nil {
		t.Fatalf("Failed to create SQL resolver: %v", err)
	}
	t.Cleanup(func() { auth.Close() })

	tracker := watchdog.NewTracker(watchdog.DefaultConfig())
	agg := stats.NewAggregator()

	resolverCfg := resolver.DefaultConfig()
	resolverCfg.CacheTTL = backendCfg.TTL()
	pipeline := resolver.New(resolverCfg, backend, idx, auth, tracker, agg)

	store := &testResourceStore{
		canonical: map[uint64]string{42: "/media/2024/photo.jpg"},
		variants:  map[uint64][]string{42: {"/media/2024/photo-100x100.jpg"}},
	}
	invalidator := resolver.NewInvalidator(backend, store, nil)

	return api.New(api.DefaultConfig(), pipeline, invalidator, tracker, agg, backend)
}

// resolveOnce выполняет одно разрешение через HTTP-поверхность
func resolveOnce(t *testing.T, server *api.Server, url string) resolver.Result {
	t.Helper()

	req := httptest.NewRequest("GET", "http://example.com/resolve?url="+url, nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d (%s)", http.StatusOK, w.Code, w.Body.String())
	}

	var result resolver.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode resolve response: %v", err)
	}
	return result
}

func TestLookupService_Integration(t *testing.T) {
	server := newIntegrationServer(t)

	// Первое разрешение известного файла доходит до SQL-резолвера
	result := resolveOnce(t, server, "/media/2024/photo.jpg")
	if !result.Found || result.ID != 42 {
		t.Errorf("Expected id 42, got found=%v id=%d", result.Found, result.ID)
	}
	if result.Tier != resolver.TierAuthoritative {
		t.Errorf("Expected tier %s, got %s", resolver.TierAuthoritative, result.Tier)
	}

	// Повторное разрешение обслуживается из общего кэша
	result = resolveOnce(t, server, "/media/2024/photo.jpg")
	if result.Tier != resolver.TierCache {
		t.Errorf("Expected tier %s, got %s", resolver.TierCache, result.Tier)
	}
	if result.ID != 42 {
		t.Errorf("Expected id 42 from cache, got %d", result.ID)
	}

	// Индекс опрашивается раньше кэша и выигрывает конфликт:
	// кэш засеян идентификатором 999, индекс отвечает 700
	result = resolveOnce(t, server, "/media/2023/song.mp3")
	if result.Tier != resolver.TierIndex {
		t.Errorf("Expected tier %s, got %s", resolver.TierIndex, result.Tier)
	}
	if result.ID != 700 {
		t.Errorf("Expected index to win the conflict with id 700, got %d", result.ID)
	}

	// Неизвестный файл дает определенное "не найдено"
	result = resolveOnce(t, server, "/media/2024/missing.jpg")
	if result.Found {
		t.Errorf("Expected missing file to be not found, got id %d", result.ID)
	}
	if result.Tier != resolver.TierNotFound {
		t.Errorf("Expected tier %s, got %s", resolver.TierNotFound, result.Tier)
	}

	// Отрицательный результат не кэшируется: после появления файла
	// следующее разрешение снова идет в авторитетный резолвер
	result = resolveOnce(t, server, "/media/2024/missing.jpg")
	if result.Tier != resolver.TierNotFound {
		t.Errorf("Expected repeated miss to stay %s, got %s", resolver.TierNotFound, result.Tier)
	}

	// Статистика сходится: total == successful + not_found + invalid_input
	req := httptest.NewRequest("GET", "http://example.com/stats", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var snapshot struct {
		TotalLookups      uint64 `json:"total_lookups"`
		SuccessfulLookups uint64 `json:"successful_lookups"`
		NotFoundCount     uint64 `json:"not_found_count"`
		InvalidInputCount uint64 `json:"invalid_input_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("Failed to decode stats response: %v", err)
	}
	if snapshot.TotalLookups != snapshot.SuccessfulLookups+snapshot.NotFoundCount+snapshot.InvalidInputCount {
		t.Errorf("Counter identity violated: total=%d successful=%d not_found=%d invalid=%d",
			snapshot.TotalLookups, snapshot.SuccessfulLookups,
			snapshot.NotFoundCount, snapshot.InvalidInputCount)
	}
}

func TestLookupService_FlushAndInvalidate(t *testing.T) {
	server := newIntegrationServer(t)

	// Прогреваем кэш
	resolveOnce(t, server, "/media/2024/photo.jpg")
	if result := resolveOnce(t, server, "/media/2024/photo.jpg"); result.Tier != resolver.TierCache {
		t.Fatalf("Expected warm cache, got tier %s", result.Tier)
	}

	// Полная очистка возвращает разрешение к авторитетному резолверу
	req := httptest.NewRequest("POST", "http://example.com/flush", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d from flush, got %d", http.StatusOK, w.Code)
	}

	if result := resolveOnce(t, server, "/media/2024/photo.jpg"); result.Tier != resolver.TierAuthoritative {
		t.Errorf("Expected authoritative tier after flush, got %s", result.Tier)
	}

	// Изменение непричастного атрибута кэш не трогает
	body, _ := json.Marshal(map[string]interface{}{"resource_id": 42, "changed_attr": "title"})
	req = httptest.NewRequest("POST", "http://example.com/invalidate", bytes.NewReader(body))
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d from invalidate, got %d", http.StatusOK, w.Code)
	}
	if result := resolveOnce(t, server, "/media/2024/photo.jpg"); result.Tier != resolver.TierCache {
		t.Errorf("Expected cache to survive unrelated attribute change, got tier %s", result.Tier)
	}

	// Изменение атрибута расположения вычищает канонический ключ и варианты
	body, _ = json.Marshal(map[string]interface{}{"resource_id": 42, "changed_attr": "attached_file"})
	req = httptest.NewRequest("POST", "http://example.com/invalidate", bytes.NewReader(body))
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d from invalidate, got %d", http.StatusOK, w.Code)
	}

	var evictResp struct {
		Evicted []string `json:"evicted"`
		Count   int      `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &evictResp); err != nil {
		t.Fatalf("Failed to decode invalidate response: %v", err)
	}
	if evictResp.Count != 2 {
		t.Errorf("Expected 2 evicted keys, got %d (%v)", evictResp.Count, evictResp.Evicted)
	}

	if result := resolveOnce(t, server, "/media/2024/photo.jpg"); result.Tier != resolver.TierAuthoritative {
		t.Errorf("Expected authoritative tier after invalidation, got %s", result.Tier)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	content := `
server:
  listen_address: ":8181"
logging:
  level: debug
cache:
  backend: bolt
  cache_ttl_seconds: 60
  bolt:
    path: ` + filepath.Join(dir, "cache.db") + `
sql_resolver:
  enabled: false
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config fixture: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Server.ListenAddress != ":8181" {
		t.Errorf("Expected listen address :8181, got %s", config.Server.ListenAddress)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", config.Logging.Level)
	}
	if config.Cache.Backend != cache.BackendBolt {
		t.Errorf("Expected bolt backend, got %s", config.Cache.Backend)
	}

	// TTL конвейера наследуется из конфигурации кэша
	if config.Resolver.CacheTTL != 60*time.Second {
		t.Errorf("Expected resolver ttl 60s, got %v", config.Resolver.CacheTTL)
	}

	// Незаполненные секции остаются на значениях по умолчанию
	if config.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Expected default read timeout, got %v", config.Server.ReadTimeout)
	}
	if config.Watchdog.WatchlistThreshold != 3 {
		t.Errorf("Expected default watchlist threshold 3, got %d", config.Watchdog.WatchlistThreshold)
	}
}

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "ttl below minimum",
			content: `
cache:
  cache_ttl_seconds: 30
`,
		},
		{
			name: "ttl above maximum",
			content: `
cache:
  cache_ttl_seconds: 100000
`,
		},
		{
			name: "unknown log level",
			content: `
logging:
  level: verbose
`,
		},
		{
			name: "unknown cache backend",
			content: `
cache:
  backend: memcached
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write config fixture: %v", err)
			}

			if _, err := LoadConfig(path); err == nil {
				t.Error("Expected validation error, but got none")
			}
		})
	}
}
