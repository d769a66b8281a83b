package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medialookup/api"
	"medialookup/cache"
	"medialookup/index"
	"medialookup/logger"
	"medialookup/monitoring"
	"medialookup/origin"
	"medialookup/resolver"
	"medialookup/stats"
	"medialookup/watchdog"
)

func main() {
	// Парсим аргументы командной строки
	var (
		configFile      = flag.String("config", "", "Configuration file path (YAML)")
		listenAddr      = flag.String("listen", "", "Listen address (overrides config)")
		tlsCert         = flag.String("tls-cert", "", "TLS certificate file (overrides config)")
		tlsKey          = flag.String("tls-key", "", "TLS key file (overrides config)")
		readTimeout     = flag.Duration("read-timeout", 0, "Read timeout (overrides config)")
		writeTimeout    = flag.Duration("write-timeout", 0, "Write timeout (overrides config)")
		logLevel        = flag.String("log-level", "", "Log level (debug, info, warn, error) (overrides config)")
		metricsAddr     = flag.String("metrics-listen", "", "Metrics server listen address (overrides config)")
		disableMetrics  = flag.Bool("disable-metrics", false, "Disable metrics collection (overrides config)")
		cacheBackend    = flag.String("cache-backend", "", "Cache backend: redis, bolt, memory, disabled (overrides config)")
		indexPath       = flag.String("index", "", "Lookup index file path (overrides config)")
		disableFallback = flag.Bool("disable-fallback", false, "Disable the authoritative resolver fallback (overrides config)")
	)
	flag.Parse()

	// Загружаем конфигурацию
	var config *AppConfig
	var err error

	if *configFile != "" {
		logger.Info("Loading configuration from file: %s", *configFile)
		config, err = LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		logger.Info("Configuration loaded successfully")
	} else {
		logger.Error("Config file not provided or incorrect. Exiting.")
		os.Exit(1)
	}

	// Применяем переопределения из командной строки
	applyCommandLineOverrides(config,
		*listenAddr, *tlsCert, *tlsKey, *readTimeout, *writeTimeout,
		*logLevel, *metricsAddr, *disableMetrics,
		*cacheBackend, *indexPath, *disableFallback)

	// Устанавливаем уровень логирования
	level := logger.ParseLogLevel(config.Logging.Level)
	logger.SetGlobalLevel(level)

	logger.Info("Media lookup service starting...")
	logger.Info("Log level: %s", level.String())

	startupCtx, startupCancel := context.WithTimeout(context.Background(), time.Minute)
	defer startupCancel()

	// Создаем бэкенд кэша и проверяем его живучесть
	backend, err := cache.NewBackend(config.Cache)
	if err != nil {
		log.Fatalf("Failed to create cache backend: %v", err)
	}
	logger.Info("Cache backend: %s (ttl: %v)", backend.Name(), config.Cache.TTL())

	cacheHealthy := backend.SelfTestPersistence(startupCtx)
	if !cacheHealthy {
		logger.Warn("Cache backend %s failed persistence self-test, running degraded", backend.Name())
	}

	// Создаем и запускаем модуль мониторинга
	var monitor *monitoring.Monitor
	var metrics *monitoring.Metrics
	if !*disableMetrics && config.Monitoring.Enabled {
		readiness := func(ctx context.Context) error {
			_, _, err := backend.GetRaw(ctx, "readiness:probe")
			return err
		}

		monitor, err = monitoring.New(&config.Monitoring, readiness)
		if err != nil {
			log.Fatalf("Failed to create monitoring module: %v", err)
		}

		if err := monitor.Start(); err != nil {
			log.Fatalf("Failed to start monitoring module: %v", err)
		}

		metrics = monitoring.NewMetrics()
		if !cacheHealthy {
			metrics.CacheDegraded.Set(1)
		}

		logger.Info("Monitoring enabled on %s", config.Monitoring.ListenAddress)
	} else {
		logger.Info("Monitoring disabled")
	}

	// Открываем точный индекс; его отсутствие - штатная ситуация
	idx, err := index.Open(config.Index)
	if err != nil {
		log.Fatalf("Failed to open lookup index: %v", err)
	}
	if idx.Exists() {
		logger.Info("Lookup index is built and will be consulted")
	} else {
		logger.Info("Lookup index is absent or not built, index tier disabled")
	}

	// Создаем авторитетный SQL-резолвер
	var auth resolver.Authoritative
	var sqlResolver *resolver.SQLResolver
	if config.SQLResolver.Enabled {
		sqlResolver, err = resolver.NewSQLResolver(config.SQLResolver)
		if err != nil {
			log.Fatalf("Failed to create SQL resolver: %v", err)
		}
		auth = sqlResolver
		logger.Info("Authoritative resolver: %s (%s)", config.SQLResolver.Driver, config.SQLResolver.Table)
	} else {
		logger.Info("Authoritative resolver disabled, fast tiers only")
	}

	// Создаем сторожевой механизм
	tracker := watchdog.NewTracker(config.Watchdog)
	if metrics != nil {
		monitoring.RegisterTrackerGauges(tracker)
		tracker.OnAlert = func(count int) {
			metrics.FallbackAlertsTotal.Inc()
		}
	}

	// Создаем агрегатор статистики и планировщик ее сохранения
	agg := stats.NewAggregator()
	persister := stats.NewPersister(agg, backend, config.Stats.PersistSchedule)
	if err := persister.Start(); err != nil {
		log.Fatalf("Failed to start stats persister: %v", err)
	}

	// Собираем конвейер разрешения
	pipeline := resolver.New(config.Resolver, backend, idx, auth, tracker, agg)
	if metrics != nil {
		pipeline.SetMetrics(metrics)
	}

	// Подключаем отладочный лог разрешений
	var sink *logger.DebugSink
	if config.DebugLog.Enabled {
		sink, err = logger.NewDebugSink(config.DebugLog.Path, config.DebugLog.MaxBytes)
		if err != nil {
			log.Fatalf("Failed to open debug log: %v", err)
		}
		pipeline.SetDebugSink(sink)
		logger.Info("Resolution debug log: %s", config.DebugLog.Path)
	}

	// Создаем хранилище ресурсов для инвалидации
	var store resolver.ResourceStore
	if config.Origin.Enabled {
		originStore, err := origin.NewStore(config.Origin)
		if err != nil {
			log.Fatalf("Failed to create origin store: %v", err)
		}
		store = originStore
		logger.Info("Origin store: bucket %s", config.Origin.Bucket)
	} else {
		logger.Info("Origin store disabled, invalidation events will be logged only")
	}

	invalidator := resolver.NewInvalidator(backend, store, config.Invalidation.LocationAttributes)

	// Создаем HTTP-поверхность хоста
	server := api.New(config.ToAPIConfig(), pipeline, invalidator, tracker, agg, backend)
	if metrics != nil {
		server.SetMetrics(metrics)
	}

	logger.Info("Configuration:")
	logger.Info("  Listen Address: %s", config.Server.ListenAddress)
	logger.Info("  Read Timeout: %v", config.Server.ReadTimeout)
	logger.Info("  Write Timeout: %v", config.Server.WriteTimeout)
	if config.Server.TLSCertFile != "" {
		logger.Info("  TLS Enabled: Yes")
		logger.Info("  TLS Cert: %s", config.Server.TLSCertFile)
		logger.Info("  TLS Key: %s", config.Server.TLSKeyFile)
	} else {
		logger.Info("  TLS Enabled: No")
	}

	// Настраиваем graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем сервер в отдельной горутине
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	logger.Info("Media lookup service started successfully")
	if monitor != nil && monitor.IsEnabled() {
		logger.Info("Metrics available at: %s", config.Monitoring.ListenAddress)
	}

	// Ждем сигнал для остановки
	sig := <-sigChan
	logger.Info("Received signal %v, shutting down...", sig)

	// Создаем контекст с таймаутом для graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Останавливаем HTTP-поверхность
	if err := server.Stop(ctx); err != nil {
		logger.Error("Error stopping server: %v", err)
	}

	// Сохраняем финальный снимок статистики
	persister.Stop()

	// Закрываем отладочный лог
	if sink != nil {
		if err := sink.Close(); err != nil {
			logger.Error("Error closing debug log: %v", err)
		}
	}

	// Закрываем авторитетный резолвер
	if sqlResolver != nil {
		if err := sqlResolver.Close(); err != nil {
			logger.Error("Error closing SQL resolver: %v", err)
		}
	}

	// Закрываем индекс и бэкенд кэша
	if err := idx.Close(); err != nil {
		logger.Error("Error closing lookup index: %v", err)
	}
	if err := backend.Close(); err != nil {
		logger.Error("Error closing cache backend: %v", err)
	}

	// Останавливаем мониторинг
	if monitor != nil {
		if err := monitor.Stop(ctx); err != nil {
			logger.Error("Error stopping monitoring: %v", err)
		}
	}

	logger.Info("Media lookup service stopped")
}

// applyCommandLineOverrides применяет переопределения из командной строки
func applyCommandLineOverrides(config *AppConfig,
	listenAddr, tlsCert, tlsKey string,
	readTimeout, writeTimeout time.Duration,
	logLevel, metricsAddr string, disableMetrics bool,
	cacheBackend, indexPath string, disableFallback bool) {

	// Переопределения сервера
	if listenAddr != "" {
		config.Server.ListenAddress = listenAddr
		logger.Debug("Override: server.listen_address = %s", listenAddr)
	}

	if tlsCert != "" {
		config.Server.TLSCertFile = tlsCert
		logger.Debug("Override: server.tls_cert_file = %s", tlsCert)
	}

	if tlsKey != "" {
		config.Server.TLSKeyFile = tlsKey
		logger.Debug("Override: server.tls_key_file = %s", tlsKey)
	}

	if readTimeout > 0 {
		config.Server.ReadTimeout = readTimeout
		logger.Debug("Override: server.read_timeout = %v", readTimeout)
	}

	if writeTimeout > 0 {
		config.Server.WriteTimeout = writeTimeout
		logger.Debug("Override: server.write_timeout = %v", writeTimeout)
	}

	// Переопределения логирования
	if logLevel != "" {
		config.Logging.Level = logLevel
		logger.Debug("Override: logging.level = %s", logLevel)
	}

	// Переопределения мониторинга
	if metricsAddr != "" {
		config.Monitoring.ListenAddress = metricsAddr
		logger.Debug("Override: monitoring.listen_address = %s", metricsAddr)
	}

	if disableMetrics {
		config.Monitoring.Enabled = false
		logger.Debug("Override: monitoring.enabled = false")
	}

	// Переопределения слоя кэширования и конвейера
	if cacheBackend != "" {
		config.Cache.Backend = cacheBackend
		logger.Debug("Override: cache.backend = %s", cacheBackend)
	}

	if indexPath != "" {
		config.Index.Path = indexPath
		logger.Debug("Override: index.path = %s", indexPath)
	}

	if disableFallback {
		config.Resolver.NativeFallbackEnabled = false
		logger.Debug("Override: resolver.native_fallback_enabled = false")
	}
}
