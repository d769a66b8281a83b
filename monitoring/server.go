package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medialookup/logger"
)

// ReadinessCheck - проверка готовности хоста; nil-ошибка означает "готов"
type ReadinessCheck func(ctx context.Context) error

// Server - HTTP сервер экспорта метрик Prometheus и проверок здоровья
type Server struct {
	config       *Config
	server       *http.Server
	readiness    ReadinessCheck
	shuttingDown atomic.Bool
}

// NewServer создает сервер метрик. readiness может быть nil.
func NewServer(config *Config, readiness ReadinessCheck) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		config:    config,
		readiness: readiness,
	}
	s.shuttingDown.Store(false)
	return s
}

// Start запускает HTTP сервер метрик
func (s *Server) Start() error {
	if !s.config.Enabled {
		logger.Info("Monitoring is disabled, skipping metrics server start")
		return nil
	}

	logger.Info("Starting metrics server on %s", s.config.ListenAddress)

	mux := http.NewServeMux()
	mux.Handle(s.config.MetricsPath, promhttp.Handler())
	mux.HandleFunc("/health/live", s.liveHealthHandler)
	mux.HandleFunc("/health/ready", s.readyHealthHandler)

	s.server = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		logger.Info("Metrics server listening on %s%s", s.config.ListenAddress, s.config.MetricsPath)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed: %v", err)
		}
	}()

	return nil
}

// Stop останавливает HTTP сервер метрик
func (s *Server) Stop(ctx context.Context) error {
	if !s.config.Enabled || s.server == nil {
		return nil
	}

	logger.Info("Stopping metrics server...")
	s.shuttingDown.Store(true)
	return s.server.Shutdown(ctx)
}

// liveHealthHandler обрабатывает запросы /health/live
func (s *Server) liveHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok"}`)
}

// readyHealthHandler обрабатывает запросы /health/ready
func (s *Server) readyHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.shuttingDown.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"shutting down"}`)
		return
	}

	if s.readiness != nil {
		if err := s.readiness(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"not ready","reason":%q}`, err.Error())
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok"}`)
}
