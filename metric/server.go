package metric

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/sentinel/errors"
)

// Server exposes the registry over HTTP.
type Server struct {
	port     int
	path     string
	registry *MetricsRegistry

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates the metrics HTTP server. Zero port defaults to 9090,
// empty path to /metrics.
func NewServer(port int, path string, registry *MetricsRegistry) *Server {
	if port == 0 {
		port = 9090
	}
	if path == "" {
		path = "/metrics"
	}
	return &Server{port: port, path: path, registry: registry}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "MetricsServer", "Start", "server already running")
	}
	if s.registry == nil {
		return errors.WrapFatal(fmt.Errorf("nil registry"), "MetricsServer", "Start", "registry not provided")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "port", s.port, "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return errors.WrapTransient(err, "MetricsServer", "Stop", "shutdown failed")
	}
	return nil
}
