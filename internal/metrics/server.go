package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ChainStatus is the processing state of one chain reported on /health.
type ChainStatus struct {
	ChainID uint64 `json:"chain_id"`
	Cursor  string `json:"cursor,omitempty"`
	Halted  string `json:"halted,omitempty"`
}

// HealthReport is the body of /health.
type HealthReport struct {
	Status string        `json:"status"`
	Chains []ChainStatus `json:"chains,omitempty"`
}

// StatusFunc returns the current state of every chain.
type StatusFunc func() []ChainStatus

// Server is the HTTP server that exposes Prometheus metrics and runtime health.
type Server struct {
	config *config.MetricsConfig
	server *http.Server
	status StatusFunc
	stopCh chan struct{}
	log    *logger.Logger
}

// NewServer creates a new metrics server. status may be nil.
func NewServer(config *config.MetricsConfig, status StatusFunc, log *logger.Logger) *Server {
	return &Server{
		config: config,
		status: status,
		stopCh: make(chan struct{}),
		log:    log,
	}
}

// Start starts the metrics HTTP server and begins collecting system metrics.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()

	mux.Handle(s.config.Path, promhttp.Handler())

	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.updateSystemMetrics(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorw("metrics server stopped", "error", err)
		}
	}()

	return nil
}

// handleHealth reports every chain's cursor. A halted chain makes the runtime
// unhealthy: it stops processing until restarted.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report := HealthReport{Status: "ok"}
	if s.status != nil {
		report.Chains = s.status()
	}

	code := http.StatusOK
	for _, c := range report.Chains {
		if c.Halted != "" {
			report.Status = "halted"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.log.Warnw("failed to write health report", "error", err)
	}
}

// Stop stops the metrics HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	close(s.stopCh)

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}

	return nil
}

// updateSystemMetrics periodically updates system-level metrics.
func (s *Server) updateSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			UpdateSystemMetrics()
			if s.status != nil {
				for _, c := range s.status() {
					ChainHaltedSet(c.ChainID, c.Halted != "")
				}
			}
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}
