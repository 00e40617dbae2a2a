package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatsFunc returns a JSON-encodable snapshot served on /stats
type StatsFunc func() interface{}

// Server serves /metrics, /healthz, /stats and /system
type Server struct {
	addr      string
	logger    *zap.Logger
	stats     StatsFunc
	collector *Collector
	router    chi.Router
}

// NewServer builds the router. stats and collector may be nil.
func NewServer(addr string, logger *zap.Logger, stats StatsFunc, collector *Collector) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{addr: addr, logger: logger, stats: stats, collector: collector}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/stats", s.handleStats)
	r.Get("/system", s.handleSystem)
	s.router = r

	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Metrics server listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		http.Error(w, "no generator attached", http.StatusNotFound)
		return
	}
	writeJSON(w, s.stats())
}

func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	if s.collector == nil {
		http.Error(w, "system metrics disabled", http.StatusNotFound)
		return
	}
	m := s.collector.GetMetrics()
	if m == nil {
		m = s.collector.Collect()
	}
	writeJSON(w, m)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
