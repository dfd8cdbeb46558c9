// Package adminhttp serves bloomd's optional HTTP surface: health checks,
// Prometheus metrics, and read/mutate endpoints over the filter registry
//. The wire protocol in pkg/protocol
// remains the primary interface; this package exists for operators who
// want curl/Prometheus-shaped access alongside it.
package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/bloomd/pkg/auth"
	"github.com/dd0wney/bloomd/pkg/logging"
	"github.com/dd0wney/bloomd/pkg/manager"
	"github.com/dd0wney/bloomd/pkg/metrics"
)

// Server is bloomd's admin HTTP surface.
type Server struct {
	mgr        *manager.Manager
	metrics    *metrics.Registry
	logger     logging.Logger
	jwtManager *auth.JWTManager
	startTime  time.Time

	httpServer *http.Server
}

// New builds the admin HTTP surface, binding to addr. jwtSecret signs and
// validates the bearer tokens required by the mutating routes; it must be
// at least 32 bytes (see pkg/auth.ErrShortSecret).
func New(addr, jwtSecret string, mgr *manager.Manager, reg *metrics.Registry, logger logging.Logger) (*Server, error) {
	jwtManager, err := auth.NewJWTManager(jwtSecret, time.Hour, 24*time.Hour)
	if err != nil {
		return nil, err
	}

	s := &Server{
		mgr:        mgr,
		metrics:    reg,
		logger:     logger,
		jwtManager: jwtManager,
		startTime:  time.Now(),
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(reg.GetPrometheusRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	router.HandleFunc("/filters", s.handleListFilters).Methods(http.MethodGet)
	router.HandleFunc("/filters/{name}", s.handleFilterInfo).Methods(http.MethodGet)
	router.HandleFunc("/filters/{name}/conf", s.handleFilterConf).Methods(http.MethodGet)
	router.HandleFunc("/filters/{name}", s.requireAdmin(s.handleDropFilter)).Methods(http.MethodDelete)
	router.HandleFunc("/filters/{name}/flush", s.requireAdmin(s.handleFlushFilter)).Methods(http.MethodPost)
	router.HandleFunc("/flush", s.requireAdmin(s.handleFlushAll)).Methods(http.MethodPost)

	router.Use(s.loggingMiddleware)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// ListenAndServe blocks serving HTTP until the listener is closed.
func (s *Server) ListenAndServe() error {
	s.logger.Info("admin http server listening", logging.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown implements server.Shutdownable.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("admin http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Latency(time.Since(start)))
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode admin http response", logging.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
