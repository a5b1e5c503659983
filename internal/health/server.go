// Package health provides the optional HTTP sidecar: liveness and
// readiness probes, a JSON status view of the running tasks, and the
// Prometheus metrics endpoint.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.bluewillows.net/root/flarekeep/internal/task"
)

// Readiness status values.
const (
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// Checker reports whether a dependency is usable. Returns an error when
// the component is unhealthy.
type Checker func(ctx context.Context) error

// ComponentStatus is one checker's result in a readiness response.
type ComponentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Response is the body served by /health and /ready.
type Response struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components,omitempty"`
}

// StatusResponse is the body served by /status.
type StatusResponse struct {
	Version string       `json:"version,omitempty"`
	Tasks   []task.State `json:"tasks"`
}

// Server provides /health, /ready, /status, and /metrics endpoints.
type Server struct {
	addr    string
	mux     *http.ServeMux
	server  *http.Server
	logger  *slog.Logger
	timeout time.Duration
	version string
	status  func() []task.State

	mu       sync.RWMutex
	checkers map[string]Checker
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout sets the deadline for one readiness pass.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.timeout = timeout
	}
}

// WithVersion sets the version string reported by /status.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithStatusSource sets the snapshot source for /status, normally the
// task group's States method.
func WithStatusSource(source func() []task.State) Option {
	return func(s *Server) {
		s.status = source
	}
}

// New creates a health server listening on addr.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		mux:      http.NewServeMux(),
		logger:   slog.Default(),
		timeout:  5 * time.Second,
		checkers: make(map[string]Checker),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// RegisterChecker adds a named readiness checker for the /ready endpoint.
func (s *Server) RegisterChecker(name string, checker Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = checker
	s.logger.Debug("registered readiness checker", slog.String("name", name))
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// handleHealth is the liveness probe: the process is up and serving.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(Response{Status: "healthy"})
}

// handleReady runs every registered checker and reports 503 when any
// fails. With no checkers registered it is vacuously ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checkers))
	checkers := make(map[string]Checker, len(s.checkers))
	for name, checker := range s.checkers {
		names = append(names, name)
		checkers[name] = checker
	}
	s.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	var components []ComponentStatus
	allHealthy := true

	for _, name := range names {
		status := ComponentStatus{Name: name, Healthy: true}
		if err := checkers[name](ctx); err != nil {
			status.Healthy = false
			status.Error = err.Error()
			allHealthy = false
			s.logger.Warn("readiness check failed",
				slog.String("component", name),
				slog.String("error", err.Error()),
			)
		}
		components = append(components, status)
	}

	w.Header().Set("Content-Type", "application/json")

	resp := Response{Components: components}
	if allHealthy {
		resp.Status = StatusReady
		w.WriteHeader(http.StatusOK)
	} else {
		resp.Status = StatusNotReady
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// handleStatus serves a snapshot of every running task.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Version: s.version}
	if s.status != nil {
		resp.Tasks = s.status()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// Start binds the listener and serves in a goroutine. A bind failure is
// returned synchronously so a bad address fails startup instead of being
// discovered in a log line.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health listener on %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("health server listening", slog.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != http.ErrServerClosed {
			s.logger.Error("health server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
