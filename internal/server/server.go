package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copyleftdev/nlpsolver/internal/config"
	apperrors "github.com/copyleftdev/nlpsolver/internal/errors"
	"github.com/copyleftdev/nlpsolver/internal/logging"
	"github.com/copyleftdev/nlpsolver/internal/optimization/problems"
)

// Server implements the HTTP and JSON-RPC solve service.
// It manages solve jobs and provides endpoints to start, monitor, and cancel them.
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *Metrics

	// ctx is the parent of every job context; Close cancels it.
	ctx  context.Context
	stop context.CancelFunc

	workers chan struct{}
	wg      sync.WaitGroup
	seq     atomic.Uint64

	jobs map[string]*Job
	mu   sync.RWMutex // Protects jobs and every Job field

	// stdout receives iteration tables of jobs with logging.stdout set.
	stdout io.Writer
}

// NewServer creates a new server. Metrics are registered with reg; a nil reg
// leaves them unregistered.
func NewServer(cfg *config.Config, logger *logging.Logger, reg prometheus.Registerer) *Server {
	ctx, stop := context.WithCancel(context.Background())

	workers := cfg.Solve.Workers
	if workers < 1 {
		workers = 1
	}

	return &Server{
		cfg:     cfg,
		logger:  logger.WithField("component", "server"),
		metrics: NewMetrics(reg),
		ctx:     ctx,
		stop:    stop,
		workers: make(chan struct{}, workers),
		jobs:    make(map[string]*Job),
		stdout:  os.Stdout,
	}
}

// RegisterRoutes mounts the REST API and the JSON-RPC endpoint on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/problems", s.handleProblems)
		r.Post("/solve", s.handleSolve)
		r.Get("/solve/{id}", s.handleStatus)
		r.Delete("/solve/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Router returns the complete service handler: middleware, health check,
// metrics from gatherer, and the solve routes.
func (s *Server) Router(gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(s.logger, "/healthz", "/metrics"))
	r.Use(apperrors.RecoveryMiddleware(s.logger))
	if timeout := s.cfg.HTTP.WriteTimeout; timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.RegisterRoutes(r)
	return r
}

// Close cancels every job and waits for their goroutines to return.
func (s *Server) Close() error {
	s.stop()
	s.wg.Wait()
	return nil
}

// handleProblems handles GET /api/v1/problems.
func (s *Server) handleProblems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"problems": problems.Names()})
}

// handleSolve handles POST /api/v1/solve.
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.Wrap(err, "invalid request body"))
		return
	}

	job, err := s.start(req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     job.ID,
		"status": JobPending,
	})
}

// handleStatus handles GET /api/v1/solve/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.status(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleCancel handles DELETE /api/v1/solve/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "cancellation requested",
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrJobFinished):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]interface{}{"error": err.Error()})
}
