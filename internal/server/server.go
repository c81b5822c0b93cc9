package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/sinkhorn/internal/store"
)

// Server exposes balancing jobs over HTTP: submit a matrix, poll or
// stream its progress, fetch the balanced result.
type Server struct {
	jobManager  *JobManager
	resultStore store.Store
	dataDir     string
	addr        string
	server      *http.Server
}

// NewServer creates a new HTTP server. resultStore may be nil to
// disable persistence; dataDir enables residual traces next to the
// stored records.
func NewServer(addr string, resultStore store.Store, dataDir string) *Server {
	return &Server{
		jobManager:  NewJobManager(),
		resultStore: resultStore,
		dataDir:     dataDir,
		addr:        addr,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	handler := s.loggingMiddleware(s.corsMiddleware(mux))

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: handler,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"service": "sinkhorn",
		"jobs":    "/api/v1/jobs",
	})
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	if len(parts) == 1 || parts[1] == "status" {
		s.handleGetJobStatus(w, r, jobID)
	} else if parts[1] == "result" {
		s.handleGetJobResult(w, r, jobID)
	} else if parts[1] == "stream" {
		s.handleJobStream(w, r, jobID)
	} else if parts[1] == "cancel" {
		s.handleCancelJob(w, r, jobID)
	} else {
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if len(config.Matrix) == 0 {
		http.Error(w, "matrix is required", http.StatusBadRequest)
		return
	}
	// Structural problems are caught here so the client gets a 400
	// instead of a failed job; sign and zero-line checks stay in the
	// worker because they are part of the fitting semantics.
	if _, err := matrixToDense(config.Matrix); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(config)

	ctx, cancel := context.WithCancel(context.Background())
	s.jobManager.RegisterCancel(job.ID, cancel)
	go func() {
		defer s.jobManager.ReleaseCancel(job.ID)
		runJob(ctx, s.jobManager, s.resultStore, s.dataDir, job.ID)
	}()

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	response := map[string]interface{}{
		"id":          job.ID,
		"state":       job.State,
		"size":        job.Size,
		"iterations":  job.Iterations,
		"residual":    job.Residual,
		"converged":   job.Converged,
		"stoppedBy":   job.StoppedBy,
		"diagnostics": job.Diagnostics,
		"elapsed":     elapsed.Seconds(),
		"startTime":   job.StartTime,
		"endTime":     job.EndTime,
		"error":       job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetJobResult handles GET /api/v1/jobs/:id/result. It returns
// the scale vectors plus the balanced matrix derived from them.
func (s *Server) handleGetJobResult(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	if job.State != StateCompleted {
		http.Error(w, fmt.Sprintf("Job is %s, no result available", job.State), http.StatusConflict)
		return
	}

	response := map[string]interface{}{
		"id":          job.ID,
		"rowScale":    job.RowScale,
		"colScale":    job.ColScale,
		"balanced":    balancedRows(job.Config.Matrix, job.RowScale, job.ColScale),
		"iterations":  job.Iterations,
		"residual":    job.Residual,
		"converged":   job.Converged,
		"stoppedBy":   job.StoppedBy,
		"diagnostics": job.Diagnostics,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel. The worker
// checks its context around the fitting call, so a cancelled job
// settles as cancelled the next time it reaches a checkpoint.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	switch job.State {
	case StateCompleted, StateFailed, StateCancelled:
		http.Error(w, fmt.Sprintf("Job is already %s", job.State), http.StatusConflict)
		return
	}

	if !s.jobManager.Cancel(jobID) {
		// The worker settled between the state read and the cancel.
		http.Error(w, "Job already settled", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":    jobID,
		"state": "cancelling",
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
