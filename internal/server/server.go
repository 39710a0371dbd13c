package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/copyleftdev/NARVIK/internal/config"
	"github.com/copyleftdev/NARVIK/internal/logging"
	"github.com/copyleftdev/NARVIK/internal/metrics"
	"github.com/copyleftdev/NARVIK/internal/optimization"
	"github.com/copyleftdev/NARVIK/internal/optimization/newtoncg"
	"github.com/copyleftdev/NARVIK/internal/optimization/objective"
)

// Logger defines the logging interface used by the server.
// This allows us to be flexible with our logging implementation.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// JobState tracks one minimization job. It is guarded by the server's
// job mutex and safe for concurrent access through it.
type JobState struct {
	ID          string
	Problem     string
	Status      string // "pending", "running", "completed", "failed", "cancelled"
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Result      *optimization.Result
	Error       string
	CancelFunc  context.CancelFunc
}

// Server exposes the Newton-CG minimizer over HTTP and JSON-RPC 2.0,
// managing asynchronous minimization jobs.
type Server struct {
	cfg    *config.Config
	logger Logger
	zlog   *zap.Logger

	jobs   map[string]*JobState
	jobsMu sync.RWMutex
}

// NewServer creates a new server instance with the given config and logger.
func NewServer(cfg *config.Config, logger Logger, zlog *zap.Logger) *Server {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		zlog:   zlog,
		jobs:   make(map[string]*JobState),
	}
}

// RegisterRoutes mounts the API on the given router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/minimize", s.handleMinimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/minimization/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// startRequest is the payload of minimize.start and POST /api/v1/minimize.
type startRequest struct {
	// Objective names a registered problem: rosenbrock, sphere, booth.
	Objective string `json:"objective"`
	// X0 is the starting point; its length sets the problem dimension.
	X0 []float64 `json:"x0"`
	// Hessian selects the oracle form: "dense" (default) or "product".
	Hessian string `json:"hessian,omitempty"`
	// Options override the configured solver defaults.
	Options *solverOptions `json:"options,omitempty"`
}

type solverOptions struct {
	Gtol            *float64 `json:"gtol,omitempty"`
	Xtol            *float64 `json:"xtol,omitempty"`
	MaxIterations   *int     `json:"maxiter,omitempty"`
	CGMaxIterations *int     `json:"cg_maxiter,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      interface{}       `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", nil)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "minimize.start":
		result, err = s.startFromParams(request.Params)
	case "minimize.status":
		result, err = s.statusFromParams(request.Params)
	case "minimize.cancel":
		err = s.cancelFromParams(request.Params)
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.logger.Error("rpc request failed", map[string]interface{}{
			"method": request.Method,
			"error":  err.Error(),
		})
		s.respondWithError(w, -32000, err.Error(), request.ID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

func (s *Server) startFromParams(params []json.RawMessage) (interface{}, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("missing required parameters")
	}
	var req startRequest
	if err := json.Unmarshal(params[0], &req); err != nil {
		return nil, fmt.Errorf("invalid parameter format: %v", err)
	}
	return s.startJob(req)
}

func (s *Server) statusFromParams(params []json.RawMessage) (interface{}, error) {
	id, err := jobIDFromParams(params)
	if err != nil {
		return nil, err
	}
	return s.jobStatus(id)
}

func (s *Server) cancelFromParams(params []json.RawMessage) error {
	id, err := jobIDFromParams(params)
	if err != nil {
		return err
	}
	return s.cancelJob(id)
}

func jobIDFromParams(params []json.RawMessage) (string, error) {
	if len(params) == 0 {
		return "", fmt.Errorf("missing required parameters")
	}
	var req struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(params[0], &req); err != nil {
		return "", fmt.Errorf("invalid parameter format: %v", err)
	}
	if req.JobID == "" {
		return "", fmt.Errorf("job_id is required")
	}
	return req.JobID, nil
}

// startJob validates the request, builds the minimizer, and launches
// the job in a goroutine.
func (s *Server) startJob(req startRequest) (interface{}, error) {
	if req.Objective == "" {
		return nil, fmt.Errorf("objective is required")
	}
	if len(req.X0) == 0 {
		return nil, fmt.Errorf("x0 is required")
	}

	problem, err := objective.Lookup(req.Objective, len(req.X0))
	if err != nil {
		return nil, err
	}

	switch req.Hessian {
	case "", "dense":
		problem.HessProd = nil
	case "product":
		problem.Hess = nil
	default:
		return nil, fmt.Errorf("unknown hessian form %q, want dense or product", req.Hessian)
	}

	settings := s.cfg.SolverSettings()
	if o := req.Options; o != nil {
		if o.Gtol != nil {
			settings.Gtol = *o.Gtol
		}
		if o.Xtol != nil {
			settings.Xtol = *o.Xtol
		}
		if o.MaxIterations != nil {
			settings.MaxIterations = *o.MaxIterations
		}
		if o.CGMaxIterations != nil {
			settings.CGMaxIterations = *o.CGMaxIterations
		}
	}

	minimizer, err := newtoncg.New(problem, settings, s.zlog)
	if err != nil {
		return nil, fmt.Errorf("failed to create minimizer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := fmt.Sprintf("job_%d", time.Now().UnixNano())
	now := time.Now()
	state := &JobState{
		ID:          id,
		Problem:     problem.Name,
		Status:      "pending",
		StartTime:   now,
		LastUpdated: now,
		CancelFunc:  cancel,
	}

	s.jobsMu.Lock()
	s.jobs[id] = state
	s.jobsMu.Unlock()

	metrics.MinimizationsStarted.Inc()
	s.logger.Info("minimization job accepted", map[string]interface{}{
		"job_id":    id,
		"objective": problem.Name,
		"dim":       len(req.X0),
	})

	go s.runJob(ctx, state, minimizer, req.X0)

	return map[string]interface{}{
		"job_id": id,
		"status": "pending",
	}, nil
}

// runJob executes a minimization in its own goroutine.
func (s *Server) runJob(ctx context.Context, state *JobState, minimizer *newtoncg.Minimizer, x0 []float64) {
	s.jobsMu.Lock()
	state.Status = "running"
	state.LastUpdated = time.Now()
	s.jobsMu.Unlock()

	start := time.Now()
	result, err := minimizer.Minimize(ctx, x0)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now
	state.Result = result

	outcome := "failed"
	switch {
	case state.Status == "cancelled" || ctx.Err() != nil:
		state.Status = "cancelled"
		outcome = "cancelled"
	case err != nil:
		state.Status = "failed"
		state.Error = err.Error()
		s.logger.Error("minimization failed", map[string]interface{}{
			"job_id": state.ID,
			"error":  err.Error(),
		})
	default:
		state.Status = "completed"
		outcome = outcomeLabel(result.Status)
		s.logger.Info("minimization finished", map[string]interface{}{
			"job_id":     state.ID,
			"status":     result.Status.String(),
			"f":          result.F,
			"grad_norm":  result.GradNorm,
			"iterations": result.Stats.Iterations,
		})
	}

	metrics.MinimizationsFinished.WithLabelValues(outcome).Inc()
	metrics.Duration.Observe(time.Since(start).Seconds())
	if result != nil {
		metrics.OuterIterations.Observe(float64(result.Stats.Iterations))
	}
}

// outcomeLabel maps a solver status onto the lowercase label namespace
// shared with the "failed" and "cancelled" job outcomes.
func outcomeLabel(s optimization.Status) string {
	switch s {
	case optimization.StatusConverged:
		return "converged"
	case optimization.StatusMaxIterations:
		return "max_iterations"
	default:
		return "failed"
	}
}

// jobStatus builds the status document for a job.
func (s *Server) jobStatus(id string) (interface{}, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	state, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("job not found")
	}

	response := map[string]interface{}{
		"job_id":      state.ID,
		"objective":   state.Problem,
		"status":      state.Status,
		"start_time":  state.StartTime.Format(time.RFC3339),
		"last_update": state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Error != "" {
		response["error"] = state.Error
	}
	if res := state.Result; res != nil {
		response["result"] = map[string]interface{}{
			"x":             res.X,
			"f":             res.F,
			"grad_norm":     res.GradNorm,
			"solver_status": res.Status.String(),
			"reason":        res.Reason,
			"iterations":    res.Stats.Iterations,
			"func_evals":    res.Stats.FuncEvals,
			"grad_evals":    res.Stats.GradEvals,
			"hess_evals":    res.Stats.HessEvals,
		}
	}
	return response, nil
}

// cancelJob cancels a pending or running job.
func (s *Server) cancelJob(id string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	state, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job not found")
	}

	switch state.Status {
	case "completed", "failed", "cancelled":
		return fmt.Errorf("cannot cancel job with status: %s", state.Status)
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}

	state.Status = "cancelled"
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("minimization cancelled", map[string]interface{}{
		"job_id": id,
	})
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response.
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

// handleMinimize handles POST /api/v1/minimize.
func (s *Server) handleMinimize(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := s.startJob(req)

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(result)
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing job ID", http.StatusBadRequest)
		return
	}

	result, err := s.jobStatus(id)

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// handleCancel handles DELETE /api/v1/minimization/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing job ID", http.StatusBadRequest)
		return
	}

	err := s.cancelJob(id)

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "cancellation requested"})
}

// Close cancels all running jobs.
func (s *Server) Close() error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	for _, job := range s.jobs {
		if job.CancelFunc != nil {
			job.CancelFunc()
		}
	}
	return nil
}
