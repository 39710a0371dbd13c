package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/copyleftdev/NARVIK/internal/config"
	"github.com/copyleftdev/NARVIK/internal/logging"
	"github.com/copyleftdev/NARVIK/internal/optimization"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second

	cfg.Logging.Level = "debug"
	cfg.Logging.Output = "stdout"

	cfg.Solver.Gtol = 1e-8
	cfg.Solver.Xtol = 1e-12
	cfg.Solver.MaxIterations = 200
	cfg.Solver.CGMaxIterations = 200
	cfg.Solver.MaxLineSearch = 50

	return cfg
}

// testLogger creates a quiet test logger
func testLogger(t *testing.T) *logging.Logger {
	return logging.New(logging.ErrorLevel, &bytes.Buffer{})
}

func testServer(t *testing.T) (*Server, chi.Router) {
	srv := NewServer(testConfig(t), testLogger(t), zap.NewNop())
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r
}

func TestNewServer(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), nil)
	assert.NotNil(t, srv, "Server should be created")
}

func TestRegisterRoutes(t *testing.T) {
	_, r := testServer(t)

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/minimize", true},
		{"GET", "/api/v1/status/123", true},
		{"DELETE", "/api/v1/minimization/123", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", false}, // Not registered by server package
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if tt.shouldExist && rr.Code == http.StatusNotFound {
				t.Errorf("Route %s %s should exist but returned 404", tt.method, tt.path)
			}
		})
	}
}

// postJSON sends a JSON body and decodes the JSON response.
func postJSON(t *testing.T, r chi.Router, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	return rr.Code, response
}

// waitForJob polls the status endpoint until the job leaves the
// pending/running states.
func waitForJob(t *testing.T, r chi.Router, jobID string) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		code, response := postJSON(t, r, "GET", "/api/v1/status/"+jobID, nil)
		require.Equal(t, http.StatusOK, code)

		switch response["status"] {
		case "pending", "running":
			time.Sleep(10 * time.Millisecond)
		default:
			return response
		}
	}
	t.Fatalf("job %s did not finish in time", jobID)
	return nil
}

func TestMinimizeLifecycle(t *testing.T) {
	_, r := testServer(t)

	code, response := postJSON(t, r, "POST", "/api/v1/minimize", map[string]interface{}{
		"objective": "rosenbrock",
		"x0":        []float64{1.3, 0.7, 0.8, 1.9, 1.2},
	})
	require.Equal(t, http.StatusAccepted, code)
	jobID, ok := response["job_id"].(string)
	require.True(t, ok, "response should carry a job_id")

	status := waitForJob(t, r, jobID)
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, "rosenbrock", status["objective"])
	assert.NotEmpty(t, status["end_time"])

	result, ok := status["result"].(map[string]interface{})
	require.True(t, ok, "completed job should carry a result")
	assert.Equal(t, "Converged", result["solver_status"])
	assert.InDelta(t, 0.0, result["f"].(float64), 1e-10)

	x, ok := result["x"].([]interface{})
	require.True(t, ok)
	require.Len(t, x, 5)
	for i, xi := range x {
		assert.InDelta(t, 1.0, xi.(float64), 1e-5, "x[%d] should be near the minimum", i)
	}
}

func TestMinimizeHessianProduct(t *testing.T) {
	_, r := testServer(t)

	code, response := postJSON(t, r, "POST", "/api/v1/minimize", map[string]interface{}{
		"objective": "rosenbrock",
		"x0":        []float64{-1.2, 1.0},
		"hessian":   "product",
	})
	require.Equal(t, http.StatusAccepted, code)

	status := waitForJob(t, r, response["job_id"].(string))
	require.Equal(t, "completed", status["status"])
	result := status["result"].(map[string]interface{})
	assert.Equal(t, "Converged", result["solver_status"])
	// Each CG inner iteration applies the Hessian once.
	assert.Greater(t, result["hess_evals"].(float64), result["iterations"].(float64))
}

func TestMinimizeOptionsOverride(t *testing.T) {
	_, r := testServer(t)

	code, response := postJSON(t, r, "POST", "/api/v1/minimize", map[string]interface{}{
		"objective": "rosenbrock",
		"x0":        []float64{1.3, 0.7},
		"options":   map[string]interface{}{"maxiter": 1},
	})
	require.Equal(t, http.StatusAccepted, code)

	status := waitForJob(t, r, response["job_id"].(string))
	require.Equal(t, "completed", status["status"])
	result := status["result"].(map[string]interface{})
	assert.Equal(t, "MaxIterationsExceeded", result["solver_status"])
	assert.Equal(t, float64(1), result["iterations"])
}

func TestMinimizeValidation(t *testing.T) {
	_, r := testServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{
			name: "missing objective",
			body: map[string]interface{}{"x0": []float64{1, 2}},
		},
		{
			name: "missing x0",
			body: map[string]interface{}{"objective": "rosenbrock"},
		},
		{
			name: "unknown objective",
			body: map[string]interface{}{"objective": "ackley", "x0": []float64{1, 2}},
		},
		{
			name: "unknown hessian form",
			body: map[string]interface{}{"objective": "sphere", "x0": []float64{1, 2}, "hessian": "sparse"},
		},
		{
			name: "rosenbrock needs at least two variables",
			body: map[string]interface{}{"objective": "rosenbrock", "x0": []float64{1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, response := postJSON(t, r, "POST", "/api/v1/minimize", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, response["error"])
		})
	}
}

func TestJSONRPCStartAndStatus(t *testing.T) {
	_, r := testServer(t)

	code, response := postJSON(t, r, "POST", "/rpc", map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "minimize.start",
		"params": []interface{}{
			map[string]interface{}{"objective": "booth", "x0": []float64{0, 0}},
		},
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, response["error"])

	result, ok := response["result"].(map[string]interface{})
	require.True(t, ok)
	jobID := result["job_id"].(string)

	status := waitForJob(t, r, jobID)
	require.Equal(t, "completed", status["status"])

	code, response = postJSON(t, r, "POST", "/rpc", map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "minimize.status",
		"params":  []interface{}{map[string]interface{}{"job_id": jobID}},
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, response["error"])

	rpcStatus := response["result"].(map[string]interface{})
	res := rpcStatus["result"].(map[string]interface{})
	assert.Equal(t, "Converged", res["solver_status"])
	assert.InDelta(t, 1.0, res["x"].([]interface{})[0].(float64), 1e-6)
	assert.InDelta(t, 3.0, res["x"].([]interface{})[1].(float64), 1e-6)
}

func TestJSONRPCErrors(t *testing.T) {
	_, r := testServer(t)

	tests := []struct {
		name       string
		body       interface{}
		expectCode float64
	}{
		{
			name:       "unknown method",
			body:       map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "minimize.pause"},
			expectCode: -32601,
		},
		{
			name:       "wrong version",
			body:       map[string]interface{}{"jsonrpc": "1.0", "id": 1, "method": "minimize.start"},
			expectCode: -32600,
		},
		{
			name:       "missing params",
			body:       map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "minimize.status"},
			expectCode: -32000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, response := postJSON(t, r, "POST", "/rpc", tt.body)
			require.Equal(t, http.StatusOK, code)

			errObj, ok := response["error"].(map[string]interface{})
			require.True(t, ok, "response should contain error object")
			assert.Equal(t, tt.expectCode, errObj["code"])
		})
	}
}

func TestStatusNotFound(t *testing.T) {
	_, r := testServer(t)

	code, response := postJSON(t, r, "GET", "/api/v1/status/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "job not found", response["error"])
}

func TestCancelRunningJob(t *testing.T) {
	srv, r := testServer(t)

	// Insert a running job directly so the outcome doesn't race the
	// solver goroutine.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.jobsMu.Lock()
	srv.jobs["job_test"] = &JobState{
		ID:         "job_test",
		Problem:    "rosenbrock",
		Status:     "running",
		StartTime:  time.Now(),
		CancelFunc: cancel,
	}
	srv.jobsMu.Unlock()

	code, response := postJSON(t, r, "DELETE", "/api/v1/minimization/job_test", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancellation requested", response["status"])

	select {
	case <-ctx.Done():
	default:
		t.Error("cancel should have cancelled the job context")
	}

	// A second cancel is rejected.
	code, response = postJSON(t, r, "DELETE", "/api/v1/minimization/job_test", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, response["error"], "cannot cancel")
}

func TestCancelFinishedJob(t *testing.T) {
	_, r := testServer(t)

	code, response := postJSON(t, r, "POST", "/api/v1/minimize", map[string]interface{}{
		"objective": "sphere",
		"x0":        []float64{3, -4},
	})
	require.Equal(t, http.StatusAccepted, code)
	jobID := response["job_id"].(string)
	waitForJob(t, r, jobID)

	code, response = postJSON(t, r, "DELETE", "/api/v1/minimization/"+jobID, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, response["error"], "cannot cancel")
}

func TestOutcomeLabels(t *testing.T) {
	// Solver outcomes and job outcomes ("failed", "cancelled") share
	// one metric label namespace and must use one casing convention.
	statuses := []optimization.Status{
		optimization.StatusConverged,
		optimization.StatusMaxIterations,
		optimization.StatusFailed,
		optimization.StatusRunning,
	}
	for _, s := range statuses {
		label := outcomeLabel(s)
		assert.Equal(t, strings.ToLower(label), label, "label for %v must be lowercase", s)
	}

	assert.Equal(t, "converged", outcomeLabel(optimization.StatusConverged))
	assert.Equal(t, "max_iterations", outcomeLabel(optimization.StatusMaxIterations))
	assert.Equal(t, "failed", outcomeLabel(optimization.StatusFailed))
}

func TestClose(t *testing.T) {
	srv, _ := testServer(t)
	assert.NoError(t, srv.Close(), "Close should not return an error")
}

func TestRespondWithError(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{
			name:       "valid error response",
			code:       -32000,
			message:    "invalid input",
			id:         "123",
			expectedID: "123",
		},
		{
			name:       "nil id",
			code:       -32700,
			message:    "Parse error",
			id:         nil,
			expectedID: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			assert.Equal(t, http.StatusOK, rr.Code)

			var response map[string]interface{}
			err := json.NewDecoder(rr.Body).Decode(&response)
			assert.NoError(t, err, "should decode response body")

			errObj, ok := response["error"].(map[string]interface{})
			assert.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"])
			assert.Equal(t, tt.message, errObj["message"])
			assert.Equal(t, tt.expectedID, response["id"])
		})
	}
}
