package optimization

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Minimizer defines the interface for unconstrained minimization algorithms
type Minimizer interface {
	// Minimize runs the minimization starting from x0
	Minimize(ctx context.Context, x0 []float64) (*Result, error)
}

// Objective evaluates the function value at x
type Objective func(x []float64) (float64, error)

// Gradient evaluates the gradient of the objective at x
type Gradient func(x []float64) ([]float64, error)

// Hessian evaluates the dense symmetric Hessian at x
type Hessian func(x []float64) (mat.Symmetric, error)

// HessianProduct evaluates the Hessian-vector product H(x)·p without
// materializing the Hessian
type HessianProduct func(x, p []float64) ([]float64, error)

// Problem bundles the derivative oracle for a minimization run.
// Func and Grad are required. Exactly one of Hess or HessProd supplies
// second-order information; when both are set the product form wins.
type Problem struct {
	// Name identifies the problem in logs and job listings
	Name string

	// Dim is the expected dimension of the iterate
	Dim int

	// Func is the objective value oracle
	Func Objective

	// Grad is the gradient oracle
	Grad Gradient

	// Hess is the dense Hessian oracle (optional)
	Hess Hessian

	// HessProd is the matrix-free Hessian-vector-product oracle (optional)
	HessProd HessianProduct
}

// Validate checks that the problem carries a usable oracle.
func (p *Problem) Validate() error {
	if p.Func == nil {
		return NewError(KindInvalidConfig, "objective function is required")
	}
	if p.Grad == nil {
		return NewError(KindInvalidConfig, "gradient function is required")
	}
	if p.Hess == nil && p.HessProd == nil {
		return NewError(KindInvalidConfig, "either a Hessian or a Hessian-vector product is required")
	}
	if p.Dim <= 0 {
		return NewError(KindInvalidConfig, "problem dimension must be positive")
	}
	return nil
}

// Settings contains the recognized options of the minimizer
type Settings struct {
	// Gtol is the gradient-norm (infinity norm) stopping threshold
	Gtol float64

	// Xtol is the step-size stopping threshold for stagnation detection
	Xtol float64

	// MaxIterations caps the outer Newton iterations
	MaxIterations int

	// CGMaxIterations caps the inner conjugate-gradient iterations;
	// the effective cap is min(CGMaxIterations, dimension)
	CGMaxIterations int

	// MaxLineSearch caps backtracking attempts per outer iteration
	MaxLineSearch int
}

// DefaultSettings returns the default minimizer settings
func DefaultSettings() Settings {
	return Settings{
		Gtol:            1e-8,
		Xtol:            1e-12,
		MaxIterations:   200,
		CGMaxIterations: 200,
		MaxLineSearch:   50,
	}
}

// Status reports the terminal state of a minimization run
type Status int

const (
	// StatusRunning means the minimization has not reached a terminal state
	StatusRunning Status = iota
	// StatusConverged means a convergence tolerance was satisfied
	StatusConverged
	// StatusMaxIterations means the iteration ceiling was hit; the last
	// iterate is still returned
	StatusMaxIterations
	// StatusFailed means a fatal condition aborted the run
	StatusFailed
)

// String returns a human-readable status name
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusConverged:
		return "Converged"
	case StatusMaxIterations:
		return "MaxIterationsExceeded"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Termination reasons recorded on the result alongside the status.
const (
	ReasonGradientTolerance = "gradient norm below gtol"
	ReasonStepTolerance     = "step size below xtol"
	ReasonIterationLimit    = "outer iteration limit reached"
	ReasonLineSearchFailure = "line search failed to find an acceptable step"
	ReasonNonFiniteValue    = "non-finite value encountered"
	ReasonCancelled         = "cancelled by caller"
)

// Stats counts the work performed during a run.
// The counters are owned by the driver and threaded through explicitly,
// never kept as package globals.
type Stats struct {
	// Iterations is the number of outer Newton iterations performed
	Iterations int

	// FuncEvals counts objective evaluations, line search included
	FuncEvals int

	// GradEvals counts gradient evaluations
	GradEvals int

	// HessEvals counts Hessian evaluations on the dense path, or
	// Hessian-vector products on the matrix-free path
	HessEvals int
}

// Result contains the outcome of a minimization run
type Result struct {
	// X is the best iterate found
	X []float64

	// F is the objective value at X
	F float64

	// GradNorm is the infinity norm of the gradient at X
	GradNorm float64

	// Status is the terminal state of the run
	Status Status

	// Reason describes why the run terminated
	Reason string

	// Stats holds the iteration and evaluation counters
	Stats Stats
}
