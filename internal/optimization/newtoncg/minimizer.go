// Package newtoncg implements an unconstrained truncated
// Newton-Conjugate-Gradient minimizer. Each outer iteration solves the
// Newton equation H·d = −g inexactly with conjugate gradients, then
// globalizes the step with an Armijo backtracking line search.
package newtoncg

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/NARVIK/internal/optimization"
)

// Minimizer is a truncated Newton-CG minimizer for a fixed problem.
// A Minimizer is safe for repeated use; each Minimize call owns its own
// iterate and counters.
type Minimizer struct {
	problem  optimization.Problem
	settings optimization.Settings
	logger   *zap.Logger
}

// New creates a Newton-CG minimizer for the given problem. Zero-valued
// tolerance and cap fields of settings are replaced by defaults, except
// MaxIterations, which is honored as given so that a zero ceiling
// returns the starting point unchanged.
func New(problem optimization.Problem, settings optimization.Settings, logger *zap.Logger) (*Minimizer, error) {
	if err := problem.Validate(); err != nil {
		return nil, err
	}
	if settings.MaxIterations < 0 {
		return nil, optimization.NewErrorf(optimization.KindInvalidConfig,
			"MaxIterations must be non-negative, got %d", settings.MaxIterations)
	}

	def := optimization.DefaultSettings()
	if settings.Gtol <= 0 {
		settings.Gtol = def.Gtol
	}
	if settings.Xtol <= 0 {
		settings.Xtol = def.Xtol
	}
	if settings.CGMaxIterations <= 0 {
		settings.CGMaxIterations = def.CGMaxIterations
	}
	if settings.MaxLineSearch <= 0 {
		settings.MaxLineSearch = def.MaxLineSearch
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Minimizer{
		problem:  problem,
		settings: settings,
		logger:   logger.Named("newton_cg"),
	}, nil
}

// run holds the mutable state of one Minimize call.
type run struct {
	m            *Minimizer
	stats        optimization.Stats
	usedFallback bool
}

// Minimize runs the outer Newton iteration from x0 until a terminal
// state is reached. All terminal states, including failures, report the
// last accepted iterate, its function value, gradient norm, and the
// evaluation counters.
func (m *Minimizer) Minimize(ctx context.Context, x0 []float64) (*optimization.Result, error) {
	const op = "Minimize"

	n := m.problem.Dim
	if len(x0) != n {
		return nil, optimization.NewErrorf(optimization.KindDimensionMismatch,
			"starting point has length %d, problem dimension is %d", len(x0), n).
			WithComponent("newton_cg").WithOperation(op)
	}

	r := &run{m: m}
	x := make([]float64, n)
	copy(x, x0)

	f, err := r.evalFunc(x)
	if err != nil {
		return r.terminal(x, math.NaN(), math.Inf(1), optimization.StatusFailed, failureReason(err)), err
	}
	g, err := r.evalGrad(x)
	if err != nil {
		return r.terminal(x, f, math.Inf(1), optimization.StatusFailed, failureReason(err)), err
	}

	m.logger.Debug("starting minimization",
		zap.String("problem", m.problem.Name),
		zap.Int("dim", n),
		zap.Float64("f0", f),
		zap.Float64("gtol", m.settings.Gtol),
	)

	for {
		select {
		case <-ctx.Done():
			return r.terminal(x, f, floats.Norm(g, math.Inf(1)),
				optimization.StatusFailed, optimization.ReasonCancelled), ctx.Err()
		default:
		}

		gnorm := floats.Norm(g, math.Inf(1))
		if gnorm <= m.settings.Gtol {
			m.logger.Debug("converged on gradient norm",
				zap.Int("iterations", r.stats.Iterations),
				zap.Float64("gnorm", gnorm),
			)
			return r.terminal(x, f, gnorm, optimization.StatusConverged, optimization.ReasonGradientTolerance), nil
		}

		if r.stats.Iterations >= m.settings.MaxIterations {
			m.logger.Warn("iteration limit reached",
				zap.Int("iterations", r.stats.Iterations),
				zap.Float64("gnorm", gnorm),
			)
			return r.terminal(x, f, gnorm, optimization.StatusMaxIterations, optimization.ReasonIterationLimit), nil
		}

		// The Hessian operator is rebuilt at the current iterate before
		// every CG solve; it is never reused across outer iterations.
		hess, err := r.hessianAt(x)
		if err != nil {
			return r.terminal(x, f, gnorm, optimization.StatusFailed, failureReason(err)), err
		}

		cgCap := n
		if m.settings.CGMaxIterations < cgCap {
			cgCap = m.settings.CGMaxIterations
		}
		d, cgIters, err := solveCG(hess, g, cgCap)
		if err != nil {
			return r.terminal(x, f, gnorm, optimization.StatusFailed, failureReason(err)), err
		}
		if !allFinite(d) {
			err := optimization.NewError(optimization.KindNonFiniteValue,
				"CG produced a non-finite search direction").
				WithComponent("newton_cg").WithOperation(op)
			return r.terminal(x, f, gnorm, optimization.StatusFailed, optimization.ReasonNonFiniteValue), err
		}

		slope := floats.Dot(d, g)
		if slope >= 0 {
			// Roundoff can defeat the curvature safeguard; steepest
			// descent is always a descent direction.
			for i := range d {
				d[i] = -g[i]
			}
			slope = -floats.Dot(g, g)
		}

		alpha, xNew, fNew, lsErr := r.lineSearch(x, d, f, slope, m.settings.MaxLineSearch)
		if lsErr != nil && optimization.IsKind(lsErr, optimization.KindLineSearchFailure) && !r.usedFallback {
			// One recovery per run: retry along steepest descent.
			r.usedFallback = true
			m.logger.Warn("line search failed, retrying along steepest descent",
				zap.Int("iteration", r.stats.Iterations))
			for i := range d {
				d[i] = -g[i]
			}
			slope = -floats.Dot(g, g)
			alpha, xNew, fNew, lsErr = r.lineSearch(x, d, f, slope, m.settings.MaxLineSearch)
		}
		if lsErr != nil {
			return r.terminal(x, f, gnorm, optimization.StatusFailed, failureReason(lsErr)), lsErr
		}

		stepNorm := alpha * floats.Norm(d, 2)
		x, f = xNew, fNew

		g, err = r.evalGrad(x)
		if err != nil {
			return r.terminal(x, f, math.Inf(1), optimization.StatusFailed, failureReason(err)), err
		}
		r.stats.Iterations++

		m.logger.Debug("iteration accepted",
			zap.Int("iteration", r.stats.Iterations),
			zap.Float64("f", f),
			zap.Float64("alpha", alpha),
			zap.Float64("step_norm", stepNorm),
			zap.Int("cg_iterations", cgIters),
		)

		if stepNorm <= m.settings.Xtol {
			gnorm = floats.Norm(g, math.Inf(1))
			m.logger.Debug("converged on step size",
				zap.Int("iterations", r.stats.Iterations),
				zap.Float64("step_norm", stepNorm),
			)
			return r.terminal(x, f, gnorm, optimization.StatusConverged, optimization.ReasonStepTolerance), nil
		}
	}
}

// terminal builds the structured result for a terminal state.
func (r *run) terminal(x []float64, f, gnorm float64, status optimization.Status, reason string) *optimization.Result {
	out := make([]float64, len(x))
	copy(out, x)
	return &optimization.Result{
		X:        out,
		F:        f,
		GradNorm: gnorm,
		Status:   status,
		Reason:   reason,
		Stats:    r.stats,
	}
}

// evalFuncRaw evaluates the objective and counts the call without
// checking finiteness; the line search interprets non-finite trial
// values itself.
func (r *run) evalFuncRaw(x []float64) (float64, error) {
	f, err := r.m.problem.Func(x)
	r.stats.FuncEvals++
	if err != nil {
		return 0, optimization.WrapError(err, "objective evaluation failed").
			WithComponent("newton_cg").WithOperation("evalFunc")
	}
	return f, nil
}

// evalFunc evaluates the objective at an accepted iterate, where a
// non-finite value is fatal.
func (r *run) evalFunc(x []float64) (float64, error) {
	f, err := r.evalFuncRaw(x)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, optimization.NewErrorf(optimization.KindNonFiniteValue,
			"objective evaluated to %v", f).
			WithComponent("newton_cg").WithOperation("evalFunc")
	}
	return f, nil
}

// evalGrad evaluates and validates the gradient.
func (r *run) evalGrad(x []float64) ([]float64, error) {
	g, err := r.m.problem.Grad(x)
	r.stats.GradEvals++
	if err != nil {
		return nil, optimization.WrapError(err, "gradient evaluation failed").
			WithComponent("newton_cg").WithOperation("evalGrad")
	}
	if len(g) != len(x) {
		return nil, optimization.NewErrorf(optimization.KindDimensionMismatch,
			"gradient has length %d, want %d", len(g), len(x)).
			WithComponent("newton_cg").WithOperation("evalGrad")
	}
	if !allFinite(g) {
		return nil, optimization.NewError(optimization.KindNonFiniteValue,
			"gradient contains a non-finite component").
			WithComponent("newton_cg").WithOperation("evalGrad")
	}
	return g, nil
}

// hessianAt builds the Hessian operator for the current iterate. The
// product form wins when both oracles are supplied.
func (r *run) hessianAt(x []float64) (Operator, error) {
	if r.m.problem.HessProd != nil {
		frozen := make([]float64, len(x))
		copy(frozen, x)
		return &productOperator{x: frozen, prod: r.m.problem.HessProd, stats: &r.stats}, nil
	}

	h, err := r.m.problem.Hess(x)
	r.stats.HessEvals++
	if err != nil {
		return nil, optimization.WrapError(err, "Hessian evaluation failed").
			WithComponent("newton_cg").WithOperation("hessianAt")
	}
	if rows, _ := h.Dims(); rows != len(x) {
		return nil, optimization.NewErrorf(optimization.KindDimensionMismatch,
			"Hessian is %dx%d, want %dx%d", rows, rows, len(x), len(x)).
			WithComponent("newton_cg").WithOperation("hessianAt")
	}
	return &denseOperator{h: h}, nil
}

// failureReason maps a fatal error to the result reason string.
func failureReason(err error) string {
	if optimization.IsKind(err, optimization.KindNonFiniteValue) {
		return optimization.ReasonNonFiniteValue
	}
	if optimization.IsKind(err, optimization.KindLineSearchFailure) {
		return optimization.ReasonLineSearchFailure
	}
	return err.Error()
}

// allFinite reports whether every component is neither NaN nor Inf.
func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
