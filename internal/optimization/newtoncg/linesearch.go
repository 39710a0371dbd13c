package newtoncg

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/NARVIK/internal/optimization"
)

// armijoC1 is the sufficient-decrease constant of the line search.
const armijoC1 = 1e-4

// contraction is the backtracking factor applied after each rejected step.
const contraction = 0.5

// lineSearch finds a step length α along d satisfying the Armijo
// condition f(x + α·d) ≤ f(x) + c₁·α·gᵀd, starting from the full Newton
// step α = 1 and halving on rejection. slope must be gᵀd < 0.
//
// Non-finite trial values are treated as rejected steps, not as fatal
// errors: a trial point is not an accepted iterate, and backtracking
// will move the candidate back into the finite region.
func (r *run) lineSearch(x, d []float64, f0, slope float64, maxAttempts int) (alpha float64, xNew []float64, fNew float64, err error) {
	n := len(x)
	xNew = make([]float64, n)
	alpha = 1.0

	for attempt := 0; attempt < maxAttempts; attempt++ {
		copy(xNew, x)
		floats.AddScaled(xNew, alpha, d)

		fNew, err = r.evalFuncRaw(xNew)
		if err != nil {
			return 0, nil, 0, err
		}

		if !math.IsNaN(fNew) && !math.IsInf(fNew, 0) && fNew <= f0+armijoC1*alpha*slope {
			return alpha, xNew, fNew, nil
		}
		alpha *= contraction
	}

	return 0, nil, 0, optimization.NewErrorf(optimization.KindLineSearchFailure,
		"no acceptable step within %d backtracking attempts", maxAttempts).
		WithComponent("newton_cg").WithOperation("lineSearch")
}
