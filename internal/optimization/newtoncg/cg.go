package newtoncg

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// solveCG approximately solves H·d = −g with a Steihaug-style truncated
// conjugate gradient iteration. It stops when the residual satisfies the
// forcing tolerance η·‖r₀‖ with η = min(0.5, √‖g‖), when non-positive
// curvature is detected, or when maxIter inner steps have been taken.
// The returned direction is the best accumulated iterate; the caller is
// responsible for verifying it is a descent direction.
func solveCG(op Operator, g []float64, maxIter int) (d []float64, iters int, err error) {
	n := len(g)
	d = make([]float64, n)
	r := make([]float64, n)
	for i := range g {
		r[i] = -g[i]
	}
	p := make([]float64, n)
	copy(p, r)
	hp := make([]float64, n)

	rr := floats.Dot(r, r)
	r0norm := math.Sqrt(rr)
	eta := math.Min(0.5, math.Sqrt(r0norm))
	tol := eta * r0norm

	for k := 0; k < maxIter; k++ {
		if err := op.Apply(hp, p); err != nil {
			return nil, k, err
		}
		iters = k + 1

		curv := floats.Dot(p, hp)
		if curv <= 0 {
			// Non-positive curvature: the quadratic model is unbounded
			// along p, so stop here. At k = 0 nothing has accumulated
			// yet and p₀ = −g itself is the direction.
			if k == 0 {
				copy(d, p)
			}
			return d, iters, nil
		}

		tau := rr / curv
		floats.AddScaled(d, tau, p)
		floats.AddScaled(r, -tau, hp)

		rrNext := floats.Dot(r, r)
		if math.Sqrt(rrNext) <= tol {
			return d, iters, nil
		}

		beta := rrNext / rr
		for i := range p {
			p[i] = r[i] + beta*p[i]
		}
		rr = rrNext
	}

	// Inner cap hit without convergence: return the best available d.
	return d, iters, nil
}
