package optimization

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// testSphereProblem builds a simple quadratic problem f(x) = Σ xᵢ² with
// analytic gradient and constant Hessian 2I, for exercising the contract.
func testSphereProblem(n int) Problem {
	return Problem{
		Name: "sphere",
		Dim:  n,
		Func: func(x []float64) (float64, error) {
			sum := 0.0
			for _, v := range x {
				sum += v * v
			}
			return sum, nil
		},
		Grad: func(x []float64) ([]float64, error) {
			g := make([]float64, len(x))
			for i, v := range x {
				g[i] = 2 * v
			}
			return g, nil
		},
		Hess: func(x []float64) (mat.Symmetric, error) {
			h := mat.NewSymDense(len(x), nil)
			for i := range x {
				h.SetSym(i, i, 2)
			}
			return h, nil
		},
	}
}

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}
