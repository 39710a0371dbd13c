// Package objective provides reference test problems with analytic
// derivatives for exercising and validating the minimizers.
package objective

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/NARVIK/internal/optimization"
)

// Rosenbrock returns the n-dimensional Rosenbrock function
//
//	f(x) = Σ 100(xᵢ₊₁ - xᵢ²)² + (1 - xᵢ)²
//
// with analytic gradient, tridiagonal dense Hessian, and a matrix-free
// Hessian-vector product. The global minimum is f = 0 at x = (1, ..., 1).
func Rosenbrock(n int) optimization.Problem {
	return optimization.Problem{
		Name: "rosenbrock",
		Dim:  n,
		Func: func(x []float64) (float64, error) {
			sum := 0.0
			for i := 0; i < len(x)-1; i++ {
				t0 := x[i+1] - x[i]*x[i]
				t1 := 1 - x[i]
				sum += 100*t0*t0 + t1*t1
			}
			return sum, nil
		},
		Grad: func(x []float64) ([]float64, error) {
			n := len(x)
			g := make([]float64, n)
			for i := 0; i < n-1; i++ {
				t0 := x[i+1] - x[i]*x[i]
				g[i] += -400*x[i]*t0 - 2*(1-x[i])
				g[i+1] += 200 * t0
			}
			return g, nil
		},
		Hess: func(x []float64) (mat.Symmetric, error) {
			n := len(x)
			h := mat.NewSymDense(n, nil)
			for i := 0; i < n-1; i++ {
				h.SetSym(i, i, h.At(i, i)+1200*x[i]*x[i]-400*x[i+1]+2)
				h.SetSym(i+1, i+1, h.At(i+1, i+1)+200)
				h.SetSym(i, i+1, -400*x[i])
			}
			return h, nil
		},
		HessProd: func(x, p []float64) ([]float64, error) {
			n := len(x)
			hp := make([]float64, n)
			for i := 0; i < n-1; i++ {
				hp[i] += (1200*x[i]*x[i] - 400*x[i+1] + 2) * p[i]
				hp[i] += -400 * x[i] * p[i+1]
				hp[i+1] += -400*x[i]*p[i] + 200*p[i+1]
			}
			return hp, nil
		},
	}
}

// Sphere returns the n-dimensional sphere function f(x) = Σ xᵢ² with
// minimum f = 0 at the origin. Its Hessian is the constant 2I, which
// makes the inner CG solve exact in a single iteration.
func Sphere(n int) optimization.Problem {
	return optimization.Problem{
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
		HessProd: func(x, p []float64) ([]float64, error) {
			hp := make([]float64, len(p))
			for i, v := range p {
				hp[i] = 2 * v
			}
			return hp, nil
		},
	}
}

// Booth returns the two-dimensional Booth function
//
//	f(x, y) = (x + 2y - 7)² + (2x + y - 5)²
//
// with minimum f = 0 at (1, 3). Its Hessian is constant and positive
// definite, so the Newton step solves it in one outer iteration.
func Booth() optimization.Problem {
	return optimization.Problem{
		Name: "booth",
		Dim:  2,
		Func: func(x []float64) (float64, error) {
			a := x[0] + 2*x[1] - 7
			b := 2*x[0] + x[1] - 5
			return a*a + b*b, nil
		},
		Grad: func(x []float64) ([]float64, error) {
			a := x[0] + 2*x[1] - 7
			b := 2*x[0] + x[1] - 5
			return []float64{2*a + 4*b, 4*a + 2*b}, nil
		},
		Hess: func(x []float64) (mat.Symmetric, error) {
			return mat.NewSymDense(2, []float64{10, 8, 8, 10}), nil
		},
		HessProd: func(x, p []float64) ([]float64, error) {
			return []float64{10*p[0] + 8*p[1], 8*p[0] + 10*p[1]}, nil
		},
	}
}

// Lookup resolves a problem by name. Fixed-dimension problems reject a
// conflicting dim; scalable problems are instantiated at dim.
func Lookup(name string, dim int) (optimization.Problem, error) {
	switch name {
	case "rosenbrock":
		if dim < 2 {
			return optimization.Problem{}, optimization.NewErrorf(optimization.KindInvalidConfig,
				"rosenbrock requires dimension >= 2, got %d", dim)
		}
		return Rosenbrock(dim), nil
	case "sphere":
		if dim < 1 {
			return optimization.Problem{}, optimization.NewErrorf(optimization.KindInvalidConfig,
				"sphere requires dimension >= 1, got %d", dim)
		}
		return Sphere(dim), nil
	case "booth":
		if dim != 0 && dim != 2 {
			return optimization.Problem{}, optimization.NewErrorf(optimization.KindInvalidConfig,
				"booth is two-dimensional, got dimension %d", dim)
		}
		return Booth(), nil
	default:
		return optimization.Problem{}, optimization.NewErrorf(optimization.KindInvalidConfig,
			"unknown objective %q", name)
	}
}
