package objective

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/NARVIK/internal/optimization"
)

// scalar adapts an oracle to the plain func gonum's finite differences expect.
func scalar(f optimization.Objective) func([]float64) float64 {
	return func(x []float64) float64 {
		v, err := f(x)
		if err != nil {
			panic(err)
		}
		return v
	}
}

func TestAnalyticGradientsMatchFiniteDifferences(t *testing.T) {
	tests := []struct {
		name    string
		problem optimization.Problem
		x       []float64
	}{
		{"rosenbrock", Rosenbrock(5), []float64{1.3, 0.7, 0.8, 1.9, 1.2}},
		{"sphere", Sphere(4), []float64{-1.5, 2.0, 0.3, 4.1}},
		{"booth", Booth(), []float64{-3.0, 5.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := fd.Gradient(nil, scalar(tt.problem.Func), tt.x, nil)

			got, err := tt.problem.Grad(tt.x)
			require.NoError(t, err)
			require.Len(t, got, len(tt.x))

			for i := range got {
				assert.InDelta(t, want[i], got[i], 1e-4, "gradient component %d", i)
			}
		})
	}
}

func TestAnalyticHessiansMatchFiniteDifferences(t *testing.T) {
	tests := []struct {
		name    string
		problem optimization.Problem
		x       []float64
	}{
		{"rosenbrock", Rosenbrock(4), []float64{1.3, 0.7, 0.8, 1.9}},
		{"booth", Booth(), []float64{2.0, -1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.x)
			want := mat.NewSymDense(n, nil)
			fd.Hessian(want, scalar(tt.problem.Func), tt.x, nil)

			got, err := tt.problem.Hess(tt.x)
			require.NoError(t, err)

			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					assert.InDelta(t, want.At(i, j), got.At(i, j), 1e-2, "H[%d][%d]", i, j)
				}
			}
		})
	}
}

func TestHessianProductMatchesDenseHessian(t *testing.T) {
	tests := []struct {
		name    string
		problem optimization.Problem
		x       []float64
		p       []float64
	}{
		{"rosenbrock", Rosenbrock(5), []float64{1.3, 0.7, 0.8, 1.9, 1.2}, []float64{1, -2, 0.5, 3, -1}},
		{"sphere", Sphere(3), []float64{1, 2, 3}, []float64{-1, 0, 2}},
		{"booth", Booth(), []float64{0.5, 0.5}, []float64{2, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := tt.problem.Hess(tt.x)
			require.NoError(t, err)

			n := len(tt.x)
			want := mat.NewVecDense(n, nil)
			want.MulVec(h, mat.NewVecDense(n, tt.p))

			got, err := tt.problem.HessProd(tt.x, tt.p)
			require.NoError(t, err)
			require.Len(t, got, n)

			for i := range got {
				assert.InDelta(t, want.AtVec(i), got[i], 1e-10, "Hp[%d]", i)
			}
		})
	}
}

func TestKnownMinima(t *testing.T) {
	rosen := Rosenbrock(5)
	f, err := rosen.Func([]float64{1, 1, 1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, f, 1e-14)

	g, err := rosen.Grad([]float64{1, 1, 1, 1, 1})
	require.NoError(t, err)
	for i, v := range g {
		assert.InDelta(t, 0.0, v, 1e-12, "gradient component %d", i)
	}

	booth := Booth()
	f, err = booth.Func([]float64{1, 3})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, f, 1e-14)
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		obj     string
		dim     int
		wantErr bool
	}{
		{"rosenbrock ok", "rosenbrock", 5, false},
		{"rosenbrock too small", "rosenbrock", 1, true},
		{"sphere ok", "sphere", 3, false},
		{"booth ok", "booth", 2, false},
		{"booth default dim", "booth", 0, false},
		{"booth wrong dim", "booth", 3, true},
		{"unknown", "ackley", 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Lookup(tt.obj, tt.dim)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, optimization.IsKind(err, optimization.KindInvalidConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.obj, p.Name)
			require.NoError(t, p.Validate())
		})
	}
}
