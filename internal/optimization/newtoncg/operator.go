package newtoncg

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/NARVIK/internal/optimization"
)

// Operator applies the Hessian at a fixed iterate to a vector. The CG
// solver only ever sees this capability, so a materialized matrix and a
// user-supplied product routine are interchangeable.
type Operator interface {
	// Apply computes dst = H·v
	Apply(dst, v []float64) error
}

// denseOperator is backed by a materialized symmetric Hessian.
type denseOperator struct {
	h mat.Symmetric
}

func (o *denseOperator) Apply(dst, v []float64) error {
	n := len(v)
	if r, _ := o.h.Dims(); r != n {
		return optimization.NewErrorf(optimization.KindDimensionMismatch,
			"Hessian is %dx%d but vector has length %d", r, r, n).
			WithComponent("newton_cg").WithOperation("Operator.Apply")
	}
	out := mat.NewVecDense(n, dst)
	out.MulVec(o.h, mat.NewVecDense(n, v))
	return nil
}

// productOperator is backed by a Hessian-vector-product oracle. Each
// application counts as one Hessian evaluation.
type productOperator struct {
	x     []float64
	prod  optimization.HessianProduct
	stats *optimization.Stats
}

func (o *productOperator) Apply(dst, v []float64) error {
	hp, err := o.prod(o.x, v)
	if err != nil {
		return optimization.WrapError(err, "Hessian-vector product failed").
			WithComponent("newton_cg").WithOperation("Operator.Apply")
	}
	o.stats.HessEvals++
	if len(hp) != len(dst) {
		return optimization.NewErrorf(optimization.KindDimensionMismatch,
			"Hessian product has length %d, want %d", len(hp), len(dst)).
			WithComponent("newton_cg").WithOperation("Operator.Apply")
	}
	copy(dst, hp)
	return nil
}
