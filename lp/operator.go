// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lp

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Operator is the stacked constraint matrix 𝐊 = [𝐀; 𝐆] of a problem.
// The first MEq rows are equalities, the remaining rows are inequalities.
// A problem without constraint rows has a nil K and every product is zero.
type Operator struct {
	K      *mat.Dense
	m, meq int
	n      int
}

// NewOperator stacks the equality and inequality blocks of p.
// The problem must have been validated.
func NewOperator(p *Problem) *Operator {
	n, meq, mineq := p.N(), p.MEq(), p.MIneq()
	op := &Operator{m: meq + mineq, meq: meq, n: n}
	if op.m == 0 {
		return op
	}
	op.K = mat.NewDense(op.m, n, nil)
	if meq > 0 {
		op.K.Slice(0, meq, 0, n).(*mat.Dense).Copy(p.A)
	}
	if mineq > 0 {
		op.K.Slice(meq, op.m, 0, n).(*mat.Dense).Copy(p.G)
	}
	return op
}

// Dims returns the number of rows and columns of 𝐊.
func (op *Operator) Dims() (m, n int) { return op.m, op.n }

// MEq returns the number of equality rows.
func (op *Operator) MEq() int { return op.meq }

// Mul computes dst = 𝐊x.
func (op *Operator) Mul(dst, x []float64) {
	if len(dst) != op.m || len(x) != op.n {
		panic("bound check error")
	}
	if op.m == 0 {
		return
	}
	d := mat.NewVecDense(op.m, dst)
	d.MulVec(op.K, mat.NewVecDense(op.n, x))
}

// MulTrans computes dst = 𝐊ᵀy.
func (op *Operator) MulTrans(dst, y []float64) {
	if len(dst) != op.n || len(y) != op.m {
		panic("bound check error")
	}
	if op.m == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	d := mat.NewVecDense(op.n, dst)
	d.MulVec(op.K.T(), mat.NewVecDense(op.m, y))
}

// normSeeds are the fixed streams of the power iteration start vectors.
var normSeeds = [...]uint64{0x9e3779b97f4a7c15, 0xbf58476d1ce4e5b9, 0x94d049bb133111eb}

// Norm estimates the spectral norm ‖𝐊‖₂ by power iteration on 𝐊ᵀ𝐊.
// Start vectors are drawn from fixed seeds so the estimate is deterministic
// and almost surely not orthogonal to the dominant singular vector, which a
// constant vector is whenever the rows of 𝐊 sum to zero.
// When every start collapses to zero the Frobenius norm ‖𝐊‖_F ≥ ‖𝐊‖₂ is returned.
func (op *Operator) Norm(iters int) float64 {
	if op.m == 0 {
		return 0
	}
	v := make([]float64, op.n)
	w := make([]float64, op.m)
	for _, seed := range normSeeds {
		start := distuv.Uniform{Min: 0.5, Max: 1.5, Src: rand.NewPCG(seed, uint64(op.n))}
		for i := range v {
			v[i] = start.Rand()
		}
		floats.Scale(1/floats.Norm(v, 2), v)
		if sigma := op.powerIterate(v, w, iters); sigma > 0 {
			return sigma
		}
	}
	return mat.Norm(op.K, 2)
}

// powerIterate refines the unit vector v in place and returns √‖𝐊ᵀ𝐊v‖.
// It returns 0 once v falls into the null space of 𝐊.
func (op *Operator) powerIterate(v, w []float64, iters int) float64 {
	sigma := 0.0
	for k := 0; k < iters; k++ {
		op.Mul(w, v)
		op.MulTrans(v, w)
		nrm := floats.Norm(v, 2)
		if nrm == 0 || math.IsNaN(nrm) {
			return 0
		}
		floats.Scale(1/nrm, v)
		s := math.Sqrt(nrm)
		if k > 0 && math.Abs(s-sigma) <= 1e-10*s {
			return s
		}
		sigma = s
	}
	return sigma
}
