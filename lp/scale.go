// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lp

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Scaling controls the diagonal equilibration of the constraint matrix.
type Scaling struct {
	// Number of Ruiz passes, each one dividing every row and column by the
	// square root of its ∞-norm.
	RuizIterations int `mapstructure:"ruiz_iterations" yaml:"ruiz_iterations"`
	// Apply one Pock-Chambolle pass (α = 1) after Ruiz, dividing every row and
	// column by the square root of its 1-norm.
	PockChambolle bool `mapstructure:"pock_chambolle" yaml:"pock_chambolle"`
}

// Scaled is a problem rescaled as
//
//	𝐊̃ = 𝐃ᵣ𝐊𝐃𝚌   𝐜̃ = 𝐃𝚌𝐜   𝐪̃ = 𝐃ᵣ𝐪   𝐥̃ = 𝐃𝚌⁻¹𝐥   𝐮̃ = 𝐃𝚌⁻¹𝐮
//
// so that a solution (x̃, ỹ) of the scaled problem maps back to x = 𝐃𝚌x̃, y = 𝐃ᵣỹ.
// It is derived once per solve and never modified afterwards.
type Scaled struct {
	Problem  *Problem  // scaled data, matrices are *mat.Dense
	Op       *Operator // stacked scaled operator 𝐊̃
	RowScale []float64 // 𝐃ᵣ, equality rows first
	ColScale []float64 // 𝐃𝚌
}

// Scale equilibrates a validated problem. The input problem is left untouched.
// Rows and columns that are identically zero keep a unit factor.
func Scale(p *Problem, s Scaling) *Scaled {
	op := NewOperator(p)
	m, n := op.Dims()

	row := make([]float64, m)
	col := make([]float64, n)
	floats.AddConst(1, row)
	floats.AddConst(1, col)

	if m > 0 {
		rf := make([]float64, m)
		cf := make([]float64, n)
		for k := 0; k < s.RuizIterations; k++ {
			normFactors(op.K, rf, cf, math.Inf(1))
			applyFactors(op.K, rf, cf)
			floats.Mul(row, rf)
			floats.Mul(col, cf)
		}
		if s.PockChambolle {
			normFactors(op.K, rf, cf, 1)
			applyFactors(op.K, rf, cf)
			floats.Mul(row, rf)
			floats.Mul(col, cf)
		}
	}

	meq := p.MEq()
	sp := &Problem{
		C:      make([]float64, n),
		Offset: p.Offset,
		B:      make([]float64, meq),
		H:      make([]float64, m-meq),
		Lower:  make([]float64, n),
		Upper:  make([]float64, n),
	}
	floats.MulTo(sp.C, p.C, col)
	floats.MulTo(sp.B, p.B, row[:meq])
	floats.MulTo(sp.H, p.H, row[meq:])
	for j := 0; j < n; j++ {
		sp.Lower[j] = p.LowerAt(j) / col[j]
		sp.Upper[j] = p.UpperAt(j) / col[j]
	}
	if meq > 0 {
		sp.A = op.K.Slice(0, meq, 0, n)
	}
	if m > meq {
		sp.G = op.K.Slice(meq, m, 0, n)
	}

	return &Scaled{Problem: sp, Op: op, RowScale: row, ColScale: col}
}

// normFactors fills rf and cf with 1/√‖·‖ of every row and column of k.
func normFactors(k *mat.Dense, rf, cf []float64, ord float64) {
	m, n := k.Dims()
	for j := range cf {
		cf[j] = 0
	}
	for i := 0; i < m; i++ {
		r := k.RawRowView(i)
		rf[i] = floats.Norm(r, ord)
		for j, v := range r {
			if ord == 1 {
				cf[j] += math.Abs(v)
			} else {
				cf[j] = math.Max(cf[j], math.Abs(v))
			}
		}
	}
	for i, v := range rf {
		rf[i] = invSqrt(v)
	}
	for j := 0; j < n; j++ {
		cf[j] = invSqrt(cf[j])
	}
}

func invSqrt(v float64) float64 {
	if v == 0 {
		return 1
	}
	return 1 / math.Sqrt(v)
}

func applyFactors(k *mat.Dense, rf, cf []float64) {
	m, _ := k.Dims()
	for i := 0; i < m; i++ {
		r := k.RawRowView(i)
		floats.Mul(r, cf)
		floats.Scale(rf[i], r)
	}
}

// Unscale rebuilds the original problem from the scaled data and the scaling vectors.
func (s *Scaled) Unscale() *Problem {
	sp := s.Problem
	m, n := s.Op.Dims()
	meq := s.Op.MEq()
	p := &Problem{
		C:      make([]float64, n),
		Offset: sp.Offset,
		B:      make([]float64, meq),
		H:      make([]float64, m-meq),
		Lower:  make([]float64, n),
		Upper:  make([]float64, n),
	}
	floats.DivTo(p.C, sp.C, s.ColScale)
	floats.DivTo(p.B, sp.B, s.RowScale[:meq])
	floats.DivTo(p.H, sp.H, s.RowScale[meq:])
	floats.MulTo(p.Lower, sp.Lower, s.ColScale)
	floats.MulTo(p.Upper, sp.Upper, s.ColScale)
	if m > 0 {
		k := mat.DenseCopyOf(s.Op.K)
		rf := make([]float64, m)
		cf := make([]float64, n)
		for i, v := range s.RowScale {
			rf[i] = 1 / v
		}
		for j, v := range s.ColScale {
			cf[j] = 1 / v
		}
		applyFactors(k, rf, cf)
		if meq > 0 {
			p.A = k.Slice(0, meq, 0, n)
		}
		if m > meq {
			p.G = k.Slice(meq, m, 0, n)
		}
	}
	return p
}

// UnscalePrimal maps a scaled primal vector back: dst = 𝐃𝚌x̃.
func (s *Scaled) UnscalePrimal(dst, x []float64) { floats.MulTo(dst, x, s.ColScale) }

// UnscaleDual maps a scaled dual vector back: dst = 𝐃ᵣỹ.
func (s *Scaled) UnscaleDual(dst, y []float64) { floats.MulTo(dst, y, s.RowScale) }

// ScalePrimal maps an original primal vector into scaled space: dst = 𝐃𝚌⁻¹x.
func (s *Scaled) ScalePrimal(dst, x []float64) { floats.DivTo(dst, x, s.ColScale) }

// ScaleDual maps an original dual vector into scaled space: dst = 𝐃ᵣ⁻¹y.
func (s *Scaled) ScaleDual(dst, y []float64) { floats.DivTo(dst, y, s.RowScale) }
