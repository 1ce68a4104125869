// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lp holds the linear program data consumed by the first-order solvers:
//
//	minimize    cᵀx + offset
//	subject to  Ax = b
//	            Gx ≥ h
//	            l ≤ x ≤ u
//
// together with the diagonal equilibration that is applied once before a solve
// and the stacked constraint operator K = [A; G] shared by every iteration.
package lp

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimension is returned when the vectors and matrices of a problem disagree in size.
	ErrDimension = errors.New("lp: dimension mismatch")
	// ErrBounds is returned when some lower bound exceeds its upper bound.
	ErrBounds = errors.New("lp: lower bound exceeds upper bound")
	// ErrNotFinite is returned when problem data holds NaN, or ±Inf outside of the bounds.
	ErrNotFinite = errors.New("lp: non-finite problem data")
	// ErrEmpty is returned when the problem has no variables.
	ErrEmpty = errors.New("lp: problem has no variables")
)

// Problem is a linear program in the general form above.
// A nil A (or G) means there are no equality (or inequality) rows.
// A nil Lower (or Upper) means every variable is unbounded below (or above);
// individual entries may be -Inf (or +Inf).
type Problem struct {
	C      []float64  // Cost vector 𝐜 ∈ ℝⁿ
	Offset float64    // Constant added to the objective
	A      mat.Matrix // Equality matrix 𝐀 ∈ ℝᵐ¹ˣⁿ
	B      []float64  // Equality right-hand side 𝐛 ∈ ℝᵐ¹
	G      mat.Matrix // Inequality matrix 𝐆 ∈ ℝᵐ²ˣⁿ
	H      []float64  // Inequality right-hand side 𝐡 ∈ ℝᵐ²
	Lower  []float64  // Variable lower bounds 𝐥
	Upper  []float64  // Variable upper bounds 𝐮
}

// N returns the number of variables.
func (p *Problem) N() int { return len(p.C) }

// MEq returns the number of equality rows.
func (p *Problem) MEq() int { return len(p.B) }

// MIneq returns the number of inequality rows.
func (p *Problem) MIneq() int { return len(p.H) }

// Validate checks the dimensional invariants and the numeric sanity of the data.
// The solvers refuse problems that fail it rather than attempting a repair.
func (p *Problem) Validate() error {
	n := len(p.C)
	if n == 0 {
		return ErrEmpty
	}
	if err := checkBlock("A", p.A, p.B, n); err != nil {
		return err
	}
	if err := checkBlock("G", p.G, p.H, n); err != nil {
		return err
	}
	switch {
	case p.Lower != nil && len(p.Lower) != n:
		return fmt.Errorf("%w: len(lower)=%d, n=%d", ErrDimension, len(p.Lower), n)
	case p.Upper != nil && len(p.Upper) != n:
		return fmt.Errorf("%w: len(upper)=%d, n=%d", ErrDimension, len(p.Upper), n)
	case !finite(p.C) || !finite(p.B) || !finite(p.H):
		return ErrNotFinite
	case math.IsNaN(p.Offset) || math.IsInf(p.Offset, 0):
		return ErrNotFinite
	}
	for i := 0; i < n; i++ {
		l, u := p.LowerAt(i), p.UpperAt(i)
		if math.IsNaN(l) || math.IsNaN(u) || math.IsInf(l, 1) || math.IsInf(u, -1) {
			return fmt.Errorf("%w: bound of variable %d", ErrNotFinite, i)
		}
		if l > u {
			return fmt.Errorf("%w: variable %d has [%g, %g]", ErrBounds, i, l, u)
		}
	}
	return nil
}

func checkBlock(name string, m mat.Matrix, rhs []float64, n int) error {
	if m == nil {
		if len(rhs) != 0 {
			return fmt.Errorf("%w: %s is nil but has %d right-hand side entries", ErrDimension, name, len(rhs))
		}
		return nil
	}
	r, c := m.Dims()
	if c != n || r != len(rhs) {
		return fmt.Errorf("%w: %s is %d×%d, want %d×%d", ErrDimension, name, r, c, len(rhs), n)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s[%d,%d]", ErrNotFinite, name, i, j)
			}
		}
	}
	return nil
}

// LowerAt returns the lower bound of variable i, -Inf when absent.
func (p *Problem) LowerAt(i int) float64 {
	if p.Lower == nil {
		return math.Inf(-1)
	}
	return p.Lower[i]
}

// UpperAt returns the upper bound of variable i, +Inf when absent.
func (p *Problem) UpperAt(i int) float64 {
	if p.Upper == nil {
		return math.Inf(1)
	}
	return p.Upper[i]
}

// Bounds returns dense copies of the lower and upper bound vectors.
func (p *Problem) Bounds() (lower, upper []float64) {
	n := p.N()
	lower, upper = make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i], upper[i] = p.LowerAt(i), p.UpperAt(i)
	}
	return
}

// Clone returns a deep copy whose matrices are *mat.Dense.
func (p *Problem) Clone() *Problem {
	q := &Problem{
		C:      slices.Clone(p.C),
		Offset: p.Offset,
		B:      slices.Clone(p.B),
		H:      slices.Clone(p.H),
		Lower:  slices.Clone(p.Lower),
		Upper:  slices.Clone(p.Upper),
	}
	if p.A != nil {
		q.A = mat.DenseCopyOf(p.A)
	}
	if p.G != nil {
		q.G = mat.DenseCopyOf(p.G)
	}
	return q
}

// Objective evaluates cᵀx + offset.
func (p *Problem) Objective(x []float64) float64 {
	if len(x) != len(p.C) {
		panic("bound check error")
	}
	f := p.Offset
	for i, c := range p.C {
		f += c * x[i]
	}
	return f
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
