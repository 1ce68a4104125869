// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdhg

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// evaluation is the outcome of measuring one point against the original problem.
type evaluation struct {
	Residuals
	pObj, dObj float64
	converged  bool
	finite     bool
}

// kkt is the combined relative error used to rank two points.
func (e *evaluation) kkt() float64 {
	return math.Max(e.RelPrimal, math.Max(e.RelDual, e.RelGap))
}

// detectState holds the scratch vectors of the termination detector and the
// iterates seen at the previous evaluation, whose differences are the
// infeasibility certificate candidates.
type detectState struct {
	ux, uy []float64 // point in original units
	kx     []float64 // 𝐊x
	lam    []float64 // λ = 𝐜 - 𝐊ᵀy
	rx, ry []float64 // ray in original units

	px, py   []float64 // raw iterate at the previous evaluation
	pax, pay []float64 // averaged view at the previous evaluation

	lx, ly    []float64 // last finite point
	lAveraged bool
	lValid    bool
}

func (d *detectState) init(n, m int) {
	vec := func(k int) []float64 { return make([]float64, k) }
	*d = detectState{
		ux: vec(n), uy: vec(m),
		kx: vec(m), lam: vec(n),
		rx: vec(n), ry: vec(m),
		px: vec(n), py: vec(m),
		pax: vec(n), pay: vec(m),
		lx: vec(n), ly: vec(m),
	}
}

func (d *detectState) reset() {
	d.lValid = false
}

// remember stores the iterates that the next evaluation differences against.
func (d *detectState) remember(st *iterState) {
	copy(d.px, st.x)
	copy(d.py, st.y)
	copy(d.pax, st.ax)
	copy(d.pay, st.ay)
}

// evaluate measures the scaled point (x, y) against the original problem.
// It leaves the unscaled point in d.ux, d.uy and the reduced cost in d.lam.
func (d *detectState) evaluate(spec *iterSpec, x, y []float64) (e evaluation) {
	orig := spec.orig
	meq := spec.meq
	tol := &spec.cfg.Tolerance

	spec.scaled.UnscalePrimal(d.ux, x)
	spec.scaled.UnscaleDual(d.uy, y)
	ux, uy, kx, lam := d.ux, d.uy, d.kx, d.lam

	e.finite = allFinite(ux, uy)
	if !e.finite {
		return
	}

	// primal residual
	spec.origOp.Mul(kx, ux)
	rp := zero
	for j, v := range kx {
		r := v - spec.q[j]
		if j >= meq {
			r = math.Min(r, zero)
		}
		rp += r * r
	}
	for i, v := range ux {
		r := math.Max(spec.lower[i]-v, zero) + math.Max(v-spec.upper[i], zero)
		rp += r * r
	}
	e.Primal = math.Sqrt(rp)

	// dual residual and dual objective
	spec.origOp.MulTrans(lam, uy)
	floats.SubTo(lam, orig.C, lam)
	rd := zero
	dObj := floats.Dot(spec.q, uy)
	for i, v := range lam {
		l, u := spec.lower[i], spec.upper[i]
		pos, neg := zero, zero
		if !math.IsInf(l, -1) {
			pos = math.Max(v, zero)
			dObj += l * pos
		}
		if !math.IsInf(u, 1) {
			neg = math.Max(-v, zero)
			dObj -= u * neg
		}
		r := v - (pos - neg)
		rd += r * r
	}
	for _, v := range uy[meq:] {
		if v < zero {
			rd += v * v
		}
	}
	e.Dual = math.Sqrt(rd)

	e.pObj = orig.Objective(ux)
	e.dObj = dObj + orig.Offset
	e.Gap = math.Abs(e.pObj - e.dObj)

	gapScale := one + math.Abs(e.pObj) + math.Abs(e.dObj)
	e.RelPrimal = e.Primal / (one + spec.qNorm)
	e.RelDual = e.Dual / (one + spec.cNorm)
	e.RelGap = e.Gap / gapScale

	e.finite = allFinite([]float64{e.Primal, e.Dual, e.Gap, e.pObj, e.dObj})
	e.converged = e.finite &&
		e.Primal <= math.Max(tol.EpsAbs, tol.EpsRel*(one+spec.qNorm)) &&
		e.Dual <= math.Max(tol.EpsAbs, tol.EpsRel*(one+spec.cNorm)) &&
		e.Gap <= math.Max(tol.EpsAbs, tol.EpsRel*gapScale)
	return
}

// primalInfeasible tests whether the scaled dual direction dy is a Farkas ray:
// with w = dy/‖dy‖∞ in original units and μ = -𝐊ᵀw,
//
//	𝐪ᵀw + Σ lᵢμᵢ⁺ - Σ uᵢμᵢ⁻ > 0
//
// while μ lies in the cone allowed by the bounds and w is non-negative on inequality rows.
// On success the ray is left in d.ry.
func (d *detectState) primalInfeasible(spec *iterSpec, dy []float64) (bool, float64) {
	w, mu := d.ry, d.rx
	spec.scaled.UnscaleDual(w, dy)
	nrm := floats.Norm(w, math.Inf(1))
	if !(nrm > zero) || math.IsInf(nrm, 1) {
		return false, zero
	}
	floats.Scale(one/nrm, w)

	spec.origOp.MulTrans(mu, w)
	floats.Scale(-one, mu)

	obj := floats.Dot(spec.q, w)
	viol := zero
	for i, v := range mu {
		lf, uf := !math.IsInf(spec.lower[i], -1), !math.IsInf(spec.upper[i], 1)
		switch {
		case lf && uf:
			obj += spec.lower[i]*math.Max(v, zero) - spec.upper[i]*math.Max(-v, zero)
		case lf:
			obj += spec.lower[i] * math.Max(v, zero)
			viol = math.Max(viol, -v)
		case uf:
			obj -= spec.upper[i] * math.Max(-v, zero)
			viol = math.Max(viol, v)
		default:
			viol = math.Max(viol, math.Abs(v))
		}
	}
	for _, v := range w[spec.meq:] {
		viol = math.Max(viol, -v)
	}
	return obj > zero && viol <= spec.cfg.EpsPrimalInfeasible*obj, obj
}

// dualInfeasible tests whether the scaled primal direction dx is a recession ray
// of the feasible set along which the objective decreases: with r = dx/‖dx‖∞
// in original units, 𝐜ᵀr < 0, 𝐀r = 0, 𝐆r ≥ 0 and r respects the finite bounds.
// On success the ray is left in d.rx.
func (d *detectState) dualInfeasible(spec *iterSpec, dx []float64) (bool, float64) {
	r, kr := d.rx, d.kx
	spec.scaled.UnscalePrimal(r, dx)
	nrm := floats.Norm(r, math.Inf(1))
	if !(nrm > zero) || math.IsInf(nrm, 1) {
		return false, zero
	}
	floats.Scale(one/nrm, r)

	cr := floats.Dot(spec.orig.C, r)
	if !(cr < zero) {
		return false, cr
	}

	spec.origOp.Mul(kr, r)
	viol := zero
	for j, v := range kr {
		if j < spec.meq {
			viol = math.Max(viol, math.Abs(v))
		} else {
			viol = math.Max(viol, -v)
		}
	}
	for i, v := range r {
		if !math.IsInf(spec.lower[i], -1) {
			viol = math.Max(viol, -v)
		}
		if !math.IsInf(spec.upper[i], 1) {
			viol = math.Max(viol, v)
		}
	}
	return viol <= spec.cfg.EpsDualInfeasible*(-cr), cr
}

func allFinite(vs ...[]float64) bool {
	for _, v := range vs {
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}
