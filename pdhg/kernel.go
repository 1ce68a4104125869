// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdhg

import "math"

// stepSize is the primal/dual step pair, fixed within a restart epoch.
type stepSize struct {
	tau, sigma float64
}

// stepSizes derives τ = η/ω and σ = ηω from the current primal weight.
func (s *iterSpec) stepSizes(st *iterState) stepSize {
	return stepSize{tau: s.eta / st.omega, sigma: s.eta * st.omega}
}

// stepKernel is one fixed-point update of the iterate state.
// Implementations are deterministic and touch nothing but st and w.
type stepKernel interface {
	// advance performs one iteration and returns the number of operator products used.
	advance(st *iterState, spec *iterSpec, step stepSize, w *stepWork) int
	// reset starts a new epoch from the raw iterate.
	reset(st *iterState)
}

// applyPDHG computes T(x, y) into w.xn, w.yn:
//
//	x⁺ = 𝚙𝚛𝚘𝚓[𝐥,𝐮](x - τ(𝐜 - 𝐊ᵀy))
//	y⁺ = 𝚙𝚛𝚘𝚓𝒴(y + σ(𝐪 - 𝐊(2x⁺ - x)))
//
// where 𝒴 leaves the equality multipliers free and keeps the inequality ones non-negative.
func applyPDHG(spec *iterSpec, step stepSize, x, y []float64, w *stepWork) int {
	op := spec.scaled.Op
	c, q, l, u := spec.sc, spec.sq, spec.sLower, spec.sUpper
	xn, yn, ktY, xe, kx := w.xn, w.yn, w.ktY, w.xe, w.kx

	if len(x) != len(xn) || len(x) != len(c) || len(y) != len(yn) || len(y) != len(q) {
		panic("bound check error")
	}

	op.MulTrans(ktY, y)
	for i, xi := range x {
		v := xi - step.tau*(c[i]-ktY[i])
		v = math.Max(l[i], math.Min(u[i], v))
		xn[i] = v
		xe[i] = two*v - xi
	}

	op.Mul(kx, xe)
	meq := spec.meq
	for j, yj := range y {
		v := yj + step.sigma*(q[j]-kx[j])
		if j >= meq && v < zero {
			v = zero
		}
		yn[j] = v
	}
	return 2
}

// averagedKernel is restarted PDHG with a uniformly weighted running average.
type averagedKernel struct{}

func (averagedKernel) advance(st *iterState, spec *iterSpec, step stepSize, w *stepWork) int {
	mv := applyPDHG(spec, step, st.x, st.y, w)
	copy(st.x, w.xn)
	copy(st.y, w.yn)

	// x̄ₖ = x̄ₖ₋₁ + (xₖ - x̄ₖ₋₁)/k
	st.k++
	r := one / float64(st.k)
	for i, v := range st.x {
		st.ax[i] += r * (v - st.ax[i])
	}
	for j, v := range st.y {
		st.ay[j] += r * (v - st.ay[j])
	}
	return mv
}

func (averagedKernel) reset(st *iterState) {
	copy(st.ax, st.x)
	copy(st.ay, st.y)
	copy(st.x0, st.x)
	copy(st.y0, st.y)
	st.k = 0
}

// reflectedKernel is reflected Halpern PDHG:
//
//	zₖ₊₁ = (k+1)/(k+2) ((1+ρ)T(zₖ) - ρzₖ) + 1/(k+2) z₀
//
// The PDHG output T(zₖ) is kept as the averaged view of the state.
type reflectedKernel struct {
	rho float64
}

func (r reflectedKernel) advance(st *iterState, spec *iterSpec, step stepSize, w *stepWork) int {
	mv := applyPDHG(spec, step, st.x, st.y, w)
	copy(st.ax, w.xn)
	copy(st.ay, w.yn)

	beta := one / float64(st.k+2)
	halpern := func(z, t, z0 []float64) {
		for i, zi := range z {
			z[i] = (one-beta)*((one+r.rho)*t[i]-r.rho*zi) + beta*z0[i]
		}
	}
	halpern(st.x, w.xn, st.x0)
	halpern(st.y, w.yn, st.y0)
	st.k++
	return mv
}

func (reflectedKernel) reset(st *iterState) {
	copy(st.x0, st.x)
	copy(st.y0, st.y)
	st.k = 0
}
