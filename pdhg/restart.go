// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdhg

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// RestartEvent records one restart.
type RestartEvent struct {
	Iter         int     // Iteration at which the restart happened.
	Length       int     // Iterations in the epoch that ended.
	KKT          float64 // KKT error of the epoch that ended, under its primal weight.
	Reference    float64 // KKT error at the start of that epoch, under the same weight.
	Capped       bool    // Whether the epoch length cap forced the restart.
	PrimalWeight float64 // Primal weight ω of the new epoch.
}

// restartState is owned by the restart controller.
type restartState struct {
	last    float64 // KKT error at the epoch start, under the current ω
	epoch   int     // iteration at which the current epoch started
	count   int
	primed  bool // whether last holds a value
	history []RestartEvent
}

// weightedKKT combines the residuals of an evaluation with the primal weight:
//
//	E = √(ω²‖rₚ‖² + ‖r𝚍‖²/ω² + gap²)
func weightedKKT(e *evaluation, omega float64) float64 {
	p, d := omega*e.Primal, e.Dual/omega
	return math.Sqrt(p*p + d*d + e.Gap*e.Gap)
}

// maybeRestart applies the adaptive restart rule to the averaged view evaluated as e.
// A restart happens when
//   - E ≤ Ratio × E_last (sufficient decay), or
//   - the epoch has run MaxEpochLength iterations.
//
// The first call only records E. On restart the primal weight is re-estimated
// from the movement since the previous restart, and the kernel resets the
// average (or anchor) to the raw iterate. E_last is then re-scored under the
// new ω, so both sides of the decay test are always measured in one norm.
func (d *iterDriver) maybeRestart(e *evaluation) bool {
	spec := &d.optimizer.iterSpec
	ctx := &d.workspace.iterCtx
	st, rs := &ctx.state, &ctx.restart
	policy := spec.cfg.Restart

	kkt := weightedKKT(e, st.omega)
	if !rs.primed {
		rs.last, rs.primed = kkt, true
		return false
	}

	length := st.iter - rs.epoch
	capped := policy.MaxEpochLength > 0 && length >= policy.MaxEpochLength
	decayed := kkt <= policy.Ratio*rs.last
	if !decayed && !capped {
		return false
	}

	ev := RestartEvent{
		Iter:      st.iter,
		Length:    length,
		KKT:       kkt,
		Reference: rs.last,
		Capped:    !decayed,
	}

	st.omega = nextPrimalWeight(st, policy.PrimalWeightSmoothing)
	spec.kernel.reset(st)

	rs.last = weightedKKT(e, st.omega)
	rs.epoch = st.iter
	rs.count++
	ev.PrimalWeight = st.omega
	rs.history = append(rs.history, ev)

	if log := spec.logger.V(2); log.Enabled() {
		log.Info("restart", "iter", st.iter, "length", length, "kkt", kkt, "capped", ev.Capped, "omega", st.omega)
	}
	return true
}

// nextPrimalWeight smooths ω towards Δy/Δx in log scale:
//
//	ω ← 𝚎𝚡𝚙(θ 𝚕𝚘𝚐(Δy/Δx) + (1-θ) 𝚕𝚘𝚐 ω)
//
// where Δx, Δy are the movements since the previous restart.
func nextPrimalWeight(st *iterState, theta float64) float64 {
	dx := floats.Distance(st.x, st.x0, 2)
	dy := floats.Distance(st.y, st.y0, 2)
	if dx < weightEps || dy < weightEps || math.IsNaN(dx) || math.IsNaN(dy) {
		return st.omega
	}
	w := math.Exp(theta*math.Log(dy/dx) + (one-theta)*math.Log(st.omega))
	if math.IsNaN(w) || math.IsInf(w, 0) || w <= zero {
		return st.omega
	}
	return w
}
