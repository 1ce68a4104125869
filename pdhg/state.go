// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdhg

// iterState is the numeric state advanced by the step kernel, in scaled space.
type iterState struct {
	x, y   []float64 // raw iterate z = (x, y)
	ax, ay []float64 // averaged view: running mean (Averaged) or PDHG output T(z) (Reflected)
	x0, y0 []float64 // iterate at the last restart, the Halpern anchor
	k      int       // iterations in the current epoch
	iter   int       // iterations in total
	omega  float64   // primal weight ω, τ = η/ω and σ = ηω
}

// stepWork holds the scratch vectors of one PDHG application.
type stepWork struct {
	xn, yn []float64 // T(z)
	ktY    []float64 // 𝐊ᵀy
	xe     []float64 // 2x⁺ - x
	kx     []float64 // 𝐊(2x⁺ - x)
}

// iterCtx is the whole mutable context of a solve.
type iterCtx struct {
	state   iterState
	work    stepWork
	restart restartState
	detect  detectState

	status Status
	result *Result
	stats  Stats
}

func (c *iterCtx) init(n, m int) {
	vec := func(k int) []float64 { return make([]float64, k) }
	c.state = iterState{
		x: vec(n), y: vec(m),
		ax: vec(n), ay: vec(m),
		x0: vec(n), y0: vec(m),
	}
	c.work = stepWork{
		xn: vec(n), yn: vec(m),
		ktY: vec(n), xe: vec(n), kx: vec(m),
	}
	c.detect.init(n, m)
}

// clear resets the context before a new run.
func (c *iterCtx) clear() {
	c.state.k, c.state.iter = 0, 0
	c.restart = restartState{}
	c.detect.reset()
	c.status = Running
	c.result = nil
	c.stats = Stats{}
}

// view returns the raw or averaged point of the state.
func (s *iterState) view(averaged bool) (x, y []float64) {
	if averaged {
		return s.ax, s.ay
	}
	return s.x, s.y
}
