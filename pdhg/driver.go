// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdhg

import (
	"math"
	"slices"
)

// iterDriver orchestrates step kernel, termination detector and restart
// controller over one workspace.
type iterDriver struct {
	optimizer *Optimizer
	workspace *Workspace
}

// start builds the initial iterate from the warm start and resets every counter.
func (d *iterDriver) start(x0, y0 []float64) {
	spec := &d.optimizer.iterSpec
	ctx := &d.workspace.iterCtx
	st := &ctx.state

	ctx.clear()
	st.omega = spec.omega0

	if x0 != nil {
		spec.scaled.ScalePrimal(st.x, x0)
	} else {
		clear(st.x)
	}
	for i, v := range st.x {
		st.x[i] = math.Max(spec.sLower[i], math.Min(spec.sUpper[i], v))
	}
	if y0 != nil {
		spec.scaled.ScaleDual(st.y, y0)
	} else {
		clear(st.y)
	}
	for j := spec.meq; j < spec.m; j++ {
		st.y[j] = math.Max(st.y[j], zero)
	}

	copy(st.ax, st.x)
	copy(st.ay, st.y)
	copy(st.x0, st.x)
	copy(st.y0, st.y)

	det := &ctx.detect
	det.remember(st)
	copy(det.lx, st.x)
	copy(det.ly, st.y)
	det.lAveraged, det.lValid = false, true

	d.printInit()

	if spec.cfg.IterationLimit == 0 {
		d.check()
	}
}

// runUntil advances the state until the iteration counter reaches stop.
// In the dynamic shape it returns as soon as a terminal status is known; in the
// unrolled shape it keeps stepping without further evaluation.
func (d *iterDriver) runUntil(stop int) {
	spec := &d.optimizer.iterSpec
	ctx := &d.workspace.iterCtx
	st := &ctx.state

	limit, freq := spec.cfg.IterationLimit, spec.cfg.DisplayFrequency
	stop = min(stop, limit)

	for st.iter < stop {
		if ctx.status.Terminal() && !spec.cfg.Unroll {
			return
		}
		d.step()
		if ctx.status == Running && (st.iter%freq == 0 || st.iter == limit) {
			d.check()
		}
	}
}

// done reports whether the dynamic shape would stop here.
func (d *iterDriver) done() bool {
	ctx := &d.workspace.iterCtx
	return ctx.status.Terminal() || ctx.state.iter >= d.optimizer.cfg.IterationLimit
}

// step advances the kernel by one iteration with the epoch's fixed step sizes.
func (d *iterDriver) step() {
	spec := &d.optimizer.iterSpec
	ctx := &d.workspace.iterCtx
	st := &ctx.state

	mv := spec.kernel.advance(st, spec, spec.stepSizes(st), &ctx.work)
	st.iter++
	ctx.stats.Steps++
	ctx.stats.MatVecs += mv
}

// check runs the termination detector on the raw and averaged views, then the
// restart controller when the solve goes on.
func (d *iterDriver) check() {
	spec := &d.optimizer.iterSpec
	ctx := &d.workspace.iterCtx
	st, det := &ctx.state, &ctx.detect

	ctx.stats.Evaluations++
	raw := det.evaluate(spec, st.x, st.y)
	avg := det.evaluate(spec, st.ax, st.ay)

	status := Running
	averaged := false
	var cert *Certificate

	switch {
	case !raw.finite || !avg.finite:
		status = NumericalError
	case raw.converged || avg.converged:
		status = Optimal
		averaged = !raw.converged || avg.kkt() < raw.kkt()
	default:
		status, cert = d.certify()
		averaged = avg.kkt() < raw.kkt()
	}

	switch {
	case spec.cfg.IterationLimit == 0 && status != NumericalError:
		// nothing was iterated, report the initial point as is
		status, cert = IterationLimit, nil
	case status == Running && st.iter >= spec.cfg.IterationLimit:
		status = IterationLimit
	}

	if status != NumericalError {
		x, y := st.view(averaged)
		copy(det.lx, x)
		copy(det.ly, y)
		det.lAveraged, det.lValid = averaged, true
	}

	d.printIter(&raw, &avg)

	if status == Running {
		d.maybeRestart(&avg)
	}
	det.remember(st)

	if status.Terminal() {
		ctx.status = status
		ctx.result = d.snapshot(status, cert)
	}
}

// certify looks for infeasibility certificates along the movement of the raw
// and the averaged iterate since the previous evaluation.
func (d *iterDriver) certify() (Status, *Certificate) {
	spec := &d.optimizer.iterSpec
	ctx := &d.workspace.iterCtx
	st, det, wrk := &ctx.state, &ctx.detect, &ctx.work

	dx, dy := wrk.xe, wrk.kx
	pairs := [...][4][]float64{
		{st.x, det.px, st.y, det.py},
		{st.ax, det.pax, st.ay, det.pay},
	}
	for _, p := range pairs {
		for i := range dx {
			dx[i] = p[0][i] - p[1][i]
		}
		for j := range dy {
			dy[j] = p[2][j] - p[3][j]
		}
		if ok, obj := det.primalInfeasible(spec, dy); ok {
			return PrimalInfeasible, &Certificate{Ray: slices.Clone(det.ry), Objective: obj}
		}
		if ok, obj := det.dualInfeasible(spec, dx); ok {
			return DualInfeasible, &Certificate{Ray: slices.Clone(det.rx), Objective: obj}
		}
	}
	return Running, nil
}

// snapshot builds the result from the last finite point chosen by check.
func (d *iterDriver) snapshot(status Status, cert *Certificate) *Result {
	spec := &d.optimizer.iterSpec
	ctx := &d.workspace.iterCtx
	det := &ctx.detect

	e := det.evaluate(spec, det.lx, det.ly)
	return &Result{
		OK:              status == Optimal,
		X:               slices.Clone(det.ux),
		Y:               slices.Clone(det.uy),
		ReducedCost:     slices.Clone(det.lam),
		PrimalObjective: e.pObj,
		DualObjective:   e.dObj,
		Residuals:       e.Residuals,
		Certificate:     cert,
		Summary: Summary{
			Status:      status,
			NumIter:     ctx.state.iter,
			Restarts:    ctx.restart.count,
			Evaluations: ctx.stats.Evaluations,
			Averaged:    det.lAveraged,
		},
	}
}

// result returns the frozen result of the run.
func (d *iterDriver) result() *Result {
	return d.workspace.result
}

func (d *iterDriver) printInit() {
	spec := &d.optimizer.iterSpec
	if log := spec.logger.V(0); log.Enabled() {
		log.Info("pdhg start",
			"variant", spec.cfg.Variant, "n", spec.n, "m", spec.m,
			"eta", spec.eta, "omega", spec.omega0,
			"iteration_limit", spec.cfg.IterationLimit, "unroll", spec.cfg.Unroll)
	}
}

func (d *iterDriver) printIter(raw, avg *evaluation) {
	spec := &d.optimizer.iterSpec
	ctx := &d.workspace.iterCtx
	if log := spec.logger.V(1); log.Enabled() {
		log.Info("iterate",
			"iter", ctx.state.iter,
			"pobj", avg.pObj, "dobj", avg.dObj,
			"rel_primal", raw.RelPrimal, "rel_dual", raw.RelDual, "rel_gap", raw.RelGap,
			"avg_rel_primal", avg.RelPrimal, "avg_rel_dual", avg.RelDual, "avg_rel_gap", avg.RelGap,
			"restarts", ctx.restart.count, "omega", ctx.state.omega)
	}
}

func (d *iterDriver) printExit() {
	spec := &d.optimizer.iterSpec
	ctx := &d.workspace.iterCtx
	log := spec.logger.V(0)
	if !log.Enabled() || ctx.result == nil {
		return
	}

	var msg string
	switch ctx.status {
	case Optimal:
		msg = "CONVERGENCE: KKT RESIDUALS WITHIN TOLERANCE"
	case IterationLimit:
		msg = "STOP: TOTAL NO. of ITERATIONS REACHED LIMIT"
	case PrimalInfeasible:
		msg = "INFEASIBLE: FARKAS CERTIFICATE FOUND FOR THE PRIMAL"
	case DualInfeasible:
		msg = "UNBOUNDED: RECESSION RAY FOUND FOR THE PRIMAL"
	case NumericalError:
		msg = "ABNORMAL: NON-FINITE ITERATE OR RESIDUAL"
	default:
		msg = "UNKNOWN STATUS"
	}

	r := ctx.result
	log.Info(msg,
		"status", r.Status, "iter", r.NumIter, "steps", ctx.stats.Steps,
		"pobj", r.PrimalObjective, "dobj", r.DualObjective,
		"primal", r.Residuals.Primal, "dual", r.Residuals.Dual, "gap", r.Residuals.Gap,
		"restarts", r.Restarts, "matvecs", ctx.stats.MatVecs)
}
