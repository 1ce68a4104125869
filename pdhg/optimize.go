// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pdhg solves linear programs with restarted first-order primal-dual
// hybrid gradient methods.
//
// Two fixed-point updates share one state shape and one driver:
//
//   - Averaged: PDHG with extrapolation and a running average of the iterates,
//     restarted adaptively (raPDHG).
//   - Reflected: reflected Halpern PDHG anchored at the last restart point (r2HPDHG).
//
// The problem is equilibrated once, iterated in scaled space, and the result is
// mapped back to the original data. Termination is decided every
// DisplayFrequency iterations from the primal residual, dual residual and duality
// gap, or from primal/dual infeasibility certificates.
//
// # Reference:
//
//   - Applegate et al., Practical large-scale linear programming using primal-dual hybrid gradient (2021)
//   - Lu & Yang, Restarted Halpern PDHG for linear programming (2024)
//   - Lu, Peng & Yang, MPAX: mathematical programming in JAX (2024)
package pdhg

import (
	"fmt"
	"math"

	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/pdhg/lp"
)

const (
	zero = 0.0
	one  = 1.0
	two  = 2.0

	// movements below this size do not update the primal weight
	weightEps = 1e-10
)

// Residuals holds the optimality measures of an iterate in original units.
type Residuals struct {
	Primal    float64 `yaml:"primal"`     // ‖(𝐀x-𝐛, (𝐡-𝐆x)⁺, bound violation)‖₂
	Dual      float64 `yaml:"dual"`       // ‖(λ - 𝚙𝚛𝚘𝚓 λ, y⁻)‖₂
	Gap       float64 `yaml:"gap"`        // |pobj - dobj|
	RelPrimal float64 `yaml:"rel_primal"` // Primal / (1 + ‖𝐪‖₂)
	RelDual   float64 `yaml:"rel_dual"`   // Dual / (1 + ‖𝐜‖₂)
	RelGap    float64 `yaml:"rel_gap"`    // Gap / (1 + |pobj| + |dobj|)
}

// Certificate is the normalized ray that proves infeasibility.
// For PrimalInfeasible it is a dual ray of length m, for DualInfeasible a primal ray of length n.
type Certificate struct {
	Ray       []float64 `yaml:"ray"`
	Objective float64   `yaml:"objective"` // qᵀw + bound terms (dual ray) or cᵀd (primal ray)
}

// Result contains the final result of a solve, in original (unscaled) units.
type Result struct {
	OK              bool         `yaml:"ok"`              // Whether the solve reached Optimal.
	X               []float64    `yaml:"x"`               // Primal solution.
	Y               []float64    `yaml:"y"`               // Dual solution, equality rows first.
	ReducedCost     []float64    `yaml:"reduced_cost"`    // λ = 𝐜 - 𝐊ᵀy
	PrimalObjective float64      `yaml:"primal_objective"` // cᵀx + offset
	DualObjective   float64      `yaml:"dual_objective"`
	Residuals       Residuals    `yaml:"residuals"`
	Certificate     *Certificate `yaml:"certificate,omitempty"`
	Summary         `yaml:",inline"`
}

// Summary contains a summary of the solve.
type Summary struct {
	Status      Status `yaml:"status"`      // Terminal status.
	NumIter     int    `yaml:"iterations"`  // Iteration at which the status was reached.
	Restarts    int    `yaml:"restarts"`    // Restarts performed before the status was reached.
	Evaluations int    `yaml:"evaluations"` // Termination checks performed.
	Averaged    bool   `yaml:"averaged"`    // Whether the reported point is the averaged (anchored) view.
}

// Stats counts the work done by a workspace, including iterations run past the
// terminal status in unrolled mode.
type Stats struct {
	Steps       int
	MatVecs     int
	Evaluations int
}

// iterSpec is the immutable part of a solve.
type iterSpec struct {
	n, m, meq int
	cfg       Config

	orig   *lp.Problem
	origOp *lp.Operator
	lower  []float64
	upper  []float64
	q      []float64 // [𝐛; 𝐡]
	qNorm  float64
	cNorm  float64

	scaled *lp.Scaled
	sc     []float64
	sq     []float64
	sLower []float64
	sUpper []float64

	eta    float64 // step size η
	omega0 float64 // initial primal weight

	kernel stepKernel
	logger logr.Logger
}

// Optimizer solves one linear program with a restarted PDHG method.
// It is immutable and may be shared by several workspaces.
type Optimizer struct {
	iterSpec
}

// New validates the problem and the configuration, scales the problem and
// prepares the step kernel. The logger may be the zero value.
func New(p *lp.Problem, cfg Config, logger logr.Logger) (optimizer *Optimizer, err error) {

	if p == nil {
		return nil, fmt.Errorf("%w: nil problem", lp.ErrDimension)
	}
	if err = p.Validate(); err != nil {
		return
	}
	if err = cfg.Validate(); err != nil {
		return
	}
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	orig := p.Clone()
	s := &iterSpec{
		n: orig.N(), m: orig.MEq() + orig.MIneq(), meq: orig.MEq(),
		cfg:    cfg,
		orig:   orig,
		origOp: lp.NewOperator(orig),
		logger: logger,
	}
	s.lower, s.upper = orig.Bounds()
	s.q = append(append(make([]float64, 0, s.m), orig.B...), orig.H...)
	s.qNorm = floats.Norm(s.q, 2)
	s.cNorm = floats.Norm(orig.C, 2)

	s.scaled = lp.Scale(orig, cfg.Scaling)
	sp := s.scaled.Problem
	s.sc = sp.C
	s.sq = append(append(make([]float64, 0, s.m), sp.B...), sp.H...)
	s.sLower, s.sUpper = sp.Lower, sp.Upper

	// Norm only returns zero when 𝐊̃ has no non-zero entry.
	if nrm := s.scaled.Op.Norm(cfg.PowerIterations); nrm > zero {
		s.eta = cfg.StepSizeFactor / nrm
	} else {
		s.eta = one
	}
	s.omega0 = one
	if cn, qn := floats.Norm(s.sc, 2), floats.Norm(s.sq, 2); cn > weightEps && qn > weightEps {
		s.omega0 = cn / qn
	}
	if math.IsNaN(s.eta) || math.IsInf(s.eta, 0) {
		return nil, fmt.Errorf("%w: step size is not finite", ErrConfig)
	}

	switch cfg.Variant {
	case Reflected:
		s.kernel = reflectedKernel{rho: cfg.Reflection}
	default:
		s.kernel = averagedKernel{}
	}

	return &Optimizer{*s}, nil
}

// Workspace contains the mutable state of one solve.
// Given n variables and m constraint rows the workspace holds about float64[10×n + 10×m].
type Workspace struct {
	n, m int
	iterCtx
}

// Init allocates a workspace for the optimizer.
// To avoid race conditions, separate workspaces need to be created for each goroutine.
// But multiple workspaces could share one optimizer.
func (o *Optimizer) Init() *Workspace {
	w := new(Workspace)
	w.n, w.m = o.n, o.m
	w.init(w.n, w.m)
	return w
}

// Stats returns the work counters of the last run.
func (w *Workspace) Stats() Stats { return w.stats }

// RestartHistory returns the restart events of the last run.
func (w *Workspace) RestartHistory() []RestartEvent {
	return append([]RestartEvent(nil), w.restart.history...)
}

// Fit runs the solver from the warm start (x0, y0) given in original units.
// A nil x0 or y0 starts from zero. The start is projected onto the bounds and
// onto the non-negative inequality multipliers.
func (o *Optimizer) Fit(x0, y0 []float64, w *Workspace) *Result {

	if x0 != nil && len(x0) != o.n {
		panic("initial x dimension not match optimizer")
	}
	if y0 != nil && len(y0) != o.m {
		panic("initial y dimension not match optimizer")
	}
	if w.n != o.n || w.m != o.m {
		panic("workspace dimension not match optimizer")
	}

	d := iterDriver{optimizer: o, workspace: w}
	d.start(x0, y0)
	d.runUntil(o.cfg.IterationLimit)
	d.printExit()
	return d.result()
}

// Solve is a shorthand for New, Init and Fit from zero.
func Solve(p *lp.Problem, cfg Config, logger logr.Logger) (*Result, error) {
	o, err := New(p, cfg, logger)
	if err != nil {
		return nil, err
	}
	return o.Fit(nil, nil, o.Init()), nil
}
