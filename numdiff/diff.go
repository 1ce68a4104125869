// Package numdiff estimates the sensitivity of an LP optimal value to the
// problem data by finite differences of complete solves.
//
// The solver is treated as a pure function from problem to optimal objective;
// no gradient information is requested from it.
package numdiff

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-logr/logr"

	"github.com/curioloop/pdhg/lp"
	"github.com/curioloop/pdhg/pdhg"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

// ErrNotOptimal is returned when a perturbed solve does not reach optimality.
var ErrNotOptimal = errors.New("numdiff: solve did not reach optimality")

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use central difference in interior points and the second order accuracy
	// forward or backward difference near the boundary.
	Central
)

// Param selects the block of problem data that is perturbed.
type Param int

const (
	Cost       Param = iota // 𝐜
	EqRHS                   // 𝐛
	IneqRHS                 // 𝐡
	LowerBound              // 𝐥, kept ≤ 𝐮
	UpperBound              // 𝐮, kept ≥ 𝐥
)

// Objective maps a problem to its optimal value.
type Objective func(p *lp.Problem) (float64, error)

// Bound is the admissible range [lower, upper] of one parameter.
type Bound [2]float64

// ApproxSpec estimates ∂f*/∂θ for every entry θ of one data block.
// Entries that are infinite (absent bounds) get a zero derivative.
type ApproxSpec struct {
	// Block of data to differentiate against.
	Param Param
	// Optimal value as a function of the problem.
	Object Objective
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute absolute step size.
	// The default absolute step size is computed as h = RelStep * sign(θ) * max(1, abs(θ)) with RelStep being selected automatically.
	// Otherwise, absolute step size is computed as h = RelStep * sign(θ) * abs(θ) when RelStep is provided.
	RelStep float64
	// Absolute step size to use, possibly adjusted to keep lower ≤ upper.
	// The RelStep is used when AbsStep is not provide.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
	approxCtx
}

type approxCtx struct {
	work    *lp.Problem
	theta   []float64
	bounds  []Bound
	absStep []float64
	oneSide []bool
}

// PDHGObjective returns an Objective that solves with the given configuration
// and fails unless the solve is optimal.
func PDHGObjective(cfg pdhg.Config, logger logr.Logger) Objective {
	return func(p *lp.Problem) (float64, error) {
		r, err := pdhg.Solve(p, cfg, logger)
		if err != nil {
			return math.NaN(), err
		}
		if r.Status != pdhg.Optimal {
			return math.NaN(), fmt.Errorf("%w: %v", ErrNotOptimal, r.Status)
		}
		return r.PrimalObjective, nil
	}
}

// Check validates the parameters and prepares a private copy of p to perturb.
func (as *ApproxSpec) Check(p *lp.Problem, diff []float64) (err error) {

	switch {
	case p == nil:
		return errors.New("problem is required")
	case as.Method != Forward && as.Method != Central:
		return errors.New("unknown method")
	case as.Object == nil:
		return errors.New("object function is required")
	case as.Param < Cost || as.Param > UpperBound:
		return errors.New("unknown parameter block")
	}
	if err = p.Validate(); err != nil {
		return
	}

	work := p.Clone()
	work.Lower, work.Upper = p.Bounds()

	var theta []float64
	switch as.Param {
	case Cost:
		theta = work.C
	case EqRHS:
		theta = work.B
	case IneqRHS:
		theta = work.H
	case LowerBound:
		theta = work.Lower
	case UpperBound:
		theta = work.Upper
	}
	if len(theta) != len(diff) {
		return errors.New("invalid diff dimensions")
	}

	n := len(theta)
	as.work, as.theta = work, theta
	as.bounds = make([]Bound, n)
	for i := range as.bounds {
		as.bounds[i] = Bound{math.Inf(-1), math.Inf(1)}
		switch as.Param {
		case LowerBound:
			as.bounds[i][1] = work.Upper[i]
		case UpperBound:
			as.bounds[i][0] = work.Lower[i]
		}
	}
	if len(as.absStep) != n {
		as.absStep = make([]float64, n)
	}
	if len(as.oneSide) != n*int(as.Method) {
		as.oneSide = make([]bool, n*int(as.Method))
	}
	return
}

// Diff calculates the derivatives of the optimal value by finite differences.
func (as *ApproxSpec) Diff(p *lp.Problem, diff []float64) error {

	if err := as.Check(p, diff); err != nil {
		return err
	}

	bnd := as.Param == LowerBound || as.Param == UpperBound

	as.absoluteStep(as.theta)
	as.adjustToBounds(as.theta, bnd)

	if as.Method == Central {
		return as.approxCentral(as.theta, diff)
	}
	return as.approxForward(as.theta, diff)
}

func (as *ApproxSpec) adjustToBounds(x0 []float64, bnd bool) {
	h, o := as.absStep, as.oneSide
	if as.Method == Central {
		for i, v := range h {
			h[i] = math.Abs(v)
		}
		for i := range o {
			o[i] = false
		}
	}

	if !bnd {
		return
	}

	b := as.bounds
	if len(x0) != len(b) || len(x0) != len(h) {
		panic("bound check error")
	}

	if as.Method == Forward {
		for i, x0 := range x0 {
			lb, ub := b[i][0], b[i][1]
			ld, ud := x0-lb, ub-x0
			h0 := h[i]
			x := x0 + h0
			violated := x < lb || x > ub
			fitting := math.Abs(h[i]) < math.Max(ld, ud)
			if violated && fitting {
				h[i] = -h0
			} else if !fitting {
				if ud >= ld {
					h[i] = ud
				} else {
					h[i] = -ld
				}
			}
		}
		return
	}

	if len(x0) != len(o) {
		panic("bound check error")
	}
	for i, x0 := range x0 {
		lb, ub := b[i][0], b[i][1]
		ld, ud := x0-lb, ub-x0
		central := ld >= h[i] && ud >= h[i]
		if !central {
			if ud >= ld {
				h[i] = math.Min(h[i], 0.5*ud)
			} else {
				h[i] = -math.Min(h[i], 0.5*ld)
			}
			o[i] = true
		}
		minDist := math.Min(ud, ld)
		if !central && math.Abs(h[i]) <= minDist {
			h[i] = minDist
			o[i] = false
		}
	}
}

func (as *ApproxSpec) absoluteStep(x0 []float64) {
	h := as.absStep
	if len(h) != len(x0) {
		panic("bound check error")
	}

	var eps float64
	switch as.Method {
	case Forward:
		eps = sqrtEps
	case Central:
		eps = cubeEps
	default:
		panic("unknown method")
	}

	abs, rel := as.AbsStep, as.RelStep
	for i, v := range x0 {
		if math.IsInf(v, 0) {
			h[i] = 0
			continue
		}
		if abs == 0 && rel == 0 {
			h[i] = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
			continue
		}
		s := abs
		if s == 0 {
			s = math.Copysign(rel, v) * math.Abs(v)
		}
		if (v+s)-v == 0 {
			s = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
		h[i] = s
	}
}

// eval solves the working problem, tagging failures with the perturbed index.
func (as *ApproxSpec) eval(i int) (float64, error) {
	f, err := as.Object(as.work)
	if err != nil {
		if i < 0 {
			return f, fmt.Errorf("unperturbed solve: %w", err)
		}
		return f, fmt.Errorf("perturbation of entry %d: %w", i, err)
	}
	return f, nil
}

func (as *ApproxSpec) approxForward(x0, df []float64) error {

	h := as.absStep
	if len(h) != len(x0) || len(df) != len(x0) {
		panic("bound check error")
	}

	f0, err := as.eval(-1)
	if err != nil {
		return err
	}
	for i, s := range h {
		if s == 0 {
			df[i] = 0
			continue
		}
		t := x0[i]
		x0[i] = t + s
		fx, err := as.eval(i)
		x0[i] = t
		if err != nil {
			return err
		}
		df[i] = (fx - f0) / s
	}
	return nil
}

func (as *ApproxSpec) approxCentral(x0, df []float64) error {

	h, o := as.absStep, as.oneSide
	if len(h) != len(x0) || len(h) != len(o) || len(df) != len(x0) {
		panic("bound check error")
	}

	f0, err := as.eval(-1)
	if err != nil {
		return err
	}
	for i, s := range h {
		if s == 0 {
			df[i] = 0
			continue
		}
		x := x0[i]
		d := 1.0 / (2 * s)
		var f1, f2 float64
		if o[i] {
			x0[i] = x + s
			if f1, err = as.eval(i); err == nil {
				x0[i] = x + 2*s
				f2, err = as.eval(i)
			}
			df[i] = (4*f1 - 3*f0 - f2) * d
		} else {
			x0[i] = x - s
			if f1, err = as.eval(i); err == nil {
				x0[i] = x + s
				f2, err = as.eval(i)
			}
			df[i] = (f2 - f1) * d
		}
		x0[i] = x
		if err != nil {
			return err
		}
	}
	return nil
}
