// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdhg

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	simplex "gonum.org/v1/gonum/optimize/convex/lp"
	"gopkg.in/yaml.v3"

	"github.com/curioloop/pdhg/internal/logging"
	"github.com/curioloop/pdhg/lp"
)

var variants = []Variant{Averaged, Reflected}

// min x s.t. x ≥ 1, 0 ≤ x ≤ 5
func lowerBoundLP() *lp.Problem {
	return &lp.Problem{
		C:     []float64{1},
		G:     mat.NewDense(1, 1, []float64{1}),
		H:     []float64{1},
		Lower: []float64{0},
		Upper: []float64{5},
	}
}

// min -x₁ - 2x₂ s.t.
//
//	x₁ - x₂ + x₃ = 1
//	x₁ + x₂ ≤ 4
//	x₁ + 3x₂ ≤ 6
//	0 ≤ x₁ ≤ 3, 0 ≤ x₂, 0 ≤ x₃ ≤ 10
//
// with the unique solution (2.25, 1.25, 0).
func mixedLP() *lp.Problem {
	inf := math.Inf(1)
	return &lp.Problem{
		C:      []float64{-1, -2, 0},
		Offset: 0.5,
		A:      mat.NewDense(1, 3, []float64{1, -1, 1}),
		B:      []float64{1},
		G: mat.NewDense(2, 3, []float64{
			-1, -1, 0,
			-1, -3, 0,
		}),
		H:     []float64{-4, -6},
		Lower: []float64{0, 0, 0},
		Upper: []float64{3, inf, 10},
	}
}

// x ≥ 2 under x ≤ 1
func infeasibleLP() *lp.Problem {
	return &lp.Problem{
		C:     []float64{1},
		G:     mat.NewDense(1, 1, []float64{1}),
		H:     []float64{2},
		Lower: []float64{0},
		Upper: []float64{1},
	}
}

// min -x s.t. x ≥ 0
func unboundedLP() *lp.Problem {
	return &lp.Problem{
		C:     []float64{-1},
		G:     mat.NewDense(1, 1, []float64{1}),
		H:     []float64{0},
		Lower: []float64{0},
	}
}

func tightConfig(v Variant) Config {
	cfg := DefaultConfig()
	cfg.Variant = v
	cfg.EpsAbs, cfg.EpsRel = 1e-8, 1e-8
	return cfg
}

// oracle solves p with the simplex method after rewriting it as
// min cᵀx s.t. G'x ≤ h', Ax = b, bounds included as rows.
func oracle(t *testing.T, p *lp.Problem) (float64, []float64) {
	t.Helper()
	n := p.N()
	var rows [][]float64
	var rhs []float64
	for i := 0; i < p.MIneq(); i++ {
		r := make([]float64, n)
		for j := range r {
			r[j] = -p.G.At(i, j)
		}
		rows, rhs = append(rows, r), append(rhs, -p.H[i])
	}
	for j := 0; j < n; j++ {
		if l := p.LowerAt(j); !math.IsInf(l, -1) {
			r := make([]float64, n)
			r[j] = -1
			rows, rhs = append(rows, r), append(rhs, -l)
		}
		if u := p.UpperAt(j); !math.IsInf(u, 1) {
			r := make([]float64, n)
			r[j] = 1
			rows, rhs = append(rows, r), append(rhs, u)
		}
	}
	g := mat.NewDense(len(rows), n, nil)
	for i, r := range rows {
		g.SetRow(i, r)
	}
	c, a, b := simplex.Convert(p.C, g, rhs, p.A, p.B)
	f, x, err := simplex.Simplex(c, a, b, 1e-10, nil)
	require.NoError(t, err)
	// Convert splits every free variable into x⁺ - x⁻
	sol := make([]float64, n)
	for j := range sol {
		sol[j] = x[j] - x[n+j]
	}
	return f + p.Offset, sol
}

func TestOptimal(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			r, err := Solve(lowerBoundLP(), tightConfig(v), logr.Discard())
			require.NoError(t, err)
			require.Equal(t, Optimal, r.Status)
			assert.True(t, r.OK)
			assert.InDelta(t, 1, r.PrimalObjective, 1e-6)
			assert.InDelta(t, 1, r.DualObjective, 1e-6)
			assert.InDelta(t, 1, r.X[0], 1e-6)
			assert.InDelta(t, 1, r.Y[0], 1e-6)
			assert.InDelta(t, 0, r.ReducedCost[0], 1e-6)
			assert.Nil(t, r.Certificate)
			assert.Positive(t, r.NumIter)
			assert.Zero(t, r.NumIter%DefaultConfig().DisplayFrequency)
		})
	}
}

func TestAgainstSimplex(t *testing.T) {
	p := mixedLP()
	want, wantX := oracle(t, p)
	require.InDelta(t, -4.25, want, 1e-9)

	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			r, err := Solve(p, tightConfig(v), logr.Discard())
			require.NoError(t, err)
			require.Equal(t, Optimal, r.Status)
			assert.InDelta(t, want, r.PrimalObjective, 1e-5)
			assert.InDelta(t, want, r.DualObjective, 1e-5)
			assert.InDeltaSlice(t, wantX, r.X, 1e-4)
			assert.LessOrEqual(t, r.Residuals.Primal, 1e-7)
			assert.LessOrEqual(t, r.Residuals.Dual, 1e-7)
			for j := p.MEq(); j < len(r.Y); j++ {
				assert.GreaterOrEqual(t, r.Y[j], 0.0)
			}
		})
	}
}

func TestPrimalInfeasible(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Variant = v
			r, err := Solve(infeasibleLP(), cfg, logr.Discard())
			require.NoError(t, err)
			require.Equal(t, PrimalInfeasible, r.Status)
			assert.False(t, r.OK)
			require.NotNil(t, r.Certificate)
			require.Len(t, r.Certificate.Ray, 1)
			assert.Positive(t, r.Certificate.Ray[0])
			assert.Positive(t, r.Certificate.Objective)
		})
	}
}

func TestDualInfeasible(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Variant = v
			r, err := Solve(unboundedLP(), cfg, logr.Discard())
			require.NoError(t, err)
			require.Equal(t, DualInfeasible, r.Status)
			require.NotNil(t, r.Certificate)
			require.Len(t, r.Certificate.Ray, 1)
			assert.InDelta(t, 1, r.Certificate.Ray[0], 1e-12)
			assert.Negative(t, r.Certificate.Objective)
		})
	}
}

func TestZeroIterations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IterationLimit = 0

	o, err := New(lowerBoundLP(), cfg, logr.Discard())
	require.NoError(t, err)
	w := o.Init()
	r := o.Fit([]float64{7}, []float64{-3}, w)

	require.Equal(t, IterationLimit, r.Status)
	assert.Zero(t, r.NumIter)
	assert.Equal(t, 1, r.Evaluations)
	assert.InDelta(t, 5, r.X[0], 1e-12)
	assert.Zero(t, r.Y[0])
	assert.InDelta(t, 5, r.Residuals.Gap, 1e-12)
	assert.Zero(t, w.Stats().Steps)

	// an optimal start is still reported as the initial point
	r = o.Fit([]float64{1}, []float64{1}, w)
	assert.Equal(t, IterationLimit, r.Status)
	assert.Nil(t, r.Certificate)
}

func TestIterationLimit(t *testing.T) {
	cfg := tightConfig(Averaged)
	cfg.IterationLimit = 10
	cfg.DisplayFrequency = 4

	r, err := Solve(mixedLP(), cfg, logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, IterationLimit, r.Status)
	assert.Equal(t, 10, r.NumIter)
	assert.Equal(t, 3, r.Evaluations)
}

func TestUnrollMatchesDynamic(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			cfg := tightConfig(v)
			cfg.IterationLimit = 20000

			o, err := New(lowerBoundLP(), cfg, logr.Discard())
			require.NoError(t, err)
			dyn := o.Fit(nil, nil, o.Init())
			require.Equal(t, Optimal, dyn.Status)

			cfg.Unroll = true
			ou, err := New(lowerBoundLP(), cfg, logr.Discard())
			require.NoError(t, err)
			w := ou.Init()
			unr := ou.Fit(nil, nil, w)

			assert.Equal(t, dyn, unr)
			assert.Equal(t, cfg.IterationLimit, w.Stats().Steps)
			assert.Equal(t, 2*cfg.IterationLimit, w.Stats().MatVecs)
		})
	}
}

func TestRestartDecay(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			cfg := tightConfig(v)
			cfg.DisplayFrequency = 8
			cfg.Restart.MaxEpochLength = 200

			o, err := New(mixedLP(), cfg, logr.Discard())
			require.NoError(t, err)
			w := o.Init()
			r := o.Fit(nil, nil, w)
			require.Equal(t, Optimal, r.Status)

			events := w.RestartHistory()
			require.NotEmpty(t, events)
			assert.Len(t, events, r.Restarts)
			epoch := 0
			for i, ev := range events {
				assert.Greater(t, ev.Iter, epoch)
				assert.Equal(t, ev.Iter-epoch, ev.Length)
				assert.Zero(t, ev.Iter%cfg.DisplayFrequency)
				assert.True(t, ev.Capped || ev.KKT <= cfg.Restart.Ratio*ev.Reference,
					"restart %d: kkt %g after %g", i, ev.KKT, ev.Reference)
				assert.Positive(t, ev.PrimalWeight)
				epoch = ev.Iter
			}
		})
	}
}

func TestRestartEpochCap(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			cfg := tightConfig(v)
			cfg.IterationLimit = 400
			cfg.DisplayFrequency = 8
			cfg.Restart.MaxEpochLength = 8

			o, err := New(mixedLP(), cfg, logr.Discard())
			require.NoError(t, err)
			w := o.Init()
			o.Fit(nil, nil, w)

			// the first evaluation at iteration 8 only primes the reference,
			// every later one ends an epoch of at least 8 iterations
			events := w.RestartHistory()
			require.NotEmpty(t, events)
			assert.Equal(t, 16, events[0].Iter)
			assert.Equal(t, 16, events[0].Length)
			for i, ev := range events[1:] {
				assert.Equal(t, events[i].Iter+8, ev.Iter)
				assert.Equal(t, 8, ev.Length)
			}
			for _, ev := range events {
				assert.Equal(t, ev.KKT > cfg.Restart.Ratio*ev.Reference, ev.Capped)
			}
		})
	}
}

func TestCappedRestart(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Variant = v
			cfg.Restart.MaxEpochLength = 16
			o, err := New(lowerBoundLP(), cfg, logr.Discard())
			require.NoError(t, err)
			w := o.Init()
			d := iterDriver{optimizer: o, workspace: w}
			d.start(nil, nil)

			e := evaluation{Residuals: Residuals{Primal: 1, Dual: 1, Gap: 1}}
			require.False(t, d.maybeRestart(&e), "first evaluation primes the reference")
			omega := w.state.omega
			require.InDelta(t, weightedKKT(&e, omega), w.restart.last, 1e-15)

			// no decay within the epoch
			w.state.iter, w.state.k = 15, 15
			assert.False(t, d.maybeRestart(&e))

			// Δx = 1, Δy = 4 since the epoch start
			w.state.iter, w.state.k = 16, 16
			w.state.x[0], w.state.x0[0] = 1, 0
			w.state.y[0], w.state.y0[0] = 4, 0
			require.True(t, d.maybeRestart(&e))

			require.Len(t, w.restart.history, 1)
			ev := w.restart.history[0]
			assert.True(t, ev.Capped)
			assert.Equal(t, 16, ev.Length)
			assert.Greater(t, ev.KKT, cfg.Restart.Ratio*ev.Reference)
			assert.Zero(t, w.state.k)
			assert.Equal(t, 16, w.restart.epoch)

			theta := cfg.Restart.PrimalWeightSmoothing
			want := math.Exp(theta*math.Log(4) + (1-theta)*math.Log(omega))
			assert.InDelta(t, want, w.state.omega, 1e-12)
			assert.Equal(t, w.state.omega, ev.PrimalWeight)

			// the reference is re-scored under the new weight
			assert.InDelta(t, weightedKKT(&e, w.state.omega), w.restart.last, 1e-15)
			w.state.iter = 24
			assert.False(t, d.maybeRestart(&e))
		})
	}
}

// min Σx s.t. x₁-x₂ = 1, x₂-x₃ = 1, x₃-x₄ = 1, x ≥ 0
// with the unique solution (3, 2, 1, 0). Every row of 𝐀 sums to zero.
func chainLP() *lp.Problem {
	return &lp.Problem{
		C: []float64{1, 1, 1, 1},
		A: mat.NewDense(3, 4, []float64{
			1, -1, 0, 0,
			0, 1, -1, 0,
			0, 0, 1, -1,
		}),
		B:     []float64{1, 1, 1},
		Lower: []float64{0, 0, 0, 0},
	}
}

func TestZeroRowSumOperator(t *testing.T) {
	for _, v := range variants {
		for _, pc := range []bool{true, false} {
			t.Run(fmt.Sprintf("%s/pock_chambolle=%t", v, pc), func(t *testing.T) {
				cfg := tightConfig(v)
				cfg.Scaling.PockChambolle = pc

				o, err := New(chainLP(), cfg, logr.Discard())
				require.NoError(t, err)
				var sv mat.SVD
				require.True(t, sv.Factorize(o.scaled.Op.K, mat.SVDNone))
				assert.InDelta(t, cfg.StepSizeFactor, o.eta*sv.Values(nil)[0], 1e-6)

				r := o.Fit(nil, nil, o.Init())
				require.Equal(t, Optimal, r.Status)
				assert.InDelta(t, 6, r.PrimalObjective, 1e-3)
				assert.InDeltaSlice(t, []float64{3, 2, 1, 0}, r.X, 1e-3)
			})
		}
	}
}

func TestWarmStart(t *testing.T) {
	cfg := tightConfig(Averaged)
	o, err := New(mixedLP(), cfg, logr.Discard())
	require.NoError(t, err)
	w := o.Init()

	cold := o.Fit(nil, nil, w)
	require.Equal(t, Optimal, cold.Status)

	warm := o.Fit(cold.X, cold.Y, w)
	require.Equal(t, Optimal, warm.Status)
	assert.LessOrEqual(t, warm.NumIter, cold.NumIter)
	assert.InDelta(t, cold.PrimalObjective, warm.PrimalObjective, 1e-6)
}

func TestNumericalErrorFallback(t *testing.T) {
	o, err := New(lowerBoundLP(), DefaultConfig(), logr.Discard())
	require.NoError(t, err)
	w := o.Init()
	d := iterDriver{optimizer: o, workspace: w}
	d.start([]float64{2}, nil)

	w.state.x[0] = math.NaN()
	w.state.ax[0] = math.Inf(1)
	d.check()

	r := d.result()
	require.NotNil(t, r)
	assert.Equal(t, NumericalError, r.Status)
	assert.InDelta(t, 2, r.X[0], 1e-12)
	assert.False(t, math.IsNaN(r.PrimalObjective))
}

func TestStepKernelDeterministic(t *testing.T) {
	for _, v := range variants {
		cfg := DefaultConfig()
		cfg.Variant = v
		cfg.IterationLimit = 300
		o, err := New(mixedLP(), cfg, logr.Discard())
		require.NoError(t, err)

		a := o.Fit(nil, nil, o.Init())
		b := o.Fit(nil, nil, o.Init())
		assert.Equal(t, a, b)
	}
}

func TestApplyPDHGProjects(t *testing.T) {
	o, err := New(mixedLP(), DefaultConfig(), logr.Discard())
	require.NoError(t, err)
	w := o.Init()
	spec := &o.iterSpec

	x := []float64{100, -100, 50}
	y := []float64{-5, -5, 7}
	mv := applyPDHG(spec, stepSize{tau: 10, sigma: 10}, x, y, &w.work)
	assert.Equal(t, 2, mv)
	for i, v := range w.work.xn {
		assert.GreaterOrEqual(t, v, spec.sLower[i])
		assert.LessOrEqual(t, v, spec.sUpper[i])
	}
	for j := spec.meq; j < spec.m; j++ {
		assert.GreaterOrEqual(t, w.work.yn[j], 0.0)
	}
}

func TestNewRejects(t *testing.T) {
	_, err := New(nil, DefaultConfig(), logr.Discard())
	assert.ErrorIs(t, err, lp.ErrDimension)

	p := lowerBoundLP()
	p.Lower[0] = 9
	_, err = New(p, DefaultConfig(), logr.Discard())
	assert.ErrorIs(t, err, lp.ErrBounds)

	cfg := DefaultConfig()
	cfg.IterationLimit = -1
	_, err = New(lowerBoundLP(), cfg, logr.Discard())
	assert.ErrorIs(t, err, ErrConfig)

	o, err := New(lowerBoundLP(), DefaultConfig(), logr.Logger{})
	require.NoError(t, err)
	assert.Panics(t, func() { o.Fit([]float64{1, 2}, nil, o.Init()) })
}

func TestResultYAML(t *testing.T) {
	r, err := Solve(lowerBoundLP(), DefaultConfig(), logging.NewTestLogger())
	require.NoError(t, err)

	out, err := yaml.Marshal(r)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "status: optimal"), string(out))
	assert.False(t, strings.Contains(string(out), "certificate"))

	var back Result
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, r.Status, back.Status)
	assert.Equal(t, r.NumIter, back.NumIter)
}
