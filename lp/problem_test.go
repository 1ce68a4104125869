// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestValidate(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name string
		p    Problem
		err  error
	}{
		{
			name: "empty",
			p:    Problem{},
			err:  ErrEmpty,
		},
		{
			name: "equality rows without rhs",
			p:    Problem{C: []float64{1, 1}, A: mat.NewDense(1, 2, []float64{1, 1})},
			err:  ErrDimension,
		},
		{
			name: "rhs without matrix",
			p:    Problem{C: []float64{1}, H: []float64{1}},
			err:  ErrDimension,
		},
		{
			name: "wrong column count",
			p:    Problem{C: []float64{1, 1}, G: mat.NewDense(1, 3, nil), H: []float64{0}},
			err:  ErrDimension,
		},
		{
			name: "short lower bounds",
			p:    Problem{C: []float64{1, 1}, Lower: []float64{0}},
			err:  ErrDimension,
		},
		{
			name: "crossed bounds",
			p:    Problem{C: []float64{1}, Lower: []float64{2}, Upper: []float64{1}},
			err:  ErrBounds,
		},
		{
			name: "nan cost",
			p:    Problem{C: []float64{math.NaN()}},
			err:  ErrNotFinite,
		},
		{
			name: "infinite matrix entry",
			p:    Problem{C: []float64{1}, A: mat.NewDense(1, 1, []float64{inf}), B: []float64{0}},
			err:  ErrNotFinite,
		},
		{
			name: "lower bound at +inf",
			p:    Problem{C: []float64{1}, Lower: []float64{inf}},
			err:  ErrNotFinite,
		},
		{
			name: "valid with infinite bounds",
			p: Problem{
				C:     []float64{1, -1},
				A:     mat.NewDense(1, 2, []float64{1, 1}),
				B:     []float64{1},
				Lower: []float64{0, math.Inf(-1)},
				Upper: []float64{inf, 3},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestBoundsAndClone(t *testing.T) {
	p := &Problem{
		C:      []float64{1, 2},
		Offset: 3,
		G:      mat.NewDense(1, 2, []float64{1, 1}),
		H:      []float64{1},
		Upper:  []float64{4, 5},
	}
	require.NoError(t, p.Validate())

	l, u := p.Bounds()
	assert.Equal(t, []float64{math.Inf(-1), math.Inf(-1)}, l)
	assert.Equal(t, []float64{4, 5}, u)

	q := p.Clone()
	q.C[0] = 10
	q.G.(*mat.Dense).Set(0, 0, 7)
	assert.Equal(t, 1.0, p.C[0])
	assert.Equal(t, 1.0, p.G.At(0, 0))
	assert.Nil(t, q.A)
	assert.Nil(t, q.Lower)

	assert.InDelta(t, 3+1*1+2*2, p.Objective([]float64{1, 2}), 1e-15)
}

func TestOperator(t *testing.T) {
	p := &Problem{
		C: []float64{0, 0, 0},
		A: mat.NewDense(1, 3, []float64{1, 2, 0}),
		B: []float64{0},
		G: mat.NewDense(2, 3, []float64{0, 1, 1, 3, 0, -1}),
		H: []float64{0, 0},
	}
	require.NoError(t, p.Validate())

	op := NewOperator(p)
	m, n := op.Dims()
	require.Equal(t, 3, m)
	require.Equal(t, 3, n)
	assert.Equal(t, 1, op.MEq())

	kx := make([]float64, 3)
	op.Mul(kx, []float64{1, 1, 1})
	assert.Equal(t, []float64{3, 2, 2}, kx)

	kty := make([]float64, 3)
	op.MulTrans(kty, []float64{1, 1, 1})
	assert.Equal(t, []float64{4, 3, 0}, kty)

	var sv mat.SVD
	require.True(t, sv.Factorize(op.K, mat.SVDNone))
	assert.InDelta(t, sv.Values(nil)[0], op.Norm(256), 1e-8)
}

func TestOperatorNormZeroRowSum(t *testing.T) {
	largest := func(k *mat.Dense) float64 {
		var sv mat.SVD
		require.True(t, sv.Factorize(k, mat.SVDNone))
		return sv.Values(nil)[0]
	}

	// difference chain x₁-x₂, x₂-x₃, x₃-x₄
	chain := &Problem{
		C: []float64{1, 1, 1, 1},
		A: mat.NewDense(3, 4, []float64{
			1, -1, 0, 0,
			0, 1, -1, 0,
			0, 0, 1, -1,
		}),
		B:     []float64{1, 1, 1},
		Lower: []float64{0, 0, 0, 0},
	}
	// node-arc incidence of a directed 4-cycle
	cycle := &Problem{
		C: []float64{1, 1, 1, 1},
		G: mat.NewDense(4, 4, []float64{
			1, 0, 0, -1,
			-1, 1, 0, 0,
			0, -1, 1, 0,
			0, 0, -1, 1,
		}),
		H: []float64{0, 0, 0, 0},
	}

	for name, p := range map[string]*Problem{"chain": chain, "cycle": cycle} {
		require.NoError(t, p.Validate(), name)
		op := NewOperator(p)
		assert.InDelta(t, largest(op.K), op.Norm(256), 1e-6, name)

		for _, s := range []Scaling{{RuizIterations: 10}, {RuizIterations: 10, PockChambolle: true}} {
			sc := Scale(p, s).Op
			assert.InDelta(t, largest(sc.K), sc.Norm(256), 1e-6, name)
		}

		// without iterations the estimate falls back to an upper bound
		assert.GreaterOrEqual(t, op.Norm(0), largest(op.K), name)
	}

	null := NewOperator(&Problem{
		C: []float64{1, 1},
		G: mat.NewDense(1, 2, nil),
		H: []float64{0},
	})
	assert.Zero(t, null.Norm(64))
}

func TestOperatorWithoutRows(t *testing.T) {
	p := &Problem{C: []float64{1, 2}}
	op := NewOperator(p)
	m, n := op.Dims()
	assert.Equal(t, 0, m)
	assert.Equal(t, 2, n)

	dst := []float64{5, 5}
	op.MulTrans(dst, nil)
	assert.Equal(t, []float64{0, 0}, dst)
	assert.Zero(t, op.Norm(10))
}
