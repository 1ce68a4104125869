// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lpfile reads linear programs from YAML (or JSON) model files:
//
//	c: [1, 2]
//	offset: 0
//	a: [[1, 1]]
//	b: [1]
//	g: [[1, -1]]
//	h: [0]
//	lower: [0, -inf]
//	upper: [inf, 10]
//
// Every block except c is optional. Bounds accept numbers, "inf", "-inf", ".inf"
// or "-.inf"; an omitted bound list leaves that side unbounded.
package lpfile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/curioloop/pdhg/lp"
)

// ErrRagged is returned when the rows of a constraint matrix differ in length.
var ErrRagged = errors.New("lpfile: ragged matrix rows")

// Model is the document form of an lp.Problem.
type Model struct {
	C      []float64   `yaml:"c"`
	Offset float64     `yaml:"offset,omitempty"`
	A      [][]float64 `yaml:"a,omitempty"`
	B      []float64   `yaml:"b,omitempty"`
	G      [][]float64 `yaml:"g,omitempty"`
	H      []float64   `yaml:"h,omitempty"`
	Lower  []Bound     `yaml:"lower,omitempty"`
	Upper  []Bound     `yaml:"upper,omitempty"`
}

// Bound is a bound value that may be infinite.
type Bound float64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *Bound) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("lpfile: line %d: bound must be a scalar", node.Line)
	}
	switch strings.ToLower(strings.TrimSpace(node.Value)) {
	case "inf", "+inf", "infinity", "+infinity":
		*b = Bound(math.Inf(1))
		return nil
	case "-inf", "-infinity":
		*b = Bound(math.Inf(-1))
		return nil
	}
	var v float64
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("lpfile: line %d: %w", node.Line, err)
	}
	*b = Bound(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (b Bound) MarshalYAML() (any, error) {
	switch v := float64(b); {
	case math.IsInf(v, 1):
		return "inf", nil
	case math.IsInf(v, -1):
		return "-inf", nil
	default:
		return v, nil
	}
}

// Decode reads one model document.
func Decode(r io.Reader) (*Model, error) {
	var m Model
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("lpfile: decode: %w", err)
	}
	return &m, nil
}

// ReadFile decodes the model at path and converts it to a validated problem.
func ReadFile(path string) (*lp.Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p, err := m.Problem()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Problem converts the model and validates the result.
func (m *Model) Problem() (*lp.Problem, error) {
	n := len(m.C)
	p := &lp.Problem{
		C:      m.C,
		Offset: m.Offset,
		B:      m.B,
		H:      m.H,
	}
	var err error
	if p.A, err = dense("a", m.A, n); err != nil {
		return nil, err
	}
	if p.G, err = dense("g", m.G, n); err != nil {
		return nil, err
	}
	p.Lower = bounds(m.Lower)
	p.Upper = bounds(m.Upper)
	if err = p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// FromProblem converts a problem back into its document form.
func FromProblem(p *lp.Problem) *Model {
	m := &Model{C: p.C, Offset: p.Offset, B: p.B, H: p.H}
	rows := func(a mat.Matrix) [][]float64 {
		if a == nil {
			return nil
		}
		r, c := a.Dims()
		out := make([][]float64, r)
		for i := range out {
			out[i] = make([]float64, c)
			mat.Row(out[i], i, a)
		}
		return out
	}
	m.A, m.G = rows(p.A), rows(p.G)
	if p.Lower != nil {
		m.Lower = make([]Bound, len(p.Lower))
		for i, v := range p.Lower {
			m.Lower[i] = Bound(v)
		}
	}
	if p.Upper != nil {
		m.Upper = make([]Bound, len(p.Upper))
		for i, v := range p.Upper {
			m.Upper[i] = Bound(v)
		}
	}
	return m
}

func dense(name string, rows [][]float64, n int) (mat.Matrix, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	data := make([]float64, 0, len(rows)*n)
	for i, r := range rows {
		if len(r) != n {
			return nil, fmt.Errorf("%w: %s row %d has %d entries, want %d", ErrRagged, name, i, len(r), n)
		}
		data = append(data, r...)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s has rows but the problem has no variables", lp.ErrDimension, name)
	}
	return mat.NewDense(len(rows), n, data), nil
}

func bounds(bs []Bound) []float64 {
	if bs == nil {
		return nil
	}
	out := make([]float64, len(bs))
	for i, b := range bs {
		out[i] = float64(b)
	}
	return out
}
