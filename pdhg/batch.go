// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdhg

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/sourcegraph/conc/iter"

	"github.com/curioloop/pdhg/lp"
)

// Batch solves independent problems under one configuration in lockstep:
// every instance is advanced to the same display boundary before any instance
// moves past it. Each instance owns its optimizer and workspace, so the
// per-instance results equal those of solving the instances one by one.
type Batch struct {
	cfg        Config
	optimizers []*Optimizer
	workspaces []*Workspace
	// MaxGoroutines bounds the fan-out between boundaries (0 means one per CPU).
	MaxGoroutines int
}

// NewBatch prepares one optimizer per problem. The logger of instance k carries
// the key/value pair "instance"=k.
func NewBatch(problems []*lp.Problem, cfg Config, logger logr.Logger) (*Batch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	b := &Batch{
		cfg:        cfg,
		optimizers: make([]*Optimizer, len(problems)),
		workspaces: make([]*Workspace, len(problems)),
	}
	for k, p := range problems {
		o, err := New(p, cfg, logger.WithValues("instance", k))
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", k, err)
		}
		b.optimizers[k] = o
		b.workspaces[k] = o.Init()
	}
	return b, nil
}

// Len returns the number of instances.
func (b *Batch) Len() int { return len(b.optimizers) }

// Workspace returns the workspace of instance k.
func (b *Batch) Workspace(k int) *Workspace { return b.workspaces[k] }

// Fit runs every instance from its warm start; x0 and y0 may be nil or hold nil entries.
func (b *Batch) Fit(x0, y0 [][]float64) []*Result {
	n := len(b.optimizers)
	if (x0 != nil && len(x0) != n) || (y0 != nil && len(y0) != n) {
		panic("warm start count not match batch size")
	}

	drivers := make([]iterDriver, n)
	for k := range drivers {
		drivers[k] = iterDriver{optimizer: b.optimizers[k], workspace: b.workspaces[k]}
	}

	it := iter.Iterator[iterDriver]{MaxGoroutines: b.MaxGoroutines}
	it.ForEachIdx(drivers, func(k int, d *iterDriver) {
		var xs, ys []float64
		if x0 != nil {
			xs = x0[k]
		}
		if y0 != nil {
			ys = y0[k]
		}
		if xs != nil && len(xs) != d.optimizer.n {
			panic("initial x dimension not match optimizer")
		}
		if ys != nil && len(ys) != d.optimizer.m {
			panic("initial y dimension not match optimizer")
		}
		d.start(xs, ys)
	})

	limit, freq := b.cfg.IterationLimit, b.cfg.DisplayFrequency
	for boundary := freq; ; boundary += freq {
		stop := min(boundary, limit)
		it.ForEach(drivers, func(d *iterDriver) {
			d.runUntil(stop)
		})
		if stop >= limit {
			break
		}
		if !b.cfg.Unroll && b.allDone(drivers) {
			break
		}
	}

	results := make([]*Result, n)
	for k := range drivers {
		drivers[k].printExit()
		results[k] = drivers[k].result()
	}
	return results
}

func (b *Batch) allDone(drivers []iterDriver) bool {
	for k := range drivers {
		if !drivers[k].done() {
			return false
		}
	}
	return true
}
