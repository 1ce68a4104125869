// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdhg

import (
	"errors"
	"fmt"
	"math"

	"github.com/curioloop/pdhg/lp"
)

// ErrConfig is returned by New when the solver configuration is unusable.
var ErrConfig = errors.New("pdhg: invalid configuration")

// Variant selects the fixed-point update used by the step kernel.
type Variant string

const (
	// Averaged is restarted PDHG with a running average of the iterates (raPDHG).
	Averaged Variant = "averaged"
	// Reflected is reflected Halpern PDHG anchored at the last restart point (r2HPDHG).
	Reflected Variant = "reflected"
)

// Tolerance specifies the termination criteria.
type Tolerance struct {
	// Absolute tolerance on primal residual, dual residual and duality gap.
	EpsAbs float64 `mapstructure:"eps_abs" yaml:"eps_abs"`
	// Relative tolerance, multiplied by (1 + ‖𝐪‖₂), (1 + ‖𝐜‖₂) and (1 + |pobj| + |dobj|).
	EpsRel float64 `mapstructure:"eps_rel" yaml:"eps_rel"`
	// Tolerance of the Farkas certificate that proves the primal infeasible.
	EpsPrimalInfeasible float64 `mapstructure:"eps_primal_infeasible" yaml:"eps_primal_infeasible"`
	// Tolerance of the recession ray that proves the dual infeasible.
	EpsDualInfeasible float64 `mapstructure:"eps_dual_infeasible" yaml:"eps_dual_infeasible"`
}

// Restart specifies the adaptive restart policy.
type Restart struct {
	// Restart when the KKT error of the averaged iterate falls below Ratio times
	// the error recorded at the previous restart.
	Ratio float64 `mapstructure:"ratio" yaml:"ratio"`
	// Restart unconditionally once an epoch reaches this many iterations (0 disables).
	MaxEpochLength int `mapstructure:"max_epoch_length" yaml:"max_epoch_length"`
	// Exponential smoothing θ of the primal weight update: ω ← (Δy/Δx)^θ ω^(1-θ).
	PrimalWeightSmoothing float64 `mapstructure:"primal_weight_smoothing" yaml:"primal_weight_smoothing"`
}

// Config is the immutable configuration of one solve.
type Config struct {
	Variant   Variant `mapstructure:"variant" yaml:"variant"`
	Tolerance `mapstructure:",squash" yaml:",inline"`
	// Maximum number of fixed-point iterations. Zero evaluates the initial iterate only.
	IterationLimit int `mapstructure:"iteration_limit" yaml:"iteration_limit"`
	// The termination detector and restart controller run every DisplayFrequency iterations.
	DisplayFrequency int `mapstructure:"display_frequency" yaml:"display_frequency"`
	// Unroll runs every iteration up to IterationLimit even after a terminal status
	// is reached; the first terminal status and its result are reported.
	Unroll  bool       `mapstructure:"unroll" yaml:"unroll"`
	Restart Restart    `mapstructure:"restart" yaml:"restart"`
	Scaling lp.Scaling `mapstructure:"scaling" yaml:"scaling"`
	// Step size η = StepSizeFactor / ‖𝐊‖₂, in (0, 1).
	StepSizeFactor float64 `mapstructure:"step_size_factor" yaml:"step_size_factor"`
	// Power iterations used to estimate ‖𝐊‖₂.
	PowerIterations int `mapstructure:"power_iterations" yaml:"power_iterations"`
	// Reflection coefficient ρ of the Halpern variant, in (0, 1].
	Reflection float64 `mapstructure:"reflection" yaml:"reflection"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Variant: Averaged,
		Tolerance: Tolerance{
			EpsAbs:              1e-4,
			EpsRel:              1e-4,
			EpsPrimalInfeasible: 1e-8,
			EpsDualInfeasible:   1e-8,
		},
		IterationLimit:   100000,
		DisplayFrequency: 64,
		Restart: Restart{
			Ratio:                 0.5,
			MaxEpochLength:        1000,
			PrimalWeightSmoothing: 0.5,
		},
		Scaling: lp.Scaling{
			RuizIterations: 10,
			PockChambolle:  true,
		},
		StepSizeFactor:  0.9,
		PowerIterations: 128,
		Reflection:      1,
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() (err error) {
	positive := func(v float64) bool { return v > 0 && !math.IsInf(v, 1) }
	switch {
	case c.Variant != Averaged && c.Variant != Reflected:
		err = fmt.Errorf("unknown variant %q", c.Variant)
	case !positive(c.EpsAbs):
		err = errors.New("absolute tolerance must be greater than 0")
	case !positive(c.EpsRel):
		err = errors.New("relative tolerance must be greater than 0")
	case !positive(c.EpsPrimalInfeasible):
		err = errors.New("primal infeasibility tolerance must be greater than 0")
	case !positive(c.EpsDualInfeasible):
		err = errors.New("dual infeasibility tolerance must be greater than 0")
	case c.IterationLimit < 0:
		err = errors.New("iteration limit must not be negative")
	case c.DisplayFrequency <= 0:
		err = errors.New("display frequency must be greater than 0")
	case !(c.Restart.Ratio > 0 && c.Restart.Ratio < 1):
		err = errors.New("restart ratio must be in (0, 1)")
	case c.Restart.MaxEpochLength < 0:
		err = errors.New("max epoch length must not be negative")
	case !(c.Restart.PrimalWeightSmoothing >= 0 && c.Restart.PrimalWeightSmoothing <= 1):
		err = errors.New("primal weight smoothing must be in [0, 1]")
	case c.Scaling.RuizIterations < 0:
		err = errors.New("ruiz iterations must not be negative")
	case !(c.StepSizeFactor > 0 && c.StepSizeFactor < 1):
		err = errors.New("step size factor must be in (0, 1)")
	case c.PowerIterations <= 0:
		err = errors.New("power iterations must be greater than 0")
	case !(c.Reflection > 0 && c.Reflection <= 1):
		err = errors.New("reflection must be in (0, 1]")
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return
}
