// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the solver configuration from a file, PDHG_* environment
// variables and command line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/curioloop/pdhg/pdhg"
)

// EnvPrefix is the prefix of the environment variables, e.g. PDHG_EPS_ABS or PDHG_RESTART_RATIO.
const EnvPrefix = "PDHG"

// FlagKeys maps command line flag names to configuration keys.
var FlagKeys = map[string]string{
	"variant":           "variant",
	"iteration-limit":   "iteration_limit",
	"display-frequency": "display_frequency",
	"unroll":            "unroll",
	"eps-abs":           "eps_abs",
	"eps-rel":           "eps_rel",
}

// Load reads the configuration. An empty path skips the file; nil flags skip flag binding.
// The result is validated.
func Load(path string, flags *pflag.FlagSet) (pdhg.Config, error) {
	v := viper.New()
	setDefaults(v, pdhg.DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return pdhg.Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return pdhg.Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg pdhg.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return pdhg.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// AddFlags registers the overridable settings on a flag set, with defaults from def.
func AddFlags(flags *pflag.FlagSet, def pdhg.Config) {
	flags.String("variant", string(def.Variant), "step kernel: averaged or reflected")
	flags.Int("iteration-limit", def.IterationLimit, "maximum number of iterations")
	flags.Int("display-frequency", def.DisplayFrequency, "iterations between termination checks")
	flags.Bool("unroll", def.Unroll, "run every iteration up to the limit")
	flags.Float64("eps-abs", def.EpsAbs, "absolute optimality tolerance")
	flags.Float64("eps-rel", def.EpsRel, "relative optimality tolerance")
}

func setDefaults(v *viper.Viper, def pdhg.Config) {
	v.SetDefault("variant", string(def.Variant))
	v.SetDefault("eps_abs", def.EpsAbs)
	v.SetDefault("eps_rel", def.EpsRel)
	v.SetDefault("eps_primal_infeasible", def.EpsPrimalInfeasible)
	v.SetDefault("eps_dual_infeasible", def.EpsDualInfeasible)
	v.SetDefault("iteration_limit", def.IterationLimit)
	v.SetDefault("display_frequency", def.DisplayFrequency)
	v.SetDefault("unroll", def.Unroll)
	v.SetDefault("restart.ratio", def.Restart.Ratio)
	v.SetDefault("restart.max_epoch_length", def.Restart.MaxEpochLength)
	v.SetDefault("restart.primal_weight_smoothing", def.Restart.PrimalWeightSmoothing)
	v.SetDefault("scaling.ruiz_iterations", def.Scaling.RuizIterations)
	v.SetDefault("scaling.pock_chambolle", def.Scaling.PockChambolle)
	v.SetDefault("step_size_factor", def.StepSizeFactor)
	v.SetDefault("power_iterations", def.PowerIterations)
	v.SetDefault("reflection", def.Reflection)
}
